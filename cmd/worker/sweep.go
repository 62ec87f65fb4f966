package main

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/crewboard/crewboard-backend/config"
	"github.com/crewboard/crewboard-backend/internal/bootstrap"
	"github.com/crewboard/crewboard-backend/internal/logging"
	"github.com/crewboard/crewboard-backend/internal/storage/postgres"
)

// RunSweep runs one orphan sweep against the database named by DB_DSN.
func RunSweep(cfg *config.Config) {
	log := logging.L().WithField("command", "sweep")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	pool, err := bootstrap.OpenDB(ctx, bootstrap.DBOptions{DSN: cfg.Database.DSN, MaxConns: 2})
	if err != nil {
		log.WithError(err).Fatal("connect")
	}
	defer pool.Close()

	res, err := postgres.New(pool).SweepOrphans(ctx)
	if err != nil {
		log.WithError(err).Fatal("sweep failed")
	}
	log.WithFields(logrus.Fields{
		"tasks":       res.Tasks,
		"memberships": res.Memberships,
	}).Info("sweep completed")
}
