package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/crewboard/crewboard-backend/config"
	"github.com/crewboard/crewboard-backend/internal/logging"
	"github.com/crewboard/crewboard-backend/internal/storage/postgres"
)

func RunMigrate(cfg *config.Config) {
	log := logging.L().WithField("command", "migrate")

	db, err := postgres.NewConnection(&cfg.Database)
	if err != nil {
		log.WithError(err).Fatal("connect")
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := postgres.Migrate(ctx, db); err != nil {
		log.WithError(err).Fatal("migration failed")
	}
	log.Info("schema is up to date")
}

// RunSchema prints the DDL that migrate applies.
func RunSchema(w io.Writer) {
	fmt.Fprint(w, postgres.Schema())
}
