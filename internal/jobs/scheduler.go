// Package jobs runs periodic maintenance next to the API process.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/crewboard/crewboard-backend/internal/logging"
	"github.com/crewboard/crewboard-backend/internal/realtime"
	"github.com/crewboard/crewboard-backend/internal/storage"
)

const (
	// Specs use the six-field form (with seconds).
	MetricsSpec = "0 * * * * *"
	SweepSpec   = "0 0 3 * * *"
	PruneSpec   = "0 */10 * * * *"

	limiterIdle = 30 * time.Minute
	jobTimeout  = 2 * time.Minute
)

// Pruner drops idle per-client state, such as rate-limit buckets.
type Pruner interface {
	Prune(idle time.Duration) int
}

type Deps struct {
	Metrics *realtime.Metrics
	Sweeper storage.Sweeper
	Limiter Pruner
}

type Scheduler struct {
	cron *cron.Cron
	dep  Deps
	log  *logrus.Entry
}

func NewScheduler(dep Deps) *Scheduler {
	return &Scheduler{
		cron: cron.New(cron.WithSeconds()),
		dep:  dep,
		log:  logging.L().WithField("component", "scheduler"),
	}
}

// Start registers the jobs whose dependency is present and starts the cron
// runner.
func (s *Scheduler) Start() error {
	if s.dep.Metrics != nil {
		if _, err := s.cron.AddFunc(MetricsSpec, s.LogMetrics); err != nil {
			return err
		}
	}
	if s.dep.Sweeper != nil {
		if _, err := s.cron.AddFunc(SweepSpec, s.Sweep); err != nil {
			return err
		}
	}
	if s.dep.Limiter != nil {
		if _, err := s.cron.AddFunc(PruneSpec, s.PruneLimiters); err != nil {
			return err
		}
	}

	s.log.WithField("jobs", len(s.cron.Entries())).Info("cron scheduler started")
	s.cron.Start()
	return nil
}

// Stop waits for running jobs to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		s.log.Warn("cron jobs still running at shutdown")
	}
}

func (s *Scheduler) LogMetrics() {
	snap := s.dep.Metrics.Snapshot()
	s.log.WithFields(logrus.Fields{
		"published":       snap.Published,
		"delivered":       snap.Delivered,
		"dropped":         snap.Dropped,
		"drop_rate":       snap.DropRate(),
		"bus_failures":    snap.BusFailures,
		"local_fallbacks": snap.LocalFallbacks,
		"evicted":         snap.Evicted,
	}).Info("realtime metrics")
}

func (s *Scheduler) Sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
	defer cancel()

	start := time.Now()
	res, err := s.dep.Sweeper.SweepOrphans(ctx)
	if err != nil {
		s.log.WithError(err).Error("orphan sweep failed")
		return
	}
	s.log.WithFields(logrus.Fields{
		"tasks":       res.Tasks,
		"memberships": res.Memberships,
		"took":        time.Since(start).String(),
	}).Info("orphan sweep completed")
}

func (s *Scheduler) PruneLimiters() {
	if n := s.dep.Limiter.Prune(limiterIdle); n > 0 {
		s.log.WithField("removed", n).Debug("pruned idle rate limiters")
	}
}
