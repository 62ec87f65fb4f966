package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crewboard/crewboard-backend/internal/logging"
	"github.com/crewboard/crewboard-backend/internal/realtime"
	"github.com/crewboard/crewboard-backend/internal/storage"
)

type fakeSweeper struct {
	res   storage.SweepResult
	err   error
	calls int
}

func (f *fakeSweeper) SweepOrphans(context.Context) (storage.SweepResult, error) {
	f.calls++
	return f.res, f.err
}

type fakePruner struct{ idle time.Duration }

func (f *fakePruner) Prune(idle time.Duration) int {
	f.idle = idle
	return 2
}

func captureLogs(t *testing.T) *test.Hook {
	t.Helper()
	hook := test.NewLocal(logging.L())
	logging.L().SetLevel(logrus.DebugLevel)
	t.Cleanup(func() {
		logging.L().ReplaceHooks(make(logrus.LevelHooks))
		logging.L().SetLevel(logrus.InfoLevel)
	})
	return hook
}

func TestScheduler_Sweep(t *testing.T) {
	hook := captureLogs(t)
	sw := &fakeSweeper{res: storage.SweepResult{Tasks: 3, Memberships: 1}}
	s := NewScheduler(Deps{Sweeper: sw})

	s.Sweep()

	assert.Equal(t, 1, sw.calls)
	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, "orphan sweep completed", hook.LastEntry().Message)
	assert.Equal(t, 3, hook.LastEntry().Data["tasks"])
}

func TestScheduler_SweepFailure(t *testing.T) {
	hook := captureLogs(t)
	s := NewScheduler(Deps{Sweeper: &fakeSweeper{err: errors.New("db down")}})

	s.Sweep()

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.ErrorLevel, hook.LastEntry().Level)
}

func TestScheduler_LogMetricsAndPrune(t *testing.T) {
	hook := captureLogs(t)
	hub := realtime.NewHub(1)
	pr := &fakePruner{}
	s := NewScheduler(Deps{Metrics: hub.Metrics(), Limiter: pr})

	s.LogMetrics()
	assert.Equal(t, "realtime metrics", hook.LastEntry().Message)

	s.PruneLimiters()
	assert.Equal(t, limiterIdle, pr.idle)
	assert.Equal(t, "pruned idle rate limiters", hook.LastEntry().Message)
}

func TestScheduler_StartStop(t *testing.T) {
	s := NewScheduler(Deps{
		Metrics: realtime.NewHub(1).Metrics(),
		Sweeper: &fakeSweeper{},
		Limiter: &fakePruner{},
	})
	require.NoError(t, s.Start())
	assert.Len(t, s.cron.Entries(), 3)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s.Stop(ctx)
}
