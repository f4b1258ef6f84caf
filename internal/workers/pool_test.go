package workers_test

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atlas-desktop/trading-orchestrator/internal/workers"
)

func TestPoolRunsSubmittedTasks(t *testing.T) {
	pool := workers.NewPool(zap.NewNop(), workers.DecoyPoolConfig())
	pool.Start()
	defer pool.Stop()

	var ran atomic.Int32
	for i := 0; i < 10; i++ {
		require.NoError(t, pool.SubmitFunc(func() error {
			ran.Add(1)
			return nil
		}))
	}

	require.Eventually(t, func() bool { return ran.Load() == 10 }, time.Second, 5*time.Millisecond)
	require.Equal(t, int64(10), pool.Stats().TasksCompleted)
}

func TestPoolRecordsFailedTasks(t *testing.T) {
	pool := workers.NewPool(zap.NewNop(), workers.DecoyPoolConfig())
	pool.Start()
	defer pool.Stop()

	require.NoError(t, pool.SubmitFunc(func() error {
		return errors.New("boom")
	}))

	require.Eventually(t, func() bool { return pool.Stats().TasksFailed == 1 }, time.Second, 5*time.Millisecond)
}

func TestPoolRejectsSubmitAfterStop(t *testing.T) {
	pool := workers.NewPool(zap.NewNop(), workers.DecoyPoolConfig())
	pool.Start()
	require.NoError(t, pool.Stop())

	err := pool.SubmitFunc(func() error { return nil })
	require.ErrorIs(t, err, workers.ErrPoolStopped)
}

func TestPoolRejectsSubmitWhenQueueFull(t *testing.T) {
	cfg := workers.DecoyPoolConfig()
	cfg.NumWorkers = 0
	cfg.QueueSize = 1
	pool := workers.NewPool(zap.NewNop(), cfg)
	pool.Start()
	defer pool.Stop()

	require.NoError(t, pool.SubmitFunc(func() error { return nil }))
	err := pool.SubmitFunc(func() error { return nil })
	require.ErrorIs(t, err, workers.ErrQueueFull)
}
