package worker

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/anvh2/market-intel/internal/libs/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWorkerProcessesJobs(t *testing.T) {
	var processed int64

	w, err := New(logger.NewDev(), &PoolConfig{NumProcess: 4})
	require.NoError(t, err)

	w.WithProcess(func(ctx context.Context, message interface{}) error {
		atomic.AddInt64(&processed, 1)
		return nil
	})
	require.NoError(t, w.Start())

	for i := 0; i < 100; i++ {
		w.SendJob(context.Background(), i)
	}

	deadline := time.Now().Add(2 * time.Second)
	for atomic.LoadInt64(&processed) < 100 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	w.Stop()

	assert.Equal(t, int64(100), atomic.LoadInt64(&processed))
}

func TestWorkerConfigValidation(t *testing.T) {
	_, err := New(logger.NewDev(), nil)
	assert.Error(t, err)

	_, err = New(logger.NewDev(), &PoolConfig{})
	assert.Error(t, err)
}

func TestWorkerPolling(t *testing.T) {
	var polls int64

	w, err := New(logger.NewDev(), &PoolConfig{NumPolling: 1, PollingBackoff: 10 * time.Millisecond})
	require.NoError(t, err)

	w.WithPolling(func(ctx context.Context, idx int32) error {
		atomic.AddInt64(&polls, 1)
		return errors.New("polling errors are swallowed")
	})
	require.NoError(t, w.Start())

	time.Sleep(100 * time.Millisecond)
	w.Stop()

	assert.Greater(t, atomic.LoadInt64(&polls), int64(0))
}
