package queue_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dmitrymomot/conveyor/core/queue"
)

func TestDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := queue.DefaultConfig()

	assert.Equal(t, 5*time.Second, cfg.PollInterval)
	assert.Equal(t, 10, cfg.MaxContiguousErrors)
	assert.False(t, cfg.UseNodeTime)
	assert.Equal(t, 8*time.Minute, cfg.MinResetLockedInterval)
	assert.Equal(t, 10*time.Minute, cfg.MaxResetLockedInterval)
	assert.True(t, cfg.Continuous)
	assert.False(t, cfg.NoLogSuccess)
	assert.Equal(t, 30*time.Second, cfg.CheckInterval)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, queue.DefaultQueueName, cfg.DefaultQueue)
	assert.Equal(t, queue.PriorityMedium, cfg.DefaultPriority)
}

func TestNewWorkerFromConfig(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	cfg := queue.DefaultConfig()
	cfg.WorkerID = "worker-from-config"
	cfg.PollInterval = 15 * time.Millisecond

	worker, err := queue.NewWorkerFromConfig(cfg, storage)
	assert.NoError(t, err)
	assert.NotNil(t, worker)
	defer worker.Release()

	assert.Equal(t, "worker-from-config", worker.ID())
}

func TestNewWorkerFromConfig_OptionOverridesConfig(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	cfg := queue.DefaultConfig()
	cfg.WorkerID = "from-config"

	worker, err := queue.NewWorkerFromConfig(cfg, storage, queue.WithWorkerID("from-option"))
	assert.NoError(t, err)
	defer worker.Release()

	assert.Equal(t, "from-option", worker.ID())
}
