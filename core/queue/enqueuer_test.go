package queue_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/conveyor/core/queue"
)

func TestEnqueuer_NewEnqueuer(t *testing.T) {
	t.Parallel()

	t.Run("nil repository error", func(t *testing.T) {
		t.Parallel()

		enq, err := queue.NewEnqueuer(nil)
		assert.ErrorIs(t, err, queue.ErrRepositoryNil)
		assert.Nil(t, enq)
	})

	t.Run("nil payload error", func(t *testing.T) {
		t.Parallel()

		enq, err := queue.NewEnqueuer(queue.NewMemoryStorage())
		require.NoError(t, err)

		assert.ErrorIs(t, enq.Enqueue(context.Background(), nil), queue.ErrPayloadNil)
	})

	t.Run("invalid priority error", func(t *testing.T) {
		t.Parallel()

		enq, err := queue.NewEnqueuer(queue.NewMemoryStorage())
		require.NoError(t, err)

		err = enq.Enqueue(context.Background(), greetPayload{Name: "x"}, queue.WithPriority(queue.Priority(101)))
		assert.ErrorIs(t, err, queue.ErrInvalidPriority)
	})
}

func TestEnqueuer_Enqueue_DerivesTaskName(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	require.NoError(t, enq.Enqueue(context.Background(), greetPayload{Name: "a"}))

	// The derived name is the payload's qualified type name, the same one
	// NewTaskHandler registers under, so the two sides agree by default.
	task, err := storage.GetPendingTaskByName(context.Background(), "queue_test.greetPayload")
	require.NoError(t, err)
	require.NotNil(t, task)
	assert.Equal(t, queue.TaskTypeOneTime, task.TaskType)
	assert.Equal(t, queue.DefaultQueueName, task.Queue)
	assert.JSONEq(t, `{"name":"a"}`, string(task.Payload))
}

func TestEnqueuer_Enqueue_Options(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	before := time.Now()
	require.NoError(t, enq.Enqueue(context.Background(), greetPayload{Name: "b"},
		queue.WithTaskName("custom-greeting"),
		queue.WithQueue("mail"),
		queue.WithPriority(queue.PriorityHigh),
		queue.WithMaxRetries(7),
		queue.WithFlags("tenant:42", "slow"),
		queue.WithDelay(time.Minute),
	))

	task, err := storage.GetPendingTaskByName(context.Background(), "custom-greeting")
	require.NoError(t, err)
	require.NotNil(t, task)

	assert.Equal(t, "mail", task.Queue)
	assert.Equal(t, queue.PriorityHigh, task.Priority)
	assert.Equal(t, int16(7), task.MaxAttempts)
	assert.Equal(t, []string{"tenant:42", "slow"}, task.Flags)
	assert.True(t, task.RunAt.After(before.Add(59*time.Second)), "WithDelay pushes RunAt into the future")
}

func TestEnqueuer_FlaggedJobSkippedByForbiddenFlagsWorker(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	enq, err := queue.NewEnqueuer(storage)
	require.NoError(t, err)

	require.NoError(t, enq.Enqueue(context.Background(), greetPayload{Name: "c"},
		queue.WithTaskName("flagged"),
		queue.WithFlags("gpu"),
	))

	// A worker forbidding the flag must leave the job in place.
	job, err := storage.GetJob(context.Background(), "worker-a", false, []string{"gpu"})
	require.NoError(t, err)
	assert.Nil(t, job)

	// A worker without that restriction leases it.
	job, err = storage.GetJob(context.Background(), "worker-b", false, nil)
	require.NoError(t, err)
	require.NotNil(t, job)
	assert.Equal(t, "flagged", job.TaskName)
}
