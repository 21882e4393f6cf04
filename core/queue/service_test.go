package queue_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/conveyor/core/queue"
)

type greetPayload struct {
	Name string `json:"name"`
}

func TestNewService(t *testing.T) {
	t.Parallel()

	t.Run("successful creation", func(t *testing.T) {
		t.Parallel()

		storage := queue.NewMemoryStorage()
		svc, err := queue.NewService(storage)
		require.NoError(t, err)
		require.NotNil(t, svc)

		assert.Equal(t, queue.StateConfiguring, svc.State())
		assert.NotNil(t, svc.Worker())
		assert.NotNil(t, svc.Scheduler())
		assert.NotNil(t, svc.Enqueuer())
		assert.Same(t, storage, svc.Storage().(*queue.MemoryStorage))

		svc.Worker().Release()
	})

	t.Run("nil storage error", func(t *testing.T) {
		t.Parallel()

		svc, err := queue.NewService(nil)
		assert.ErrorIs(t, err, queue.ErrRepositoryNil)
		assert.Nil(t, svc)
	})
}

func TestService_RegisterHandler(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	svc, err := queue.NewService(storage)
	require.NoError(t, err)
	defer svc.Worker().Release()

	handler := queue.NewTaskHandler(func(ctx context.Context, p greetPayload, h queue.JobHelpers) error {
		return nil
	})

	require.NoError(t, svc.RegisterHandler(handler))
	assert.Equal(t, 1, svc.Worker().HandlerCount())
}

func TestService_RegisterHandler_AfterRun(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	svc, err := queue.NewService(storage,
		queue.WithSkipSchedulerIfNoTasks(true),
		queue.WithSkipWorkerIfNoHandlers(false),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var runErr error
	done := make(chan struct{})
	go func() {
		runErr = svc.Run(ctx)
		close(done)
	}()

	<-svc.Ready()

	handler := queue.NewTaskHandler(func(ctx context.Context, p greetPayload, h queue.JobHelpers) error { return nil })
	err = svc.RegisterHandler(handler)
	assert.ErrorIs(t, err, queue.ErrServiceNotConfiguring)

	cancel()
	<-done
	assert.NoError(t, runErr)
}

// TestService_Run_ExecutesEnqueuedTask exercises the full pipeline: enqueue,
// worker lease, handler invocation, completion.
func TestService_Run_ExecutesEnqueuedTask(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	svc, err := queue.NewService(storage, queue.WithWorkerOptions(queue.WithPollInterval(10*time.Millisecond)))
	require.NoError(t, err)

	var invoked atomic.Bool
	var mu sync.Mutex
	var gotName string

	handler := queue.NewTaskHandler(func(ctx context.Context, p greetPayload, h queue.JobHelpers) error {
		invoked.Store(true)
		mu.Lock()
		gotName = p.Name
		mu.Unlock()
		return nil
	})
	require.NoError(t, svc.RegisterHandler(handler))

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- svc.Run(ctx) }()
	<-svc.Ready()

	require.NoError(t, svc.Enqueue(context.Background(), greetPayload{Name: "ferris"}))

	deadline := time.Now().Add(time.Second)
	for !invoked.Load() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	require.True(t, invoked.Load(), "handler was never invoked")

	mu.Lock()
	assert.Equal(t, "ferris", gotName)
	mu.Unlock()

	cancel()
	assert.NoError(t, <-runDone)
}

// TestService_Run_SkipWorkerIfNoHandlers covers the config-driven default:
// with no handlers registered, Run releases the worker up front instead of
// leaving it polling unattended.
func TestService_Run_SkipWorkerIfNoHandlers(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	svc, err := queue.NewService(storage, queue.WithWorkerOptions(queue.WithPollInterval(10*time.Millisecond)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	runDone := make(chan error, 1)
	go func() { runDone <- svc.Run(ctx) }()
	<-svc.Ready()

	err = svc.Worker().Healthcheck(context.Background())
	assert.ErrorIs(t, err, queue.ErrWorkerNotRunning, "worker is released when no handlers were registered")

	cancel()
	<-runDone
}

// TestService_Run_BeforeStartHookFailure confirms a beforeStart hook's
// error aborts Run before the worker/scheduler goroutines are started.
func TestService_Run_BeforeStartHookFailure(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	wantErr := errors.New("precondition not met")

	svc, err := queue.NewService(storage,
		queue.WithWorkerOptions(queue.WithPollInterval(10*time.Millisecond)),
		queue.WithBeforeStart(func(ctx context.Context) error { return wantErr }),
	)
	require.NoError(t, err)
	defer svc.Worker().Release()

	err = svc.Run(context.Background())
	assert.ErrorIs(t, err, wantErr)
}

func TestService_Run_AlreadyRunning(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	svc, err := queue.NewService(storage, queue.WithWorkerOptions(queue.WithPollInterval(10*time.Millisecond)))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go svc.Run(ctx)
	<-svc.Ready()

	err = svc.Run(context.Background())
	assert.ErrorIs(t, err, queue.ErrServiceAlreadyRunning)
}

func TestService_Stop(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	svc, err := queue.NewService(storage, queue.WithWorkerOptions(queue.WithPollInterval(10*time.Millisecond)))
	require.NoError(t, err)
	// Stop() unconditionally stops the scheduler, which errors if it was
	// never started; register a task so Run actually starts it.
	require.NoError(t, svc.AddScheduledTask("heartbeat", queue.NewIntervalSchedule(time.Hour)))

	ctx := context.Background()
	runDone := make(chan error, 1)
	go func() { runDone <- svc.Run(ctx) }()
	<-svc.Ready()

	require.NoError(t, svc.Stop())

	select {
	case err := <-runDone:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after Stop")
	}

	assert.Equal(t, queue.StateStopped, svc.State())
}

func TestService_Stop_NotRunning(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	svc, err := queue.NewService(storage)
	require.NoError(t, err)
	defer svc.Worker().Release()

	err = svc.Stop()
	assert.Error(t, err)
}

func TestService_EnqueueVariants(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	svc, err := queue.NewService(storage)
	require.NoError(t, err)
	defer svc.Worker().Release()

	require.NoError(t, svc.Enqueue(context.Background(), greetPayload{Name: "a"}))
	require.NoError(t, svc.EnqueueWithDelay(context.Background(), greetPayload{Name: "b"}, time.Minute))
	require.NoError(t, svc.EnqueueAt(context.Background(), greetPayload{Name: "c"}, time.Now().Add(time.Hour)))
}

func TestService_AddScheduledTask(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	svc, err := queue.NewService(storage)
	require.NoError(t, err)
	defer svc.Worker().Release()

	require.NoError(t, svc.AddScheduledTask("daily-report", queue.NewIntervalSchedule(24*time.Hour)))
	assert.ErrorIs(t, svc.AddScheduledTask("daily-report", queue.NewIntervalSchedule(time.Hour)), queue.ErrTaskAlreadyRegistered)
}

func TestService_AfterStopHook(t *testing.T) {
	t.Parallel()

	storage := queue.NewMemoryStorage()
	var afterStopCalled atomic.Bool

	svc, err := queue.NewService(storage,
		queue.WithWorkerOptions(queue.WithPollInterval(10*time.Millisecond)),
		queue.WithAfterStop(func() error {
			afterStopCalled.Store(true)
			return nil
		}),
	)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan error, 1)
	go func() { runDone <- svc.Run(ctx) }()
	<-svc.Ready()

	cancel()
	<-runDone

	assert.True(t, afterStopCalled.Load())
}
