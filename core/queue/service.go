package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
)

// ServiceState represents the lifecycle state of the service.
type ServiceState int32

const (
	// StateConfiguring indicates the service is being configured.
	// Handlers and scheduled tasks can only be registered in this state.
	StateConfiguring ServiceState = iota

	// StateRunning indicates the service is running.
	// No configuration changes are allowed in this state.
	StateRunning

	// StateStopped indicates the service has stopped.
	StateStopped
)

// String returns a string representation of the service state.
func (s ServiceState) String() string {
	switch s {
	case StateConfiguring:
		return "configuring"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// ServiceConfig holds runtime configuration for the service.
type ServiceConfig struct {
	// SkipWorkerIfNoHandlers skips releasing the worker at Run() start if no
	// handlers are registered; the worker itself is already polling by then
	// (it starts on construction), so "skip" here means "release it
	// immediately instead of leaving it running unattended".
	SkipWorkerIfNoHandlers bool

	// SkipSchedulerIfNoTasks skips starting the scheduler if no tasks are scheduled.
	SkipSchedulerIfNoTasks bool

	// RequireHandlers causes Run() to fail if no handlers are registered.
	RequireHandlers bool

	// RequireScheduledTasks causes Run() to fail if no tasks are scheduled.
	RequireScheduledTasks bool
}

// Service orchestrates a Worker, Scheduler and Enqueuer sharing one
// Storage, following a configure-then-run pattern: register handlers and
// scheduled tasks, then call Run(). The worker itself begins polling the
// moment it is constructed (see Worker), so registering handlers promptly
// after NewService matters more here than in a start/stop worker model.
type Service struct {
	worker    *Worker
	scheduler *Scheduler
	enqueuer  *Enqueuer
	storage   Storage
	logger    *slog.Logger

	state   atomic.Int32
	stateMu sync.RWMutex

	ready    chan struct{}
	stopOnce sync.Once

	config ServiceConfig

	beforeStart func(context.Context) error
	afterStop   func() error
}

// NewService creates a new queue service with all components using the
// provided storage. The worker begins polling storage immediately;
// register handlers before enqueueing any task they must process.
func NewService(storage Storage, opts ...ServiceOption) (*Service, error) {
	if storage == nil {
		return nil, ErrRepositoryNil
	}

	s := &Service{
		storage: storage,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		ready:   make(chan struct{}),
		config: ServiceConfig{
			SkipWorkerIfNoHandlers: true,
			SkipSchedulerIfNoTasks: true,
		},
	}

	s.state.Store(int32(StateConfiguring))

	enqueuer, err := NewEnqueuer(storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create enqueuer: %w", err)
	}
	s.enqueuer = enqueuer

	worker, err := NewWorker(storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create worker: %w", err)
	}
	s.worker = worker

	scheduler, err := NewScheduler(storage)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	s.scheduler = scheduler

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, fmt.Errorf("failed to apply service option: %w", err)
		}
	}

	return s, nil
}

// NewServiceFromConfig creates a new queue service using configuration and
// storage. Additional options can override config-derived values.
func NewServiceFromConfig(cfg Config, storage Storage, opts ...ServiceOption) (*Service, error) {
	serviceOpts := append([]ServiceOption{
		WithWorkerOptions(
			WithPollInterval(cfg.PollInterval),
			WithMaxContiguousErrors(cfg.MaxContiguousErrors),
			WithUseNodeTime(cfg.UseNodeTime),
			WithResetLockedInterval(cfg.MinResetLockedInterval, cfg.MaxResetLockedInterval),
			WithContinuous(cfg.Continuous),
			WithNoLogSuccess(cfg.NoLogSuccess),
		),
		WithSchedulerOptions(
			WithCheckInterval(cfg.CheckInterval),
			WithSchedulerShutdownTimeout(cfg.ShutdownTimeout),
		),
		WithEnqueuerOptions(
			WithDefaultQueue(cfg.DefaultQueue),
			WithDefaultPriority(cfg.DefaultPriority),
		),
	}, opts...)

	return NewService(storage, serviceOpts...)
}

// Run validates the service's configuration, starts the scheduler, and
// blocks until ctx is cancelled or a component fails fatally. The worker
// is already running by the time Run is called; Run's job for it is only
// to release it on ctx cancellation and propagate its completion error.
func (s *Service) Run(ctx context.Context) error {
	if !s.transitionToRunning() {
		return ErrServiceAlreadyRunning
	}
	defer s.state.Store(int32(StateStopped))

	if err := s.validate(); err != nil {
		return fmt.Errorf("service validation failed: %w", err)
	}

	if s.beforeStart != nil {
		if err := s.beforeStart(ctx); err != nil {
			return fmt.Errorf("before start hook failed: %w", err)
		}
	}

	if !s.shouldStartWorker() {
		s.logger.InfoContext(ctx, "worker released (no handlers registered)")
		s.worker.Release()
	}

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		s.logger.InfoContext(ctx, "queue worker running",
			slog.Int("handlers", s.worker.HandlerCount()),
			slog.String("worker_id", s.worker.ID()),
		)
		return s.worker.Run(ctx)()
	})

	if s.shouldStartScheduler() {
		eg.Go(func() error {
			tasks := s.scheduler.ListTasks()
			s.logger.InfoContext(ctx, "starting queue scheduler",
				slog.Int("task_count", len(tasks)),
				slog.Any("tasks", tasks),
			)
			return s.scheduler.Run(ctx)()
		})
		// Ready is closed only once the scheduler's Start has taken hold, so
		// a Stop right after Ready finds it running; a failed group ends the
		// wait early.
		for !s.scheduler.Stats().IsRunning && ctx.Err() == nil {
			time.Sleep(time.Millisecond)
		}
	} else {
		s.logger.InfoContext(ctx, "scheduler skipped (no tasks scheduled)")
	}

	close(s.ready)

	err := eg.Wait()

	s.stopOnce.Do(func() {
		if s.afterStop != nil {
			if stopErr := s.afterStop(); stopErr != nil {
				if err == nil {
					err = fmt.Errorf("after stop hook failed: %w", stopErr)
				} else {
					s.logger.ErrorContext(context.Background(), "after stop hook failed", slog.String("error", stopErr.Error()))
				}
			}
		}
	})

	return err
}

// Stop releases the worker and signals the scheduler to shut down. Run
// returns once both have exited.
func (s *Service) Stop() error {
	state := ServiceState(s.state.Load())
	if state != StateRunning {
		return fmt.Errorf("cannot stop service in state %s", state)
	}

	ctx := context.Background()
	s.logger.InfoContext(ctx, "stopping queue service")

	s.worker.Release()
	if err := s.scheduler.Stop(); err != nil {
		s.logger.ErrorContext(ctx, "failed to stop scheduler", slog.String("error", err.Error()))
		return fmt.Errorf("failed to stop scheduler: %w", err)
	}

	s.stopOnce.Do(func() {
		if s.afterStop != nil {
			if err := s.afterStop(); err != nil {
				s.logger.ErrorContext(ctx, "after stop hook failed", slog.String("error", err.Error()))
			}
		}
	})

	s.state.Store(int32(StateStopped))
	return nil
}

// Worker returns the worker instance for handler registration.
func (s *Service) Worker() *Worker {
	return s.worker
}

// Scheduler returns the scheduler instance for task scheduling.
func (s *Service) Scheduler() *Scheduler {
	return s.scheduler
}

// Enqueuer returns the enqueuer instance for task enqueueing.
func (s *Service) Enqueuer() *Enqueuer {
	return s.enqueuer
}

// Storage returns the underlying storage implementation.
func (s *Service) Storage() Storage {
	return s.storage
}

// RegisterHandler registers a task handler with the worker.
// This method can only be called before Run().
func (s *Service) RegisterHandler(handler Handler) error {
	if !s.isConfiguring() {
		return ErrServiceNotConfiguring
	}
	return s.worker.RegisterHandler(handler)
}

// RegisterHandlers registers multiple task handlers with the worker.
// This method can only be called before Run().
func (s *Service) RegisterHandlers(handlers ...Handler) error {
	if !s.isConfiguring() {
		return ErrServiceNotConfiguring
	}
	return s.worker.RegisterHandlers(handlers...)
}

// AddScheduledTask registers a periodic task with the scheduler.
// This method can only be called before Run().
func (s *Service) AddScheduledTask(name string, schedule Schedule, opts ...SchedulerTaskOption) error {
	if !s.isConfiguring() {
		return ErrServiceNotConfiguring
	}
	return s.scheduler.AddTask(name, schedule, opts...)
}

// Enqueue adds a task to the queue.
func (s *Service) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) error {
	return s.enqueuer.Enqueue(ctx, payload, opts...)
}

// EnqueueWithDelay adds a task to the queue with a delay.
func (s *Service) EnqueueWithDelay(ctx context.Context, payload any, delay time.Duration, opts ...EnqueueOption) error {
	allOpts := append([]EnqueueOption{WithDelay(delay)}, opts...)
	return s.enqueuer.Enqueue(ctx, payload, allOpts...)
}

// EnqueueAt adds a task to the queue to be executed at a specific time.
func (s *Service) EnqueueAt(ctx context.Context, payload any, at time.Time, opts ...EnqueueOption) error {
	allOpts := append([]EnqueueOption{WithScheduledAt(at)}, opts...)
	return s.enqueuer.Enqueue(ctx, payload, allOpts...)
}

// Ready returns a channel that is closed when the service is fully started.
func (s *Service) Ready() <-chan struct{} {
	return s.ready
}

// State returns the current service state.
func (s *Service) State() ServiceState {
	return ServiceState(s.state.Load())
}

func (s *Service) isConfiguring() bool {
	return ServiceState(s.state.Load()) == StateConfiguring
}

func (s *Service) transitionToRunning() bool {
	s.stateMu.Lock()
	defer s.stateMu.Unlock()

	if ServiceState(s.state.Load()) != StateConfiguring {
		return false
	}
	s.state.Store(int32(StateRunning))
	return true
}

func (s *Service) validate() error {
	if s.config.RequireHandlers && s.worker.HandlerCount() == 0 {
		return fmt.Errorf("%w (RequireHandlers is true)", ErrNoHandlers)
	}
	if s.config.RequireScheduledTasks && len(s.scheduler.ListTasks()) == 0 {
		return fmt.Errorf("%w (RequireScheduledTasks is true)", ErrNoTasksRegistered)
	}
	return nil
}

func (s *Service) shouldStartWorker() bool {
	if !s.config.SkipWorkerIfNoHandlers {
		return true
	}
	return s.worker.HandlerCount() > 0
}

func (s *Service) shouldStartScheduler() bool {
	if !s.config.SkipSchedulerIfNoTasks {
		return true
	}
	return len(s.scheduler.ListTasks()) > 0
}
