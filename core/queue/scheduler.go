package queue

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/conveyor/core/event"
	"github.com/dmitrymomot/conveyor/core/logger"
)

// SchedulerRepository is the storage contract Scheduler drives periodic
// tasks through: the same CreateTask a one-time Enqueue call uses, plus an
// idempotency check so a restart (or a second scheduler instance) does not
// double-create a task for a period that already has one pending.
type SchedulerRepository interface {
	// CreateTask creates a new task in the storage
	CreateTask(ctx context.Context, task *Task) error

	// GetPendingTaskByName checks if a pending task with given name exists
	GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error)
}

// Scheduler evaluates a set of named Schedules on its own check interval
// and, for each one due, enqueues a TaskTypePeriodic row through the same
// repository a Worker leases from — a periodic task rides the exact same
// lease/execute/report path as a one-time one once it lands in the table.
//
// Scheduler is independent of Worker: it decides when new periodic jobs
// are created, never when they are leased or executed.
type Scheduler struct {
	repo     SchedulerRepository
	tasks    map[string]*scheduledTask
	mu       sync.RWMutex
	ticker   *time.Ticker
	interval time.Duration
	logger   *slog.Logger
	bus      *event.Bus

	// State management
	ctx             context.Context
	cancel          context.CancelFunc
	running         atomic.Bool
	wg              sync.WaitGroup
	shutdownTimeout time.Duration

	// Observability metrics
	tasksScheduled atomic.Int64
	activeChecks   atomic.Int32
}

// SchedulerStats is a point-in-time snapshot of Scheduler's own counters,
// for a caller wiring it into a metrics endpoint or Healthcheck.
type SchedulerStats struct {
	TasksScheduled int64 // total periodic task instances created since construction
	ActiveChecks   int32 // due-task sweeps currently in flight
	IsRunning      bool
}

// scheduledTask is one AddTask registration: a Schedule plus the routing
// and retry metadata every instance it produces is stamped with.
type scheduledTask struct {
	name            string
	schedule        Schedule
	queue           string
	priority        Priority
	maxAttempts     int16
	flags           []string
	lastScheduledAt *time.Time
}

// NewScheduler constructs a Scheduler over repo. Register tasks with
// AddTask, then start the check loop with Start, Run, or a Service.
func NewScheduler(repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &schedulerOptions{
		checkInterval:   30 * time.Second,
		shutdownTimeout: 30 * time.Second,
		logger:          slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.bus == nil {
		options.bus = event.NewBus()
	}

	return &Scheduler{
		repo:            repo,
		tasks:           make(map[string]*scheduledTask),
		interval:        options.checkInterval,
		shutdownTimeout: options.shutdownTimeout,
		logger:          options.logger,
		bus:             options.bus,
	}, nil
}

// NewSchedulerFromConfig builds a Scheduler from Config, letting opts
// override individual fields after the config-derived defaults are applied.
func NewSchedulerFromConfig(cfg Config, repo SchedulerRepository, opts ...SchedulerOption) (*Scheduler, error) {
	allOpts := append([]SchedulerOption{
		WithCheckInterval(cfg.CheckInterval),
		WithSchedulerShutdownTimeout(cfg.ShutdownTimeout),
	}, opts...)

	return NewScheduler(repo, allOpts...)
}

// AddTask registers a periodic task under name, evaluated against schedule
// on every check-interval tick. Returns ErrTaskAlreadyRegistered if name is
// already registered.
func (s *Scheduler) AddTask(name string, schedule Schedule, opts ...SchedulerTaskOption) error {
	taskOpts := &schedulerTaskOptions{
		queue:       DefaultQueueName,
		priority:    PriorityDefault,
		maxAttempts: 3,
	}
	for _, opt := range opts {
		opt(taskOpts)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.tasks[name]; exists {
		return ErrTaskAlreadyRegistered
	}

	s.tasks[name] = &scheduledTask{
		name:        name,
		schedule:    schedule,
		queue:       taskOpts.queue,
		priority:    taskOpts.priority,
		maxAttempts: taskOpts.maxAttempts,
		flags:       taskOpts.flags,
	}

	s.logger.InfoContext(context.Background(), "registered periodic task",
		logger.ID("task_name", name), slog.String("schedule", schedule.String()))

	return nil
}

// Start begins the scheduler's periodic task checking. This is a blocking
// operation that runs until ctx is cancelled. Use Run for the
// errgroup-compatible form, or call Start in its own goroutine.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already started")
	}

	taskCount := len(s.tasks)
	if taskCount == 0 {
		s.mu.Unlock()
		return ErrSchedulerNotConfigured
	}

	s.ctx, s.cancel = context.WithCancel(ctx)
	s.ticker = time.NewTicker(s.interval)
	s.mu.Unlock()

	s.running.Store(true)
	defer s.ticker.Stop()

	s.bus.Publish(s.ctx, EventSchedulerStart, SchedulerStartEvent{TaskCount: taskCount})
	s.logger.InfoContext(s.ctx, "scheduler started",
		slog.Int("task_count", taskCount), slog.Duration("check_interval", s.interval))

	s.checkTasksWithWait()

	for {
		select {
		case <-s.ctx.Done():
			s.logger.InfoContext(context.Background(), "scheduler stopping")
			s.running.Store(false)
			s.bus.Publish(context.Background(), EventSchedulerStop, SchedulerStopEvent{Error: s.ctx.Err()})
			return s.ctx.Err()
		case <-s.ticker.C:
			s.checkTasksWithWait()
		}
	}
}

// Stop gracefully shuts down the scheduler, waiting up to shutdownTimeout
// for any in-flight due-task sweep to finish.
func (s *Scheduler) Stop() error {
	s.mu.Lock()
	if s.cancel == nil {
		s.mu.Unlock()
		return fmt.Errorf("scheduler not started")
	}

	s.running.Store(false)
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	cancel()

	s.logger.InfoContext(context.Background(), "scheduler stopping, waiting for active checks to complete",
		slog.Duration("timeout", s.shutdownTimeout))

	ctx, ctxCancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer ctxCancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.InfoContext(context.Background(), "scheduler stopped cleanly")
		return nil
	case <-ctx.Done():
		s.logger.WarnContext(context.Background(), "scheduler shutdown timeout exceeded, some checks may be abandoned",
			slog.Duration("timeout", s.shutdownTimeout))
		return fmt.Errorf("shutdown timeout exceeded after %s", s.shutdownTimeout)
	}
}

// Run adapts Scheduler to the errgroup-compatible lifecycle pattern
// Worker.Run already uses: start, then release on ctx cancellation.
func (s *Scheduler) Run(ctx context.Context) func() error {
	return func() error {
		errCh := make(chan error, 1)
		go func() { errCh <- s.Start(ctx) }()

		select {
		case <-ctx.Done():
			_ = s.Stop()
			<-errCh
			return nil
		case err := <-errCh:
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		}
	}
}

// checkTasksWithWait registers a sweep with the shutdown WaitGroup before
// running it, under the same lock Stop uses to flip s.cancel to nil — so a
// sweep starting concurrently with Stop either gets counted or doesn't
// start at all, never the reverse.
func (s *Scheduler) checkTasksWithWait() {
	s.mu.RLock()
	if s.cancel == nil {
		s.mu.RUnlock()
		return
	}
	s.wg.Add(1)
	s.mu.RUnlock()

	defer s.wg.Done()

	s.activeChecks.Add(1)
	defer s.activeChecks.Add(-1)

	// Background, not s.ctx: a sweep already in flight when Stop cancels
	// s.ctx should still finish its own CreateTask calls rather than abort
	// them mid-flight.
	s.checkTasks(context.Background())
}

// checkTasks evaluates every registered task against now and creates an
// instance for each one due.
func (s *Scheduler) checkTasks(ctx context.Context) {
	s.mu.RLock()
	tasks := make([]*scheduledTask, 0, len(s.tasks))
	for _, task := range s.tasks {
		tasks = append(tasks, task)
	}
	s.mu.RUnlock()

	now := time.Now()
	for _, task := range tasks {
		if err := s.scheduleTaskIfNeeded(ctx, task, now); err != nil {
			s.logger.ErrorContext(ctx, "failed to schedule task",
				logger.ID("task_name", task.name), logger.Error(err))
		}
	}
}

// scheduleTaskIfNeeded creates one instance of task if it is due and no
// pending instance for the same period already exists.
func (s *Scheduler) scheduleTaskIfNeeded(ctx context.Context, task *scheduledTask, now time.Time) error {
	firstRun := task.lastScheduledAt == nil
	nextRun := s.calculateNextRun(task, now)
	if !s.shouldScheduleTask(task, nextRun) {
		return nil
	}

	// Idempotency: a pending instance for this task name already covers
	// the period, whether left by our own last sweep, a scheduler restart,
	// or a sibling scheduler instance racing us. Sync local state to it and
	// skip rather than create a duplicate.
	existing, err := s.repo.GetPendingTaskByName(ctx, task.name)
	if err == nil && existing != nil {
		s.updateTaskState(task.name, &existing.RunAt)
		s.bus.Publish(ctx, EventSchedulerTaskSkipped, SchedulerTaskSkippedEvent{TaskName: task.name, RunAt: existing.RunAt})
		s.logger.DebugContext(ctx, "periodic task already pending",
			logger.ID("task_name", task.name), slog.Time("scheduled_for", existing.RunAt))
		return nil
	}

	if err := s.createTask(ctx, task, nextRun); err != nil {
		return fmt.Errorf("failed to create periodic task: %w", err)
	}
	s.updateTaskState(task.name, &nextRun)

	s.bus.Publish(ctx, EventSchedulerTaskDue, SchedulerTaskDueEvent{TaskName: task.name, Queue: task.queue, RunAt: nextRun})
	s.logger.InfoContext(ctx, "created periodic task",
		logger.ID("task_name", task.name), slog.Time("scheduled_for", nextRun),
		slog.Bool("first_run", firstRun))

	return nil
}

// calculateNextRun determines when task should next fire, relative to its
// last scheduled instance (or now, for a task never scheduled before).
func (s *Scheduler) calculateNextRun(task *scheduledTask, now time.Time) time.Time {
	if task.lastScheduledAt == nil {
		return task.schedule.Next(now)
	}
	return task.schedule.Next(*task.lastScheduledAt)
}

// shouldScheduleTask reports whether task's next run has actually arrived.
// A task never scheduled before is always due; scheduler check frequency
// otherwise never brings a task's timing forward.
func (s *Scheduler) shouldScheduleTask(task *scheduledTask, nextRun time.Time) bool {
	if task.lastScheduledAt == nil {
		return true
	}
	if nextRun.After(time.Now()) {
		s.logger.DebugContext(context.Background(), "periodic task not due yet",
			logger.ID("task_name", task.name), slog.Time("next_run", nextRun))
		return false
	}
	return true
}

// updateTaskState records scheduledAt as task's most recent instance time,
// under the registration lock so a concurrent AddTask/ListTasks call never
// observes a half-updated scheduledTask.
func (s *Scheduler) updateTaskState(taskName string, scheduledAt *time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t, ok := s.tasks[taskName]; ok {
		t.lastScheduledAt = scheduledAt
	}
}

// createTask inserts one periodic task instance via SchedulerRepository.
func (s *Scheduler) createTask(ctx context.Context, task *scheduledTask, scheduledAt time.Time) error {
	newTask := &Task{
		ID:          uuid.New(),
		Queue:       task.queue,
		TaskType:    TaskTypePeriodic,
		TaskName:    task.name,
		Status:      TaskStatusPending,
		Priority:    task.priority,
		Flags:       task.flags,
		Attempts:    0,
		MaxAttempts: task.maxAttempts,
		RunAt:       scheduledAt,
		CreatedAt:   time.Now(),
	}

	if err := s.repo.CreateTask(ctx, newTask); err != nil {
		return err
	}
	s.tasksScheduled.Add(1)

	return nil
}

// RemoveTask unregisters a periodic task; already-created pending
// instances of it are unaffected and still run to completion.
func (s *Scheduler) RemoveTask(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tasks, name)

	s.logger.InfoContext(context.Background(), "removed periodic task", logger.ID("task_name", name))
}

// ListTasks returns the names of all registered periodic tasks.
func (s *Scheduler) ListTasks() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.tasks))
	for name := range s.tasks {
		names = append(names, name)
	}
	return names
}

// Stats returns a snapshot of the scheduler's observability counters.
func (s *Scheduler) Stats() SchedulerStats {
	s.mu.RLock()
	isRunning := s.cancel != nil
	s.mu.RUnlock()

	return SchedulerStats{
		TasksScheduled: s.tasksScheduled.Load(),
		ActiveChecks:   s.activeChecks.Load(),
		IsRunning:      isRunning,
	}
}

// Healthcheck reports an error if the scheduler is not running, or is
// running with no registered tasks.
func (s *Scheduler) Healthcheck(context.Context) error {
	stats := s.Stats()
	if !stats.IsRunning {
		return errors.Join(ErrHealthcheckFailed, ErrSchedulerNotRunning)
	}

	s.mu.RLock()
	taskCount := len(s.tasks)
	s.mu.RUnlock()

	if taskCount == 0 {
		return errors.Join(ErrHealthcheckFailed, ErrNoTasksRegistered)
	}

	return nil
}
