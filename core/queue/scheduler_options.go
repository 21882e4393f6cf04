package queue

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/conveyor/core/event"
)

// SchedulerOption is a functional option for configuring a scheduler
type SchedulerOption func(*schedulerOptions)

type schedulerOptions struct {
	checkInterval   time.Duration
	shutdownTimeout time.Duration
	logger          *slog.Logger
	bus             *event.Bus
}

// WithCheckInterval configures how frequently the scheduler checks for due tasks.
// Shorter intervals provide more precise scheduling but increase CPU usage.
func WithCheckInterval(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.checkInterval = d
		}
	}
}

// WithSchedulerShutdownTimeout configures maximum wait time for active checks during shutdown.
// Scheduler will wait this long for in-flight operations to complete before forcing shutdown.
func WithSchedulerShutdownTimeout(d time.Duration) SchedulerOption {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.shutdownTimeout = d
		}
	}
}

// WithSchedulerLogger configures structured logging for scheduler operations.
// Use slog.New(slog.NewTextHandler(io.Discard, nil)) to disable logging.
func WithSchedulerLogger(logger *slog.Logger) SchedulerOption {
	return func(o *schedulerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithSchedulerBus attaches the event bus the scheduler publishes its
// EventScheduler* lifecycle events to. Pass the same bus a Worker was
// constructed with (see WithBus) so a Service's due-task checks and its
// job execution show up as one ordered stream to a subscriber. Without
// this option the scheduler constructs its own private bus.
func WithSchedulerBus(bus *event.Bus) SchedulerOption {
	return func(o *schedulerOptions) {
		if bus != nil {
			o.bus = bus
		}
	}
}

// SchedulerTaskOption is a functional option for configuring a scheduled task
type SchedulerTaskOption func(*schedulerTaskOptions)

type schedulerTaskOptions struct {
	queue       string
	priority    Priority
	maxAttempts int16
	flags       []string
}

// WithTaskQueue specifies which queue the scheduled task instances should be enqueued to.
// Allows routing scheduled tasks to specific workers.
func WithTaskQueue(queue string) SchedulerTaskOption {
	return func(o *schedulerTaskOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithTaskPriority sets the priority for scheduled task instances.
// Higher priority tasks are processed before lower priority ones.
func WithTaskPriority(priority Priority) SchedulerTaskOption {
	return func(o *schedulerTaskOptions) {
		if priority.Valid() {
			o.priority = priority
		}
	}
}

// WithTaskMaxAttempts configures how many attempts scheduled task instances
// get before FailJob reports them permanently failed. Values outside 0..10
// are ignored and the default is kept, so a misbehaving periodic task
// cannot retry indefinitely.
func WithTaskMaxAttempts(maxAttempts int16) SchedulerTaskOption {
	return func(o *schedulerTaskOptions) {
		if maxAttempts >= 0 && maxAttempts <= 10 {
			o.maxAttempts = maxAttempts
		}
	}
}

// WithTaskFlags sets the flags a scheduled task's created instances carry.
// Pairs with a Worker's WithForbiddenFlags: a worker configured to skip one
// of these flags will leave this periodic task's jobs for a different
// worker pool to pick up instead of leasing them itself.
func WithTaskFlags(flags ...string) SchedulerTaskOption {
	return func(o *schedulerTaskOptions) {
		o.flags = flags
	}
}
