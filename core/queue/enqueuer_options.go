package queue

import "time"

// EnqueuerOption configures an Enqueuer at construction time.
type EnqueuerOption func(*enqueuerOptions)

type enqueuerOptions struct {
	defaultQueue    string
	defaultPriority Priority
}

// WithDefaultQueue overrides the queue name an Enqueue call falls back to
// when the caller does not specify one with WithQueue.
func WithDefaultQueue(queue string) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if queue != "" {
			o.defaultQueue = queue
		}
	}
}

// WithDefaultPriority overrides the priority an Enqueue call falls back to
// when the caller does not specify one with WithPriority.
func WithDefaultPriority(p Priority) EnqueuerOption {
	return func(o *enqueuerOptions) {
		if p.Valid() {
			o.defaultPriority = p
		}
	}
}

// EnqueueOption configures a single Enqueue call.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	queue       string
	priority    Priority
	taskName    string
	maxRetries  int16
	flags       []string
	delay       time.Duration
	scheduledAt *time.Time
}

// WithQueue routes this job to queue instead of the Enqueuer's default.
func WithQueue(queue string) EnqueueOption {
	return func(o *enqueueOptions) {
		if queue != "" {
			o.queue = queue
		}
	}
}

// WithPriority overrides this job's priority.
func WithPriority(p Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = p
	}
}

// WithTaskName overrides the task name derived from the payload's type.
func WithTaskName(name string) EnqueueOption {
	return func(o *enqueueOptions) {
		if name != "" {
			o.taskName = name
		}
	}
}

// WithMaxRetries sets how many attempts this job gets before it is
// reported as permanently failed.
func WithMaxRetries(n int16) EnqueueOption {
	return func(o *enqueueOptions) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

// WithFlags sets the flags this job's row carries. A Worker constructed
// with WithForbiddenFlags naming one of them will leave the job for a
// different worker pool rather than lease it itself.
func WithFlags(flags ...string) EnqueueOption {
	return func(o *enqueueOptions) {
		o.flags = flags
	}
}

// WithDelay schedules this job to first become eligible after d has
// elapsed. Mutually exclusive with WithScheduledAt; whichever is applied
// last wins.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
			o.scheduledAt = nil
		}
	}
}

// WithScheduledAt schedules this job to first become eligible at t.
func WithScheduledAt(t time.Time) EnqueueOption {
	return func(o *enqueueOptions) {
		o.scheduledAt = &t
		o.delay = 0
	}
}
