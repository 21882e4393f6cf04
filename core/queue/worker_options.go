package queue

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/conveyor/core/event"
)

// WorkerOption is a functional option for configuring a Worker.
type WorkerOption func(*workerOptions)

type workerOptions struct {
	workerID               string
	pollInterval           time.Duration
	maxContiguousErrors    int
	useNodeTime            bool
	minResetLockedInterval time.Duration
	maxResetLockedInterval time.Duration
	continuous             bool
	noLogSuccess           bool
	forbiddenFlags         FlagsResolver
	txRunner               TxRunner
	handlers               []Handler
	bus                    *event.Bus
	logger                 *slog.Logger
}

// WithWorkerID overrides the worker's generated identity. Useful in tests
// that need a deterministic lease owner to assert against.
func WithWorkerID(id string) WorkerOption {
	return func(o *workerOptions) {
		if id != "" {
			o.workerID = id
		}
	}
}

// WithPollInterval sets the idle/backoff delay between acquisition attempts.
func WithPollInterval(d time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if d > 0 {
			o.pollInterval = d
		}
	}
}

// WithMaxContiguousErrors sets how many consecutive acquisition failures the
// worker tolerates before rejecting its completion future and releasing.
func WithMaxContiguousErrors(n int) WorkerOption {
	return func(o *workerOptions) {
		if n > 0 {
			o.maxContiguousErrors = n
		}
	}
}

// WithUseNodeTime forwards useNodeTime to GetJob, selecting the
// application clock over the database clock for the lease timestamp.
func WithUseNodeTime(v bool) WorkerOption {
	return func(o *workerOptions) {
		o.useNodeTime = v
	}
}

// WithResetLockedInterval sets the uniform re-arm range for the
// lease-recovery timer. Both bounds must be positive and min <= max.
func WithResetLockedInterval(minD, maxD time.Duration) WorkerOption {
	return func(o *workerOptions) {
		if minD > 0 && maxD >= minD {
			o.minResetLockedInterval = minD
			o.maxResetLockedInterval = maxD
		}
	}
}

// WithContinuous controls whether the worker keeps polling after an empty or
// failed acquisition (true, the default) or stops after the first one
// (false) — useful for a one-shot drain invocation.
func WithContinuous(v bool) WorkerOption {
	return func(o *workerOptions) {
		o.continuous = v
	}
}

// WithNoLogSuccess suppresses the info-level log line emitted after a
// successful job, mirroring the NO_LOG_SUCCESS environment variable.
func WithNoLogSuccess(v bool) WorkerOption {
	return func(o *workerOptions) {
		o.noLogSuccess = v
	}
}

// WithForbiddenFlags sets the resolver consulted at the top of every
// iteration to produce the flag set GetJob should skip.
func WithForbiddenFlags(r FlagsResolver) WorkerOption {
	return func(o *workerOptions) {
		if r != nil {
			o.forbiddenFlags = r
		}
	}
}

// WithWorkerHandlers registers task handlers at construction time, before
// the worker's first acquisition attempt. RegisterHandler works too, but a
// job leased in the window between NewWorker returning and a later
// RegisterHandler call is reported as failed with an unsupported-task
// message; this option closes that window.
func WithWorkerHandlers(handlers ...Handler) WorkerOption {
	return func(o *workerOptions) {
		o.handlers = append(o.handlers, handlers...)
	}
}

// WithTxRunner sets the transaction runner exposed to handlers as
// JobHelpers.WithTx. Pass postgres.Storage's RunInTx so a handler's
// writes and any follow-up Enqueue calls commit or roll back together.
func WithTxRunner(run TxRunner) WorkerOption {
	return func(o *workerOptions) {
		if run != nil {
			o.txRunner = run
		}
	}
}

// WithBus attaches the event bus the worker publishes its lifecycle events
// to. Without this option the worker constructs its own private bus.
func WithBus(bus *event.Bus) WorkerOption {
	return func(o *workerOptions) {
		if bus != nil {
			o.bus = bus
		}
	}
}

// WithWorkerLogger sets the logger used for the worker's structured log lines.
func WithWorkerLogger(logger *slog.Logger) WorkerOption {
	return func(o *workerOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}
