package queue

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/conveyor/core/event"
	"github.com/dmitrymomot/conveyor/core/logger"
	"github.com/google/uuid"
)

// WorkerRepository defines the four operations a Worker leases, reports,
// and recovers jobs through. Their SQL is treated entirely as an
// external collaborator: a Worker never touches a connection pool or a
// *pgxpool.Pool directly, only this interface (see core/queue/postgres for
// a concrete implementation).
type WorkerRepository interface {
	// GetJob atomically selects and locks one eligible job for workerID, or
	// returns (nil, nil) when none is available. useNodeTime selects
	// whether the locked_at column is stamped with the application clock
	// (true) or the store's own clock (false). flagsToSkip excludes any
	// job whose Flags intersect it.
	GetJob(ctx context.Context, workerID string, useNodeTime bool, flagsToSkip []string) (*Task, error)

	// CompleteJob marks jobID done and releases its lease. Implementations
	// must be idempotent against a job already completed.
	CompleteJob(ctx context.Context, workerID string, jobID uuid.UUID) error

	// FailJob records message against jobID and, depending on the store's
	// own retry policy, either reschedules it or marks it permanently
	// failed.
	FailJob(ctx context.Context, workerID string, jobID uuid.UUID, message string) error

	// ResetLockedAt clears leases abandoned by workers that crashed before
	// reporting completion or failure. Best-effort; errors are logged, not
	// propagated.
	ResetLockedAt(ctx context.Context) error
}

// Worker leases jobs from a WorkerRepository, executes the registered
// Handler for each, and reports the outcome back — one job at a time, for
// as long as it remains active. See doc.go for the full lifecycle.
//
// A Worker is constructed active and immediately begins polling; there is
// no separate Start call. Release stops it.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	mu       sync.RWMutex // guards handlers only; doNext never locks it

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

	bus    *event.Bus
	logger *slog.Logger

	// contiguousErrors is owned by the single run goroutine. active is
	// atomic and is cleared by Release from any goroutine. activeJob is set
	// by the run goroutine; GetActiveJob is the only outside reader, guarded
	// by jobMu.
	active           atomic.Bool
	contiguousErrors int
	jobMu            sync.RWMutex
	activeJob        *Task

	// again is set by Nudge when doNext is mid-acquisition, consumed at
	// the top of the next empty-poll branch to skip the idle wait.
	again atomic.Bool

	// waiting is true exactly while the run goroutine is blocked in its
	// idle wait, the only window in which Nudge can break it immediately.
	waiting atomic.Bool
	workCh  chan struct{}

	releaseOnce sync.Once
	releaseCh   chan struct{}

	completion *Completion

	resetMu       sync.Mutex
	resetInFlight *Completion
	resetDone     chan struct{} // closed once the resetLocked goroutine returns
}

// NewWorker constructs a Worker over repo and starts its job-acquisition
// loop and lease-recovery timer immediately. Call RegisterHandler(s) before
// a job needing them can actually arrive — an unregistered task name is
// reported as that job's failure, not a construction-time error.
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	options := &workerOptions{
		workerID:               randomWorkerID(),
		pollInterval:           5 * time.Second,
		maxContiguousErrors:    10,
		useNodeTime:            false,
		minResetLockedInterval: 8 * time.Minute,
		maxResetLockedInterval: 10 * time.Minute,
		continuous:             true,
		noLogSuccess:           noLogSuccessFromEnv(),
		forbiddenFlags:         NoFlags,
		txRunner:               noopWithTx,
		logger:                 slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(options)
	}
	if options.bus == nil {
		options.bus = event.NewBus()
	}

	w := &Worker{
		repo:                   repo,
		handlers:               make(map[string]Handler),
		workerID:               options.workerID,
		pollInterval:           options.pollInterval,
		maxContiguousErrors:    options.maxContiguousErrors,
		useNodeTime:            options.useNodeTime,
		minResetLockedInterval: options.minResetLockedInterval,
		maxResetLockedInterval: options.maxResetLockedInterval,
		continuous:             options.continuous,
		noLogSuccess:           options.noLogSuccess,
		forbiddenFlags:         options.forbiddenFlags,
		txRunner:               options.txRunner,
		bus:                    options.bus,
		logger:                 options.logger,
		workCh:                 make(chan struct{}, 1),
		releaseCh:              make(chan struct{}),
		completion:             newCompletion(),
		resetDone:              make(chan struct{}),
	}
	w.active.Store(true)

	for _, h := range options.handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}

	w.bus.Publish(context.Background(), EventWorkerCreate, WorkerCreateEvent{WorkerID: w.workerID})

	go w.run()
	go w.resetLocked()

	return w, nil
}

// NewWorkerFromConfig builds a Worker from Config, letting opts override
// individual fields after the config-derived defaults are applied.
func NewWorkerFromConfig(cfg Config, repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	allOpts := append([]WorkerOption{
		WithWorkerID(cfg.WorkerID),
		WithPollInterval(cfg.PollInterval),
		WithMaxContiguousErrors(cfg.MaxContiguousErrors),
		WithUseNodeTime(cfg.UseNodeTime),
		WithResetLockedInterval(cfg.MinResetLockedInterval, cfg.MaxResetLockedInterval),
		WithContinuous(cfg.Continuous),
		WithNoLogSuccess(cfg.NoLogSuccess),
	}, opts...)
	return NewWorker(repo, allOpts...)
}

// randomWorkerID returns "worker-" followed by 18 hex characters, the
// default worker identity format.
func randomWorkerID() string {
	buf := make([]byte, 9)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand failing is not something a job worker can recover
		// from meaningfully; fall back to a fixed-but-unique-enough value
		// rather than leaving workerID empty.
		n, _ := randInt63()
		return fmt.Sprintf("worker-%018x", n)
	}
	return "worker-" + hex.EncodeToString(buf)
}

func randInt63() (int64, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	if err != nil {
		return time.Now().UnixNano(), err
	}
	return n.Int64(), nil
}

// RegisterHandler registers a single task handler, keyed by handler.Name().
func (w *Worker) RegisterHandler(handler Handler) error {
	if handler == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[handler.Name()] = handler
	return nil
}

// RegisterHandlers registers multiple task handlers.
func (w *Worker) RegisterHandlers(handlers ...Handler) error {
	for _, h := range handlers {
		if err := w.RegisterHandler(h); err != nil {
			return err
		}
	}
	return nil
}

// HandlerCount returns the number of registered handlers.
func (w *Worker) HandlerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.handlers)
}

func (w *Worker) handlerFor(name string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[name]
	return h, ok
}

// ID returns the worker's lease-owner identity.
func (w *Worker) ID() string { return w.workerID }

// GetActiveJob returns a snapshot of the job currently being processed, or
// nil if the worker is between jobs.
func (w *Worker) GetActiveJob() *Task {
	w.jobMu.RLock()
	defer w.jobMu.RUnlock()
	if w.activeJob == nil {
		return nil
	}
	job := *w.activeJob
	return &job
}

func (w *Worker) setActiveJob(job *Task) {
	w.jobMu.Lock()
	w.activeJob = job
	w.jobMu.Unlock()
}

// Nudge signals the worker that new work may be available, letting it skip
// the remainder of its pollInterval wait. It requires the worker still be
// active; nudging a released worker is a no-op that returns false.
//
// It returns true when the nudge broke an idle wait and triggered an
// immediate acquisition attempt, false when doNext was already busy (in
// which case the nudge is latched and consumed at the end of that
// iteration instead).
func (w *Worker) Nudge() bool {
	if !w.active.Load() {
		return false
	}
	if w.waiting.CompareAndSwap(true, false) {
		select {
		case w.workCh <- struct{}{}:
		default:
		}
		return true
	}
	w.again.Store(true)
	return false
}

// Release stops the worker: idempotent, safe to call any number of times
// and from any goroutine. It does not wait for an in-flight job or
// lease-recovery call to finish; it returns the Completion future so the
// caller can await full shutdown separately.
func (w *Worker) Release() *Completion {
	w.releaseOnce.Do(func() {
		w.active.Store(false)
		close(w.releaseCh)
		w.bus.Publish(context.Background(), EventWorkerRelease, WorkerReleaseEvent{WorkerID: w.workerID})
	})
	return w.completion
}

// Completion returns the one-shot future that settles when the worker has
// fully stopped: nil on a clean stop, or the fatal error that ended it.
func (w *Worker) Completion() *Completion {
	return w.completion
}

// Run adapts the worker to the errgroup-compatible lifecycle pattern this
// module's other long-running components (Scheduler.Run) already use: it
// blocks until ctx is cancelled or the worker settles on its own (a fatal
// acquisition or report error), releasing the worker on ctx cancellation.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		done := make(chan error, 1)
		go func() { done <- w.completion.AwaitContext(context.Background()) }()

		select {
		case <-ctx.Done():
			w.Release()
			<-done
			return nil
		case err := <-done:
			return err
		}
	}
}

// Healthcheck reports whether the worker is still active. It never
// inspects activeJob: a worker idle between polls is healthy.
func (w *Worker) Healthcheck(context.Context) error {
	if !w.active.Load() {
		return errors.Join(ErrHealthcheckFailed, ErrWorkerNotRunning)
	}
	return nil
}

// run is doNext's loop: a single dedicated goroutine, never concurrently
// re-entered by construction, structured as a for-loop rather than the
// recursive shape the source uses for its "again" fast path (see DESIGN.md
// for why: recursion on a chatty nudger would grow the call stack
// unboundedly; a loop continuation does not).
func (w *Worker) run() {
	ctx := context.Background()

	for {
		w.again.Store(false)

		flags, ferr := w.resolveForbiddenFlags(ctx)
		if ferr != nil {
			if !w.handleAcquisitionError(ctx, ferr) {
				return
			}
			continue
		}

		w.bus.Publish(ctx, EventWorkerGetJobStart, WorkerGetJobStartEvent{WorkerID: w.workerID})
		job, err := w.repo.GetJob(ctx, w.workerID, w.useNodeTime, flags)
		if err != nil {
			w.bus.Publish(ctx, EventWorkerGetJobError, WorkerGetJobErrorEvent{WorkerID: w.workerID, Error: err})
			if !w.handleAcquisitionError(ctx, err) {
				return
			}
			continue
		}

		w.contiguousErrors = 0

		if job == nil {
			w.bus.Publish(ctx, EventWorkerGetJobEmpty, WorkerGetJobEmptyEvent{WorkerID: w.workerID})
			if cont := w.handleEmptyPoll(ctx); !cont {
				return
			}
			continue
		}

		w.setActiveJob(job)
		w.bus.Publish(ctx, EventJobStart, JobStartEvent{WorkerID: w.workerID, Task: *job})

		handlerErr, fatalErr := w.executeJob(ctx, job)
		if fatalErr != nil {
			w.setActiveJob(nil)
			w.seppuku(ctx, fatalErr)
			return
		}

		w.bus.Publish(ctx, EventJobComplete, JobCompleteEvent{WorkerID: w.workerID, Task: *job, Error: handlerErr})
		w.setActiveJob(nil)

		if !w.active.Load() {
			w.finishRelease(nil)
			return
		}
		// Successful or failed job: loop immediately, no delay.
	}
}

// handleAcquisitionError handles a failed GetJob call. It returns false
// once the worker has exited (fatal reject or release);
// the caller must return immediately in that case. It returns true when
// the caller should continue its loop after the scheduled backoff.
// Branches that initiate the shutdown themselves call Release before
// finishRelease, so worker:release always precedes the settling of
// completion and worker:stop; the externally-released branches rely on the
// caller's own Release having already published it.
func (w *Worker) handleAcquisitionError(ctx context.Context, err error) bool {
	if !w.continuous {
		w.Release()
		w.finishRelease(err)
		return false
	}

	w.contiguousErrors++
	if w.contiguousErrors >= w.maxContiguousErrors {
		wrapped := fmt.Errorf("%w: failed %d times, most recent error: %s", ErrContiguousErrorsExceeded, w.contiguousErrors, err)
		w.Release()
		w.finishRelease(wrapped)
		return false
	}

	if w.active.Load() {
		if !w.idleWait() {
			// Released while waiting out the backoff. The release is what
			// ended the wait, so this is a clean stop, not a rejection.
			w.finishRelease(nil)
			return false
		}
		return true
	}

	// released during the failed GetJob call itself
	w.finishRelease(err)
	return false
}

// handleEmptyPoll handles an empty poll result (no job available). It
// returns false once the worker has exited; true when the caller's loop should
// continue (either immediately, on an "again" nudge, or after the idle
// wait elapses).
func (w *Worker) handleEmptyPoll(ctx context.Context) bool {
	if !w.continuous {
		w.Release()
		w.finishRelease(nil)
		return false
	}
	if !w.active.Load() {
		w.finishRelease(nil)
		return false
	}
	if w.again.Load() {
		return true
	}
	if !w.idleWait() {
		w.finishRelease(nil)
		return false
	}
	return true
}

// idleWait blocks until pollInterval elapses, a nudge arrives, or the
// worker is released. It is the only place doNextTimer conceptually
// exists: waiting is true for its exact duration, the window in which
// Nudge can short-circuit it.
func (w *Worker) idleWait() bool {
	w.waiting.Store(true)
	defer w.waiting.Store(false)

	timer := time.NewTimer(w.pollInterval)
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-w.workCh:
		return true
	case <-w.releaseCh:
		return false
	}
}

// seppuku is the worker's fatal path: a failure past
// the handler invocation itself (the completion/failure report call, or an
// otherwise-uncaught error in the reporting phase). Event emission here is
// wrapped by the bus's own panic recovery, so a bad listener cannot hide
// the fatal error it is reporting. Release runs before finishRelease so
// worker:release still precedes the completion settlement it triggers.
func (w *Worker) seppuku(ctx context.Context, fatalErr error) {
	w.bus.Publish(ctx, EventWorkerFatalError, WorkerFatalErrorEvent{WorkerID: w.workerID, Error: fatalErr})
	w.logger.ErrorContext(ctx, "worker fatal error, releasing", logger.Error(fatalErr))
	w.Release()
	w.finishRelease(fatalErr)
}

// finishRelease settles completion with err, first waiting for any
// in-flight lease-recovery call so a caller awaiting shutdown also awaits
// the final resetLockedAt attempt, so a caller awaiting shutdown never
// observes completion before an in-flight lease-recovery call has settled.
func (w *Worker) finishRelease(err error) {
	w.awaitResetLockedInFlight()
	w.completion.settle(err)
	w.bus.Publish(context.Background(), EventWorkerStop, WorkerStopEvent{WorkerID: w.workerID, Error: err})
}

func (w *Worker) awaitResetLockedInFlight() {
	w.resetMu.Lock()
	f := w.resetInFlight
	w.resetMu.Unlock()
	if f != nil {
		_ = f.Await()
	}
}

// resolveForbiddenFlags invokes the configured FlagsResolver, collapsing
// its three accepted shapes (absent, list, callable) into the single
// func(ctx) ([]string, error) form FlagsResolver already is.
func (w *Worker) resolveForbiddenFlags(ctx context.Context) ([]string, error) {
	if w.forbiddenFlags == nil {
		return nil, nil
	}
	return w.forbiddenFlags(ctx)
}

// executeJob is the handler invocation shim: it builds the
// per-job helper context, measures duration, and isolates whatever the
// handler does. It returns the handler's own error (recorded as the job's
// failure, never fatal) separately from a fatal error (from the
// completeJob/failJob report call, which is).
func (w *Worker) executeJob(ctx context.Context, job *Task) (handlerErr, fatalErr error) {
	start := time.Now()

	jobLogger := w.logger.With(
		slog.String("worker_id", w.workerID),
		slog.String("job_id", job.ID.String()),
		slog.String("task_name", job.TaskName),
	)

	handler, ok := w.handlerFor(job.TaskName)
	if !ok {
		handlerErr = fmt.Errorf("%w: Unsupported task '%s'", ErrHandlerNotFound, job.TaskName)
	} else {
		helpers := JobHelpers{
			Logger: jobLogger,
			Task:   *job,
			WithTx: w.txRunner,
		}
		handlerErr = w.invokeHandler(ctx, handler, job, helpers)
	}

	duration := time.Since(start)

	if handlerErr != nil {
		w.bus.Publish(ctx, EventJobError, JobErrorEvent{WorkerID: w.workerID, Task: *job, Error: handlerErr})
		if job.Attempts >= job.MaxAttempts {
			w.bus.Publish(ctx, EventJobFailed, JobFailedEvent{WorkerID: w.workerID, Task: *job, Error: handlerErr})
		}

		message := errorMessage(handlerErr)
		jobLogger.ErrorContext(ctx, "job failed",
			logger.Error(handlerErr),
			logger.Duration(duration))

		if err := w.repo.FailJob(ctx, w.workerID, job.ID, message); err != nil {
			fatalErr = fmt.Errorf("queue: report job %s as failed: %w", job.ID, err)
		}
		return handlerErr, fatalErr
	}

	w.bus.Publish(ctx, EventJobSuccess, JobSuccessEvent{WorkerID: w.workerID, Task: *job, Duration: duration})
	if !w.noLogSuccess {
		jobLogger.InfoContext(ctx, "job succeeded", logger.Duration(duration))
	}

	if err := w.repo.CompleteJob(ctx, w.workerID, job.ID); err != nil {
		fatalErr = fmt.Errorf("queue: report job %s as complete: %w", job.ID, err)
	}
	return nil, fatalErr
}

// invokeHandler isolates a handler's panic so one bad task cannot take
// down the worker goroutine; a panic is folded into handlerErr exactly
// like a returned error.
func (w *Worker) invokeHandler(ctx context.Context, handler Handler, job *Task, helpers JobHelpers) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in handler %q: %v", job.TaskName, r)
		}
	}()
	return handler.Handle(ctx, job.Payload, helpers)
}

// errorMessage derives a guaranteed non-empty failure message: prefer
// the error's own message, fall back to string coercion,
// fall back to a fixed literal.
func errorMessage(err error) string {
	if err == nil {
		return "Non error or error without message thrown."
	}
	msg := err.Error()
	if msg == "" {
		return "Non error or error without message thrown."
	}
	return msg
}

func noopWithTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// noLogSuccessFromEnv reads the NO_LOG_SUCCESS environment variable: any
// value other than empty, "0" or "false" suppresses the per-job success
// log line. WithNoLogSuccess overrides it either way.
func noLogSuccessFromEnv() bool {
	v := os.Getenv("NO_LOG_SUCCESS")
	return v != "" && v != "0" && !strings.EqualFold(v, "false")
}

// resetLocked is the lease-recovery background task: it never
// fatals the worker, only logs. The first arming is uniform in [0, 60s);
// every subsequent one is uniform in [minResetLockedInterval,
// maxResetLockedInterval).
func (w *Worker) resetLocked() {
	defer close(w.resetDone)

	timer := time.NewTimer(randDuration(0, 60*time.Second))
	defer timer.Stop()

	for {
		select {
		case <-w.releaseCh:
			return
		case <-timer.C:
		}

		if !w.active.Load() {
			return
		}

		// Publish the in-flight sweep as a Completion before starting it, so
		// finishRelease can await the final sweep rather than settle the
		// worker's own completion mid-write.
		inFlight := newCompletion()
		w.resetMu.Lock()
		w.resetInFlight = inFlight
		w.resetMu.Unlock()

		err := w.repo.ResetLockedAt(context.Background())
		inFlight.settle(err)

		w.resetMu.Lock()
		w.resetInFlight = nil
		w.resetMu.Unlock()

		active := w.active.Load()
		if !active {
			if err != nil {
				w.logger.ErrorContext(context.Background(), "lease recovery failed, shutting down, won't retry",
					logger.Error(err))
			}
			return
		}

		next := randDuration(w.minResetLockedInterval, w.maxResetLockedInterval)
		if err != nil {
			w.logger.ErrorContext(context.Background(), "lease recovery failed, will try again",
				logger.Error(err), slog.Duration("retry_in", next))
		}
		timer.Reset(next)
	}
}

// randDuration returns a uniformly distributed duration in [min, max). It
// falls back to min when max <= min, which keeps misconfigured bounds from
// panicking rand.Int.
func randDuration(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	span := int64(max - min)
	n, err := rand.Int(rand.Reader, big.NewInt(span))
	if err != nil {
		return min
	}
	return min + time.Duration(n.Int64())
}
