package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
)

type (
	// Handler defines the interface for task processors.
	// All task handlers must implement Name() to identify the task type
	// and Handle() to process the task payload.
	Handler interface {
		// Name returns the task type name used for handler registration and routing.
		Name() string
		// Handle processes the task with the given payload and the
		// per-job helper context doNext builds for this invocation.
		// The payload is provided as raw JSON and must be unmarshaled by the handler.
		Handle(ctx context.Context, payload json.RawMessage, helpers JobHelpers) error
	}

	// TaskHandlerFunc is a type-safe handler function for one-time tasks.
	// The generic type T represents the expected payload structure.
	TaskHandlerFunc[T any] func(ctx context.Context, payload T, helpers JobHelpers) error

	// PeriodicTaskHandlerFunc is a handler function for periodic tasks.
	// Periodic tasks have no payload and are triggered by the scheduler.
	PeriodicTaskHandlerFunc func(ctx context.Context, helpers JobHelpers) error
)

// TxRunner runs fn inside a storage-level transaction, committing on nil
// and rolling back on error. postgres.Storage.RunInTx is the production
// implementation; the default runner just calls fn with the original
// context, so handlers written against WithTx degrade gracefully on
// storage backends with no transaction support.
type TxRunner func(ctx context.Context, fn func(ctx context.Context) error) error

// JobHelpers is the per-job context the worker loop builds once per handler
// invocation (see Worker.executeJob). It never outlives that invocation.
type JobHelpers struct {
	// Logger is pre-annotated with the job's id and task name.
	Logger *slog.Logger

	// Task is a read-only view of the leased row.
	Task Task

	// WithTx runs fn against a transaction borrowed from the same pool
	// CompleteJob/FailJob will use to report this job's outcome, so a
	// handler's side effects and the eventual completion report can be
	// made atomic by the caller's Storage implementation. Wire it with
	// WithTxRunner; without that option it runs fn directly.
	WithTx TxRunner
}

// NewTaskHandler creates a type-safe handler for one-time tasks.
// The handler function receives a strongly-typed payload and the task name
// is automatically derived from the package-qualified payload type (e.g.,
// "queue.EmailPayload" for an EmailPayload declared in package queue).
func NewTaskHandler[T any](handler TaskHandlerFunc[T]) Handler {
	var payload T
	return &oneTimeTaskHandler[T]{
		name:    qualifiedStructName(payload),
		handler: handler,
	}
}

// NewPeriodicTaskHandler creates a handler for periodic tasks.
// The name parameter specifies the task name used for scheduling.
// Periodic tasks have no payload and are triggered by the scheduler.
func NewPeriodicTaskHandler(name string, handler PeriodicTaskHandlerFunc) Handler {
	return &periodicTaskHandler{
		name:    name,
		handler: handler,
	}
}

type oneTimeTaskHandler[T any] struct {
	name    string
	handler TaskHandlerFunc[T]
}

func (h *oneTimeTaskHandler[T]) Name() string {
	return h.name
}

func (h *oneTimeTaskHandler[T]) Handle(ctx context.Context, payload json.RawMessage, helpers JobHelpers) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return err
	}
	return h.handler(ctx, t, helpers)
}

type periodicTaskHandler struct {
	name    string
	handler PeriodicTaskHandlerFunc
}

func (h *periodicTaskHandler) Name() string {
	return h.name
}

func (h *periodicTaskHandler) Handle(ctx context.Context, _ json.RawMessage, helpers JobHelpers) error {
	return h.handler(ctx, helpers)
}

// qualifiedStructName derives a task name from a payload's type, stripping
// any pointer prefix (e.g. &EmailPayload{} and EmailPayload{} both name
// themselves "queue.EmailPayload"), so NewTaskHandler and Enqueuer agree on
// a task's name without either side hardcoding it.
func qualifiedStructName(v any) string {
	return strings.TrimLeft(fmt.Sprintf("%T", v), "*")
}
