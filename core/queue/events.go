package queue

import "time"

// Event names published on the Worker's event bus. Listener errors are
// caught and logged by the bus itself; publishing never fails the worker.
const (
	EventWorkerCreate      = "worker:create"
	EventWorkerRelease     = "worker:release"
	EventWorkerStop        = "worker:stop"
	EventWorkerGetJobStart = "worker:getJob:start"
	EventWorkerGetJobEmpty = "worker:getJob:empty"
	EventWorkerGetJobError = "worker:getJob:error"
	EventWorkerFatalError  = "worker:fatalError"
	EventJobStart          = "job:start"
	EventJobError          = "job:error"
	EventJobFailed         = "job:failed"
	EventJobSuccess        = "job:success"
	EventJobComplete       = "job:complete"
)

// Event names published on the Scheduler's event bus, mirroring the
// Worker's lifecycle-event convention so a Service wiring both components
// to one bus gets consistent observability across the whole package.
const (
	EventSchedulerStart       = "scheduler:start"
	EventSchedulerStop        = "scheduler:stop"
	EventSchedulerTaskDue     = "scheduler:task:due"
	EventSchedulerTaskSkipped = "scheduler:task:skipped"
)

// WorkerCreateEvent accompanies EventWorkerCreate.
type WorkerCreateEvent struct {
	WorkerID string
}

// WorkerReleaseEvent accompanies EventWorkerRelease.
type WorkerReleaseEvent struct {
	WorkerID string
}

// WorkerStopEvent accompanies EventWorkerStop. Error is non-nil iff the
// worker's completion future settled by rejection.
type WorkerStopEvent struct {
	WorkerID string
	Error    error
}

// WorkerGetJobStartEvent accompanies EventWorkerGetJobStart.
type WorkerGetJobStartEvent struct {
	WorkerID string
}

// WorkerGetJobEmptyEvent accompanies EventWorkerGetJobEmpty.
type WorkerGetJobEmptyEvent struct {
	WorkerID string
}

// WorkerGetJobErrorEvent accompanies EventWorkerGetJobError.
type WorkerGetJobErrorEvent struct {
	WorkerID string
	Error    error
}

// WorkerFatalErrorEvent accompanies EventWorkerFatalError.
type WorkerFatalErrorEvent struct {
	WorkerID string
	Error    error
}

// JobStartEvent accompanies EventJobStart.
type JobStartEvent struct {
	WorkerID string
	Task     Task
}

// JobErrorEvent accompanies EventJobError.
type JobErrorEvent struct {
	WorkerID string
	Task     Task
	Error    error
}

// JobFailedEvent accompanies EventJobFailed, emitted additionally when the
// job has exhausted its attempts.
type JobFailedEvent struct {
	WorkerID string
	Task     Task
	Error    error
}

// JobSuccessEvent accompanies EventJobSuccess.
type JobSuccessEvent struct {
	WorkerID string
	Task     Task
	Duration time.Duration
}

// JobCompleteEvent accompanies EventJobComplete, emitted after either
// outcome once the job's completion or failure has been reported.
type JobCompleteEvent struct {
	WorkerID string
	Task     Task
	Error    error
}

// SchedulerStartEvent accompanies EventSchedulerStart.
type SchedulerStartEvent struct {
	TaskCount int
}

// SchedulerStopEvent accompanies EventSchedulerStop.
type SchedulerStopEvent struct {
	Error error
}

// SchedulerTaskDueEvent accompanies EventSchedulerTaskDue, emitted once a
// periodic task's instance has been created for its current period.
type SchedulerTaskDueEvent struct {
	TaskName string
	Queue    string
	RunAt    time.Time
}

// SchedulerTaskSkippedEvent accompanies EventSchedulerTaskSkipped, emitted
// when a due task is left alone because a pending instance for the same
// period already exists (restart idempotency, or another scheduler beat
// this one to it).
type SchedulerTaskSkippedEvent struct {
	TaskName string
	RunAt    time.Time
}
