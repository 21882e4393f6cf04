package queue

import "errors"

var (
	// ErrRepositoryNil is returned when a component is constructed without a
	// required storage repository.
	ErrRepositoryNil = errors.New("queue: repository is nil")

	// ErrHandlerNotFound is returned when a leased task's name has no
	// registered Handler. The worker records it as the job's failure
	// message rather than propagating it to the caller.
	ErrHandlerNotFound = errors.New("queue: no handler registered for task")

	// ErrPayloadNil is returned by Enqueue when the payload is nil.
	ErrPayloadNil = errors.New("queue: payload is nil")

	// ErrInvalidPriority is returned when a Priority falls outside [0, 100].
	ErrInvalidPriority = errors.New("queue: priority out of range")

	// ErrTaskAlreadyRegistered is returned by Scheduler.AddTask when a
	// periodic task name is registered twice.
	ErrTaskAlreadyRegistered = errors.New("queue: periodic task already registered")

	// ErrSchedulerNotConfigured is returned when a Scheduler is started
	// before any periodic task has been added to it.
	ErrSchedulerNotConfigured = errors.New("queue: scheduler has no tasks configured")

	// ErrHealthcheckFailed wraps every Healthcheck failure returned by a
	// component in this package; callers match the more specific error
	// joined alongside it with errors.Is.
	ErrHealthcheckFailed = errors.New("queue: healthcheck failed")

	// ErrWorkerNotRunning is joined into a Worker.Healthcheck failure once
	// the worker has been released.
	ErrWorkerNotRunning = errors.New("queue: worker is not running")

	// ErrSchedulerNotRunning is joined into a Scheduler.Healthcheck failure
	// when the scheduler has not been started or has since stopped.
	ErrSchedulerNotRunning = errors.New("queue: scheduler is not running")

	// ErrNoHandlers is returned by Service.Run when configured to require
	// at least one registered handler.
	ErrNoHandlers = errors.New("queue: no handlers registered")

	// ErrNoTasksRegistered is returned by Service.Run when configured to
	// require at least one scheduled periodic task.
	ErrNoTasksRegistered = errors.New("queue: no periodic tasks registered")

	// ErrServiceAlreadyRunning is returned by Service.Run when called more
	// than once on the same Service.
	ErrServiceAlreadyRunning = errors.New("queue: service already running")

	// ErrServiceNotConfiguring is returned by Service registration methods
	// once Run has moved the service out of the configuring state.
	ErrServiceNotConfiguring = errors.New("queue: service is no longer configuring")

	// ErrContiguousErrorsExceeded is the fatal error a Worker's completion
	// future is rejected with after maxContiguousErrors consecutive
	// acquisition failures in continuous mode.
	ErrContiguousErrorsExceeded = errors.New("queue: maximum contiguous acquisition errors exceeded")
)
