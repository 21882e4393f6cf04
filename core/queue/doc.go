// Package queue implements a database-backed job queue worker: a single
// dedicated goroutine that leases jobs one at a time, runs the registered
// handler for each, and reports the outcome back to storage.
//
// # Basic usage
//
//	storage := queue.NewMemoryStorage()
//
//	worker, err := queue.NewWorker(storage, queue.WithPollInterval(2*time.Second))
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	type SendEmail struct {
//		To      string `json:"to"`
//		Subject string `json:"subject"`
//	}
//
//	worker.RegisterHandler(queue.NewTaskHandler(func(ctx context.Context, t SendEmail, h queue.JobHelpers) error {
//		return emailer.Send(ctx, t.To, t.Subject)
//	}))
//
//	enqueuer, _ := queue.NewEnqueuer(storage)
//	enqueuer.Enqueue(ctx, SendEmail{To: "user@example.com", Subject: "Welcome"})
//
//	<-ctx.Done()
//	worker.Release().Await()
//
// A Worker starts polling the moment NewWorker returns; there is no
// separate Start call. Nudge wakes it immediately instead of waiting out
// pollInterval, useful right after an Enqueue call the caller wants
// processed with low latency. Release stops it and returns a Completion
// future that settles once the worker has fully exited — nil on a clean
// stop, or the fatal error that ended it (for example
// ErrContiguousErrorsExceeded).
//
// # Periodic tasks
//
// Scheduler is a separate, independent component: on its own check
// interval it evaluates each registered Schedule and enqueues a periodic
// job when one comes due, relying on SchedulerRepository.GetPendingTaskByName
// for idempotency across restarts.
//
//	scheduler, _ := queue.NewScheduler(storage)
//	scheduler.AddTask("nightly-digest", queue.NewCronSchedule("0 2 * * *"),
//		queue.WithTaskQueue("reports"),
//		queue.WithTaskPriority(queue.PriorityHigh),
//	)
//	go scheduler.Run(ctx)()
//
// Scheduler's due-task check is unrelated to Worker's lease-recovery
// timer: the former decides when new periodic jobs are created, the
// latter reclaims jobs whose worker crashed mid-lease.
//
// # Service
//
// Service wires a Worker, Scheduler and Enqueuer to one Storage and gives
// them a single configure-then-run lifecycle, suited to an errgroup-driven
// main():
//
//	service, _ := queue.NewService(storage, queue.WithServiceLogger(logger))
//	service.RegisterHandler(emailHandler)
//	service.AddScheduledTask("nightly-digest", queue.NewCronSchedule("0 2 * * *"))
//
//	ctx, cancel := context.WithCancel(context.Background())
//	go func() { <-sigCh; cancel() }()
//	if err := service.Run(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// # Custom storage
//
// Any type satisfying Storage (EnqueuerRepository + WorkerRepository +
// SchedulerRepository) can back a Worker, Scheduler or Enqueuer in place
// of MemoryStorage. core/queue/postgres provides the durable
// implementation this package is meant to run against in production.
package queue
