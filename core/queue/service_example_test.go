package queue_test

import (
	"context"
	"log"
	"log/slog"
	"time"

	"github.com/dmitrymomot/conveyor/core/queue"
)

// Example_service demonstrates wiring a Service end to end: storage,
// handlers, a periodic task, and the errgroup-compatible Run lifecycle.
// It has no Output comment — the handlers fire on the worker's own
// goroutine at times this example does not control, so it is exercised
// for compilation, not executed for output matching.
func Example_service() {
	storage := queue.NewMemoryStorage()

	cfg := queue.DefaultConfig()
	service, err := queue.NewServiceFromConfig(cfg, storage,
		queue.WithServiceLogger(slog.Default()),
	)
	if err != nil {
		log.Fatal(err)
	}

	type EmailTask struct {
		To      string `json:"to"`
		Subject string `json:"subject"`
	}

	type ReportTask struct {
		Type   string    `json:"type"`
		UserID string    `json:"user_id"`
		Date   time.Time `json:"date"`
	}

	emailHandler := queue.NewTaskHandler(func(ctx context.Context, task EmailTask, helpers queue.JobHelpers) error {
		helpers.Logger.Info("sending email", slog.String("to", task.To), slog.String("subject", task.Subject))
		return nil
	})

	reportHandler := queue.NewTaskHandler(func(ctx context.Context, task ReportTask, helpers queue.JobHelpers) error {
		helpers.Logger.Info("generating report", slog.String("type", task.Type), slog.String("user_id", task.UserID))
		return nil
	})

	if err := service.RegisterHandlers(emailHandler, reportHandler); err != nil {
		log.Fatal(err)
	}

	dailyReportHandler := queue.NewPeriodicTaskHandler("daily_report", func(ctx context.Context, helpers queue.JobHelpers) error {
		return service.Enqueue(ctx, ReportTask{Type: "daily", UserID: "all", Date: time.Now()})
	})
	if err := service.RegisterHandler(dailyReportHandler); err != nil {
		log.Fatal(err)
	}

	if err := service.AddScheduledTask("daily_report",
		queue.NewCronSchedule("0 9 * * *"),
		queue.WithTaskQueue("reports"),
		queue.WithTaskPriority(queue.PriorityHigh),
	); err != nil {
		log.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	go func() {
		if err := service.Run(ctx); err != nil && err != context.DeadlineExceeded {
			log.Printf("service error: %v", err)
		}
	}()

	<-service.Ready()

	if err := service.Enqueue(context.Background(), EmailTask{To: "user@example.com", Subject: "Welcome!"}); err != nil {
		log.Printf("enqueue failed: %v", err)
	}
	if err := service.EnqueueWithDelay(context.Background(), EmailTask{To: "admin@example.com", Subject: "Reminder"}, 2*time.Second); err != nil {
		log.Printf("enqueue failed: %v", err)
	}
	if err := service.EnqueueAt(context.Background(), ReportTask{Type: "weekly", UserID: "user123", Date: time.Now()}, time.Now().Add(time.Second)); err != nil {
		log.Printf("enqueue failed: %v", err)
	}
}

// Example_serviceWithCustomStorage shows the shape of a Storage
// implementation backed by a real database, using the queue's default
// in-memory one here in place of it.
func Example_serviceWithCustomStorage() {
	// In production this would be postgres.NewStorage wired to a
	// *pgxpool.Pool rather than queue.NewMemoryStorage.
	storage := queue.NewMemoryStorage()

	service, err := queue.NewService(storage,
		queue.WithWorkerOptions(
			queue.WithPollInterval(100*time.Millisecond),
			queue.WithMaxContiguousErrors(20),
		),
		queue.WithSchedulerOptions(
			queue.WithCheckInterval(30*time.Second),
		),
		queue.WithEnqueuerOptions(
			queue.WithDefaultQueue("default"),
			queue.WithDefaultPriority(queue.PriorityMedium),
		),
		queue.WithServiceLogger(slog.Default()),
		queue.WithBeforeStart(func(ctx context.Context) error {
			slog.Default().Info("service starting")
			return nil
		}),
		queue.WithAfterStop(func() error {
			slog.Default().Info("service stopped")
			return nil
		}),
	)
	if err != nil {
		log.Fatal(err)
	}

	_ = service
}

// Example_microserviceIntegration sketches how a Service fits into a
// longer-lived application alongside other components.
func Example_microserviceIntegration() {
	storage := initializeStorage()

	queueService := initializeQueueService(storage)
	registerTaskHandlers(queueService)
	setupScheduledTasks(queueService)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		if err := queueService.Run(ctx); err != nil {
			log.Printf("queue service error: %v", err)
		}
	}()

	enqueuer := queueService.Enqueuer()
	_ = enqueuer
}

func initializeStorage() *queue.MemoryStorage {
	return queue.NewMemoryStorage()
}

func initializeQueueService(storage queue.Storage) *queue.Service {
	cfg := queue.DefaultConfig()
	cfg.MaxContiguousErrors = 50
	cfg.DefaultQueue = "critical"

	service, err := queue.NewServiceFromConfig(cfg, storage)
	if err != nil {
		log.Fatal(err)
	}
	return service
}

func registerTaskHandlers(service *queue.Service) {
	type ProcessPayment struct {
		OrderID string `json:"order_id"`
		Amount  int64  `json:"amount"`
	}

	paymentHandler := queue.NewTaskHandler(func(ctx context.Context, task ProcessPayment, helpers queue.JobHelpers) error {
		return nil
	})

	if err := service.RegisterHandler(paymentHandler); err != nil {
		log.Fatal(err)
	}
}

func setupScheduledTasks(service *queue.Service) {
	cleanupHandler := queue.NewPeriodicTaskHandler("cleanup_old_data", func(ctx context.Context, helpers queue.JobHelpers) error {
		return nil
	})
	if err := service.RegisterHandler(cleanupHandler); err != nil {
		log.Fatal(err)
	}
	if err := service.AddScheduledTask("cleanup_old_data",
		queue.NewIntervalSchedule(time.Hour),
		queue.WithTaskQueue("batch"),
	); err != nil {
		log.Fatal(err)
	}

	reportHandler := queue.NewPeriodicTaskHandler("daily_reports", func(ctx context.Context, helpers queue.JobHelpers) error {
		return nil
	})
	if err := service.RegisterHandler(reportHandler); err != nil {
		log.Fatal(err)
	}
	if err := service.AddScheduledTask("daily_reports",
		queue.NewCronSchedule("0 9 * * *"),
		queue.WithTaskQueue("reports"),
		queue.WithTaskPriority(queue.PriorityHigh),
	); err != nil {
		log.Fatal(err)
	}
}
