package queue

import "time"

// Config holds environment-driven defaults for a Worker, Scheduler, and
// Enqueuer sharing one Storage. Load it with core/config:
//
//	var cfg queue.Config
//	config.MustLoad(&cfg)
//	worker, err := queue.NewWorkerFromConfig(cfg, storage)
type Config struct {
	// Worker configuration
	WorkerID               string        `env:"QUEUE_WORKER_ID"`
	PollInterval           time.Duration `env:"QUEUE_POLL_INTERVAL" envDefault:"5s"`
	MaxContiguousErrors    int           `env:"QUEUE_MAX_CONTIGUOUS_ERRORS" envDefault:"10"`
	UseNodeTime            bool          `env:"QUEUE_USE_NODE_TIME" envDefault:"false"`
	MinResetLockedInterval time.Duration `env:"QUEUE_MIN_RESET_LOCKED_INTERVAL" envDefault:"8m"`
	MaxResetLockedInterval time.Duration `env:"QUEUE_MAX_RESET_LOCKED_INTERVAL" envDefault:"10m"`
	Continuous             bool          `env:"QUEUE_CONTINUOUS" envDefault:"true"`
	NoLogSuccess           bool          `env:"NO_LOG_SUCCESS" envDefault:"false"`

	// Scheduler configuration
	CheckInterval   time.Duration `env:"QUEUE_CHECK_INTERVAL" envDefault:"30s"`
	ShutdownTimeout time.Duration `env:"QUEUE_SCHEDULER_SHUTDOWN_TIMEOUT" envDefault:"30s"`

	// Enqueuer configuration
	DefaultQueue    string   `env:"QUEUE_DEFAULT_QUEUE" envDefault:"default"`
	DefaultPriority Priority `env:"QUEUE_DEFAULT_PRIORITY" envDefault:"50"` // PriorityMedium
}

// DefaultConfig returns the configuration every option above falls back to
// when unset, mirroring the envDefault tags above for callers that build a
// Config by hand instead of through core/config.
func DefaultConfig() Config {
	return Config{
		PollInterval:           5 * time.Second,
		MaxContiguousErrors:    10,
		UseNodeTime:            false,
		MinResetLockedInterval: 8 * time.Minute,
		MaxResetLockedInterval: 10 * time.Minute,
		Continuous:             true,

		CheckInterval:   30 * time.Second,
		ShutdownTimeout: 30 * time.Second,

		DefaultQueue:    DefaultQueueName,
		DefaultPriority: PriorityMedium,
	}
}
