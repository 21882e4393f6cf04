package postgres

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Nudger is the subset of Worker that NotifyListener wakes on a LISTEN
// notification. Satisfied by *queue.Worker.
type Nudger interface {
	Nudge() bool
}

// NotifyListener holds a dedicated connection LISTENing on a Postgres
// channel and calls Nudge on every notification received, giving workers
// near-immediate wakeup on newly enqueued jobs instead of waiting out
// their poll interval.
//
// It supplements polling, it does not replace it: a worker with no
// NotifyListener attached keeps working correctly on pollInterval alone.
type NotifyListener struct {
	pool    *pgxpool.Pool
	channel string
	worker  Nudger
	logger  *slog.Logger
}

// NotifyListenerOption configures a NotifyListener.
type NotifyListenerOption func(*NotifyListener)

// WithNotifyChannel overrides the Postgres NOTIFY channel name. Defaults
// to "jobs_insert", matching Storage.CreateTask's pg_notify call.
func WithNotifyChannel(channel string) NotifyListenerOption {
	return func(l *NotifyListener) {
		if channel != "" {
			l.channel = channel
		}
	}
}

// WithNotifyLogger sets the logger used for connection and notification
// errors. Defaults to a no-op logger.
func WithNotifyLogger(logger *slog.Logger) NotifyListenerOption {
	return func(l *NotifyListener) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// NewNotifyListener builds a listener that wakes worker on every
// notification on its channel.
func NewNotifyListener(pool *pgxpool.Pool, worker Nudger, opts ...NotifyListenerOption) *NotifyListener {
	l := &NotifyListener{
		pool:    pool,
		channel: "jobs_insert",
		worker:  worker,
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run listens until ctx is canceled, reconnecting after transient
// connection loss. It is errgroup-compatible, matching Worker.Run and
// Scheduler.Run's func(context.Context) func() error shape.
func (l *NotifyListener) Run(ctx context.Context) func() error {
	return func() error {
		for {
			if err := l.listen(ctx); err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				l.logger.ErrorContext(ctx, "notify listener connection lost, retrying",
					slog.String("channel", l.channel), slog.Any("error", err))
			}

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
	}
}

func (l *NotifyListener) listen(ctx context.Context) error {
	conn, err := l.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("postgres: acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, fmt.Sprintf("LISTEN %s", l.channel)); err != nil {
		return fmt.Errorf("postgres: listen %s: %w", l.channel, err)
	}

	for {
		notification, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		l.worker.Nudge()
		l.logger.DebugContext(ctx, "job notification received",
			slog.String("channel", notification.Channel),
			slog.String("payload", notification.Payload))
	}
}
