// Package postgres implements core/queue's Storage interface over a
// *pgxpool.Pool, the durable counterpart to queue.MemoryStorage.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/conveyor/core/queue"
	"github.com/dmitrymomot/conveyor/integration/database/pg"
)

// Storage implements queue.Storage (EnqueuerRepository, WorkerRepository,
// SchedulerRepository) over a jobs table in Postgres.
type Storage struct {
	pool         *pgxpool.Pool
	lockDuration time.Duration
}

// Option configures a Storage.
type Option func(*Storage)

// WithLockDuration sets how long a lease is honored before ResetLockedAt
// reclaims it. Defaults to 10 minutes.
func WithLockDuration(d time.Duration) Option {
	return func(s *Storage) {
		if d > 0 {
			s.lockDuration = d
		}
	}
}

// NewStorage wraps pool as a queue.Storage.
func NewStorage(pool *pgxpool.Pool, opts ...Option) *Storage {
	s := &Storage{pool: pool, lockDuration: 10 * time.Minute}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Storage) db(ctx context.Context) queryExecer {
	if tx, ok := pg.TxFromContext(ctx); ok {
		return tx
	}
	return s.pool
}

// queryExecer is the subset of pgx.Tx / *pgxpool.Pool this package needs.
type queryExecer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// RunInTx begins a transaction on the pool, stashes it on the context via
// pg.WithTx, and runs fn against it: every Storage method fn reaches
// (directly or through an Enqueuer) joins the same transaction. Commits on
// nil, rolls back on error. Satisfies queue.TxRunner, for wiring into a
// Worker as WithTxRunner(storage.RunInTx).
func (s *Storage) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := pg.TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(pg.WithTx(ctx, tx)); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// CreateTask inserts a new task row. Implements queue.EnqueuerRepository
// and queue.SchedulerRepository.
func (s *Storage) CreateTask(ctx context.Context, task *queue.Task) error {
	const q = `
		INSERT INTO jobs (id, queue, task_type, task_name, payload, status,
			priority, flags, attempts, max_attempts, run_at, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`

	_, err := s.db(ctx).Exec(ctx, q,
		task.ID, task.Queue, task.TaskType, task.TaskName, task.Payload, task.Status,
		task.Priority, task.Flags, task.Attempts, task.MaxAttempts, task.RunAt, task.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create task: %w", err)
	}

	// NOTIFY wakes any NotifyListener attached to this pool; a worker with
	// no listener simply never sees it and keeps relying on pollInterval.
	if _, err := s.db(ctx).Exec(ctx, "SELECT pg_notify('jobs_insert', $1)", task.ID.String()); err != nil {
		return fmt.Errorf("postgres: notify jobs_insert: %w", err)
	}

	return nil
}

// GetJob atomically selects and locks the highest-priority eligible
// pending job via FOR UPDATE SKIP LOCKED, or returns (nil, nil) when none
// is available. Implements queue.WorkerRepository.
func (s *Storage) GetJob(ctx context.Context, workerID string, useNodeTime bool, flagsToSkip []string) (*queue.Task, error) {
	lockedAtExpr := "now()"
	args := []any{workerID, flagsToSkip}
	if useNodeTime {
		lockedAtExpr = "$3"
		args = append(args, time.Now())
	}

	q := fmt.Sprintf(`
		UPDATE jobs SET status = 'processing', locked_by = $1, locked_at = %s
		WHERE id = (
			SELECT id FROM jobs
			WHERE status = 'pending' AND run_at <= now() AND locked_at IS NULL
				AND NOT (flags && coalesce($2::text[], '{}'))
			ORDER BY priority DESC, run_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING id, queue, task_type, task_name, payload, status, priority,
			flags, attempts, max_attempts, run_at, locked_at, locked_by,
			processed_at, error, created_at`, lockedAtExpr)

	row := s.db(ctx).QueryRow(ctx, q, args...)

	var t queue.Task
	err := row.Scan(
		&t.ID, &t.Queue, &t.TaskType, &t.TaskName, &t.Payload, &t.Status, &t.Priority,
		&t.Flags, &t.Attempts, &t.MaxAttempts, &t.RunAt, &t.LockedAt, &t.LockedBy,
		&t.ProcessedAt, &t.Error, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get job: %w", err)
	}

	return &t, nil
}

// CompleteJob marks jobID done, keyed by (id, locked_by) so a lease
// already reclaimed by ResetLockedAt cannot be completed by the worker
// that lost it. Implements queue.WorkerRepository, realizing completeJob.
func (s *Storage) CompleteJob(ctx context.Context, workerID string, jobID uuid.UUID) error {
	const q = `
		UPDATE jobs SET status = 'completed', processed_at = now(),
			locked_at = NULL, locked_by = NULL
		WHERE id = $1 AND locked_by = $2`

	if _, err := s.db(ctx).Exec(ctx, q, jobID, workerID); err != nil {
		return fmt.Errorf("postgres: complete job %s: %w", jobID, err)
	}
	return nil
}

// FailJob records message against jobID, then either reschedules it with a
// linear backoff or, once attempts >= max_attempts (computed server-side),
// marks it failed in jobs and inserts a copy into the dead letter queue
// table jobs_dlq. Implements queue.WorkerRepository,
// realizing failJob.
func (s *Storage) FailJob(ctx context.Context, workerID string, jobID uuid.UUID, message string) error {
	const q = `
		WITH updated AS (
			UPDATE jobs SET
				attempts = attempts + 1,
				error = $3,
				locked_at = NULL,
				locked_by = NULL,
				status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
				run_at = CASE WHEN attempts + 1 >= max_attempts THEN run_at
					ELSE now() + ((attempts + 1) * interval '30 seconds') END
			WHERE id = $1 AND locked_by = $2
			RETURNING *
		)
		INSERT INTO jobs_dlq (id, task_id, queue, task_type, task_name, payload, priority, error, attempts, failed_at, created_at)
		SELECT gen_random_uuid(), id, queue, task_type, task_name, payload, priority, error, attempts, now(), created_at
		FROM updated WHERE status = 'failed'`

	if _, err := s.db(ctx).Exec(ctx, q, jobID, workerID, message); err != nil {
		return fmt.Errorf("postgres: fail job %s: %w", jobID, err)
	}
	return nil
}

// MoveToDLQ moves jobID to the dead letter queue outright, for callers
// that want to give up on a job without going through FailJob's retry
// accounting (for example an operator-triggered abandon).
func (s *Storage) MoveToDLQ(ctx context.Context, jobID uuid.UUID) error {
	const q = `
		WITH moved AS (
			DELETE FROM jobs WHERE id = $1 RETURNING *
		)
		INSERT INTO jobs_dlq (id, task_id, queue, task_type, task_name, payload, priority, error, attempts, failed_at, created_at)
		SELECT gen_random_uuid(), id, queue, task_type, task_name, payload, priority,
			coalesce(error, ''), attempts, now(), created_at
		FROM moved`

	if _, err := s.db(ctx).Exec(ctx, q, jobID); err != nil {
		return fmt.Errorf("postgres: move job %s to dlq: %w", jobID, err)
	}
	return nil
}

// ResetLockedAt clears leases whose lockDuration has elapsed. Implements
// queue.WorkerRepository, realizing resetLockedAt. Best-effort: the
// Worker logs, never fatals, on an error here.
func (s *Storage) ResetLockedAt(ctx context.Context) error {
	const q = `
		UPDATE jobs SET status = 'pending', locked_by = NULL, locked_at = NULL
		WHERE status = 'processing' AND locked_at < now() - $1::interval`

	if _, err := s.db(ctx).Exec(ctx, q, s.lockDuration.String()); err != nil {
		return fmt.Errorf("postgres: reset locked: %w", err)
	}
	return nil
}

// GetPendingTaskByName finds a pending task by name for scheduler
// idempotency checks. Implements queue.SchedulerRepository.
func (s *Storage) GetPendingTaskByName(ctx context.Context, taskName string) (*queue.Task, error) {
	const q = `
		SELECT id, queue, task_type, task_name, payload, status, priority,
			flags, attempts, max_attempts, run_at, locked_at, locked_by,
			processed_at, error, created_at
		FROM jobs WHERE task_name = $1 AND status = 'pending'
		LIMIT 1`

	row := s.db(ctx).QueryRow(ctx, q, taskName)

	var t queue.Task
	err := row.Scan(
		&t.ID, &t.Queue, &t.TaskType, &t.TaskName, &t.Payload, &t.Status, &t.Priority,
		&t.Flags, &t.Attempts, &t.MaxAttempts, &t.RunAt, &t.LockedAt, &t.LockedBy,
		&t.ProcessedAt, &t.Error, &t.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get pending task by name: %w", err)
	}

	return &t, nil
}
