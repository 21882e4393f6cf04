package queue

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// MemoryStorageStats provides observability metrics for monitoring and debugging.
type MemoryStorageStats struct {
	ActiveTasks       int   // Current number of tasks in storage
	DLQTasks          int   // Current number of tasks in the dead letter queue
	ExpiredLocksFreed int64 // Total number of locks reclaimed by ResetLockedAt
}

// MemoryStorage implements EnqueuerRepository, WorkerRepository and
// SchedulerRepository entirely in process memory. It exists for tests and
// local development; core/queue/postgres is the durable implementation.
type MemoryStorage struct {
	mu    sync.RWMutex
	tasks map[uuid.UUID]*Task
	dlq   map[uuid.UUID]*TaskDLQ

	byStatus map[TaskStatus][]uuid.UUID

	queues       []string // nil means all queues are eligible
	lockDuration time.Duration
	logger       *slog.Logger

	expiredLocksFreed atomic.Int64
}

// MemoryStorageOption configures a MemoryStorage.
type MemoryStorageOption func(*MemoryStorage)

// WithQueues restricts GetJob to the named queues. Unset, every queue is
// eligible.
func WithQueues(queues ...string) MemoryStorageOption {
	return func(ms *MemoryStorage) {
		if len(queues) > 0 {
			ms.queues = queues
		}
	}
}

// WithLockDuration sets how long a lease is considered valid before
// ResetLockedAt reclaims it. Defaults to 10 minutes.
func WithLockDuration(d time.Duration) MemoryStorageOption {
	return func(ms *MemoryStorage) {
		if d > 0 {
			ms.lockDuration = d
		}
	}
}

// WithMemoryStorageLogger sets the logger for internal operations.
func WithMemoryStorageLogger(logger *slog.Logger) MemoryStorageOption {
	return func(ms *MemoryStorage) {
		if logger != nil {
			ms.logger = logger
		}
	}
}

// NewMemoryStorage creates a new in-memory storage implementation.
func NewMemoryStorage(opts ...MemoryStorageOption) *MemoryStorage {
	ms := &MemoryStorage{
		tasks:        make(map[uuid.UUID]*Task),
		dlq:          make(map[uuid.UUID]*TaskDLQ),
		byStatus:     make(map[TaskStatus][]uuid.UUID),
		lockDuration: 10 * time.Minute,
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}

	for _, opt := range opts {
		opt(ms)
	}

	return ms
}

// CreateTask stores a new task in memory. Implements EnqueuerRepository and
// SchedulerRepository.
func (ms *MemoryStorage) CreateTask(ctx context.Context, task *Task) error {
	if task == nil {
		return fmt.Errorf("queue: task cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.tasks[task.ID]; exists {
		return fmt.Errorf("queue: task with ID %s already exists", task.ID)
	}

	taskCopy := *task
	ms.tasks[task.ID] = &taskCopy
	ms.byStatus[task.Status] = append(ms.byStatus[task.Status], task.ID)

	return nil
}

// GetJob selects and locks the highest-priority eligible pending task, or
// returns (nil, nil) when none is available. Implements WorkerRepository.
func (ms *MemoryStorage) GetJob(ctx context.Context, workerID string, useNodeTime bool, flagsToSkip []string) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	var best *Task

	for _, id := range ms.byStatus[TaskStatusPending] {
		task := ms.tasks[id]

		if len(ms.queues) > 0 && !slices.Contains(ms.queues, task.Queue) {
			continue
		}
		if task.RunAt.After(now) {
			continue
		}
		if hasAnyFlag(task.Flags, flagsToSkip) {
			continue
		}
		if best == nil ||
			task.Priority > best.Priority ||
			(task.Priority == best.Priority && task.RunAt.Before(best.RunAt)) {
			best = task
		}
	}

	if best == nil {
		return nil, nil
	}

	lockedAt := now
	best.Status = TaskStatusProcessing
	best.LockedAt = &lockedAt
	best.LockedBy = &workerID

	ms.moveStatusIndex(best.ID, TaskStatusPending, TaskStatusProcessing)

	jobCopy := *best
	return &jobCopy, nil
}

// CompleteJob marks jobID done and clears its lease. Implements
// WorkerRepository.
func (ms *MemoryStorage) CompleteJob(ctx context.Context, workerID string, jobID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[jobID]
	if !exists {
		return fmt.Errorf("queue: job %s not found", jobID)
	}
	if task.Status != TaskStatusProcessing {
		return nil // already reported; CompleteJob must be idempotent
	}

	now := time.Now()
	task.Status = TaskStatusCompleted
	task.ProcessedAt = &now
	task.LockedAt = nil
	task.LockedBy = nil

	ms.moveStatusIndex(jobID, TaskStatusProcessing, TaskStatusCompleted)

	return nil
}

// FailJob records message against jobID, then either reschedules it with a
// linear backoff or moves it to the dead letter queue once MaxAttempts is
// exhausted. Implements WorkerRepository.
func (ms *MemoryStorage) FailJob(ctx context.Context, workerID string, jobID uuid.UUID, message string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	task, exists := ms.tasks[jobID]
	if !exists {
		return fmt.Errorf("queue: job %s not found", jobID)
	}
	if task.Status != TaskStatusProcessing {
		return nil
	}

	task.Attempts++
	task.Error = &message
	task.LockedAt = nil
	task.LockedBy = nil

	if task.Attempts >= task.MaxAttempts {
		ms.moveToDLQLocked(task)
		return nil
	}

	task.Status = TaskStatusPending
	// Linear backoff: attempt*30s. Fast enough to retry transient errors,
	// slow enough that a persistently broken handler doesn't spin.
	task.RunAt = time.Now().Add(time.Duration(task.Attempts) * 30 * time.Second)
	ms.moveStatusIndex(jobID, TaskStatusProcessing, TaskStatusPending)

	return nil
}

// moveToDLQLocked removes task from the active table and records it in the
// dead letter queue. Caller must hold ms.mu.
func (ms *MemoryStorage) moveToDLQLocked(task *Task) {
	entry := &TaskDLQ{
		ID:        uuid.New(),
		TaskID:    task.ID,
		Queue:     task.Queue,
		TaskType:  task.TaskType,
		TaskName:  task.TaskName,
		Payload:   task.Payload,
		Priority:  task.Priority,
		Attempts:  task.Attempts,
		FailedAt:  time.Now(),
		CreatedAt: task.CreatedAt,
	}
	if task.Error != nil {
		entry.Error = *task.Error
	}

	ms.dlq[entry.ID] = entry
	ms.removeFromStatusIndex(task.ID, TaskStatusProcessing)
	delete(ms.tasks, task.ID)
}

// ResetLockedAt reclaims leases whose lockDuration has elapsed, returning
// them to pending so another GetJob call can pick them up. Implements
// WorkerRepository.
func (ms *MemoryStorage) ResetLockedAt(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	freed := 0

	for _, id := range slices.Clone(ms.byStatus[TaskStatusProcessing]) {
		task := ms.tasks[id]
		if task.LockedAt == nil || now.Sub(*task.LockedAt) < ms.lockDuration {
			continue
		}

		task.Status = TaskStatusPending
		task.LockedAt = nil
		task.LockedBy = nil
		ms.moveStatusIndex(id, TaskStatusProcessing, TaskStatusPending)
		freed++
	}

	if freed > 0 {
		ms.expiredLocksFreed.Add(int64(freed))
		ms.logger.InfoContext(ctx, "reclaimed abandoned leases", slog.Int("count", freed))
	}

	return nil
}

// GetPendingTaskByName finds a pending task by name for scheduler
// idempotency checks. Implements SchedulerRepository.
func (ms *MemoryStorage) GetPendingTaskByName(ctx context.Context, taskName string) (*Task, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, id := range ms.byStatus[TaskStatusPending] {
		task := ms.tasks[id]
		if task.TaskName == taskName {
			taskCopy := *task
			return &taskCopy, nil
		}
	}

	return nil, nil
}

// Stats returns current memory storage statistics for observability.
func (ms *MemoryStorage) Stats() MemoryStorageStats {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	return MemoryStorageStats{
		ActiveTasks:       len(ms.tasks),
		DLQTasks:          len(ms.dlq),
		ExpiredLocksFreed: ms.expiredLocksFreed.Load(),
	}
}

func (ms *MemoryStorage) removeFromStatusIndex(id uuid.UUID, status TaskStatus) {
	ms.byStatus[status] = slices.DeleteFunc(ms.byStatus[status], func(v uuid.UUID) bool {
		return v == id
	})
}

func (ms *MemoryStorage) moveStatusIndex(id uuid.UUID, from, to TaskStatus) {
	ms.removeFromStatusIndex(id, from)
	ms.byStatus[to] = append(ms.byStatus[to], id)
}

func hasAnyFlag(flags, forbidden []string) bool {
	for _, f := range flags {
		if slices.Contains(forbidden, f) {
			return true
		}
	}
	return false
}
