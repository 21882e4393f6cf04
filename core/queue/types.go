package queue

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is the default queue name used when no queue is specified
const DefaultQueueName = "default"

// TaskType categorizes tasks as one-time immediate execution or scheduler-generated periodic tasks.
type TaskType string

const (
	TaskTypeOneTime  TaskType = "one-time"
	TaskTypePeriodic TaskType = "periodic"
)

// TaskStatus tracks the lifecycle state of a task through the queue system.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Priority represents task priority (0-100, higher is more important).
// Using int8 provides sufficient range while keeping memory footprint minimal.
type Priority int8

const (
	PriorityMin     Priority = 0
	PriorityLow     Priority = 25
	PriorityMedium  Priority = 50
	PriorityHigh    Priority = 75
	PriorityMax     Priority = 100
	PriorityDefault Priority = PriorityMedium
)

// Valid checks if the priority is within the allowed range (0-100).
func (p Priority) Valid() bool {
	return p >= PriorityMin && p <= PriorityMax
}

// Task represents a leasable unit of work in the queue.
//
// LockedBy holds the owning worker's string identity (see Worker.ID), not a
// uuid.UUID: a worker's identity is a human-legible "worker-<hex>" string,
// chosen so it shows up unmangled in logs and in a DLQ row inspected by hand.
type Task struct {
	ID          uuid.UUID       `json:"id"`
	Queue       string          `json:"queue"`
	TaskType    TaskType        `json:"task_type"`
	TaskName    string          `json:"task_name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Status      TaskStatus      `json:"status"`
	Priority    Priority        `json:"priority"`
	Flags       []string        `json:"flags,omitempty"`
	Attempts    int16           `json:"attempts"`
	MaxAttempts int16           `json:"max_attempts"`
	RunAt       time.Time       `json:"run_at"`
	LockedAt    *time.Time      `json:"locked_at,omitempty"`
	LockedBy    *string         `json:"locked_by,omitempty"`
	ProcessedAt *time.Time      `json:"processed_at,omitempty"`
	Error       *string         `json:"error,omitempty"`
	CreatedAt   time.Time       `json:"created_at"`
}

// TaskDLQ represents a task in the dead letter queue: one that exhausted
// MaxAttempts and was moved out of the active table for manual inspection.
type TaskDLQ struct {
	ID          uuid.UUID       `json:"id"`
	TaskID      uuid.UUID       `json:"task_id"`
	Queue       string          `json:"queue"`
	TaskType    TaskType        `json:"task_type"`
	TaskName    string          `json:"task_name"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Priority    Priority        `json:"priority"`
	Error       string          `json:"error"`
	Attempts    int16           `json:"attempts"`
	FailedAt    time.Time       `json:"failed_at"`
	CreatedAt   time.Time       `json:"created_at"`
}
