package queue

import (
	"slices"
	"time"

	"github.com/google/uuid"
)

// DefaultQueueName is used when neither the enqueuer nor the worker is
// given a queue.
const DefaultQueueName = "default"

// TaskStatus is the lifecycle state of a Task. A provisioning job moves
// pending -> processing -> completed, or back to pending on a retryable
// failure until its retries run out.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusProcessing TaskStatus = "processing"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusFailed     TaskStatus = "failed"
)

// Final reports whether no worker will pick the task up again.
func (s TaskStatus) Final() bool {
	return s == TaskStatusCompleted || s == TaskStatusFailed
}

// Priority orders claimable tasks; higher runs first.
type Priority int8

const (
	PriorityLow     Priority = 25
	PriorityDefault Priority = 50
	PriorityHigh    Priority = 75
)

// Task is one queued job. Payload holds the JSON-encoded job value and
// TaskName its Go type name, which selects the handler.
type Task struct {
	ID          uuid.UUID  `json:"id"`
	Queue       string     `json:"queue"`
	TaskName    string     `json:"task_name"`
	Payload     []byte     `json:"payload,omitempty"`
	Status      TaskStatus `json:"status"`
	Priority    Priority   `json:"priority"`
	RetryCount  int8       `json:"retry_count"`
	MaxRetries  int8       `json:"max_retries"`
	ScheduledAt time.Time  `json:"scheduled_at"`
	LockedUntil *time.Time `json:"locked_until,omitempty"`
	LockedBy    *uuid.UUID `json:"locked_by,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

// claimable reports whether a worker serving queues may lock t at now.
// A processing task becomes claimable again once its lock expires, which
// is how jobs of a crashed worker are recovered.
func (t *Task) claimable(queues []string, now time.Time) bool {
	if !slices.Contains(queues, t.Queue) || t.ScheduledAt.After(now) {
		return false
	}
	switch t.Status {
	case TaskStatusPending:
		return true
	case TaskStatusProcessing:
		return t.LockedUntil != nil && !t.LockedUntil.After(now)
	default:
		return false
	}
}

// before orders claim candidates: higher priority first, then oldest.
func (t *Task) before(other *Task) bool {
	if t.Priority != other.Priority {
		return t.Priority > other.Priority
	}
	return t.CreatedAt.Before(other.CreatedAt)
}
