package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// EnqueuerRepository persists new tasks.
type EnqueuerRepository interface {
	CreateTask(ctx context.Context, task *Task) error
}

// Enqueuer creates tasks from typed payloads.
type Enqueuer struct {
	repo  EnqueuerRepository
	queue string
	now   func() time.Time
}

// NewEnqueuer creates an enqueuer writing to the default queue unless
// overridden per call.
func NewEnqueuer(repo EnqueuerRepository) (*Enqueuer, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}
	return &Enqueuer{repo: repo, queue: DefaultQueueName, now: time.Now}, nil
}

// EnqueueOption customizes a single task.
type EnqueueOption func(*Task)

func WithQueue(name string) EnqueueOption {
	return func(t *Task) { t.Queue = name }
}

func WithPriority(p Priority) EnqueueOption {
	return func(t *Task) { t.Priority = p }
}

// WithMaxRetries sets how many times a failed task is re-queued before it
// lands in the dead letter set. Zero disables queue-level retries.
func WithMaxRetries(n int8) EnqueueOption {
	return func(t *Task) { t.MaxRetries = n }
}

func WithDelay(d time.Duration) EnqueueOption {
	return func(t *Task) { t.ScheduledAt = t.ScheduledAt.Add(d) }
}

// Enqueue marshals payload to JSON and stores it as a pending task.
func (e *Enqueuer) Enqueue(ctx context.Context, payload any, opts ...EnqueueOption) (uuid.UUID, error) {
	if payload == nil {
		return uuid.Nil, ErrPayloadNil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return uuid.Nil, fmt.Errorf("queue: marshal payload of type %T: %w", payload, err)
	}

	now := e.now()
	task := &Task{
		ID:          uuid.New(),
		Queue:       e.queue,
		TaskName:    TaskName(payload),
		Payload:     data,
		Status:      TaskStatusPending,
		Priority:    PriorityDefault,
		MaxRetries:  3,
		ScheduledAt: now,
		CreatedAt:   now,
	}
	for _, opt := range opts {
		opt(task)
	}

	if err := e.repo.CreateTask(ctx, task); err != nil {
		return uuid.Nil, fmt.Errorf("queue: create task %q in queue %q: %w", task.TaskName, task.Queue, err)
	}
	return task.ID, nil
}
