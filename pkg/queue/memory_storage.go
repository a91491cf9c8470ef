package queue

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStorage is an in-process task store for single-instance
// deployments and tests. It implements EnqueuerRepository and
// WorkerRepository.
type MemoryStorage struct {
	mu      sync.Mutex
	tasks   map[uuid.UUID]*Task
	dlq     map[uuid.UUID]*Task
	backoff time.Duration
	now     func() time.Time
}

// NewMemoryStorage creates an empty store. Failed tasks are re-scheduled
// after backoff multiplied by their retry count.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		tasks:   make(map[uuid.UUID]*Task),
		dlq:     make(map[uuid.UUID]*Task),
		backoff: 30 * time.Second,
		now:     time.Now,
	}
}

// SetBackoff changes the linear retry backoff step.
func (ms *MemoryStorage) SetBackoff(d time.Duration) {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	ms.backoff = d
}

func (ms *MemoryStorage) CreateTask(_ context.Context, task *Task) error {
	if task == nil {
		return ErrPayloadNil
	}
	ms.mu.Lock()
	defer ms.mu.Unlock()

	cp := *task
	ms.tasks[task.ID] = &cp
	return nil
}

// ClaimTask locks the highest-priority due task, oldest first, whose
// previous lock (if any) has expired.
func (ms *MemoryStorage) ClaimTask(_ context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := ms.now()
	var best *Task
	for _, t := range ms.tasks {
		if t.claimable(queues, now) && (best == nil || t.before(best)) {
			best = t
		}
	}
	if best == nil {
		return nil, ErrNoTaskToClaim
	}

	lockedUntil := now.Add(lockDuration)
	best.Status = TaskStatusProcessing
	best.LockedUntil = &lockedUntil
	best.LockedBy = &workerID

	cp := *best
	return &cp, nil
}

func (ms *MemoryStorage) CompleteTask(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, ok := ms.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	now := ms.now()
	t.Status = TaskStatusCompleted
	t.ProcessedAt = &now
	t.LockedUntil = nil
	t.LockedBy = nil
	return nil
}

// FailTask records the error and, while retries remain, re-queues the task.
func (ms *MemoryStorage) FailTask(_ context.Context, taskID uuid.UUID, errorMsg string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, ok := ms.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	t.Error = errorMsg
	t.LockedUntil = nil
	t.LockedBy = nil
	if t.RetryCount < t.MaxRetries {
		t.RetryCount++
		t.Status = TaskStatusPending
		t.ScheduledAt = ms.now().Add(ms.backoff * time.Duration(t.RetryCount))
		return nil
	}
	t.Status = TaskStatusFailed
	return nil
}

func (ms *MemoryStorage) MoveToDLQ(_ context.Context, taskID uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, ok := ms.tasks[taskID]
	if !ok {
		return ErrTaskNotFound
	}
	delete(ms.tasks, taskID)
	ms.dlq[taskID] = t
	return nil
}

// GetTask returns a copy of a live or dead-lettered task.
func (ms *MemoryStorage) GetTask(_ context.Context, taskID uuid.UUID) (*Task, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	t, ok := ms.tasks[taskID]
	if !ok {
		if t, ok = ms.dlq[taskID]; !ok {
			return nil, ErrTaskNotFound
		}
	}
	cp := *t
	return &cp, nil
}

// DeadLetters returns copies of dead-lettered tasks.
func (ms *MemoryStorage) DeadLetters() []Task {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	out := make([]Task, 0, len(ms.dlq))
	for _, t := range ms.dlq {
		out = append(out, *t)
	}
	return out
}
