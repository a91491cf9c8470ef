package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/courtlens/tenancy/pkg/logger"
)

// WorkerRepository is the storage contract a Worker needs.
type WorkerRepository interface {
	ClaimTask(ctx context.Context, workerID uuid.UUID, queues []string, lockDuration time.Duration) (*Task, error)
	CompleteTask(ctx context.Context, taskID uuid.UUID) error
	FailTask(ctx context.Context, taskID uuid.UUID, errorMsg string) error
	MoveToDLQ(ctx context.Context, taskID uuid.UUID) error
}

// Worker polls queues and dispatches claimed tasks to handlers.
type Worker struct {
	repo     WorkerRepository
	handlers map[string]Handler
	id       uuid.UUID
	mu       sync.RWMutex
	wg       sync.WaitGroup
	sem      chan struct{}
	started  bool

	queues       []string
	pullInterval time.Duration
	lockTimeout  time.Duration
	logger       *slog.Logger
}

// WorkerOption configures a Worker.
type WorkerOption func(*Worker)

func WithQueues(queues ...string) WorkerOption {
	return func(w *Worker) {
		if len(queues) > 0 {
			w.queues = queues
		}
	}
}

func WithPullInterval(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.pullInterval = d
		}
	}
}

// WithLockTimeout bounds how long a handler may run before its task can
// be claimed again.
func WithLockTimeout(d time.Duration) WorkerOption {
	return func(w *Worker) {
		if d > 0 {
			w.lockTimeout = d
		}
	}
}

func WithMaxConcurrentTasks(n int) WorkerOption {
	return func(w *Worker) {
		if n > 0 {
			w.sem = make(chan struct{}, n)
		}
	}
}

func WithWorkerLogger(l *slog.Logger) WorkerOption {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// NewWorker creates a worker over repo.
func NewWorker(repo WorkerRepository, opts ...WorkerOption) (*Worker, error) {
	if repo == nil {
		return nil, ErrRepositoryNil
	}

	w := &Worker{
		repo:         repo,
		handlers:     make(map[string]Handler),
		id:           uuid.New(),
		sem:          make(chan struct{}, 1),
		queues:       []string{DefaultQueueName},
		pullInterval: time.Second,
		lockTimeout:  5 * time.Minute,
		logger:       logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// RegisterHandlers adds handlers keyed by Name(). Nil handlers are skipped.
func (w *Worker) RegisterHandlers(handlers ...Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, h := range handlers {
		if h != nil {
			w.handlers[h.Name()] = h
		}
	}
}

// Run returns a function that polls until ctx is cancelled and then waits
// for in-flight tasks. Shaped for errgroup.Group.Go.
func (w *Worker) Run(ctx context.Context) func() error {
	return func() error {
		w.mu.Lock()
		if w.started {
			w.mu.Unlock()
			return ErrWorkerStarted
		}
		if len(w.handlers) == 0 {
			w.mu.Unlock()
			return ErrNoHandlers
		}
		w.started = true
		w.mu.Unlock()

		w.logger.InfoContext(ctx, "queue worker started",
			slog.String("worker_id", w.id.String()),
			slog.Any("queues", w.queues),
			slog.Int("max_concurrent", cap(w.sem)))

		ticker := time.NewTicker(w.pullInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				w.wg.Wait()
				w.logger.Info("queue worker stopped", slog.String("worker_id", w.id.String()))
				return nil
			case <-ticker.C:
				select {
				case w.sem <- struct{}{}:
					w.wg.Add(1)
					go func() {
						defer w.wg.Done()
						defer func() { <-w.sem }()
						if _, err := w.ProcessNext(context.WithoutCancel(ctx)); err != nil {
							w.logger.ErrorContext(ctx, "queue task processing failed", logger.Error(err))
						}
					}()
				default:
				}
			}
		}
	}
}

// ProcessNext claims and runs at most one task. It reports whether a task
// was claimed. Handler failures are recorded on the task, not returned.
func (w *Worker) ProcessNext(ctx context.Context) (bool, error) {
	task, err := w.repo.ClaimTask(ctx, w.id, w.queues, w.lockTimeout)
	if errors.Is(err, ErrNoTaskToClaim) || (err == nil && task == nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("queue: claim task: %w", err)
	}
	return true, w.process(ctx, task)
}

func (w *Worker) process(ctx context.Context, task *Task) (retErr error) {
	start := time.Now()
	log := w.logger.With(
		slog.String("task_id", task.ID.String()),
		slog.String("task_name", task.TaskName),
		slog.String("queue", task.Queue),
	)

	w.mu.RLock()
	handler, ok := w.handlers[task.TaskName]
	w.mu.RUnlock()
	if !ok {
		log.ErrorContext(ctx, "no handler registered for task")
		if err := w.repo.FailTask(ctx, task.ID, ErrHandlerNotFound.Error()); err != nil {
			return err
		}
		if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
			return err
		}
		return fmt.Errorf("%w: %s", ErrHandlerNotFound, task.TaskName)
	}

	defer func() {
		if r := recover(); r != nil {
			log.ErrorContext(ctx, "task handler panicked", slog.Any("panic", r))
			retErr = w.fail(ctx, log, task, fmt.Errorf("panic in handler: %v", r), time.Since(start))
		}
	}()

	hctx, cancel := context.WithTimeout(ctx, w.lockTimeout)
	defer cancel()

	if err := handler.Handle(hctx, task.Payload); err != nil {
		return w.fail(ctx, log, task, err, time.Since(start))
	}

	if err := w.repo.CompleteTask(ctx, task.ID); err != nil {
		return fmt.Errorf("queue: complete task %s: %w", task.ID, err)
	}
	log.InfoContext(ctx, "task completed", logger.Duration(time.Since(start)))
	return nil
}

func (w *Worker) fail(ctx context.Context, log *slog.Logger, task *Task, cause error, d time.Duration) error {
	log.ErrorContext(ctx, "task failed",
		logger.Error(cause),
		logger.RetryCount(int(task.RetryCount)),
		slog.Int("max_retries", int(task.MaxRetries)),
		logger.Duration(d))

	if err := w.repo.FailTask(ctx, task.ID, cause.Error()); err != nil {
		return fmt.Errorf("queue: fail task %s: %w", task.ID, err)
	}
	if task.RetryCount >= task.MaxRetries {
		if err := w.repo.MoveToDLQ(ctx, task.ID); err != nil {
			return fmt.Errorf("queue: move task %s to dead letter: %w", task.ID, err)
		}
		log.WarnContext(ctx, "task moved to dead letter queue")
	}
	return nil
}
