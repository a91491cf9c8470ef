package accesslog

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/courtlens/tenancy/pkg/logger"
)

// BatchWriter stores entries in bulk.
type BatchWriter interface {
	WriteBatch(ctx context.Context, entries []Entry) error
}

// AsyncOptions tunes batching. Zero values take defaults.
type AsyncOptions struct {
	BufferSize     int           // queued entries before Write starts dropping
	BatchSize      int           // entries per flush
	BatchTimeout   time.Duration // max age of a partial batch
	StorageTimeout time.Duration // per-flush deadline
}

// AsyncWriter is a Sink that queues entries and flushes them to a
// BatchWriter from one background goroutine. Write never blocks: when the
// queue is full the entry is dropped and ErrBufferFull returned.
type AsyncWriter struct {
	bw      BatchWriter
	opts    AsyncOptions
	log     *slog.Logger
	entries chan Entry

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

// NewAsyncWriter starts the flush loop. Call Close to drain the queue.
func NewAsyncWriter(bw BatchWriter, opts AsyncOptions, log *slog.Logger) *AsyncWriter {
	if bw == nil {
		panic("accesslog: batch writer cannot be nil")
	}
	if opts.BufferSize <= 0 {
		opts.BufferSize = 1000
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = 100
	}
	if opts.BatchTimeout <= 0 {
		opts.BatchTimeout = time.Second
	}
	if opts.StorageTimeout <= 0 {
		opts.StorageTimeout = 5 * time.Second
	}
	if log == nil {
		log = logger.Discard()
	}

	w := &AsyncWriter{
		bw:      bw,
		opts:    opts,
		log:     log,
		entries: make(chan Entry, opts.BufferSize),
		done:    make(chan struct{}),
	}
	go w.loop()
	return w
}

func (w *AsyncWriter) Write(_ context.Context, e Entry) error {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.closed {
		return ErrWriterClosed
	}
	select {
	case w.entries <- e:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops accepting entries and waits for the queue to drain or ctx
// to expire.
func (w *AsyncWriter) Close(ctx context.Context) error {
	w.mu.Lock()
	if !w.closed {
		w.closed = true
		close(w.entries)
	}
	w.mu.Unlock()

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *AsyncWriter) loop() {
	defer close(w.done)

	batch := make([]Entry, 0, w.opts.BatchSize)
	ticker := time.NewTicker(w.opts.BatchTimeout)
	defer ticker.Stop()

	flush := func() {
		if len(batch) == 0 {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), w.opts.StorageTimeout)
		defer cancel()

		if err := w.bw.WriteBatch(ctx, batch); err != nil {
			w.log.Error("access log flush failed",
				logger.Component("accesslog"),
				slog.Int("entries", len(batch)),
				logger.Error(err),
			)
		}
		batch = batch[:0]
	}

	for {
		select {
		case e, ok := <-w.entries:
			if !ok {
				flush()
				return
			}
			batch = append(batch, e)
			if len(batch) >= w.opts.BatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}
