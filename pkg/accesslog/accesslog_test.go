package accesslog_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtlens/tenancy/pkg/accesslog"
	"github.com/courtlens/tenancy/pkg/logger"
)

type recordingBatchWriter struct {
	mu      sync.Mutex
	batches [][]accesslog.Entry
	block   chan struct{}
}

func (w *recordingBatchWriter) WriteBatch(_ context.Context, entries []accesslog.Entry) error {
	if w.block != nil {
		<-w.block
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.batches = append(w.batches, append([]accesslog.Entry(nil), entries...))
	return nil
}

func (w *recordingBatchWriter) total() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, b := range w.batches {
		n += len(b)
	}
	return n
}

func TestAsyncWriter(t *testing.T) {
	t.Parallel()

	t.Run("flushes full batches and drains on close", func(t *testing.T) {
		t.Parallel()

		bw := &recordingBatchWriter{}
		w := accesslog.NewAsyncWriter(bw, accesslog.AsyncOptions{BatchSize: 2, BatchTimeout: time.Hour}, nil)

		for i := 0; i < 5; i++ {
			require.NoError(t, w.Write(context.Background(), accesslog.Entry{TenantID: "t1"}))
		}
		require.NoError(t, w.Close(context.Background()))
		assert.Equal(t, 5, bw.total())
	})

	t.Run("flushes partial batch on timeout", func(t *testing.T) {
		t.Parallel()

		bw := &recordingBatchWriter{}
		w := accesslog.NewAsyncWriter(bw, accesslog.AsyncOptions{BatchSize: 100, BatchTimeout: 10 * time.Millisecond}, nil)
		defer w.Close(context.Background())

		require.NoError(t, w.Write(context.Background(), accesslog.Entry{TenantID: "t1"}))
		assert.Eventually(t, func() bool { return bw.total() == 1 }, time.Second, 5*time.Millisecond)
	})

	t.Run("drops entries when buffer is full", func(t *testing.T) {
		t.Parallel()

		bw := &recordingBatchWriter{block: make(chan struct{})}
		w := accesslog.NewAsyncWriter(bw, accesslog.AsyncOptions{BufferSize: 1, BatchSize: 1, BatchTimeout: time.Hour}, nil)

		var dropped bool
		for i := 0; i < 10; i++ {
			if err := w.Write(context.Background(), accesslog.Entry{}); errors.Is(err, accesslog.ErrBufferFull) {
				dropped = true
				break
			}
		}
		assert.True(t, dropped)

		close(bw.block)
		require.NoError(t, w.Close(context.Background()))
	})

	t.Run("rejects writes after close", func(t *testing.T) {
		t.Parallel()

		w := accesslog.NewAsyncWriter(&recordingBatchWriter{}, accesslog.AsyncOptions{}, nil)
		require.NoError(t, w.Close(context.Background()))
		assert.ErrorIs(t, w.Write(context.Background(), accesslog.Entry{}), accesslog.ErrWriterClosed)
	})
}

func TestSinks(t *testing.T) {
	t.Parallel()

	t.Run("slog sink logs entry fields", func(t *testing.T) {
		t.Parallel()

		buf := &bytes.Buffer{}
		sink := accesslog.NewSlogSink(logger.New(logger.WithOutput(buf)))
		require.NoError(t, sink.Write(context.Background(), accesslog.Entry{TenantID: "t1", Method: "GET", Path: "/x"}))
		assert.Contains(t, buf.String(), `"tenant_id":"t1"`)
		assert.Contains(t, buf.String(), `"path":"/x"`)
	})

	t.Run("multi joins errors and writes to every sink", func(t *testing.T) {
		t.Parallel()

		boom := errors.New("boom")
		calls := 0
		ok := accesslog.SinkFunc(func(context.Context, accesslog.Entry) error { calls++; return nil })
		bad := accesslog.SinkFunc(func(context.Context, accesslog.Entry) error { calls++; return boom })

		err := accesslog.Multi(bad, nil, ok).Write(context.Background(), accesslog.Entry{})
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 2, calls)
	})
}
