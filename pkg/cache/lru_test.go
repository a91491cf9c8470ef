package cache_test

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtlens/tenancy/pkg/cache"
)

type evictLog struct {
	mu   sync.Mutex
	keys []string
}

func (l *evictLog) fn(key string, _ int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keys = append(l.keys, key)
}

func (l *evictLog) get() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

func TestLRU(t *testing.T) {
	t.Parallel()

	t.Run("put and get", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRU[string, int](2, nil)
		c.Put("a", 1)
		v, ok := c.Get("a")
		require.True(t, ok)
		assert.Equal(t, 1, v)

		_, ok = c.Get("missing")
		assert.False(t, ok)
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		t.Parallel()
		log := &evictLog{}
		c := cache.NewLRU[string, int](2, log.fn)
		c.Put("a", 1)
		c.Put("b", 2)
		c.Get("a")
		c.Put("c", 3)

		_, ok := c.Get("b")
		assert.False(t, ok)
		assert.Equal(t, []string{"b"}, log.get())
		assert.Equal(t, 2, c.Len())
	})

	t.Run("replacing a value evicts the old one", func(t *testing.T) {
		t.Parallel()
		log := &evictLog{}
		c := cache.NewLRU[string, int](2, log.fn)
		c.Put("a", 1)
		c.Put("a", 2)

		v, _ := c.Get("a")
		assert.Equal(t, 2, v)
		assert.Equal(t, []string{"a"}, log.get())
	})

	t.Run("get or create caches result", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRU[string, int](2, nil)
		calls := 0
		create := func() (int, error) { calls++; return 7, nil }

		v, err := c.GetOrCreate("k", create)
		require.NoError(t, err)
		assert.Equal(t, 7, v)

		v, err = c.GetOrCreate("k", create)
		require.NoError(t, err)
		assert.Equal(t, 7, v)
		assert.Equal(t, 1, calls)
	})

	t.Run("get or create does not cache errors", func(t *testing.T) {
		t.Parallel()
		c := cache.NewLRU[string, int](2, nil)
		boom := errors.New("boom")
		_, err := c.GetOrCreate("k", func() (int, error) { return 0, boom })
		assert.ErrorIs(t, err, boom)
		assert.Equal(t, 0, c.Len())
	})

	t.Run("remove func by prefix", func(t *testing.T) {
		t.Parallel()
		log := &evictLog{}
		c := cache.NewLRU[string, int](4, log.fn)
		c.Put("t1:shared_database", 1)
		c.Put("t1:hybrid", 2)
		c.Put("t2:shared_database", 3)

		n := c.RemoveFunc(func(k string) bool { return strings.HasPrefix(k, "t1:") })
		assert.Equal(t, 2, n)
		assert.ElementsMatch(t, []string{"t1:shared_database", "t1:hybrid"}, log.get())
		_, ok := c.Get("t2:shared_database")
		assert.True(t, ok)
	})

	t.Run("remove and clear notify", func(t *testing.T) {
		t.Parallel()
		log := &evictLog{}
		c := cache.NewLRU[string, int](4, log.fn)
		c.Put("a", 1)
		c.Put("b", 2)

		assert.True(t, c.Remove("a"))
		assert.False(t, c.Remove("a"))
		c.Clear()
		assert.Equal(t, 0, c.Len())
		assert.Equal(t, []string{"a", "b"}, log.get())
	})

	t.Run("panics on non-positive capacity", func(t *testing.T) {
		t.Parallel()
		assert.Panics(t, func() { cache.NewLRU[string, int](0, nil) })
	})
}

func TestLRU_Concurrent(t *testing.T) {
	t.Parallel()

	var evicted atomic.Int64
	c := cache.NewLRU[int, int](16, func(int, int) { evicted.Add(1) })

	var wg sync.WaitGroup
	for g := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 100 {
				key := (g*100 + i) % 32
				_, _ = c.GetOrCreate(key, func() (int, error) { return key, nil })
				c.Get(key)
			}
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, c.Len(), 16)
	assert.Positive(t, evicted.Load())
}
