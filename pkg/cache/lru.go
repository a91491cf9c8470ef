package cache

import (
	"container/list"
	"sync"
)

type entry[K comparable, V any] struct {
	key   K
	value V
}

// EvictFunc is called for every value leaving the cache, whether by
// capacity eviction, Remove, RemoveFunc, Clear or a lost GetOrCreate race.
type EvictFunc[K comparable, V any] func(key K, value V)

// LRU is a thread-safe bounded cache that evicts the least recently used
// entry when full. Evict callbacks run after the internal lock is released,
// so they may block (closing connections, flushing buffers).
type LRU[K comparable, V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[K]*list.Element
	order    *list.List
	onEvict  EvictFunc[K, V]
}

// NewLRU creates a cache holding at most capacity entries.
// Panics if capacity is not positive.
func NewLRU[K comparable, V any](capacity int, onEvict EvictFunc[K, V]) *LRU[K, V] {
	if capacity <= 0 {
		panic("cache: LRU capacity must be positive")
	}
	return &LRU[K, V]{
		capacity: capacity,
		items:    make(map[K]*list.Element, capacity),
		order:    list.New(),
		onEvict:  onEvict,
	}
}

// Get returns the value for key and marks it recently used.
func (c *LRU[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		return el.Value.(*entry[K, V]).value, true
	}
	var zero V
	return zero, false
}

// Put stores value under key. A replaced value is passed to the evict
// callback.
func (c *LRU[K, V]) Put(key K, value V) {
	c.mu.Lock()
	evicted := c.put(key, value)
	c.mu.Unlock()

	c.notify(evicted)
}

// GetOrCreate returns the cached value for key or calls create and caches
// its result. create runs without the lock held; when two callers race on
// the same key the first stored value wins and the other is evicted.
func (c *LRU[K, V]) GetOrCreate(key K, create func() (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	v, err := create()
	if err != nil {
		var zero V
		return zero, err
	}

	c.mu.Lock()
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		existing := el.Value.(*entry[K, V]).value
		c.mu.Unlock()
		c.notify([]*entry[K, V]{{key: key, value: v}})
		return existing, nil
	}
	evicted := c.put(key, v)
	c.mu.Unlock()

	c.notify(evicted)
	return v, nil
}

// Remove deletes key and reports whether it was present.
func (c *LRU[K, V]) Remove(key K) bool {
	c.mu.Lock()
	el, ok := c.items[key]
	var removed []*entry[K, V]
	if ok {
		removed = append(removed, c.unlink(el))
	}
	c.mu.Unlock()

	c.notify(removed)
	return ok
}

// RemoveFunc deletes every entry whose key satisfies match and returns
// how many were removed.
func (c *LRU[K, V]) RemoveFunc(match func(K) bool) int {
	c.mu.Lock()
	var removed []*entry[K, V]
	for key, el := range c.items {
		if match(key) {
			removed = append(removed, c.unlink(el))
		}
	}
	c.mu.Unlock()

	c.notify(removed)
	return len(removed)
}

// Len returns the number of cached entries.
func (c *LRU[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Clear removes all entries.
func (c *LRU[K, V]) Clear() {
	c.mu.Lock()
	removed := make([]*entry[K, V], 0, len(c.items))
	for el := c.order.Front(); el != nil; el = el.Next() {
		removed = append(removed, el.Value.(*entry[K, V]))
	}
	c.items = make(map[K]*list.Element, c.capacity)
	c.order.Init()
	c.mu.Unlock()

	c.notify(removed)
}

// put must be called with the lock held.
func (c *LRU[K, V]) put(key K, value V) []*entry[K, V] {
	if el, ok := c.items[key]; ok {
		c.order.MoveToFront(el)
		e := el.Value.(*entry[K, V])
		old := &entry[K, V]{key: key, value: e.value}
		e.value = value
		return []*entry[K, V]{old}
	}

	c.items[key] = c.order.PushFront(&entry[K, V]{key: key, value: value})

	var evicted []*entry[K, V]
	for c.order.Len() > c.capacity {
		evicted = append(evicted, c.unlink(c.order.Back()))
	}
	return evicted
}

// unlink must be called with the lock held.
func (c *LRU[K, V]) unlink(el *list.Element) *entry[K, V] {
	c.order.Remove(el)
	e := el.Value.(*entry[K, V])
	delete(c.items, e.key)
	return e
}

func (c *LRU[K, V]) notify(entries []*entry[K, V]) {
	if c.onEvict == nil {
		return
	}
	for _, e := range entries {
		c.onEvict(e.key, e.value)
	}
}
