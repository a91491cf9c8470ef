package tenant

import (
	"context"
	"strings"
	"sync"
	"time"
)

const (
	// DefaultContextTTL is how long a built Context is reused.
	DefaultContextTTL = 5 * time.Minute

	// DefaultContextCacheSize bounds the number of cached contexts.
	DefaultContextCacheSize = 10000

	anonymousUser = "anonymous"
)

// BuildFunc produces a Context on cache miss.
type BuildFunc func(ctx context.Context) (*Context, error)

type cacheEntry struct {
	value     *Context
	expiresAt time.Time
}

// ContextCache is a process-local, TTL-bounded cache of tenant Contexts
// keyed by "<tenantID>:<userID|anonymous>". Instances do not coordinate,
// so each process may serve a context up to one TTL stale.
type ContextCache struct {
	mu         sync.Mutex
	entries    map[string]cacheEntry
	ttl        time.Duration
	maxEntries int
	disabled   bool
	now        func() time.Time
	observer   Observer
}

// CacheOption configures a ContextCache.
type CacheOption func(*ContextCache)

// WithTTL sets the entry lifetime. Non-positive values are ignored.
func WithTTL(ttl time.Duration) CacheOption {
	return func(c *ContextCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithMaxEntries bounds the cache. When full, the entry closest to expiry
// is evicted.
func WithMaxEntries(n int) CacheOption {
	return func(c *ContextCache) {
		if n > 0 {
			c.maxEntries = n
		}
	}
}

// WithCacheDisabled makes every GetOrBuild call build.
func WithCacheDisabled(disabled bool) CacheOption {
	return func(c *ContextCache) {
		c.disabled = disabled
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CacheOption {
	return func(c *ContextCache) {
		if now != nil {
			c.now = now
		}
	}
}

func WithCacheObserver(o Observer) CacheOption {
	return func(c *ContextCache) {
		if o != nil {
			c.observer = o
		}
	}
}

// NewContextCache creates a cache with a 5 minute TTL.
func NewContextCache(opts ...CacheOption) *ContextCache {
	c := &ContextCache{
		entries:    make(map[string]cacheEntry),
		ttl:        DefaultContextTTL,
		maxEntries: DefaultContextCacheSize,
		now:        time.Now,
		observer:   NopObserver{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CacheKey returns the cache key for a tenant and user.
func CacheKey(tenantID, userID string) string {
	if userID == "" {
		userID = anonymousUser
	}
	return tenantID + ":" + userID
}

// GetOrBuild returns the cached Context for (tenantID, userID) or builds,
// stores and returns a new one. Build errors are returned and nothing is
// stored. Concurrent misses for the same key may both build; the last
// write wins.
func (c *ContextCache) GetOrBuild(ctx context.Context, tenantID, userID string, build BuildFunc) (*Context, error) {
	if c.disabled {
		return build(ctx)
	}

	key := CacheKey(tenantID, userID)

	c.mu.Lock()
	e, ok := c.entries[key]
	if ok && c.now().Before(e.expiresAt) {
		c.mu.Unlock()
		c.observer.ContextCache(true)
		return e.value, nil
	}
	if ok {
		delete(c.entries, key)
	}
	c.mu.Unlock()

	c.observer.ContextCache(false)

	tc, err := build(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evictLocked()
	}
	c.entries[key] = cacheEntry{value: tc, expiresAt: c.now().Add(c.ttl)}
	return tc, nil
}

// Invalidate removes every entry of tenantID and returns how many were
// removed.
func (c *ContextCache) Invalidate(tenantID string) int {
	prefix := tenantID + ":"

	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// InvalidateAll clears the cache.
func (c *ContextCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// SweepExpired removes expired entries and returns how many were removed.
// Expired entries are also skipped on read, so sweeping only bounds memory.
func (c *ContextCache) SweepExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			removed++
		}
	}
	return removed
}

// Sweep runs SweepExpired every interval until ctx is done.
// It fits errgroup.Group.Go through a closure.
func (c *ContextCache) Sweep(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			c.SweepExpired()
		}
	}
}

// Len returns the number of stored entries, expired ones included.
func (c *ContextCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *ContextCache) evictLocked() {
	now := c.now()
	var (
		victim   string
		earliest time.Time
	)
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
			continue
		}
		if victim == "" || e.expiresAt.Before(earliest) {
			victim, earliest = key, e.expiresAt
		}
	}
	if len(c.entries) >= c.maxEntries && victim != "" {
		delete(c.entries, victim)
	}
}
