package ratelimiter

import (
	"context"
	"fmt"
	"time"
)

// Config describes one token bucket.
type Config struct {
	Capacity       int           // burst size
	RefillRate     int           // tokens added per interval
	RefillInterval time.Duration // time between refills
}

func (c Config) validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive, got %d", ErrInvalidConfig, c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("%w: refill rate must be positive, got %d", ErrInvalidConfig, c.RefillRate)
	}
	if c.RefillInterval < time.Millisecond {
		return fmt.Errorf("%w: refill interval must be at least 1ms, got %v", ErrInvalidConfig, c.RefillInterval)
	}
	return nil
}

// maxIntervals caps the refill count so a long-idle bucket cannot
// overflow while refilling.
func (c Config) maxIntervals() int64 {
	return int64(c.Capacity/c.RefillRate + 1)
}

// Result is the outcome of one consume call.
type Result struct {
	Limit     int       // bucket capacity
	Remaining int       // negative when the request was denied
	ResetAt   time.Time // next refill
}

func (r *Result) Allowed() bool {
	return r.Remaining >= 0
}

// RetryAfter is zero for allowed requests.
func (r *Result) RetryAfter(now time.Time) time.Duration {
	if r.Allowed() {
		return 0
	}
	return max(r.ResetAt.Sub(now), 0)
}

// Store keeps bucket state.
type Store interface {
	// ConsumeTokens refills the bucket and takes tokens from it. When
	// the bucket holds fewer than tokens nothing is taken and the
	// returned remaining is negative.
	ConsumeTokens(ctx context.Context, key string, tokens int, cfg Config) (remaining int, resetAt time.Time, err error)

	Reset(ctx context.Context, key string) error
}

// Allow takes one token from the bucket at key.
func Allow(ctx context.Context, store Store, key string, cfg Config) (*Result, error) {
	return AllowN(ctx, store, key, 1, cfg)
}

// AllowN takes n tokens from the bucket at key.
func AllowN(ctx context.Context, store Store, key string, n int, cfg Config) (*Result, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: must be positive, got %d", ErrInvalidTokenCount, n)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	remaining, resetAt, err := store.ConsumeTokens(ctx, key, n, cfg)
	if err != nil {
		return nil, err
	}
	return &Result{Limit: cfg.Capacity, Remaining: remaining, ResetAt: resetAt}, nil
}
