package redis

import "errors"

var (
	// ErrEmptyURL is returned by Connect when REDIS_URL is unset.
	ErrEmptyURL = errors.New("redis: connection url is empty")
	// ErrInvalidURL wraps redis.ParseURL failures.
	ErrInvalidURL = errors.New("redis: invalid connection url")
	// ErrNotReady is returned when no PING succeeds before the retry
	// budget or ConnectTimeout runs out.
	ErrNotReady = errors.New("redis: server not ready")
	// ErrHealthcheckFailed is reported by the readiness check.
	ErrHealthcheckFailed = errors.New("redis: healthcheck failed")
	// ErrEmptyPrefix guards DeletePrefix from wiping every tenant's keys.
	ErrEmptyPrefix = errors.New("redis: refusing to delete with an empty prefix")
)
