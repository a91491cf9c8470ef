package tenant

import (
	"log/slog"

	"github.com/courtlens/tenancy/pkg/accesslog"
)

// config holds middleware configuration.
type config struct {
	strategies    []Strategy
	builder       ContextBuilder
	cache         *ContextCache
	connections   ConnectionProvider
	accessLog     accesslog.Sink
	errorHandler  ErrorHandler
	skipPaths     []string
	requireActive bool
	logger        *slog.Logger
	observer      Observer
}

// Option configures the middleware.
type Option func(*config)

// WithStrategies sets the resolution order. The default is subdomain,
// header, jwt_claim.
func WithStrategies(strategies ...Strategy) Option {
	return func(c *config) {
		c.strategies = strategies
	}
}

// WithBuilder replaces the default store-backed Builder.
func WithBuilder(b ContextBuilder) Option {
	return func(c *config) {
		c.builder = b
	}
}

// WithContextCache sets the context cache. Without one every request
// builds its context.
func WithContextCache(cache *ContextCache) Option {
	return func(c *config) {
		c.cache = cache
	}
}

// WithConnectionProvider attaches an isolated connection to each request.
func WithConnectionProvider(p ConnectionProvider) Option {
	return func(c *config) {
		c.connections = p
	}
}

// WithAccessLog sets the sink receiving one entry per tenant request.
func WithAccessLog(sink accesslog.Sink) Option {
	return func(c *config) {
		c.accessLog = sink
	}
}

// WithErrorHandler sets a custom error handler.
func WithErrorHandler(handler ErrorHandler) Option {
	return func(c *config) {
		if handler != nil {
			c.errorHandler = handler
		}
	}
}

// WithSkipPaths sets path prefixes that bypass tenant resolution.
func WithSkipPaths(paths ...string) Option {
	return func(c *config) {
		c.skipPaths = append(c.skipPaths, paths...)
	}
}

// WithRequireActive controls whether unresolved requests are rejected.
// Defaults to true.
func WithRequireActive(require bool) Option {
	return func(c *config) {
		c.requireActive = require
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *config) {
		if l != nil {
			c.logger = l
		}
	}
}

func WithObserver(o Observer) Option {
	return func(c *config) {
		if o != nil {
			c.observer = o
		}
	}
}
