package provisioning

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/courtlens/tenancy/pkg/queue"
	"github.com/courtlens/tenancy/pkg/tenant"
)

// Enqueuer schedules provisioning jobs. *queue.Enqueuer satisfies it.
type Enqueuer interface {
	Enqueue(ctx context.Context, payload any, opts ...queue.EnqueueOption) (uuid.UUID, error)
}

// Isolator creates and removes the per-tenant resources of an isolation
// mode. The setup methods return the effective config, which the service
// writes back onto the tenant. *isolation.Service satisfies it.
type Isolator interface {
	SetupDatabase(ctx context.Context, t *tenant.Tenant) (tenant.DatabaseConfig, error)
	SetupStorage(ctx context.Context, t *tenant.Tenant) (tenant.StorageConfig, error)
	SetupCache(ctx context.Context, t *tenant.Tenant) (tenant.CacheConfig, error)
	Cleanup(ctx context.Context, t *tenant.Tenant) error
	tenant.ConnectionProvider
}

// Option configures a Service.
type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

func WithTemplates(ts TemplateStore) Option {
	return func(s *Service) { s.templates = ts }
}

func WithEnqueuer(e Enqueuer) Option {
	return func(s *Service) { s.enqueuer = e }
}

// WithContextCache sets the cache cleared on every tenant change and used
// by BuildContext.
func WithContextCache(c *tenant.ContextCache) Option {
	return func(s *Service) { s.contexts = c }
}

func WithBuilder(b tenant.ContextBuilder) Option {
	return func(s *Service) { s.builder = b }
}

// WithIsolator enables resource setup and cleanup. Without it the setup
// steps keep the merged config and deployment validation checks config only.
func WithIsolator(i Isolator) Option {
	return func(s *Service) { s.isolator = i }
}

func WithMetrics(m Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

// WithPlan replaces DefaultPlan.
func WithPlan(p *Plan) Option {
	return func(s *Service) { s.plan = p }
}

// WithResourceDefaults sets service-wide resource overrides applied
// between the built-in defaults and the template.
func WithResourceDefaults(o tenant.Overrides) Option {
	return func(s *Service) { s.resourceDefaults = o }
}

func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}
