package tenant

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
)

// Context is the per-(tenant, user) bundle handed to downstream handlers.
// It is rebuilt whenever its cache entry expires or the tenant changes.
type Context struct {
	TenantID       uuid.UUID `json:"tenant_id"`
	Tenant         *Tenant   `json:"tenant"`
	User           *User     `json:"user,omitempty"`
	Permissions    []string  `json:"permissions"`
	Isolation      Isolation `json:"isolation"`
	ResourceLimits Resources `json:"resource_limits"`
}

// UserID returns the user id, or "" for anonymous contexts.
func (c *Context) UserID() string {
	if c == nil || c.User == nil {
		return ""
	}
	return c.User.ID
}

// Connection is a tenant-scoped database handle. Implementations live in
// the isolation package. Every Connection handed out by a
// ConnectionProvider must be released exactly once.
type Connection interface {
	Ping(ctx context.Context) error
	Release()
}

// ConnectionProvider hands out the connection matching a tenant's
// isolation mode.
type ConnectionProvider interface {
	Connection(ctx context.Context, tc *Context) (Connection, error)
}

type (
	tenantKey     struct{}
	contextKey    struct{}
	connectionKey struct{}
	userKey       struct{}
)

// WithTenant adds a tenant to the context.
func WithTenant(ctx context.Context, t *Tenant) context.Context {
	return context.WithValue(ctx, tenantKey{}, t)
}

// FromContext retrieves the tenant from the context.
func FromContext(ctx context.Context) (*Tenant, bool) {
	t, ok := ctx.Value(tenantKey{}).(*Tenant)
	return t, ok && t != nil
}

// MustFromContext retrieves the tenant from the context.
// Panics if no tenant is found.
func MustFromContext(ctx context.Context) *Tenant {
	t, ok := FromContext(ctx)
	if !ok {
		panic("tenant: no tenant in context")
	}
	return t
}

// IDFromContext returns the tenant id from the tenant or, when only a
// Context was attached, from the Context.
func IDFromContext(ctx context.Context) (uuid.UUID, bool) {
	if t, ok := FromContext(ctx); ok {
		return t.ID, true
	}
	if tc, ok := ContextFromContext(ctx); ok {
		return tc.TenantID, true
	}
	return uuid.Nil, false
}

// WithContext attaches a tenant Context.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, tc)
}

func ContextFromContext(ctx context.Context) (*Context, bool) {
	tc, ok := ctx.Value(contextKey{}).(*Context)
	return tc, ok && tc != nil
}

// WithConnection attaches the isolated connection for the request.
func WithConnection(ctx context.Context, conn Connection) context.Context {
	return context.WithValue(ctx, connectionKey{}, conn)
}

func ConnectionFromContext(ctx context.Context) (Connection, bool) {
	conn, ok := ctx.Value(connectionKey{}).(Connection)
	return conn, ok && conn != nil
}

// WithUser is used by authentication middleware running before the tenant
// middleware to expose the authenticated user.
func WithUser(ctx context.Context, u *User) context.Context {
	return context.WithValue(ctx, userKey{}, u)
}

func UserFromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(userKey{}).(*User)
	return u, ok && u != nil
}

// LoggerExtractor returns a logger context extractor that adds tenant_id
// to records logged with a tenant-scoped context.
func LoggerExtractor() func(ctx context.Context) (slog.Attr, bool) {
	return func(ctx context.Context) (slog.Attr, bool) {
		if id, ok := IDFromContext(ctx); ok {
			return slog.String("tenant_id", id.String()), true
		}
		return slog.Attr{}, false
	}
}
