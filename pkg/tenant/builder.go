package tenant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ContextBuilder assembles tenant Contexts on cache miss.
type ContextBuilder interface {
	// Build loads the tenant by id. Unknown or malformed ids return
	// ErrTenantNotFound.
	Build(ctx context.Context, tenantID, userID string) (*Context, error)

	// ForTenant builds from an already loaded record.
	ForTenant(ctx context.Context, t *Tenant, userID string) (*Context, error)
}

// Builder is the default ContextBuilder. User and permission lookups are
// optional; without them a user id yields a bare User with no permissions.
type Builder struct {
	finder      Finder
	users       UserProvider
	permissions PermissionProvider
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

func WithUserProvider(p UserProvider) BuilderOption {
	return func(b *Builder) { b.users = p }
}

func WithPermissionProvider(p PermissionProvider) BuilderOption {
	return func(b *Builder) { b.permissions = p }
}

func NewBuilder(finder Finder, opts ...BuilderOption) *Builder {
	b := &Builder{finder: finder}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Builder) Build(ctx context.Context, tenantID, userID string) (*Context, error) {
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrTenantNotFound, tenantID)
	}
	t, err := b.finder.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return b.ForTenant(ctx, t, userID)
}

func (b *Builder) ForTenant(ctx context.Context, t *Tenant, userID string) (*Context, error) {
	if t == nil {
		return nil, ErrTenantNotFound
	}

	tc := &Context{
		TenantID:       t.ID,
		Tenant:         t,
		Permissions:    []string{},
		Isolation:      t.Isolation,
		ResourceLimits: t.Resources,
	}
	if userID == "" {
		return tc, nil
	}

	tc.User = &User{ID: userID}
	if b.users != nil {
		u, err := b.users.User(ctx, t.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("tenant: load user %s: %w", userID, err)
		}
		if u != nil {
			tc.User = u
		}
	}
	if b.permissions != nil {
		perms, err := b.permissions.Permissions(ctx, t.ID, userID)
		if err != nil {
			return nil, fmt.Errorf("tenant: load permissions for %s: %w", userID, err)
		}
		if perms != nil {
			tc.Permissions = perms
		}
	}
	return tc, nil
}
