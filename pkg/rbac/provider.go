package rbac

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"

	"github.com/courtlens/tenancy/pkg/tenant"
)

// Provider resolves tenant users and their permissions from memberships
// and the role table. It satisfies tenant.UserProvider and
// tenant.PermissionProvider.
type Provider struct {
	authz   *Authorizer
	members MemberStore
}

func NewProvider(authz *Authorizer, members MemberStore) *Provider {
	return &Provider{authz: authz, members: members}
}

// User returns the member summary. A user without membership gets a bare
// User with no roles, so anonymous-like callers still build a context.
func (p *Provider) User(ctx context.Context, tenantID uuid.UUID, userID string) (*tenant.User, error) {
	m, err := p.members.Member(ctx, tenantID, userID)
	if errors.Is(err, ErrMemberNotFound) {
		return &tenant.User{ID: userID}, nil
	}
	if err != nil {
		return nil, err
	}
	return &tenant.User{ID: m.UserID, Email: m.Email, Roles: m.Roles}, nil
}

// Permissions returns the union of the member's role permissions, or an
// empty set for non-members.
func (p *Provider) Permissions(ctx context.Context, tenantID uuid.UUID, userID string) ([]string, error) {
	m, err := p.members.Member(ctx, tenantID, userID)
	if errors.Is(err, ErrMemberNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	return p.authz.Permissions(m.Roles...), nil
}

// CanFromContext checks the permissions of the tenant Context attached
// to ctx.
func CanFromContext(ctx context.Context, permission string) error {
	tc, ok := tenant.ContextFromContext(ctx)
	if !ok {
		return errors.Join(tenant.ErrNoTenantInContext, ErrInsufficientPermissions)
	}
	if !Has(tc.Permissions, permission) {
		return ErrInsufficientPermissions
	}
	return nil
}

// Require rejects requests whose tenant Context lacks permission with a
// 403 JSON error.
func Require(permission string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := CanFromContext(r.Context(), permission); err != nil {
				w.Header().Set("Content-Type", "application/json; charset=utf-8")
				w.WriteHeader(http.StatusForbidden)
				_ = json.NewEncoder(w).Encode(tenant.ErrorResponse{
					Error:   "Forbidden",
					Message: "Missing permission " + permission,
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
