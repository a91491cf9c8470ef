package tenant

import (
	"context"

	"github.com/google/uuid"
)

// User is the authenticated principal summary carried in a Context.
type User struct {
	ID    string   `json:"id"`
	Email string   `json:"email,omitempty"`
	Roles []string `json:"roles,omitempty"`
}

// UserProvider looks up a user's membership in a tenant.
type UserProvider interface {
	User(ctx context.Context, tenantID uuid.UUID, userID string) (*User, error)
}

// PermissionProvider resolves the permission set of a user in a tenant.
type PermissionProvider interface {
	Permissions(ctx context.Context, tenantID uuid.UUID, userID string) ([]string, error)
}
