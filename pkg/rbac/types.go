package rbac

import "github.com/google/uuid"

// MaxInheritanceDepth bounds role inheritance chains.
const MaxInheritanceDepth = 10

// Role is a named permission set. Permissions use "resource:action"
// with "*" wildcards ("documents:*", "*").
type Role struct {
	Permissions []string `yaml:"permissions" json:"permissions"`
	Inherits    []string `yaml:"inherits" json:"inherits,omitempty"`
}

// Member is a user's membership in a tenant.
type Member struct {
	TenantID uuid.UUID `json:"tenant_id"`
	UserID   string    `json:"user_id"`
	Email    string    `json:"email,omitempty"`
	Roles    []string  `json:"roles"`
}
