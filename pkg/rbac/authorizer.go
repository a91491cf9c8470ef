package rbac

import (
	"context"
	"errors"
	"fmt"
	"slices"
)

// Authorizer maps role names to their effective permissions, inherited
// ones included. The role table is computed once at construction and
// read-only afterwards.
type Authorizer struct {
	rolePermissions map[string][]string
}

// NewAuthorizer loads roles from source and precomputes effective
// permissions. Circular or too-deep inheritance is rejected.
func NewAuthorizer(ctx context.Context, source RoleSource) (*Authorizer, error) {
	roles, err := source.Load(ctx)
	if err != nil {
		return nil, err
	}
	if err := validateInheritance(roles); err != nil {
		return nil, err
	}

	rolePermissions := make(map[string][]string, len(roles))
	for name := range roles {
		rolePermissions[name] = Normalize(collect(name, roles, map[string]bool{}))
	}
	return &Authorizer{rolePermissions: rolePermissions}, nil
}

// Permissions returns the union of the effective permissions of roles.
// Unknown roles contribute nothing.
func (a *Authorizer) Permissions(roles ...string) []string {
	var all []string
	for _, r := range roles {
		all = append(all, a.rolePermissions[r]...)
	}
	return Normalize(all)
}

// Can reports ErrInvalidRole for an unknown role and
// ErrInsufficientPermissions when the role lacks permission.
func (a *Authorizer) Can(role, permission string) error {
	perms, ok := a.rolePermissions[role]
	if !ok {
		return ErrInvalidRole
	}
	if !Has(perms, permission) {
		return ErrInsufficientPermissions
	}
	return nil
}

// HasRole reports whether name is a defined role.
func (a *Authorizer) HasRole(name string) bool {
	_, ok := a.rolePermissions[name]
	return ok
}

// Roles returns the known role names, sorted.
func (a *Authorizer) Roles() []string {
	names := make([]string, 0, len(a.rolePermissions))
	for name := range a.rolePermissions {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func collect(name string, roles map[string]Role, visited map[string]bool) []string {
	if visited[name] {
		return nil
	}
	visited[name] = true

	role, ok := roles[name]
	if !ok {
		return nil
	}
	perms := slices.Clone(role.Permissions)
	for _, parent := range role.Inherits {
		perms = append(perms, collect(parent, roles, visited)...)
	}
	return perms
}

func validateInheritance(roles map[string]Role) error {
	for name := range roles {
		if err := walk(name, roles, []string{name}); err != nil {
			return err
		}
	}
	return nil
}

func walk(name string, roles map[string]Role, path []string) error {
	if len(path) > MaxInheritanceDepth+1 {
		return errors.Join(ErrCircularInheritance,
			fmt.Errorf("inheritance depth exceeds maximum allowed depth of %d", MaxInheritanceDepth))
	}
	for _, parent := range roles[name].Inherits {
		if slices.Contains(path, parent) {
			return errors.Join(ErrCircularInheritance,
				fmt.Errorf("circular inheritance detected: %s -> %s", name, parent))
		}
		if err := walk(parent, roles, append(slices.Clone(path), parent)); err != nil {
			return err
		}
	}
	return nil
}
