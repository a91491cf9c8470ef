package rbac

import "errors"

var (
	// ErrInvalidRole is returned when a role does not exist.
	ErrInvalidRole = errors.New("rbac.invalid_role")

	// ErrInsufficientPermissions is returned when required permissions are not granted.
	ErrInsufficientPermissions = errors.New("rbac.insufficient_permissions")

	// ErrCircularInheritance is returned when roles inherit from each other
	// in a loop or nest deeper than MaxInheritanceDepth.
	ErrCircularInheritance = errors.New("rbac.circular_inheritance")

	// ErrInvalidRoleFile is returned when a role definition file cannot be parsed.
	ErrInvalidRoleFile = errors.New("rbac.invalid_role_file")
)
