package tenant

import (
	"errors"
	"fmt"
)

var (
	// ErrTenantNotFound is returned when a tenant cannot be found.
	ErrTenantNotFound = errors.New("tenant not found")

	// ErrTenantNotResolved is returned when no strategy could identify a
	// tenant for the request.
	ErrTenantNotResolved = errors.New("tenant could not be resolved from request")

	// ErrInactiveTenant is returned when trying to use a tenant whose
	// status is not active.
	ErrInactiveTenant = errors.New("tenant is not active")

	// ErrNoTenantInContext is returned when no tenant is found in context.
	ErrNoTenantInContext = errors.New("no tenant in context")

	// ErrDomainTaken is returned when another tenant already claims the
	// domain and subdomain pair.
	ErrDomainTaken = errors.New("tenant domain already exists")

	// ErrUnknownMode is returned for an unrecognized isolation mode name.
	ErrUnknownMode = errors.New("unknown isolation mode")

	// ErrUnknownStrategy is returned for an unrecognized strategy name.
	ErrUnknownStrategy = errors.New("unknown resolution strategy")

	// ErrInvalidOverrides is returned when an overrides document does not
	// fit the target type.
	ErrInvalidOverrides = errors.New("invalid tenant overrides")
)

// InactiveError carries the status of a tenant that was refused.
type InactiveError struct {
	TenantID string
	Status   Status
}

func (e *InactiveError) Error() string {
	return fmt.Sprintf("tenant %s is not active: %s", e.TenantID, e.Status)
}

func (e *InactiveError) Unwrap() error {
	return ErrInactiveTenant
}
