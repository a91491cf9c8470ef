package provisioning

import "errors"

var (
	// ErrInvalidInput is returned when a create or update request is
	// missing required fields or carries unknown values.
	ErrInvalidInput = errors.New("provisioning: invalid input")

	// ErrHasChildren is returned when deleting a tenant that still has
	// child tenants.
	ErrHasChildren = errors.New("provisioning: tenant has child tenants")

	// ErrInvalidPlan is returned when a step plan has duplicate ids or a
	// dependency that does not name an earlier step.
	ErrInvalidPlan = errors.New("provisioning: invalid step plan")

	ErrRecordNotFound   = errors.New("provisioning: record not found")
	ErrTemplateNotFound = errors.New("provisioning: template not found")

	// ErrStepFailed is returned by Provision when a step exhausted its retries.
	ErrStepFailed = errors.New("provisioning: step failed")

	// ErrInvalidConfiguration is returned by the validate_config step.
	ErrInvalidConfiguration = errors.New("provisioning: invalid tenant configuration")

	// ErrDeploymentInvalid is returned by the validate_deployment step when
	// the isolation config does not match the mode.
	ErrDeploymentInvalid = errors.New("provisioning: deployment validation failed")
)
