package tenant

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a tenant.
type Status string

const (
	StatusActive       Status = "active"
	StatusInactive     Status = "inactive"
	StatusSuspended    Status = "suspended"
	StatusPendingSetup Status = "pending_setup"
	StatusMigrating    Status = "migrating"
	StatusArchived     Status = "archived"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusSuspended, StatusPendingSetup, StatusMigrating, StatusArchived:
		return true
	}
	return false
}

// Plan is the subscription tier.
type Plan string

const (
	PlanStarter      Plan = "starter"
	PlanProfessional Plan = "professional"
	PlanEnterprise   Plan = "enterprise"
	PlanCustom       Plan = "custom"
)

func (p Plan) Valid() bool {
	switch p {
	case PlanStarter, PlanProfessional, PlanEnterprise, PlanCustom:
		return true
	}
	return false
}

// Tenant is one customer organization.
type Tenant struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Domain    string      `json:"domain"`
	Subdomain string      `json:"subdomain,omitempty"`
	Status    Status      `json:"status"`
	Plan      Plan        `json:"plan"`
	Settings  Settings    `json:"settings"`
	Isolation Isolation   `json:"isolation"`
	Resources Resources   `json:"resources"`
	Billing   Billing     `json:"billing"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
	CreatedBy string      `json:"created_by"`
	ParentID  *uuid.UUID  `json:"parent_id,omitempty"`
	ChildIDs  []uuid.UUID `json:"child_ids"`
}

// IsActive reports whether the tenant may serve requests.
func (t *Tenant) IsActive() bool {
	return t != nil && t.Status == StatusActive
}

// Clone returns a deep copy. Stores hand out clones so callers cannot
// mutate cached records.
func (t *Tenant) Clone() (*Tenant, error) {
	if t == nil {
		return nil, nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("tenant: clone %s: %w", t.ID, err)
	}
	var cp Tenant
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("tenant: clone %s: %w", t.ID, err)
	}
	return &cp, nil
}

// Template supplies provisioning defaults that sit between the built-in
// defaults and the values of a create request.
type Template struct {
	ID          string    `json:"id" yaml:"id"`
	Name        string    `json:"name" yaml:"name"`
	Description string    `json:"description,omitempty" yaml:"description"`
	Settings    Overrides `json:"settings,omitempty" yaml:"settings"`
	Isolation   Overrides `json:"isolation,omitempty" yaml:"isolation"`
	Resources   Overrides `json:"resources,omitempty" yaml:"resources"`
}
