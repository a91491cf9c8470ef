package provisioning

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// RunStatus is the state of a provisioning run.
type RunStatus string

const (
	RunPending      RunStatus = "pending"
	RunInitializing RunStatus = "initializing"
	RunCompleted    RunStatus = "completed"
	RunFailed       RunStatus = "failed"
)

// StepStatus is the state of one step within a run.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepRunning   StepStatus = "running"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
)

// StepState is the persisted progress of a step.
type StepState struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Description  string        `json:"description"`
	Status       StepStatus    `json:"status"`
	Dependencies []string      `json:"dependencies"`
	RetryCount   int           `json:"retry_count"`
	MaxRetries   int           `json:"max_retries"`
	StartedAt    *time.Time    `json:"started_at,omitempty"`
	CompletedAt  *time.Time    `json:"completed_at,omitempty"`
	Duration     time.Duration `json:"duration"`
	Error        string        `json:"error,omitempty"`
}

// ResourceTracking lists step ids by outcome.
type ResourceTracking struct {
	Created []string `json:"created"`
	Failed  []string `json:"failed"`
	Pending []string `json:"pending"`
}

// Record is a provisioning run for one tenant. It is polled by clients
// while the worker advances it.
type Record struct {
	ID                    uuid.UUID        `json:"id"`
	TenantID              uuid.UUID        `json:"tenant_id"`
	TemplateID            string           `json:"template_id,omitempty"`
	Status                RunStatus        `json:"status"`
	Steps                 []StepState      `json:"steps"`
	CurrentStep           int              `json:"current_step"`
	Resources             ResourceTracking `json:"resources"`
	StartedAt             time.Time        `json:"started_at"`
	EstimatedCompletionAt time.Time        `json:"estimated_completion_at"`
	CompletedAt           *time.Time       `json:"completed_at,omitempty"`
	UpdatedAt             time.Time        `json:"updated_at"`
	Errors                []string         `json:"errors"`
}

// Step returns the state of the step with the given id.
func (r *Record) Step(id string) (*StepState, bool) {
	for i := range r.Steps {
		if r.Steps[i].ID == id {
			return &r.Steps[i], true
		}
	}
	return nil, false
}

// Clone returns a deep copy.
func (r *Record) Clone() (*Record, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("provisioning: clone record %s: %w", r.ID, err)
	}
	var cp Record
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("provisioning: clone record %s: %w", r.ID, err)
	}
	return &cp, nil
}

func (r *Record) markCreated(stepID string) {
	r.Resources.Pending = slices.DeleteFunc(r.Resources.Pending, func(id string) bool { return id == stepID })
	r.Resources.Created = append(r.Resources.Created, stepID)
}

func (r *Record) markFailed(stepID string) {
	r.Resources.Pending = slices.DeleteFunc(r.Resources.Pending, func(id string) bool { return id == stepID })
	r.Resources.Failed = append(r.Resources.Failed, stepID)
}

// RecordStore persists provisioning records.
type RecordStore interface {
	CreateRecord(ctx context.Context, r *Record) error

	// UpdateRecord returns ErrRecordNotFound for unknown ids.
	UpdateRecord(ctx context.Context, r *Record) error

	Record(ctx context.Context, id uuid.UUID) (*Record, error)

	// LatestRecord returns the most recently started run for the tenant.
	LatestRecord(ctx context.Context, tenantID uuid.UUID) (*Record, error)
}

// MemoryRecords is an in-process RecordStore.
type MemoryRecords struct {
	mu      sync.RWMutex
	records map[uuid.UUID]*Record
}

func NewMemoryRecords() *MemoryRecords {
	return &MemoryRecords{records: make(map[uuid.UUID]*Record)}
}

func (m *MemoryRecords) CreateRecord(_ context.Context, r *Record) error {
	cp, err := r.Clone()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[r.ID] = cp
	return nil
}

func (m *MemoryRecords) UpdateRecord(_ context.Context, r *Record) error {
	cp, err := r.Clone()
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[r.ID]; !ok {
		return ErrRecordNotFound
	}
	m.records[r.ID] = cp
	return nil
}

func (m *MemoryRecords) Record(_ context.Context, id uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.records[id]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return r.Clone()
}

func (m *MemoryRecords) LatestRecord(_ context.Context, tenantID uuid.UUID) (*Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var latest *Record
	for _, r := range m.records {
		if r.TenantID != tenantID {
			continue
		}
		if latest == nil || r.StartedAt.After(latest.StartedAt) {
			latest = r
		}
	}
	if latest == nil {
		return nil, ErrRecordNotFound
	}
	return latest.Clone()
}
