package provisioning

import (
	"context"
	"fmt"
	"slices"
)

// StepKind is a provisioning step. The set is closed; executors implement
// StepVisitor and so must handle every kind.
type StepKind interface {
	fmt.Stringer
	Accept(ctx context.Context, v StepVisitor) error
	stepKind()
}

// StepVisitor has one method per step kind.
type StepVisitor interface {
	ValidateConfig(ctx context.Context) error
	SetupDatabase(ctx context.Context) error
	SetupStorage(ctx context.Context) error
	SetupCache(ctx context.Context) error
	ApplySettings(ctx context.Context) error
	SetupMonitoring(ctx context.Context) error
	ValidateDeployment(ctx context.Context) error
}

type (
	validateConfig     struct{}
	setupDatabase      struct{}
	setupStorage       struct{}
	setupCache         struct{}
	applySettings      struct{}
	setupMonitoring    struct{}
	validateDeployment struct{}
)

var (
	ValidateConfig     StepKind = validateConfig{}
	SetupDatabase      StepKind = setupDatabase{}
	SetupStorage       StepKind = setupStorage{}
	SetupCache         StepKind = setupCache{}
	ApplySettings      StepKind = applySettings{}
	SetupMonitoring    StepKind = setupMonitoring{}
	ValidateDeployment StepKind = validateDeployment{}
)

func (validateConfig) String() string     { return "validate_config" }
func (setupDatabase) String() string      { return "setup_database" }
func (setupStorage) String() string       { return "setup_storage" }
func (setupCache) String() string         { return "setup_cache" }
func (applySettings) String() string      { return "apply_settings" }
func (setupMonitoring) String() string    { return "setup_monitoring" }
func (validateDeployment) String() string { return "validate_deployment" }

func (validateConfig) Accept(ctx context.Context, v StepVisitor) error     { return v.ValidateConfig(ctx) }
func (setupDatabase) Accept(ctx context.Context, v StepVisitor) error      { return v.SetupDatabase(ctx) }
func (setupStorage) Accept(ctx context.Context, v StepVisitor) error       { return v.SetupStorage(ctx) }
func (setupCache) Accept(ctx context.Context, v StepVisitor) error         { return v.SetupCache(ctx) }
func (applySettings) Accept(ctx context.Context, v StepVisitor) error      { return v.ApplySettings(ctx) }
func (setupMonitoring) Accept(ctx context.Context, v StepVisitor) error    { return v.SetupMonitoring(ctx) }
func (validateDeployment) Accept(ctx context.Context, v StepVisitor) error { return v.ValidateDeployment(ctx) }

func (validateConfig) stepKind()     {}
func (setupDatabase) stepKind()      {}
func (setupStorage) stepKind()       {}
func (setupCache) stepKind()         {}
func (applySettings) stepKind()      {}
func (setupMonitoring) stepKind()    {}
func (validateDeployment) stepKind() {}

// StepSpec declares a step of a plan.
type StepSpec struct {
	Kind         StepKind
	Name         string
	Description  string
	MaxRetries   int
	Dependencies []string
}

// ID is the kind name.
func (s StepSpec) ID() string { return s.Kind.String() }

// Plan is an ordered, validated list of steps. Steps run sequentially in
// list order.
type Plan struct {
	steps []StepSpec
}

// NewPlan validates that step ids are unique and that every dependency
// names an earlier step.
func NewPlan(specs ...StepSpec) (*Plan, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("%w: no steps", ErrInvalidPlan)
	}

	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if s.Kind == nil {
			return nil, fmt.Errorf("%w: step %q has no kind", ErrInvalidPlan, s.Name)
		}
		if seen[s.ID()] {
			return nil, fmt.Errorf("%w: duplicate step %q", ErrInvalidPlan, s.ID())
		}
		if s.MaxRetries < 0 {
			return nil, fmt.Errorf("%w: step %q has negative retries", ErrInvalidPlan, s.ID())
		}
		for _, dep := range s.Dependencies {
			if !seen[dep] {
				return nil, fmt.Errorf("%w: step %q depends on %q which does not run before it", ErrInvalidPlan, s.ID(), dep)
			}
		}
		seen[s.ID()] = true
	}
	return &Plan{steps: slices.Clone(specs)}, nil
}

// DefaultPlan is the standard seven-step tenant setup.
func DefaultPlan() *Plan {
	p, err := NewPlan(
		StepSpec{
			Kind:        ValidateConfig,
			Name:        "Validate Configuration",
			Description: "Validate tenant configuration and settings",
			MaxRetries:  3,
		},
		StepSpec{
			Kind:         SetupDatabase,
			Name:         "Setup Database",
			Description:  "Create database schema and tables",
			MaxRetries:   3,
			Dependencies: []string{"validate_config"},
		},
		StepSpec{
			Kind:         SetupStorage,
			Name:         "Setup Storage",
			Description:  "Create storage buckets and configure access",
			MaxRetries:   3,
			Dependencies: []string{"validate_config"},
		},
		StepSpec{
			Kind:         SetupCache,
			Name:         "Setup Cache",
			Description:  "Configure cache namespaces and keys",
			MaxRetries:   2,
			Dependencies: []string{"validate_config"},
		},
		StepSpec{
			Kind:         ApplySettings,
			Name:         "Apply Settings",
			Description:  "Apply tenant-specific settings and configurations",
			MaxRetries:   3,
			Dependencies: []string{"setup_database", "setup_storage"},
		},
		StepSpec{
			Kind:         SetupMonitoring,
			Name:         "Setup Monitoring",
			Description:  "Configure monitoring and alerting",
			MaxRetries:   2,
			Dependencies: []string{"apply_settings"},
		},
		StepSpec{
			Kind:         ValidateDeployment,
			Name:         "Validate Deployment",
			Description:  "Run validation tests and health checks",
			MaxRetries:   2,
			Dependencies: []string{"setup_monitoring"},
		},
	)
	if err != nil {
		panic(err)
	}
	return p
}

// Steps returns a copy of the step list.
func (p *Plan) Steps() []StepSpec {
	return slices.Clone(p.steps)
}

// Kind returns the kind registered under id.
func (p *Plan) Kind(id string) (StepKind, bool) {
	for _, s := range p.steps {
		if s.ID() == id {
			return s.Kind, true
		}
	}
	return nil, false
}

// states returns fresh pending step states for a new record.
func (p *Plan) states() []StepState {
	out := make([]StepState, 0, len(p.steps))
	for _, s := range p.steps {
		out = append(out, StepState{
			ID:           s.ID(),
			Name:         s.Name,
			Description:  s.Description,
			Status:       StepPending,
			Dependencies: slices.Clone(s.Dependencies),
			MaxRetries:   s.MaxRetries,
		})
	}
	return out
}

func (p *Plan) ids() []string {
	out := make([]string, 0, len(p.steps))
	for _, s := range p.steps {
		out = append(out, s.ID())
	}
	return out
}
