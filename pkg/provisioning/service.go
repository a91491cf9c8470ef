package provisioning

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/tenant"
)

// Service manages the tenant lifecycle: creation with defaults and
// templates, updates, deletion and the provisioning runs that move a
// tenant from pending_setup to active.
type Service struct {
	store            tenant.Store
	records          RecordStore
	templates        TemplateStore
	enqueuer         Enqueuer
	contexts         *tenant.ContextCache
	builder          tenant.ContextBuilder
	isolator         Isolator
	metrics          Metrics
	plan             *Plan
	cfg              Config
	resourceDefaults tenant.Overrides
	now              func() time.Time
	log              *slog.Logger
}

// NewService creates a Service. The default isolation mode in the
// config must be a known mode.
func NewService(store tenant.Store, records RecordStore, opts ...Option) (*Service, error) {
	s := &Service{
		store:   store,
		records: records,
		metrics: nopMetrics{},
		plan:    DefaultPlan(),
		cfg:     DefaultConfig(),
		now:     time.Now,
		log:     logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.builder == nil {
		s.builder = tenant.NewBuilder(store)
	}
	if s.contexts == nil {
		s.contexts = tenant.NewContextCache()
	}
	if _, err := tenant.ParseMode(s.cfg.DefaultIsolation); err != nil {
		return nil, fmt.Errorf("provisioning: default isolation: %w", err)
	}
	return s, nil
}

// CreateInput describes a new tenant. Settings, Isolation and Resources
// are partial documents merged over the defaults and the template.
type CreateInput struct {
	Name       string           `json:"name"`
	Domain     string           `json:"domain"`
	Subdomain  string           `json:"subdomain,omitempty"`
	Plan       tenant.Plan      `json:"plan"`
	Settings   tenant.Overrides `json:"settings,omitempty"`
	Isolation  tenant.Overrides `json:"isolation,omitempty"`
	Resources  tenant.Overrides `json:"resources,omitempty"`
	CreatedBy  string           `json:"created_by"`
	TemplateID string           `json:"template_id,omitempty"`
	ParentID   *uuid.UUID       `json:"parent_id,omitempty"`
}

func (in CreateInput) validate() error {
	var missing []string
	if strings.TrimSpace(in.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(in.Domain) == "" {
		missing = append(missing, "domain")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrInvalidInput, strings.Join(missing, ", "))
	}
	if !in.Plan.Valid() {
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, in.Plan)
	}
	return nil
}

// Create stores a pending_setup tenant and starts its provisioning run.
// It returns the tenant and the provisioning record id. A failure to
// enqueue the run is logged; the record stays pending and can be retried.
func (s *Service) Create(ctx context.Context, in CreateInput) (*tenant.Tenant, uuid.UUID, error) {
	if in.Plan == "" {
		in.Plan = tenant.PlanStarter
	}
	if err := in.validate(); err != nil {
		return nil, uuid.Nil, err
	}
	in.Domain = strings.ToLower(strings.TrimSpace(in.Domain))
	in.Subdomain = strings.ToLower(strings.TrimSpace(in.Subdomain))

	if err := s.checkDomain(ctx, in.Domain, in.Subdomain); err != nil {
		return nil, uuid.Nil, err
	}

	var parent *tenant.Tenant
	if in.ParentID != nil {
		p, err := s.store.Get(ctx, *in.ParentID)
		if err != nil {
			return nil, uuid.Nil, fmt.Errorf("provisioning: parent tenant %s: %w", in.ParentID, err)
		}
		parent = p
	}

	tpl, err := s.template(ctx, in.TemplateID)
	if err != nil {
		return nil, uuid.Nil, err
	}

	t, err := s.assemble(in, tpl)
	if err != nil {
		return nil, uuid.Nil, err
	}

	if err := s.store.Create(ctx, t); err != nil {
		return nil, uuid.Nil, fmt.Errorf("provisioning: create tenant: %w", err)
	}
	s.log.InfoContext(ctx, "tenant created",
		logger.TenantID(t.ID.String()),
		slog.String("domain", t.Domain),
		slog.String("plan", string(t.Plan)),
		slog.String("created_by", t.CreatedBy),
	)

	if parent != nil {
		if err := s.linkChild(ctx, parent, t.ID); err != nil {
			return nil, uuid.Nil, err
		}
	}

	rec, err := s.startProvisioning(ctx, t)
	if err != nil {
		return nil, uuid.Nil, err
	}
	return t, rec.ID, nil
}

func (s *Service) checkDomain(ctx context.Context, domain, subdomain string) error {
	_, err := s.store.GetByDomain(ctx, domain, subdomain)
	switch {
	case err == nil:
		return tenant.ErrDomainTaken
	case errors.Is(err, tenant.ErrTenantNotFound):
		return nil
	default:
		return fmt.Errorf("provisioning: check domain: %w", err)
	}
}

// template loads the template by id. A missing template is logged and
// treated as no template.
func (s *Service) template(ctx context.Context, id string) (*tenant.Template, error) {
	if id == "" || s.templates == nil {
		return nil, nil
	}
	tpl, err := s.templates.Template(ctx, id)
	if errors.Is(err, ErrTemplateNotFound) {
		s.log.WarnContext(ctx, "template not found, using defaults", slog.String("template_id", id))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("provisioning: load template %q: %w", id, err)
	}
	return tpl, nil
}

// assemble merges defaults < template < request into a new tenant record.
func (s *Service) assemble(in CreateInput, tpl *tenant.Template) (*tenant.Tenant, error) {
	mode, err := tenant.ParseMode(s.cfg.DefaultIsolation)
	if err != nil {
		return nil, err
	}
	var tplSettings, tplIsolation, tplResources tenant.Overrides
	if tpl != nil {
		tplSettings, tplIsolation, tplResources = tpl.Settings, tpl.Isolation, tpl.Resources
	}

	now := s.now().UTC()
	settings, err := tenant.Merge(DefaultSettings(), tplSettings, in.Settings)
	if err != nil {
		return nil, fmt.Errorf("%w: settings: %w", ErrInvalidInput, err)
	}
	iso, err := tenant.Merge(DefaultIsolation(mode, now), tplIsolation, in.Isolation)
	if err != nil {
		return nil, fmt.Errorf("%w: isolation: %w", ErrInvalidInput, err)
	}
	resources, err := tenant.Merge(DefaultResources(), s.resourceDefaults, tplResources, in.Resources)
	if err != nil {
		return nil, fmt.Errorf("%w: resources: %w", ErrInvalidInput, err)
	}

	return &tenant.Tenant{
		ID:        uuid.New(),
		Name:      strings.TrimSpace(in.Name),
		Domain:    in.Domain,
		Subdomain: in.Subdomain,
		Status:    tenant.StatusPendingSetup,
		Plan:      in.Plan,
		Settings:  settings,
		Isolation: iso,
		Resources: resources,
		Billing:   NewBilling(in.Plan, now),
		CreatedAt: now,
		UpdatedAt: now,
		CreatedBy: in.CreatedBy,
		ParentID:  in.ParentID,
		ChildIDs:  []uuid.UUID{},
	}, nil
}

func (s *Service) linkChild(ctx context.Context, parent *tenant.Tenant, childID uuid.UUID) error {
	parent.ChildIDs = append(parent.ChildIDs, childID)
	parent.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, parent); err != nil {
		return fmt.Errorf("provisioning: link child to parent %s: %w", parent.ID, err)
	}
	s.invalidate(parent.ID)
	return nil
}

func (s *Service) unlinkChild(ctx context.Context, parentID, childID uuid.UUID) error {
	parent, err := s.store.Get(ctx, parentID)
	if errors.Is(err, tenant.ErrTenantNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("provisioning: load parent %s: %w", parentID, err)
	}
	parent.ChildIDs = slices.DeleteFunc(parent.ChildIDs, func(id uuid.UUID) bool { return id == childID })
	parent.UpdatedAt = s.now().UTC()
	if err := s.store.Update(ctx, parent); err != nil {
		return fmt.Errorf("provisioning: unlink child from parent %s: %w", parentID, err)
	}
	s.invalidate(parentID)
	return nil
}

// Get returns the tenant by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	return s.store.Get(ctx, id)
}

// GetByDomain returns the tenant registered for domain and subdomain.
func (s *Service) GetByDomain(ctx context.Context, domain, subdomain string) (*tenant.Tenant, error) {
	return s.store.GetByDomain(ctx, strings.ToLower(domain), strings.ToLower(subdomain))
}

// Patch lists the fields to change. Nil fields are left alone; overrides
// are merged into the current values.
type Patch struct {
	Name      *string          `json:"name,omitempty"`
	Domain    *string          `json:"domain,omitempty"`
	Subdomain *string          `json:"subdomain,omitempty"`
	Status    *tenant.Status   `json:"status,omitempty"`
	Plan      *tenant.Plan     `json:"plan,omitempty"`
	Settings  tenant.Overrides `json:"settings,omitempty"`
	Isolation tenant.Overrides `json:"isolation,omitempty"`
	Resources tenant.Overrides `json:"resources,omitempty"`
}

func (p Patch) apply(t *tenant.Tenant) error {
	if p.Name != nil {
		if strings.TrimSpace(*p.Name) == "" {
			return fmt.Errorf("%w: empty name", ErrInvalidInput)
		}
		t.Name = strings.TrimSpace(*p.Name)
	}
	if p.Domain != nil {
		if strings.TrimSpace(*p.Domain) == "" {
			return fmt.Errorf("%w: empty domain", ErrInvalidInput)
		}
		t.Domain = strings.ToLower(strings.TrimSpace(*p.Domain))
	}
	if p.Subdomain != nil {
		t.Subdomain = strings.ToLower(strings.TrimSpace(*p.Subdomain))
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			return fmt.Errorf("%w: unknown status %q", ErrInvalidInput, *p.Status)
		}
		t.Status = *p.Status
	}
	if p.Plan != nil {
		if !p.Plan.Valid() {
			return fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, *p.Plan)
		}
		t.Plan = *p.Plan
		t.Billing.Plan = *p.Plan
		t.Billing.Amount = planPricing[*p.Plan]
	}

	var err error
	if t.Settings, err = tenant.Merge(t.Settings, p.Settings); err != nil {
		return fmt.Errorf("%w: settings: %w", ErrInvalidInput, err)
	}
	if t.Isolation, err = tenant.Merge(t.Isolation, p.Isolation); err != nil {
		return fmt.Errorf("%w: isolation: %w", ErrInvalidInput, err)
	}
	if t.Resources, err = tenant.Merge(t.Resources, p.Resources); err != nil {
		return fmt.Errorf("%w: resources: %w", ErrInvalidInput, err)
	}
	return nil
}

// Update applies the patch, persists the tenant and drops every cached
// tenant Context.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p Patch) (*tenant.Tenant, error) {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := p.apply(t); err != nil {
		return nil, err
	}
	t.UpdatedAt = s.now().UTC()

	if err := s.store.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("provisioning: update tenant %s: %w", id, err)
	}
	s.invalidate(id)

	s.log.InfoContext(ctx, "tenant updated", logger.TenantID(id.String()), slog.String("status", string(t.Status)))
	return t, nil
}

// Delete archives the tenant, or with hard removes its isolated resources
// and the record. Tenants with children are refused with ErrHasChildren.
func (s *Service) Delete(ctx context.Context, id uuid.UUID, hard bool) error {
	t, err := s.store.Get(ctx, id)
	if err != nil {
		return err
	}

	children, err := s.store.ListChildren(ctx, id)
	if err != nil {
		return fmt.Errorf("provisioning: list children of %s: %w", id, err)
	}
	if len(children) > 0 || len(t.ChildIDs) > 0 {
		return ErrHasChildren
	}

	if !hard {
		archived := tenant.StatusArchived
		_, err := s.Update(ctx, id, Patch{Status: &archived})
		return err
	}

	if s.isolator != nil {
		if err := s.isolator.Cleanup(ctx, t); err != nil {
			return fmt.Errorf("provisioning: clean up tenant %s: %w", id, err)
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return fmt.Errorf("provisioning: delete tenant %s: %w", id, err)
	}
	if t.ParentID != nil {
		if err := s.unlinkChild(ctx, *t.ParentID, id); err != nil {
			s.log.ErrorContext(ctx, "failed to unlink deleted tenant from parent", logger.TenantID(id.String()), logger.Error(err))
		}
	}
	s.invalidate(id)

	s.log.InfoContext(ctx, "tenant deleted", logger.TenantID(id.String()), slog.Bool("hard", hard))
	return nil
}

// invalidate drops the tenant's cached contexts and then the whole cache,
// since other tenants' contexts may embed a stale parent or child.
func (s *Service) invalidate(id uuid.UUID) {
	s.contexts.Invalidate(id.String())
	s.contexts.InvalidateAll()
}

// BuildContext returns the cached tenant Context for the pair, building
// it on a miss.
func (s *Service) BuildContext(ctx context.Context, tenantID, userID string) (*tenant.Context, error) {
	return s.contexts.GetOrBuild(ctx, tenantID, userID, func(ctx context.Context) (*tenant.Context, error) {
		return s.builder.Build(ctx, tenantID, userID)
	})
}

// ProvisioningStatus returns the provisioning record by id.
func (s *Service) ProvisioningStatus(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.records.Record(ctx, id)
}

// LatestProvisioning returns the tenant's most recent provisioning record.
func (s *Service) LatestProvisioning(ctx context.Context, tenantID uuid.UUID) (*Record, error) {
	return s.records.LatestRecord(ctx, tenantID)
}
