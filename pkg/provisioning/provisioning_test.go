package provisioning_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/courtlens/tenancy/pkg/provisioning"
	"github.com/courtlens/tenancy/pkg/queue"
	"github.com/courtlens/tenancy/pkg/tenant"
)

type pingConn struct{ err error }

func (c pingConn) Ping(context.Context) error { return c.err }

func (pingConn) Release() {}

// fakeIsolator fails a setup method failures[name] times before succeeding.
type fakeIsolator struct {
	mu       sync.Mutex
	failures map[string]int
	calls    map[string]int
	cleaned  []uuid.UUID
	pingErr  error
	// onCache runs after a successful SetupCache, mid-run.
	onCache func(t *tenant.Tenant)
}

func newFakeIsolator() *fakeIsolator {
	return &fakeIsolator{failures: map[string]int{}, calls: map[string]int{}}
}

func (f *fakeIsolator) attempt(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	if f.failures[name] > 0 {
		f.failures[name]--
		return errors.New(name + " unavailable")
	}
	return nil
}

func (f *fakeIsolator) Calls(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeIsolator) SetupDatabase(_ context.Context, t *tenant.Tenant) (tenant.DatabaseConfig, error) {
	if err := f.attempt("database"); err != nil {
		return tenant.DatabaseConfig{}, err
	}
	cfg := t.Isolation.Database
	cfg.Schema = "tenant_" + t.ID.String()
	return cfg, nil
}

func (f *fakeIsolator) SetupStorage(_ context.Context, t *tenant.Tenant) (tenant.StorageConfig, error) {
	if err := f.attempt("storage"); err != nil {
		return tenant.StorageConfig{}, err
	}
	return tenant.StorageConfig{Bucket: "tenant-" + t.ID.String(), Path: "tenants/" + t.ID.String(), Encryption: true}, nil
}

func (f *fakeIsolator) SetupCache(_ context.Context, t *tenant.Tenant) (tenant.CacheConfig, error) {
	if err := f.attempt("cache"); err != nil {
		return tenant.CacheConfig{}, err
	}
	if f.onCache != nil {
		f.onCache(t)
	}
	return tenant.CacheConfig{KeyPrefix: "tenant:" + t.ID.String() + ":", Namespace: t.ID.String()}, nil
}

func (f *fakeIsolator) Cleanup(_ context.Context, t *tenant.Tenant) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleaned = append(f.cleaned, t.ID)
	return nil
}

func (f *fakeIsolator) Connection(context.Context, *tenant.Context) (tenant.Connection, error) {
	return pingConn{err: f.pingErr}, nil
}

type recordingEnqueuer struct {
	mu   sync.Mutex
	jobs []provisioning.ProvisionTenant
	err  error
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, payload any, _ ...queue.EnqueueOption) (uuid.UUID, error) {
	if e.err != nil {
		return uuid.Nil, e.err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.jobs = append(e.jobs, payload.(provisioning.ProvisionTenant))
	return uuid.New(), nil
}

type recordingMetrics struct {
	mu         sync.Mutex
	registered []string
	runs       []provisioning.RunStatus
}

func (m *recordingMetrics) RegisterTenant(id, _ string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registered = append(m.registered, id)
}

func (m *recordingMetrics) StepFinished(string, bool, time.Duration) {}

func (m *recordingMetrics) RunFinished(s provisioning.RunStatus, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append(m.runs, s)
}

type fixture struct {
	svc      *provisioning.Service
	store    *tenant.MemoryStore
	records  *provisioning.MemoryRecords
	iso      *fakeIsolator
	enqueuer *recordingEnqueuer
	metrics  *recordingMetrics
	contexts *tenant.ContextCache
}

func newFixture(t *testing.T, opts ...provisioning.Option) *fixture {
	t.Helper()
	f := &fixture{
		store:    tenant.NewMemoryStore(),
		records:  provisioning.NewMemoryRecords(),
		iso:      newFakeIsolator(),
		enqueuer: &recordingEnqueuer{},
		metrics:  &recordingMetrics{},
		contexts: tenant.NewContextCache(),
	}
	base := []provisioning.Option{
		provisioning.WithIsolator(f.iso),
		provisioning.WithEnqueuer(f.enqueuer),
		provisioning.WithMetrics(f.metrics),
		provisioning.WithContextCache(f.contexts),
	}
	svc, err := provisioning.NewService(f.store, f.records, append(base, opts...)...)
	require.NoError(t, err)
	f.svc = svc
	return f
}

func (f *fixture) create(t *testing.T, in provisioning.CreateInput) (*tenant.Tenant, uuid.UUID) {
	t.Helper()
	created, recID, err := f.svc.Create(context.Background(), in)
	require.NoError(t, err)
	return created, recID
}

func acme() provisioning.CreateInput {
	return provisioning.CreateInput{Name: "Acme Law", Domain: "acme.com", Plan: tenant.PlanProfessional, CreatedBy: "admin"}
}

func TestDefaultPlan(t *testing.T) {
	t.Parallel()

	steps := provisioning.DefaultPlan().Steps()
	ids := make([]string, 0, len(steps))
	retries := map[string]int{}
	for _, s := range steps {
		ids = append(ids, s.ID())
		retries[s.ID()] = s.MaxRetries
	}
	assert.Equal(t, []string{
		"validate_config", "setup_database", "setup_storage", "setup_cache",
		"apply_settings", "setup_monitoring", "validate_deployment",
	}, ids)
	assert.Equal(t, 2, retries["setup_cache"])
	assert.Equal(t, 3, retries["apply_settings"])
}

func TestNewPlan(t *testing.T) {
	t.Parallel()

	t.Run("dependency on a later step", func(t *testing.T) {
		t.Parallel()
		_, err := provisioning.NewPlan(
			provisioning.StepSpec{Kind: provisioning.SetupDatabase, Dependencies: []string{"validate_config"}},
			provisioning.StepSpec{Kind: provisioning.ValidateConfig},
		)
		assert.ErrorIs(t, err, provisioning.ErrInvalidPlan)
	})

	t.Run("duplicate step", func(t *testing.T) {
		t.Parallel()
		_, err := provisioning.NewPlan(
			provisioning.StepSpec{Kind: provisioning.ValidateConfig},
			provisioning.StepSpec{Kind: provisioning.ValidateConfig},
		)
		assert.ErrorIs(t, err, provisioning.ErrInvalidPlan)
	})

	t.Run("empty", func(t *testing.T) {
		t.Parallel()
		_, err := provisioning.NewPlan()
		assert.ErrorIs(t, err, provisioning.ErrInvalidPlan)
	})
}

func TestCreate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("applies defaults and enqueues provisioning", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		created, recID := f.create(t, acme())

		assert.Equal(t, tenant.StatusPendingSetup, created.Status)
		assert.Equal(t, "#3B82F6", created.Settings.Branding.PrimaryColor)
		assert.Equal(t, 8, created.Settings.Security.PasswordPolicy.MinLength)
		assert.Equal(t, tenant.SharedDatabase, created.Isolation.Mode)
		assert.Regexp(t, `^tenant_\d+_$`, created.Isolation.Database.TablePrefix)
		assert.Equal(t, "tenant-storage", created.Isolation.Storage.Bucket)
		assert.Equal(t, 10, created.Resources.Database.Connections.Limit)
		assert.Equal(t, 99, created.Billing.Amount)
		assert.Equal(t, "pending", created.Billing.PaymentMethod)

		rec, err := f.svc.ProvisioningStatus(ctx, recID)
		require.NoError(t, err)
		assert.Equal(t, provisioning.RunPending, rec.Status)
		assert.Len(t, rec.Steps, 7)
		assert.Len(t, rec.Resources.Pending, 7)

		require.Len(t, f.enqueuer.jobs, 1)
		assert.Equal(t, recID, f.enqueuer.jobs[0].ProvisioningID)
	})

	t.Run("merges template then request", func(t *testing.T) {
		t.Parallel()
		templates := provisioning.NewMemoryTemplates(tenant.Template{
			ID:        "firm",
			Isolation: tenant.Overrides{"type": "separate_schema"},
			Settings:  tenant.Overrides{"branding": map[string]any{"primary_color": "#000000", "secondary_color": "#111111"}},
			Resources: tenant.Overrides{"users": map[string]any{"limit": 50}},
		})
		f := newFixture(t, provisioning.WithTemplates(templates))

		in := acme()
		in.TemplateID = "firm"
		in.Settings = tenant.Overrides{"branding": map[string]any{"primary_color": "#FFFFFF"}}
		created, _ := f.create(t, in)

		assert.Equal(t, tenant.SeparateSchema, created.Isolation.Mode)
		assert.Equal(t, "#FFFFFF", created.Settings.Branding.PrimaryColor)
		assert.Equal(t, "#111111", created.Settings.Branding.SecondaryColor)
		assert.Equal(t, 50, created.Resources.Users.Limit)
		assert.Equal(t, 60, created.Resources.API.RateLimit.PerMinute)
	})

	t.Run("missing template falls back to defaults", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t, provisioning.WithTemplates(provisioning.NewMemoryTemplates()))
		in := acme()
		in.TemplateID = "nope"
		created, _ := f.create(t, in)
		assert.Equal(t, tenant.SharedDatabase, created.Isolation.Mode)
	})

	t.Run("duplicate domain is refused before persisting", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.create(t, acme())

		_, _, err := f.svc.Create(ctx, acme())
		assert.ErrorIs(t, err, tenant.ErrDomainTaken)
		assert.Len(t, f.enqueuer.jobs, 1)
	})

	t.Run("invalid input", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, _, err := f.svc.Create(ctx, provisioning.CreateInput{Domain: "x.com"})
		assert.ErrorIs(t, err, provisioning.ErrInvalidInput)

		_, _, err = f.svc.Create(ctx, provisioning.CreateInput{Name: "x", Domain: "x.com", Plan: "gold"})
		assert.ErrorIs(t, err, provisioning.ErrInvalidInput)
	})

	t.Run("links child to parent", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		parent, _ := f.create(t, acme())

		in := acme()
		in.Subdomain = "branch"
		in.ParentID = &parent.ID
		child, _ := f.create(t, in)

		got, err := f.svc.Get(ctx, parent.ID)
		require.NoError(t, err)
		assert.Equal(t, []uuid.UUID{child.ID}, got.ChildIDs)
	})

	t.Run("enqueue failure is not returned", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.enqueuer.err = errors.New("queue down")

		created, recID := f.create(t, acme())
		assert.NotEqual(t, uuid.Nil, recID)
		assert.Equal(t, tenant.StatusPendingSetup, created.Status)
	})
}

func TestProvision(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("activates tenant when every step succeeds", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		created, recID := f.create(t, acme())

		_, err := f.svc.BuildContext(ctx, created.ID.String(), "")
		require.NoError(t, err)
		require.Equal(t, 1, f.contexts.Len())

		require.NoError(t, f.svc.Provision(ctx, recID))

		got, err := f.svc.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusActive, got.Status)
		assert.Equal(t, "tenant_"+created.ID.String(), got.Isolation.Database.Schema)
		assert.Equal(t, "tenants/"+created.ID.String(), got.Isolation.Storage.Path)
		assert.Equal(t, created.ID.String(), got.Isolation.Cache.Namespace)
		assert.Zero(t, f.contexts.Len())

		rec, err := f.svc.ProvisioningStatus(ctx, recID)
		require.NoError(t, err)
		assert.Equal(t, provisioning.RunCompleted, rec.Status)
		assert.NotNil(t, rec.CompletedAt)
		assert.Empty(t, rec.Resources.Pending)
		assert.Len(t, rec.Resources.Created, 7)
		for _, s := range rec.Steps {
			assert.Equal(t, provisioning.StepCompleted, s.Status, s.ID)
		}
		assert.Equal(t, []string{created.ID.String()}, f.metrics.registered)
		assert.Equal(t, []provisioning.RunStatus{provisioning.RunCompleted}, f.metrics.runs)
	})

	t.Run("retries a step until it succeeds", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.iso.failures["storage"] = 2
		created, recID := f.create(t, acme())

		require.NoError(t, f.svc.Provision(ctx, recID))
		assert.Equal(t, 3, f.iso.Calls("storage"))

		rec, err := f.svc.LatestProvisioning(ctx, created.ID)
		require.NoError(t, err)
		step, ok := rec.Step("setup_storage")
		require.True(t, ok)
		assert.Equal(t, 2, step.RetryCount)
		assert.Equal(t, provisioning.StepCompleted, step.Status)
	})

	t.Run("fails after max retries and leaves status unchanged", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.iso.failures["cache"] = 100
		created, recID := f.create(t, acme())

		err := f.svc.Provision(ctx, recID)
		require.ErrorIs(t, err, provisioning.ErrStepFailed)
		assert.Equal(t, 3, f.iso.Calls("cache"))

		got, err := f.svc.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusPendingSetup, got.Status)

		rec, err := f.svc.ProvisioningStatus(ctx, recID)
		require.NoError(t, err)
		assert.Equal(t, provisioning.RunFailed, rec.Status)
		assert.Equal(t, []string{"setup_cache"}, rec.Resources.Failed)
		assert.Contains(t, rec.Resources.Pending, "apply_settings")
		require.Len(t, rec.Errors, 1)
		assert.Contains(t, rec.Errors[0], "cache unavailable")

		step, _ := rec.Step("setup_cache")
		assert.Equal(t, provisioning.StepFailed, step.Status)
		assert.Equal(t, 2, step.RetryCount)
	})

	t.Run("deployment validation pings the connection", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.iso.pingErr = errors.New("refused")
		_, recID := f.create(t, acme())

		err := f.svc.Provision(ctx, recID)
		require.ErrorIs(t, err, provisioning.ErrDeploymentInvalid)
	})

	t.Run("tenant archived during the run stays archived", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.iso.onCache = func(tn *tenant.Tenant) {
			archived := tenant.StatusArchived
			_, err := f.svc.Update(ctx, tn.ID, provisioning.Patch{Status: &archived})
			require.NoError(t, err)
		}
		created, recID := f.create(t, acme())

		require.NoError(t, f.svc.Provision(ctx, recID))

		got, err := f.svc.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusArchived, got.Status)
		assert.Equal(t, "tenant_"+created.ID.String(), got.Isolation.Database.Schema)

		rec, err := f.svc.ProvisioningStatus(ctx, recID)
		require.NoError(t, err)
		assert.Equal(t, provisioning.RunCompleted, rec.Status)
	})

	t.Run("settings changed during the run are kept", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		f.iso.onCache = func(tn *tenant.Tenant) {
			name := "Acme LLP"
			_, err := f.svc.Update(ctx, tn.ID, provisioning.Patch{
				Name:     &name,
				Settings: tenant.Overrides{"notifications": map[string]any{"sms": true}},
			})
			require.NoError(t, err)
		}
		created, recID := f.create(t, acme())
		require.False(t, created.Settings.Notifications.SMS)

		require.NoError(t, f.svc.Provision(ctx, recID))

		got, err := f.svc.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.True(t, got.Settings.Notifications.SMS)
		assert.Equal(t, "Acme LLP", got.Name)
		assert.Equal(t, tenant.StatusActive, got.Status)
		assert.Equal(t, created.ID.String(), got.Isolation.Cache.Namespace)
	})

	t.Run("finished run is not executed again", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, recID := f.create(t, acme())
		require.NoError(t, f.svc.Provision(ctx, recID))
		require.NoError(t, f.svc.Provision(ctx, recID))
		assert.Equal(t, 1, f.iso.Calls("database"))
	})

	t.Run("runs from the job queue", func(t *testing.T) {
		t.Parallel()
		storage := queue.NewMemoryStorage()
		enq, err := queue.NewEnqueuer(storage)
		require.NoError(t, err)

		store := tenant.NewMemoryStore()
		svc, err := provisioning.NewService(store, provisioning.NewMemoryRecords(),
			provisioning.WithEnqueuer(enq),
			provisioning.WithIsolator(newFakeIsolator()),
		)
		require.NoError(t, err)

		worker, err := queue.NewWorker(storage, queue.WithQueues(provisioning.DefaultConfig().Queue))
		require.NoError(t, err)
		worker.RegisterHandlers(svc.Handler())

		created, _, err := svc.Create(ctx, acme())
		require.NoError(t, err)

		claimed, err := worker.ProcessNext(ctx)
		require.NoError(t, err)
		assert.True(t, claimed)

		got, err := svc.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusActive, got.Status)
	})
}

func TestUpdate(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("merges patch and clears context cache", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		created, _ := f.create(t, acme())
		_, err := f.svc.BuildContext(ctx, created.ID.String(), "u1")
		require.NoError(t, err)

		name := "Acme LLP"
		updated, err := f.svc.Update(ctx, created.ID, provisioning.Patch{
			Name:     &name,
			Settings: tenant.Overrides{"notifications": map[string]any{"sms": true}},
		})
		require.NoError(t, err)
		assert.Equal(t, "Acme LLP", updated.Name)
		assert.True(t, updated.Settings.Notifications.SMS)
		assert.True(t, updated.Settings.Notifications.Email)
		assert.Zero(t, f.contexts.Len())
	})

	t.Run("plan change updates billing amount", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		created, _ := f.create(t, acme())
		plan := tenant.PlanEnterprise
		updated, err := f.svc.Update(ctx, created.ID, provisioning.Patch{Plan: &plan})
		require.NoError(t, err)
		assert.Equal(t, 299, updated.Billing.Amount)
	})

	t.Run("rejects unknown status", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		created, _ := f.create(t, acme())
		status := tenant.Status("frozen")
		_, err := f.svc.Update(ctx, created.ID, provisioning.Patch{Status: &status})
		assert.ErrorIs(t, err, provisioning.ErrInvalidInput)
	})

	t.Run("unknown tenant", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		_, err := f.svc.Update(ctx, uuid.New(), provisioning.Patch{})
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)
	})
}

func TestDelete(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("soft delete archives", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		created, _ := f.create(t, acme())
		require.NoError(t, f.svc.Delete(ctx, created.ID, false))

		got, err := f.svc.Get(ctx, created.ID)
		require.NoError(t, err)
		assert.Equal(t, tenant.StatusArchived, got.Status)
		assert.Empty(t, f.iso.cleaned)
	})

	t.Run("hard delete cleans up and unlinks parent", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		parent, _ := f.create(t, acme())
		in := acme()
		in.Subdomain = "branch"
		in.ParentID = &parent.ID
		child, _ := f.create(t, in)

		require.NoError(t, f.svc.Delete(ctx, child.ID, true))
		assert.Equal(t, []uuid.UUID{child.ID}, f.iso.cleaned)

		_, err := f.svc.Get(ctx, child.ID)
		assert.ErrorIs(t, err, tenant.ErrTenantNotFound)

		got, err := f.svc.Get(ctx, parent.ID)
		require.NoError(t, err)
		assert.Empty(t, got.ChildIDs)
	})

	t.Run("refuses tenants with children", func(t *testing.T) {
		t.Parallel()
		f := newFixture(t)
		parent, _ := f.create(t, acme())
		in := acme()
		in.Subdomain = "branch"
		in.ParentID = &parent.ID
		f.create(t, in)

		assert.ErrorIs(t, f.svc.Delete(ctx, parent.ID, true), provisioning.ErrHasChildren)
		assert.ErrorIs(t, f.svc.Delete(ctx, parent.ID, false), provisioning.ErrHasChildren)
	})
}

func TestParseTemplates(t *testing.T) {
	t.Parallel()

	doc := []byte(`
templates:
  - id: law-firm
    name: Law firm
    isolation:
      type: hybrid
    resources:
      users:
        limit: 50
`)
	templates, err := provisioning.ParseTemplates(doc)
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "law-firm", templates[0].ID)

	iso, err := tenant.Merge(provisioning.DefaultIsolation(tenant.SharedDatabase, time.Now()), templates[0].Isolation)
	require.NoError(t, err)
	assert.Equal(t, tenant.Hybrid, iso.Mode)

	_, err = provisioning.ParseTemplates([]byte("templates:\n  - name: missing id\n"))
	assert.ErrorIs(t, err, provisioning.ErrInvalidInput)
}
