package provisioning

import (
	"context"
	"fmt"
	"strings"

	"github.com/courtlens/tenancy/pkg/tenant"
)

// executor runs each step kind against one tenant. Setup steps write the
// effective isolation config back onto the tenant; apply_settings
// persists it.
type executor struct {
	svc    *Service
	tenant *tenant.Tenant
}

var _ StepVisitor = (*executor)(nil)

func (e *executor) ValidateConfig(context.Context) error {
	t := e.tenant
	if strings.TrimSpace(t.Name) == "" || strings.TrimSpace(t.Domain) == "" {
		return fmt.Errorf("%w: name and domain are required", ErrInvalidConfiguration)
	}
	if t.Isolation.Mode == nil {
		return fmt.Errorf("%w: isolation mode is not set", ErrInvalidConfiguration)
	}
	if !t.Plan.Valid() {
		return fmt.Errorf("%w: unknown plan %q", ErrInvalidConfiguration, t.Plan)
	}
	return nil
}

func (e *executor) SetupDatabase(ctx context.Context) error {
	if e.svc.isolator == nil {
		return nil
	}
	cfg, err := e.svc.isolator.SetupDatabase(ctx, e.tenant)
	if err != nil {
		return err
	}
	e.tenant.Isolation.Database = cfg
	return nil
}

func (e *executor) SetupStorage(ctx context.Context) error {
	if e.svc.isolator == nil {
		return nil
	}
	cfg, err := e.svc.isolator.SetupStorage(ctx, e.tenant)
	if err != nil {
		return err
	}
	e.tenant.Isolation.Storage = cfg
	return nil
}

func (e *executor) SetupCache(ctx context.Context) error {
	if e.svc.isolator == nil {
		return nil
	}
	cfg, err := e.svc.isolator.SetupCache(ctx, e.tenant)
	if err != nil {
		return err
	}
	e.tenant.Isolation.Cache = cfg
	return nil
}

// ApplySettings writes the effective isolation config onto the stored
// tenant. Every other field is re-read, so admin updates made while the
// run was in flight survive. Status is left to the end of the run.
func (e *executor) ApplySettings(ctx context.Context) error {
	current, err := e.svc.store.Get(ctx, e.tenant.ID)
	if err != nil {
		return err
	}
	current.Isolation = e.tenant.Isolation
	current.UpdatedAt = e.svc.now().UTC()
	if err := e.svc.store.Update(ctx, current); err != nil {
		return fmt.Errorf("provisioning: apply settings: %w", err)
	}
	e.svc.invalidate(current.ID)
	e.tenant = current
	return nil
}

func (e *executor) SetupMonitoring(context.Context) error {
	e.svc.metrics.RegisterTenant(e.tenant.ID.String(), string(e.tenant.Plan))
	return nil
}

// ValidateDeployment checks that the isolation config matches the mode
// and that an isolated connection can be opened and pinged.
func (e *executor) ValidateDeployment(ctx context.Context) error {
	iso := e.tenant.Isolation
	if iso.Mode == nil {
		return fmt.Errorf("%w: isolation mode is not set", ErrDeploymentInvalid)
	}
	if err := iso.Mode.Accept(deploymentCheck{cfg: iso.Database}); err != nil {
		return err
	}
	if e.svc.isolator == nil {
		return nil
	}

	tc, err := e.svc.builder.ForTenant(ctx, e.tenant, "")
	if err != nil {
		return err
	}
	conn, err := e.svc.isolator.Connection(ctx, tc)
	if err != nil {
		return fmt.Errorf("%w: open connection: %w", ErrDeploymentInvalid, err)
	}
	defer conn.Release()
	if err := conn.Ping(ctx); err != nil {
		return fmt.Errorf("%w: ping: %w", ErrDeploymentInvalid, err)
	}
	return nil
}

// deploymentCheck verifies the database config populated for each mode.
type deploymentCheck struct {
	cfg tenant.DatabaseConfig
}

func (c deploymentCheck) SharedDatabase() error {
	return c.require("table prefix", c.cfg.TablePrefix)
}

func (c deploymentCheck) SeparateSchema() error {
	return c.require("schema", c.cfg.Schema)
}

func (c deploymentCheck) SeparateDatabase() error {
	return c.require("connection string", c.cfg.ConnectionString)
}

func (c deploymentCheck) Hybrid() error {
	if err := c.require("schema", c.cfg.Schema); err != nil {
		return err
	}
	return c.require("table prefix", c.cfg.TablePrefix)
}

func (deploymentCheck) require(field, value string) error {
	if value == "" {
		return fmt.Errorf("%w: %s is not set", ErrDeploymentInvalid, field)
	}
	return nil
}
