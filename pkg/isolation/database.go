package isolation

import (
	"context"
	"fmt"
	"net/url"

	"github.com/google/uuid"

	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/pg"
	"github.com/courtlens/tenancy/pkg/tenant"
)

// SetupDatabase creates the database objects of the tenant's isolation
// mode and returns the effective database config. Every statement is
// idempotent, so a retried step re-runs it safely.
func (s *Service) SetupDatabase(ctx context.Context, t *tenant.Tenant) (tenant.DatabaseConfig, error) {
	if t == nil {
		return tenant.DatabaseConfig{}, ErrNilTenant
	}
	if t.Isolation.Mode == nil {
		return tenant.DatabaseConfig{}, ErrUnknownMode
	}

	v := &databaseSetup{ctx: ctx, s: s, t: t}
	if err := t.Isolation.Mode.Accept(v); err != nil {
		return tenant.DatabaseConfig{}, err
	}
	s.log.InfoContext(ctx, "tenant database ready",
		logger.TenantID(t.ID.String()),
		logger.IsolationMode(t.Isolation.ModeName()),
	)
	return v.out, nil
}

type databaseSetup struct {
	ctx context.Context
	s   *Service
	t   *tenant.Tenant
	out tenant.DatabaseConfig
}

func (d *databaseSetup) SharedDatabase() error {
	prefix := d.t.Isolation.Database.TablePrefix
	if prefix == "" {
		prefix = tablePrefix(d.t.ID)
	}
	if err := d.s.setupShared(d.ctx, d.t.ID, prefix); err != nil {
		return err
	}
	d.out = tenant.DatabaseConfig{Schema: d.s.cfg.DefaultSchema, TablePrefix: prefix}
	return nil
}

func (d *databaseSetup) SeparateSchema() error {
	schema := d.t.Isolation.Database.Schema
	if schema == "" {
		schema = schemaName(d.t.ID)
	}
	if err := d.s.createSchema(d.ctx, schema); err != nil {
		return err
	}
	if err := d.s.cloneBaseTables(d.ctx, schema); err != nil {
		return err
	}
	if err := d.s.setupSchemaPermissions(d.ctx, schema); err != nil {
		return err
	}
	d.out = tenant.DatabaseConfig{Schema: schema}
	return nil
}

func (d *databaseSetup) SeparateDatabase() error {
	name := databaseName(d.t.ID)
	connString, err := d.s.generateConnectionString(name)
	if err != nil {
		return err
	}
	if err := d.s.createDatabase(d.ctx, name); err != nil {
		return err
	}
	if err := d.s.setupDatabaseSchema(d.ctx, connString); err != nil {
		return err
	}
	d.out = tenant.DatabaseConfig{ConnectionString: connString}
	return nil
}

func (d *databaseSetup) Hybrid() error {
	secure := secureSchema(d.t.ID)
	if err := d.s.createSchema(d.ctx, secure); err != nil {
		return err
	}
	prefix := tablePrefix(d.t.ID)
	if err := d.s.setupShared(d.ctx, d.t.ID, prefix); err != nil {
		return err
	}
	for _, table := range d.s.cfg.SensitiveTables {
		if err := d.s.cloneTableToSchema(d.ctx, table, secure); err != nil {
			return err
		}
	}
	d.out = tenant.DatabaseConfig{Schema: secure, TablePrefix: prefix}
	return nil
}

func (s *Service) setupShared(ctx context.Context, id uuid.UUID, prefix string) error {
	for _, table := range s.cfg.SharedTables {
		if err := s.createTenantView(ctx, id, table, prefix); err != nil {
			return err
		}
		if err := s.setupRowLevelSecurity(ctx, table); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) createTenantView(ctx context.Context, id uuid.UUID, table, prefix string) error {
	view := pg.QuoteQualified(s.cfg.DefaultSchema, prefix+table)
	sql := fmt.Sprintf("CREATE OR REPLACE VIEW %s AS SELECT * FROM %s WHERE tenant_id = '%s'",
		view, pg.QuoteQualified(s.cfg.DefaultSchema, table), id)
	if _, err := s.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("%w: create view %s: %w", ErrDatabaseSetup, view, err)
	}
	return nil
}

func (s *Service) setupRowLevelSecurity(ctx context.Context, table string) error {
	qualified := pg.QuoteQualified(s.cfg.DefaultSchema, table)
	if _, err := s.db.Exec(ctx, "ALTER TABLE "+qualified+" ENABLE ROW LEVEL SECURITY"); err != nil {
		return fmt.Errorf("%w: enable row level security on %s: %w", ErrDatabaseSetup, qualified, err)
	}
	sql := "CREATE POLICY tenant_isolation ON " + qualified +
		" USING (tenant_id::text = current_setting('app.current_tenant', true))"
	if _, err := s.db.Exec(ctx, sql); err != nil && !pg.IsAlreadyExistsError(err) {
		return fmt.Errorf("%w: create policy on %s: %w", ErrDatabaseSetup, qualified, err)
	}
	return nil
}

// createSchema runs at most once per schema for the life of the Service.
func (s *Service) createSchema(ctx context.Context, schema string) error {
	if _, ok := s.schemas.Load(schema); ok {
		return nil
	}
	if _, err := s.db.Exec(ctx, "CREATE SCHEMA IF NOT EXISTS "+pg.QuoteIdent(schema)); err != nil {
		return fmt.Errorf("%w: create schema %s: %w", ErrDatabaseSetup, schema, err)
	}
	s.schemas.Store(schema, struct{}{})
	return nil
}

func (s *Service) cloneBaseTables(ctx context.Context, schema string) error {
	for _, table := range s.cfg.SharedTables {
		if err := s.cloneTableToSchema(ctx, table, schema); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) cloneTableToSchema(ctx context.Context, table, schema string) error {
	sql := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (LIKE %s INCLUDING ALL)",
		pg.QuoteQualified(schema, table), pg.QuoteQualified(s.cfg.DefaultSchema, table))
	if _, err := s.db.Exec(ctx, sql); err != nil {
		return fmt.Errorf("%w: clone %s into %s: %w", ErrDatabaseSetup, table, schema, err)
	}
	return nil
}

func (s *Service) setupSchemaPermissions(ctx context.Context, schema string) error {
	role := "CURRENT_USER"
	if s.cfg.TenantRole != "" {
		role = pg.QuoteIdent(s.cfg.TenantRole)
	}
	q := pg.QuoteIdent(schema)
	for _, sql := range []string{
		"GRANT USAGE ON SCHEMA " + q + " TO " + role,
		"GRANT ALL ON ALL TABLES IN SCHEMA " + q + " TO " + role,
	} {
		if _, err := s.db.Exec(ctx, sql); err != nil {
			return fmt.Errorf("%w: grant on schema %s: %w", ErrDatabaseSetup, schema, err)
		}
	}
	return nil
}

func (s *Service) createDatabase(ctx context.Context, name string) error {
	if _, err := s.db.Exec(ctx, "CREATE DATABASE "+pg.QuoteIdent(name)); err != nil && !pg.IsAlreadyExistsError(err) {
		return fmt.Errorf("%w: create database %s: %w", ErrDatabaseSetup, name, err)
	}
	return nil
}

func (s *Service) setupDatabaseSchema(ctx context.Context, connString string) error {
	if s.migrate == nil {
		s.log.DebugContext(ctx, "no tenant schema migrations configured")
		return nil
	}
	if err := s.migrate(ctx, connString); err != nil {
		return fmt.Errorf("%w: migrate tenant database: %w", ErrDatabaseSetup, err)
	}
	return nil
}

// generateConnectionString points the master URL at database name.
func (s *Service) generateConnectionString(name string) (string, error) {
	u, err := url.Parse(s.pgcfg.ConnectionString)
	if err != nil || (u.Scheme != "postgres" && u.Scheme != "postgresql") {
		return "", ErrInvalidMasterURL
	}
	u.Path = "/" + name
	u.RawPath = ""
	return u.String(), nil
}
