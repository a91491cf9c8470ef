package isolation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/pg"
	redisx "github.com/courtlens/tenancy/pkg/redis"
	"github.com/courtlens/tenancy/pkg/tenant"
)

// Cleanup removes everything the setup methods created for t and closes
// its pooled connections. It keeps going after a failure and returns all
// errors joined under ErrCleanup.
func (s *Service) Cleanup(ctx context.Context, t *tenant.Tenant) error {
	if t == nil {
		return ErrNilTenant
	}

	id := t.ID.String()
	closed := s.conns.RemoveFunc(func(key string) bool {
		return strings.HasPrefix(key, id+":")
	})

	var errs []error
	if t.Isolation.Mode != nil {
		v := &databaseCleanup{ctx: ctx, s: s, t: t}
		if err := t.Isolation.Mode.Accept(v); err != nil {
			errs = append(errs, err)
		}
	}
	if err := s.cleanupStorage(ctx, t); err != nil {
		errs = append(errs, err)
	}
	if err := s.cleanupCache(ctx, t); err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		err := errors.Join(append([]error{ErrCleanup}, errs...)...)
		s.log.ErrorContext(ctx, "tenant cleanup incomplete", logger.TenantID(id), logger.Error(err))
		return err
	}
	s.log.InfoContext(ctx, "tenant resources removed",
		logger.TenantID(id),
		logger.IsolationMode(t.Isolation.ModeName()),
		slog.Int("closed_connections", closed),
	)
	return nil
}

type databaseCleanup struct {
	ctx context.Context
	s   *Service
	t   *tenant.Tenant
}

func (d *databaseCleanup) SharedDatabase() error {
	prefix := d.t.Isolation.Database.TablePrefix
	if prefix == "" {
		prefix = tablePrefix(d.t.ID)
	}
	return d.s.dropShared(d.ctx, d.t, prefix)
}

func (d *databaseCleanup) SeparateSchema() error {
	schema := d.t.Isolation.Database.Schema
	if schema == "" {
		schema = schemaName(d.t.ID)
	}
	return d.s.dropSchema(d.ctx, schema)
}

func (d *databaseCleanup) SeparateDatabase() error {
	name := databaseName(d.t.ID)
	if _, err := d.s.db.Exec(d.ctx, "DROP DATABASE IF EXISTS "+pg.QuoteIdent(name)); err != nil {
		return fmt.Errorf("drop database %s: %w", name, err)
	}
	return nil
}

func (d *databaseCleanup) Hybrid() error {
	return errors.Join(
		d.s.dropShared(d.ctx, d.t, tablePrefix(d.t.ID)),
		d.s.dropSchema(d.ctx, secureSchema(d.t.ID)),
	)
}

// dropShared drops the tenant views and deletes the tenant's rows from
// the shared tables.
func (s *Service) dropShared(ctx context.Context, t *tenant.Tenant, prefix string) error {
	var errs []error
	for _, table := range s.cfg.SharedTables {
		view := pg.QuoteQualified(s.cfg.DefaultSchema, prefix+table)
		if _, err := s.db.Exec(ctx, "DROP VIEW IF EXISTS "+view); err != nil {
			errs = append(errs, fmt.Errorf("drop view %s: %w", view, err))
			continue
		}
		base := pg.QuoteQualified(s.cfg.DefaultSchema, table)
		if _, err := s.db.Exec(ctx, "DELETE FROM "+base+" WHERE tenant_id::text = $1", t.ID.String()); err != nil {
			errs = append(errs, fmt.Errorf("delete rows from %s: %w", base, err))
		}
	}
	return errors.Join(errs...)
}

func (s *Service) dropSchema(ctx context.Context, schema string) error {
	if _, err := s.db.Exec(ctx, "DROP SCHEMA IF EXISTS "+pg.QuoteIdent(schema)+" CASCADE"); err != nil {
		return fmt.Errorf("drop schema %s: %w", schema, err)
	}
	s.schemas.Delete(schema)
	return nil
}

func (s *Service) cleanupStorage(ctx context.Context, t *tenant.Tenant) error {
	if s.buckets == nil {
		return nil
	}
	cfg := storageConfig(t)
	n, err := s.buckets.DeletePrefix(ctx, cfg.Bucket, cfg.Path)
	if err != nil {
		return fmt.Errorf("empty %s/%s: %w", cfg.Bucket, cfg.Path, err)
	}
	s.log.DebugContext(ctx, "tenant objects deleted", logger.TenantID(t.ID.String()), slog.Int("objects", n))
	return nil
}

func (s *Service) cleanupCache(ctx context.Context, t *tenant.Tenant) error {
	if s.cache == nil {
		return nil
	}
	cfg := s.cacheConfig(t)
	var errs []error
	if _, err := redisx.DeletePrefix(ctx, s.cache, cfg.KeyPrefix, s.cfg.ScanBatchSize); err != nil {
		errs = append(errs, err)
	}
	if err := s.cache.Del(ctx, s.cfg.CachePolicyPrefix+cfg.Namespace).Err(); err != nil {
		errs = append(errs, fmt.Errorf("delete cache policy: %w", err))
	}
	if err := s.cache.HDel(ctx, s.cfg.CacheRegistryKey, cfg.Namespace).Err(); err != nil {
		errs = append(errs, fmt.Errorf("release namespace %s: %w", cfg.Namespace, err))
	}
	return errors.Join(errs...)
}
