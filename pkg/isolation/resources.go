package isolation

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/tenant"
)

// SetupStorage provisions the tenant's bucket and path and returns the
// effective storage config.
func (s *Service) SetupStorage(ctx context.Context, t *tenant.Tenant) (tenant.StorageConfig, error) {
	if t == nil {
		return tenant.StorageConfig{}, ErrNilTenant
	}
	out := storageConfig(t)
	if s.buckets == nil {
		s.log.DebugContext(ctx, "storage isolation disabled", logger.TenantID(t.ID.String()))
		return out, nil
	}

	if err := s.createStorageBucket(ctx, out.Bucket); err != nil {
		return tenant.StorageConfig{}, err
	}
	if err := s.setupStoragePermissions(ctx, t.ID, out); err != nil {
		return tenant.StorageConfig{}, err
	}
	if out.Encryption {
		if err := s.setupStorageEncryption(ctx, out.Bucket); err != nil {
			return tenant.StorageConfig{}, err
		}
	}
	return out, nil
}

func storageConfig(t *tenant.Tenant) tenant.StorageConfig {
	out := t.Isolation.Storage
	if out.Bucket == "" {
		out.Bucket = bucketName(t.ID)
	}
	if out.Path == "" {
		out.Path = storagePath(t.ID)
	}
	return out
}

func (s *Service) createStorageBucket(ctx context.Context, bucket string) error {
	if err := s.buckets.EnsureBucket(ctx, bucket); err != nil {
		return fmt.Errorf("%w: create bucket %s: %w", ErrStorageSetup, bucket, err)
	}
	return nil
}

func (s *Service) setupStoragePermissions(ctx context.Context, id uuid.UUID, cfg tenant.StorageConfig) error {
	if err := s.buckets.BlockPublicAccess(ctx, cfg.Bucket); err != nil {
		return fmt.Errorf("%w: block public access on %s: %w", ErrStorageSetup, cfg.Bucket, err)
	}
	if err := s.buckets.PutMarker(ctx, cfg.Bucket, cfg.Path, map[string]string{"tenant": id.String()}); err != nil {
		return fmt.Errorf("%w: tag %s/%s: %w", ErrStorageSetup, cfg.Bucket, cfg.Path, err)
	}
	return nil
}

func (s *Service) setupStorageEncryption(ctx context.Context, bucket string) error {
	if err := s.buckets.EnableEncryption(ctx, bucket); err != nil {
		return fmt.Errorf("%w: encrypt %s: %w", ErrStorageSetup, bucket, err)
	}
	return nil
}

// SetupCache registers the tenant's cache namespace and key prefix and
// returns the effective cache config. A prefix or namespace left at the
// shared default is replaced with a tenant-scoped one so that Cleanup
// can only ever remove this tenant's keys.
func (s *Service) SetupCache(ctx context.Context, t *tenant.Tenant) (tenant.CacheConfig, error) {
	if t == nil {
		return tenant.CacheConfig{}, ErrNilTenant
	}
	out := s.cacheConfig(t)
	if s.cache == nil {
		s.log.DebugContext(ctx, "cache isolation disabled", logger.TenantID(t.ID.String()))
		return out, nil
	}

	if err := s.createCacheNamespace(ctx, t.ID, out.Namespace); err != nil {
		return tenant.CacheConfig{}, err
	}
	if err := s.setupCacheKeyIsolation(ctx, t.ID, out.KeyPrefix); err != nil {
		return tenant.CacheConfig{}, err
	}
	if err := s.setupCachePolicies(ctx, out); err != nil {
		return tenant.CacheConfig{}, err
	}
	return out, nil
}

func (s *Service) cacheConfig(t *tenant.Tenant) tenant.CacheConfig {
	out := t.Isolation.Cache
	if out.KeyPrefix == "" || out.KeyPrefix == s.cfg.SharedCachePrefix {
		out.KeyPrefix = cachePrefix(t.ID)
	}
	if out.Namespace == "" || out.Namespace == s.cfg.SharedNamespace {
		out.Namespace = t.ID.String()
	}
	return out
}

// createCacheNamespace claims namespace in the registry hash. Claiming a
// namespace the tenant already owns succeeds.
func (s *Service) createCacheNamespace(ctx context.Context, id uuid.UUID, namespace string) error {
	claimed, err := s.cache.HSetNX(ctx, s.cfg.CacheRegistryKey, namespace, id.String()).Result()
	if err != nil {
		return fmt.Errorf("%w: register namespace %s: %w", ErrCacheSetup, namespace, err)
	}
	if claimed {
		return nil
	}
	owner, err := s.cache.HGet(ctx, s.cfg.CacheRegistryKey, namespace).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: read namespace owner %s: %w", ErrCacheSetup, namespace, err)
	}
	if owner != id.String() {
		return fmt.Errorf("%w: %s", ErrNamespaceTaken, namespace)
	}
	return nil
}

func (s *Service) setupCacheKeyIsolation(ctx context.Context, id uuid.UUID, prefix string) error {
	if err := s.cache.Set(ctx, prefix+"__owner", id.String(), 0).Err(); err != nil {
		return fmt.Errorf("%w: mark prefix %s: %w", ErrCacheSetup, prefix, err)
	}
	return nil
}

func (s *Service) setupCachePolicies(ctx context.Context, cfg tenant.CacheConfig) error {
	key := s.cfg.CachePolicyPrefix + cfg.Namespace
	err := s.cache.HSet(ctx, key,
		"key_prefix", cfg.KeyPrefix,
		"ttl_seconds", int64(s.cfg.CacheTTL.Seconds()),
		"max_keys", s.cfg.CacheMaxKeys,
	).Err()
	if err != nil {
		return fmt.Errorf("%w: write policy %s: %w", ErrCacheSetup, key, err)
	}
	return nil
}
