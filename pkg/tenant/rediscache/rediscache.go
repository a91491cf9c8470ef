package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/secrets"
	"github.com/courtlens/tenancy/pkg/tenant"
)

// Client is the subset of a go-redis client the cache uses.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// Config holds cache settings.
type Config struct {
	TTL       time.Duration `env:"TENANCY_RECORD_CACHE_TTL" envDefault:"5m"`
	KeyPrefix string        `env:"TENANCY_RECORD_CACHE_PREFIX" envDefault:"tenancy:tenant:"`
}

// Store caches tenant records of an underlying tenant.Store in Redis.
// Records are cached by id, and the domain key maps to the id. Writes go
// to the underlying store first and then drop the cached keys. Redis
// errors are logged and fall through to the underlying store.
type Store struct {
	next   tenant.Store
	client Client
	ttl    time.Duration
	prefix string
	cipher *secrets.Cipher
	log    *slog.Logger
}

var _ tenant.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

func WithConfig(cfg Config) Option {
	return func(s *Store) {
		if cfg.TTL > 0 {
			s.ttl = cfg.TTL
		}
		if cfg.KeyPrefix != "" {
			s.prefix = cfg.KeyPrefix
		}
	}
}

// WithCipher keeps connection strings encrypted inside cached entries.
func WithCipher(c *secrets.Cipher) Option {
	return func(s *Store) { s.cipher = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New wraps next.
func New(next tenant.Store, client Client, opts ...Option) *Store {
	s := &Store{
		next:   next,
		client: client,
		ttl:    5 * time.Minute,
		prefix: "tenancy:tenant:",
		log:    logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) idKey(id uuid.UUID) string {
	return s.prefix + "id:" + id.String()
}

func (s *Store) domainKey(domain, subdomain string) string {
	return s.prefix + "domain:" + strings.ToLower(subdomain) + "|" + strings.ToLower(domain)
}

func (s *Store) Get(ctx context.Context, id uuid.UUID) (*tenant.Tenant, error) {
	if t, ok := s.cached(ctx, s.idKey(id)); ok {
		return t, nil
	}
	t, err := s.next.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.store(ctx, t)
	return t, nil
}

func (s *Store) GetByDomain(ctx context.Context, domain, subdomain string) (*tenant.Tenant, error) {
	dk := s.domainKey(domain, subdomain)
	idStr, err := s.client.Get(ctx, dk).Result()
	switch {
	case err == nil:
		if id, perr := uuid.Parse(idStr); perr == nil {
			if t, ok := s.cached(ctx, s.idKey(id)); ok && strings.EqualFold(t.Domain, domain) && strings.EqualFold(t.Subdomain, subdomain) {
				return t, nil
			}
		}
	case !errors.Is(err, redis.Nil):
		s.log.WarnContext(ctx, "tenant cache read failed", logger.Error(err))
	}

	t, err := s.next.GetByDomain(ctx, domain, subdomain)
	if err != nil {
		return nil, err
	}
	s.store(ctx, t)
	return t, nil
}

func (s *Store) Create(ctx context.Context, t *tenant.Tenant) error {
	return s.next.Create(ctx, t)
}

func (s *Store) Update(ctx context.Context, t *tenant.Tenant) error {
	// The domain may change, so the old domain key must go too.
	old, oldErr := s.next.Get(ctx, t.ID)
	if err := s.next.Update(ctx, t); err != nil {
		return err
	}
	keys := []string{s.idKey(t.ID), s.domainKey(t.Domain, t.Subdomain)}
	if oldErr == nil {
		keys = append(keys, s.domainKey(old.Domain, old.Subdomain))
	}
	s.drop(ctx, keys...)
	return nil
}

func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	old, oldErr := s.next.Get(ctx, id)
	if err := s.next.Delete(ctx, id); err != nil {
		return err
	}
	keys := []string{s.idKey(id)}
	if oldErr == nil {
		keys = append(keys, s.domainKey(old.Domain, old.Subdomain))
	}
	s.drop(ctx, keys...)
	return nil
}

// ListChildren is not cached.
func (s *Store) ListChildren(ctx context.Context, id uuid.UUID) ([]*tenant.Tenant, error) {
	return s.next.ListChildren(ctx, id)
}

func (s *Store) cached(ctx context.Context, key string) (*tenant.Tenant, bool) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.log.WarnContext(ctx, "tenant cache read failed", logger.Error(err))
		}
		return nil, false
	}
	var t tenant.Tenant
	if err := json.Unmarshal(data, &t); err != nil {
		s.log.WarnContext(ctx, "tenant cache entry is corrupt", slog.String("key", key), logger.Error(err))
		s.drop(ctx, key)
		return nil, false
	}
	if s.cipher != nil && t.Isolation.Database.ConnectionString != "" {
		plain, err := s.cipher.Decrypt(t.ID, t.Isolation.Database.ConnectionString)
		if err != nil {
			s.log.WarnContext(ctx, "tenant cache entry cannot be decrypted", slog.String("key", key), logger.Error(err))
			s.drop(ctx, key)
			return nil, false
		}
		t.Isolation.Database.ConnectionString = plain
	}
	return &t, true
}

func (s *Store) store(ctx context.Context, t *tenant.Tenant) {
	entry := *t
	if s.cipher != nil && entry.Isolation.Database.ConnectionString != "" {
		enc, err := s.cipher.Encrypt(t.ID, entry.Isolation.Database.ConnectionString)
		if err != nil {
			s.log.WarnContext(ctx, "tenant cache encrypt failed", logger.TenantID(t.ID.String()), logger.Error(err))
			return
		}
		entry.Isolation.Database.ConnectionString = enc
	}
	data, err := json.Marshal(&entry)
	if err != nil {
		s.log.WarnContext(ctx, "tenant cache encode failed", logger.TenantID(t.ID.String()), logger.Error(err))
		return
	}
	if err := s.client.Set(ctx, s.idKey(t.ID), data, s.ttl).Err(); err != nil {
		s.log.WarnContext(ctx, "tenant cache write failed", logger.TenantID(t.ID.String()), logger.Error(err))
		return
	}
	if err := s.client.Set(ctx, s.domainKey(t.Domain, t.Subdomain), t.ID.String(), s.ttl).Err(); err != nil {
		s.log.WarnContext(ctx, "tenant cache write failed", logger.TenantID(t.ID.String()), logger.Error(err))
	}
}

func (s *Store) drop(ctx context.Context, keys ...string) {
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		s.log.ErrorContext(ctx, "tenant cache invalidation failed", slog.Any("keys", keys), logger.Error(fmt.Errorf("rediscache: %w", err)))
	}
}
