package isolation

import (
	"context"
	"io/fs"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/redis/go-redis/v9"

	"github.com/courtlens/tenancy/pkg/cache"
	"github.com/courtlens/tenancy/pkg/logger"
	"github.com/courtlens/tenancy/pkg/pg"
	redisx "github.com/courtlens/tenancy/pkg/redis"
)

// Pool is a database pool. *pgxpool.Pool satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PoolOpener opens a pool on url.
type PoolOpener func(ctx context.Context, url string, opts ...pg.PoolOption) (Pool, error)

// Migrator brings a freshly created tenant database up to the base schema.
type Migrator func(ctx context.Context, url string) error

// Buckets provisions object storage. *storage.Buckets satisfies it.
type Buckets interface {
	EnsureBucket(ctx context.Context, bucket string) error
	BlockPublicAccess(ctx context.Context, bucket string) error
	EnableEncryption(ctx context.Context, bucket string) error
	PutMarker(ctx context.Context, bucket, path string, tags map[string]string) error
	DeletePrefix(ctx context.Context, bucket, path string) (int, error)
}

// CacheClient is the subset of a go-redis client used for cache isolation.
type CacheClient interface {
	redisx.KeyScanner
	HGet(ctx context.Context, key, field string) *redis.StringCmd
	HSet(ctx context.Context, key string, values ...any) *redis.IntCmd
	HSetNX(ctx context.Context, key, field string, value any) *redis.BoolCmd
	HDel(ctx context.Context, key string, fields ...string) *redis.IntCmd
	Set(ctx context.Context, key string, value any, expiration time.Duration) *redis.StatusCmd
}

// Service sets up and tears down per-tenant resources and hands out
// tenant connections. Storage and cache isolation are skipped when no
// bucket provider or cache client is configured.
type Service struct {
	cfg     Config
	pgcfg   pg.Config
	db      Pool
	open    PoolOpener
	migrate Migrator
	buckets Buckets
	cache   CacheClient
	log     *slog.Logger

	schemas sync.Map
	conns   *cache.LRU[string, *Conn]
	closed  atomic.Bool
}

// Option configures a Service.
type Option func(*Service)

func WithConfig(cfg Config) Option {
	return func(s *Service) { s.cfg = cfg }
}

// WithPGConfig sets the master connection string and the limits used
// for tenant pools.
func WithPGConfig(cfg pg.Config) Option {
	return func(s *Service) { s.pgcfg = cfg }
}

func WithPoolOpener(open PoolOpener) Option {
	return func(s *Service) { s.open = open }
}

func WithMigrator(m Migrator) Option {
	return func(s *Service) { s.migrate = m }
}

// WithSchemaMigrations migrates every new tenant database with the goose
// migrations in dir.
func WithSchemaMigrations(fsys fs.FS, dir string) Option {
	return func(s *Service) {
		s.migrate = func(ctx context.Context, url string) error {
			pool, err := pg.ConnectURL(ctx, url, s.pgcfg, pg.WithMaxConns(1))
			if err != nil {
				return err
			}
			defer pool.Close()
			return pg.Migrate(ctx, pool, fsys, dir, s.pgcfg.MigrationsTable, s.log)
		}
	}
}

func WithBuckets(b Buckets) Option {
	return func(s *Service) { s.buckets = b }
}

func WithCacheClient(c CacheClient) Option {
	return func(s *Service) { s.cache = c }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.log = l
		}
	}
}

// New creates a Service. db is the shared control-plane pool: DDL runs on
// it and shared-database tenants query through it.
func New(db Pool, opts ...Option) *Service {
	s := &Service{
		cfg: DefaultConfig(),
		db:  db,
		log: logger.Discard(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(logger.Component("isolation"))
	if s.open == nil {
		s.open = s.connect
	}
	s.conns = cache.NewLRU(max(s.cfg.PoolCapacity, 1), func(_ string, c *Conn) {
		c.retire()
	})
	return s
}

func (s *Service) connect(ctx context.Context, url string, opts ...pg.PoolOption) (Pool, error) {
	opts = append([]pg.PoolOption{pg.WithMaxConns(s.pgcfg.TenantMaxConns)}, opts...)
	pool, err := pg.ConnectURL(ctx, url, s.pgcfg, opts...)
	if err != nil {
		return nil, err
	}
	return pool, nil
}

// Pooled returns the number of cached tenant connections.
func (s *Service) Pooled() int {
	return s.conns.Len()
}

// Close closes every pooled tenant connection. Connections still held by
// callers close on their last Release. The shared pool is owned by the
// caller and stays open.
func (s *Service) Close() {
	if s.closed.Swap(true) {
		return
	}
	s.conns.Clear()
}
