// Package config aggregates the environment configuration of tenantd.
package config

import (
	"fmt"
	"time"

	"github.com/courtlens/tenancy/pkg/accesslog"
	pkgconfig "github.com/courtlens/tenancy/pkg/config"
	"github.com/courtlens/tenancy/pkg/httpserver"
	"github.com/courtlens/tenancy/pkg/isolation"
	"github.com/courtlens/tenancy/pkg/opensearch"
	"github.com/courtlens/tenancy/pkg/pg"
	"github.com/courtlens/tenancy/pkg/provisioning"
	"github.com/courtlens/tenancy/pkg/redis"
	"github.com/courtlens/tenancy/pkg/storage"
	"github.com/courtlens/tenancy/pkg/tenant"
	"github.com/courtlens/tenancy/pkg/tenant/rediscache"
)

// Config is the full service configuration.
type Config struct {
	App          App
	Tenancy      Tenancy
	AccessLog    AccessLog
	Worker       Worker
	HTTP         httpserver.Config
	Postgres     pg.Config
	Redis        redis.Config
	OpenSearch   opensearch.Config
	Storage      storage.Config
	Isolation    isolation.Config
	Provisioning provisioning.Config
	RecordCache  rediscache.Config
}

type App struct {
	Env       string `env:"APP_ENV" envDefault:"development"`
	Name      string `env:"APP_NAME" envDefault:"tenantd"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// AppKey derives the per-tenant keys that encrypt connection strings.
	AppKey     string `env:"TENANCY_APP_KEY,required,notEmpty"`
	AdminToken string `env:"TENANCY_ADMIN_TOKEN,required,notEmpty"`
	RolesFile  string `env:"TENANCY_ROLES_FILE" envDefault:"roles.yaml"`

	// StorageEnabled turns on S3 bucket provisioning. When off, storage
	// setup records the bucket and path without touching S3.
	StorageEnabled bool `env:"TENANCY_STORAGE_ENABLED" envDefault:"true"`
}

// Tenancy configures request resolution and the context cache.
type Tenancy struct {
	Strategies    []string      `env:"TENANCY_STRATEGIES" envDefault:"subdomain,header,jwt_claim" envSeparator:","`
	SkipPaths     []string      `env:"TENANCY_SKIP_PATHS" envSeparator:","`
	RequireActive bool          `env:"TENANCY_REQUIRE_ACTIVE" envDefault:"true"`
	CacheTTL      time.Duration `env:"TENANCY_CONTEXT_CACHE_TTL" envDefault:"5m"`
	CacheMax      int           `env:"TENANCY_CONTEXT_CACHE_MAX" envDefault:"10000"`
	CacheDisabled bool          `env:"TENANCY_CONTEXT_CACHE_DISABLED" envDefault:"false"`
	SweepInterval time.Duration `env:"TENANCY_CONTEXT_CACHE_SWEEP" envDefault:"1m"`

	// RateLimit enforces each tenant's API rate limit on /app routes.
	RateLimit       bool   `env:"TENANCY_RATE_LIMIT_ENABLED" envDefault:"true"`
	RateLimitPrefix string `env:"TENANCY_RATE_LIMIT_PREFIX" envDefault:"tenancy:ratelimit:"`
}

// AccessLog configures the OpenSearch access-log shipper.
type AccessLog struct {
	Enabled        bool          `env:"ACCESSLOG_OPENSEARCH_ENABLED" envDefault:"false"`
	BufferSize     int           `env:"ACCESSLOG_BUFFER_SIZE" envDefault:"1000"`
	BatchSize      int           `env:"ACCESSLOG_BATCH_SIZE" envDefault:"100"`
	BatchTimeout   time.Duration `env:"ACCESSLOG_BATCH_TIMEOUT" envDefault:"1s"`
	StorageTimeout time.Duration `env:"ACCESSLOG_STORAGE_TIMEOUT" envDefault:"5s"`
}

func (a AccessLog) Options() accesslog.AsyncOptions {
	return accesslog.AsyncOptions{
		BufferSize:     a.BufferSize,
		BatchSize:      a.BatchSize,
		BatchTimeout:   a.BatchTimeout,
		StorageTimeout: a.StorageTimeout,
	}
}

// Worker configures the provisioning queue worker.
type Worker struct {
	PullInterval  time.Duration `env:"WORKER_PULL_INTERVAL" envDefault:"1s"`
	LockTimeout   time.Duration `env:"WORKER_LOCK_TIMEOUT" envDefault:"15m"`
	MaxConcurrent int           `env:"WORKER_MAX_CONCURRENT" envDefault:"4"`
}

// Load reads the configuration from the environment and optional env
// files, then checks the values env tags cannot express.
func Load(envFiles ...string) (Config, error) {
	var cfg Config
	var opts []pkgconfig.Option
	if len(envFiles) > 0 {
		opts = append(opts, pkgconfig.WithEnvFiles(envFiles...))
	}
	if err := pkgconfig.Load(&cfg, opts...); err != nil {
		return Config{}, err
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := tenant.ParseMode(c.Provisioning.DefaultIsolation); err != nil {
		return fmt.Errorf("config: TENANCY_DEFAULT_ISOLATION: %w", err)
	}
	if _, err := tenant.StrategiesByName(nil, c.Tenancy.Strategies...); err != nil {
		return fmt.Errorf("config: TENANCY_STRATEGIES: %w", err)
	}
	return nil
}
