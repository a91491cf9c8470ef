package isolation

import "time"

// Config controls the resources created per tenant.
type Config struct {
	// DefaultSchema holds the shared base tables.
	DefaultSchema   string   `env:"ISOLATION_DEFAULT_SCHEMA" envDefault:"public"`
	SharedTables    []string `env:"ISOLATION_SHARED_TABLES" envDefault:"users,documents,cases,matters,tasks,activities" envSeparator:","`
	SensitiveTables []string `env:"ISOLATION_SENSITIVE_TABLES" envDefault:"user_profiles,documents,financial_data" envSeparator:","`
	// TenantRole receives the schema grants. Empty grants to CURRENT_USER.
	TenantRole string `env:"ISOLATION_TENANT_ROLE"`

	PoolCapacity int `env:"ISOLATION_POOL_CAPACITY" envDefault:"256"`

	// A cache prefix or namespace equal to these shared defaults is
	// replaced with a tenant-scoped one during setup.
	SharedCachePrefix string `env:"ISOLATION_SHARED_CACHE_PREFIX" envDefault:"tenant:"`
	SharedNamespace   string `env:"ISOLATION_SHARED_NAMESPACE" envDefault:"default"`

	CacheRegistryKey  string        `env:"ISOLATION_CACHE_REGISTRY_KEY" envDefault:"tenancy:cache:namespaces"`
	CachePolicyPrefix string        `env:"ISOLATION_CACHE_POLICY_PREFIX" envDefault:"tenancy:cache:policy:"`
	CacheTTL          time.Duration `env:"ISOLATION_CACHE_TTL" envDefault:"1h"`
	CacheMaxKeys      int           `env:"ISOLATION_CACHE_MAX_KEYS" envDefault:"100000"`
	ScanBatchSize     int64         `env:"ISOLATION_CACHE_SCAN_BATCH" envDefault:"1000"`
}

// DefaultConfig mirrors the env defaults.
func DefaultConfig() Config {
	return Config{
		DefaultSchema:     "public",
		SharedTables:      []string{"users", "documents", "cases", "matters", "tasks", "activities"},
		SensitiveTables:   []string{"user_profiles", "documents", "financial_data"},
		PoolCapacity:      256,
		SharedCachePrefix: "tenant:",
		SharedNamespace:   "default",
		CacheRegistryKey:  "tenancy:cache:namespaces",
		CachePolicyPrefix: "tenancy:cache:policy:",
		CacheTTL:          time.Hour,
		CacheMaxKeys:      100000,
		ScanBatchSize:     1000,
	}
}
