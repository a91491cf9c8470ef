package provisioning

import "time"

// Config holds service settings loaded from the environment.
type Config struct {
	// DefaultIsolation is the mode given to tenants whose template and
	// request do not choose one.
	DefaultIsolation string `env:"TENANCY_DEFAULT_ISOLATION" envDefault:"shared_database"`

	// Timeout bounds a provisioning run and sets EstimatedCompletionAt.
	Timeout time.Duration `env:"TENANCY_PROVISIONING_TIMEOUT" envDefault:"10m"`

	// Queue is the task queue provisioning jobs are enqueued on.
	Queue string `env:"TENANCY_PROVISIONING_QUEUE" envDefault:"provisioning"`
}

// DefaultConfig matches the envDefault tags.
func DefaultConfig() Config {
	return Config{
		DefaultIsolation: "shared_database",
		Timeout:          10 * time.Minute,
		Queue:            "provisioning",
	}
}
