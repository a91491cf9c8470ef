package tenant

import (
	"encoding/json"
	"fmt"
)

// Mode is an isolation strategy. The set of modes is closed: the only
// implementations are SharedDatabase, SeparateSchema, SeparateDatabase
// and Hybrid. Code that branches on the mode implements ModeVisitor, so
// a new mode does not compile until every visitor handles it.
type Mode interface {
	fmt.Stringer
	Accept(v ModeVisitor) error
	mode()
}

// ModeVisitor has one method per isolation mode.
type ModeVisitor interface {
	SharedDatabase() error
	SeparateSchema() error
	SeparateDatabase() error
	Hybrid() error
}

type (
	sharedDatabase   struct{}
	separateSchema   struct{}
	separateDatabase struct{}
	hybrid           struct{}
)

var (
	// SharedDatabase keeps all tenants in shared tables filtered by
	// tenant_id with row-level security.
	SharedDatabase Mode = sharedDatabase{}
	// SeparateSchema gives each tenant its own schema in the shared database.
	SeparateSchema Mode = separateSchema{}
	// SeparateDatabase gives each tenant its own database.
	SeparateDatabase Mode = separateDatabase{}
	// Hybrid stores sensitive tables in a tenant schema and the rest in
	// shared tables.
	Hybrid Mode = hybrid{}
)

func (sharedDatabase) String() string   { return "shared_database" }
func (separateSchema) String() string   { return "separate_schema" }
func (separateDatabase) String() string { return "separate_database" }
func (hybrid) String() string           { return "hybrid" }

func (sharedDatabase) Accept(v ModeVisitor) error   { return v.SharedDatabase() }
func (separateSchema) Accept(v ModeVisitor) error   { return v.SeparateSchema() }
func (separateDatabase) Accept(v ModeVisitor) error { return v.SeparateDatabase() }
func (hybrid) Accept(v ModeVisitor) error           { return v.Hybrid() }

func (sharedDatabase) mode()   {}
func (separateSchema) mode()   {}
func (separateDatabase) mode() {}
func (hybrid) mode()           {}

// Modes lists every isolation mode.
func Modes() []Mode {
	return []Mode{SharedDatabase, SeparateSchema, SeparateDatabase, Hybrid}
}

// ParseMode maps a mode name to its Mode.
func ParseMode(name string) (Mode, error) {
	for _, m := range Modes() {
		if m.String() == name {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownMode, name)
}

// Isolation declares how a tenant's data is segregated.
type Isolation struct {
	Mode     Mode           `json:"-"`
	Database DatabaseConfig `json:"database"`
	Storage  StorageConfig  `json:"storage"`
	Cache    CacheConfig    `json:"cache"`
	Network  NetworkConfig  `json:"network"`
}

type DatabaseConfig struct {
	Schema           string `json:"schema,omitempty"`
	TablePrefix      string `json:"table_prefix,omitempty"`
	ConnectionString string `json:"connection_string,omitempty"`
}

type StorageConfig struct {
	Bucket     string `json:"bucket"`
	Path       string `json:"path"`
	Encryption bool   `json:"encryption"`
}

type CacheConfig struct {
	KeyPrefix string `json:"key_prefix"`
	Namespace string `json:"namespace"`
}

type NetworkConfig struct {
	AllowedCIDRs []string `json:"allowed_cidrs,omitempty"`
}

// ModeName returns the mode's name, or "" when unset.
func (i Isolation) ModeName() string {
	if i.Mode == nil {
		return ""
	}
	return i.Mode.String()
}

type isolationJSON struct {
	Type string `json:"type"`
	isolationFields
}

type isolationFields struct {
	Database DatabaseConfig `json:"database"`
	Storage  StorageConfig  `json:"storage"`
	Cache    CacheConfig    `json:"cache"`
	Network  NetworkConfig  `json:"network"`
}

func (i Isolation) MarshalJSON() ([]byte, error) {
	return json.Marshal(isolationJSON{
		Type: i.ModeName(),
		isolationFields: isolationFields{
			Database: i.Database,
			Storage:  i.Storage,
			Cache:    i.Cache,
			Network:  i.Network,
		},
	})
}

func (i *Isolation) UnmarshalJSON(data []byte) error {
	var raw isolationJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	i.Mode = nil
	if raw.Type != "" {
		m, err := ParseMode(raw.Type)
		if err != nil {
			return err
		}
		i.Mode = m
	}
	i.Database = raw.Database
	i.Storage = raw.Storage
	i.Cache = raw.Cache
	i.Network = raw.Network
	return nil
}
