package tenant

import "time"

type Settings struct {
	Branding      Branding      `json:"branding"`
	Features      Features      `json:"features"`
	Security      Security      `json:"security"`
	Notifications Notifications `json:"notifications"`
	Integrations  Integrations  `json:"integrations"`
}

type Branding struct {
	PrimaryColor   string `json:"primary_color"`
	SecondaryColor string `json:"secondary_color"`
	LogoURL        string `json:"logo_url,omitempty"`
	FaviconURL     string `json:"favicon_url,omitempty"`
	CustomCSS      string `json:"custom_css,omitempty"`
}

type Features struct {
	Enabled  []string       `json:"enabled"`
	Disabled []string       `json:"disabled"`
	Limits   map[string]int `json:"limits"`
}

type Security struct {
	EnforceSSO         bool           `json:"enforce_sso"`
	AllowedDomains     []string       `json:"allowed_domains"`
	PasswordPolicy     PasswordPolicy `json:"password_policy"`
	SessionTimeout     int            `json:"session_timeout"`
	EnableAuditLogging bool           `json:"enable_audit_logging"`
}

type PasswordPolicy struct {
	MinLength           int  `json:"min_length"`
	RequireUppercase    bool `json:"require_uppercase"`
	RequireLowercase    bool `json:"require_lowercase"`
	RequireNumbers      bool `json:"require_numbers"`
	RequireSpecialChars bool `json:"require_special_chars"`
	MaxAge              int  `json:"max_age"`
	PreventReuse        int  `json:"prevent_reuse"`
}

type Notifications struct {
	Email    bool     `json:"email"`
	SMS      bool     `json:"sms"`
	InApp    bool     `json:"in_app"`
	Webhooks []string `json:"webhooks"`
}

type Integrations struct {
	Enabled        []string                  `json:"enabled"`
	Configurations map[string]map[string]any `json:"configurations"`
}

// Quota is an allocation with usage.
type Quota struct {
	Allocated int `json:"allocated"`
	Used      int `json:"used"`
	Limit     int `json:"limit"`
}

// Counter tracks periodic usage against a limit.
type Counter struct {
	Daily   int `json:"daily"`
	Monthly int `json:"monthly"`
	Limit   int `json:"limit"`
}

type Resources struct {
	Storage  Quota            `json:"storage"`
	Database DatabaseResource `json:"database"`
	API      APIResource      `json:"api"`
	Users    UserResource     `json:"users"`
	Compute  ComputeResource  `json:"compute"`
}

type DatabaseResource struct {
	Connections Quota   `json:"connections"`
	Queries     Counter `json:"queries"`
}

type APIResource struct {
	Requests  Counter   `json:"requests"`
	RateLimit RateLimit `json:"rate_limit"`
}

type RateLimit struct {
	PerMinute int `json:"per_minute"`
	PerHour   int `json:"per_hour"`
}

type UserResource struct {
	Count int `json:"count"`
	Limit int `json:"limit"`
}

type ComputeResource struct {
	CPUUsage    int          `json:"cpu_usage"`
	MemoryUsage int          `json:"memory_usage"`
	Limit       ComputeLimit `json:"limit"`
}

type ComputeLimit struct {
	CPU     int `json:"cpu"`
	Memory  int `json:"memory"`
	Storage int `json:"storage"`
}

// Billing is the billing descriptor recorded on a tenant. Charging is
// handled by the billing system; this only captures the agreed terms.
type Billing struct {
	Plan             Plan      `json:"plan"`
	Frequency        string    `json:"frequency"`
	Amount           int       `json:"amount"`
	Currency         string    `json:"currency"`
	NextBillingDate  time.Time `json:"next_billing_date"`
	PaymentMethod    string    `json:"payment_method"`
	PeriodStart      time.Time `json:"period_start"`
	PeriodEnd        time.Time `json:"period_end"`
	CreditsAvailable int       `json:"credits_available"`
	CreditsUsed      int       `json:"credits_used"`
}
