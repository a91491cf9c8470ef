package provisioning

import (
	"fmt"
	"time"

	"github.com/courtlens/tenancy/pkg/tenant"
)

// billingPeriod is the length of the first billing and usage period.
const billingPeriod = 30 * 24 * time.Hour

var planPricing = map[tenant.Plan]int{
	tenant.PlanStarter:      29,
	tenant.PlanProfessional: 99,
	tenant.PlanEnterprise:   299,
	tenant.PlanCustom:       0,
}

// DefaultSettings returns the settings every tenant starts from.
func DefaultSettings() tenant.Settings {
	return tenant.Settings{
		Branding: tenant.Branding{
			PrimaryColor:   "#3B82F6",
			SecondaryColor: "#64748B",
		},
		Features: tenant.Features{
			Enabled:  []string{"dashboard", "documents", "users"},
			Disabled: []string{},
			Limits: map[string]int{
				"users":       10,
				"storage":     1024,
				"apiRequests": 1000,
			},
		},
		Security: tenant.Security{
			EnforceSSO:     false,
			AllowedDomains: []string{},
			PasswordPolicy: tenant.PasswordPolicy{
				MinLength:        8,
				RequireUppercase: true,
				RequireLowercase: true,
				RequireNumbers:   true,
				MaxAge:           90,
				PreventReuse:     5,
			},
			SessionTimeout:     3600,
			EnableAuditLogging: true,
		},
		Notifications: tenant.Notifications{
			Email:    true,
			InApp:    true,
			Webhooks: []string{},
		},
		Integrations: tenant.Integrations{
			Enabled:        []string{},
			Configurations: map[string]map[string]any{},
		},
	}
}

// DefaultIsolation returns the isolation descriptor for mode before any
// template or request overrides.
func DefaultIsolation(mode tenant.Mode, now time.Time) tenant.Isolation {
	return tenant.Isolation{
		Mode: mode,
		Database: tenant.DatabaseConfig{
			TablePrefix: fmt.Sprintf("tenant_%d_", now.UnixMilli()),
		},
		Storage: tenant.StorageConfig{
			Bucket:     "tenant-storage",
			Encryption: true,
		},
		Cache: tenant.CacheConfig{
			KeyPrefix: "tenant:",
			Namespace: "default",
		},
	}
}

// DefaultResources returns the resource allocation every tenant starts from.
func DefaultResources() tenant.Resources {
	return tenant.Resources{
		Storage: tenant.Quota{Allocated: 1, Limit: 1},
		Database: tenant.DatabaseResource{
			Connections: tenant.Quota{Allocated: 10, Limit: 10},
			Queries:     tenant.Counter{Limit: 10000},
		},
		API: tenant.APIResource{
			Requests:  tenant.Counter{Limit: 1000},
			RateLimit: tenant.RateLimit{PerMinute: 60, PerHour: 1000},
		},
		Users: tenant.UserResource{Limit: 10},
		Compute: tenant.ComputeResource{
			Limit: tenant.ComputeLimit{CPU: 50, Memory: 512, Storage: 1024},
		},
	}
}

// NewBilling returns the billing descriptor recorded at creation.
func NewBilling(plan tenant.Plan, now time.Time) tenant.Billing {
	end := now.Add(billingPeriod)
	return tenant.Billing{
		Plan:            plan,
		Frequency:       "monthly",
		Amount:          planPricing[plan],
		Currency:        "USD",
		NextBillingDate: end,
		PaymentMethod:   "pending",
		PeriodStart:     now,
		PeriodEnd:       end,
	}
}
