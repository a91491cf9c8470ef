package provisioning

import "time"

// Metrics receives provisioning outcomes. pkg/metrics implements it with
// Prometheus collectors.
type Metrics interface {
	// RegisterTenant initializes the tenant's monitoring series.
	RegisterTenant(tenantID string, plan string)
	StepFinished(step string, success bool, d time.Duration)
	RunFinished(status RunStatus, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) RegisterTenant(string, string)            {}
func (nopMetrics) StepFinished(string, bool, time.Duration) {}
func (nopMetrics) RunFinished(RunStatus, time.Duration)     {}
