package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/courtlens/tenancy/pkg/provisioning"
	"github.com/courtlens/tenancy/pkg/tenant"
)

// Metrics holds the Prometheus collectors of the tenancy service. It
// implements tenant.Observer and provisioning.Metrics.
type Metrics struct {
	StrategyResults  *prometheus.CounterVec
	CacheLookups     *prometheus.CounterVec
	Rejections       *prometheus.CounterVec
	ResolveLatency   prometheus.Histogram
	TenantsActivated *prometheus.CounterVec
	StepDuration     *prometheus.HistogramVec
	RunDuration      *prometheus.HistogramVec

	reg prometheus.Registerer
}

var (
	_ tenant.Observer      = (*Metrics)(nil)
	_ provisioning.Metrics = (*Metrics)(nil)
)

// New creates and registers all collectors with reg. A nil reg uses the
// default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Metrics{
		reg: reg,
		StrategyResults: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenancy_strategy_results_total",
			Help: "Resolution strategy attempts by outcome",
		}, []string{"strategy", "matched"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenancy_context_cache_lookups_total",
			Help: "Tenant context cache lookups by result",
		}, []string{"result"}),
		Rejections: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenancy_rejected_requests_total",
			Help: "Requests rejected by the tenant middleware",
		}, []string{"reason"}),
		ResolveLatency: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tenancy_resolve_duration_seconds",
			Help:    "Time spent resolving the tenant of a request",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
		TenantsActivated: f.NewCounterVec(prometheus.CounterOpts{
			Name: "tenancy_tenants_activated_total",
			Help: "Tenants that completed provisioning, by plan",
		}, []string{"plan"}),
		StepDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenancy_provisioning_step_duration_seconds",
			Help:    "Duration of provisioning step attempts",
			Buckets: prometheus.DefBuckets,
		}, []string{"step", "success"}),
		RunDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tenancy_provisioning_run_duration_seconds",
			Help:    "Duration of provisioning runs by final status",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300, 600},
		}, []string{"status"}),
	}
}

// Gauge registers a gauge read from fn at scrape time, for sizes such as
// pooled connections or cached contexts.
func (m *Metrics) Gauge(name, help string, fn func() float64) {
	promauto.With(m.reg).NewGaugeFunc(prometheus.GaugeOpts{Name: name, Help: help}, fn)
}

func (m *Metrics) StrategyResult(strategy string, matched bool) {
	m.StrategyResults.WithLabelValues(strategy, strconv.FormatBool(matched)).Inc()
}

func (m *Metrics) ContextCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) Rejected(reason string) {
	m.Rejections.WithLabelValues(reason).Inc()
}

func (m *Metrics) ResolveDuration(d time.Duration) {
	m.ResolveLatency.Observe(d.Seconds())
}

// RegisterTenant counts a tenant reaching monitoring setup. The tenant id
// is logged by the caller, not used as a label.
func (m *Metrics) RegisterTenant(_ string, plan string) {
	m.TenantsActivated.WithLabelValues(plan).Inc()
}

func (m *Metrics) StepFinished(step string, success bool, d time.Duration) {
	m.StepDuration.WithLabelValues(step, strconv.FormatBool(success)).Observe(d.Seconds())
}

func (m *Metrics) RunFinished(status provisioning.RunStatus, d time.Duration) {
	m.RunDuration.WithLabelValues(string(status)).Observe(d.Seconds())
}
