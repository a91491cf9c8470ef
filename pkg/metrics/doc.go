// Package metrics exposes the tenancy service's Prometheus collectors.
//
// A *Metrics is passed to the tenant middleware as its Observer and to
// the provisioning service as its Metrics sink:
//
//	m := metrics.New(prometheus.DefaultRegisterer)
//	m.Gauge("tenancy_isolation_pooled_connections", "Open tenant connections",
//		func() float64 { return float64(iso.Pooled()) })
package metrics
