// Package metrics exposes Prometheus instrumentation for the adapter core:
// active-connection count, ForwardOpen outcomes, Message Router dispatch
// latency, and watchdog expiries (SPEC_FULL ambient/domain stack).
// Grounded on IamMikeHelsel-bifrost's metrics_prometheus.go, adopted
// unconditionally rather than behind its "prometheus" build tag since this
// repo's go.mod already commits to the dependency.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles the collectors registered against a single registry, so
// tests can use prometheus.NewRegistry() instead of the global default.
type Metrics struct {
	ActiveConnections   prometheus.Gauge
	ForwardOpenOutcomes *prometheus.CounterVec
	DispatchLatency     prometheus.Histogram
	WatchdogExpiries    *prometheus.CounterVec
}

// New creates and registers the adapter's collectors against reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "enip_active_connections",
			Help: "Number of CIP connections currently in the active list.",
		}),
		ForwardOpenOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enip_forward_open_outcomes_total",
			Help: "ForwardOpen requests by extended status (0 on success).",
		}, []string{"ext_status"}),
		DispatchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "enip_dispatch_latency_seconds",
			Help:    "Message Router Notify() call latency.",
			Buckets: prometheus.DefBuckets,
		}),
		WatchdogExpiries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "enip_watchdog_expiries_total",
			Help: "Watchdog timer expiries by watchdog_timeout_action.",
		}, []string{"action"}),
	}

	reg.MustRegister(m.ActiveConnections, m.ForwardOpenOutcomes, m.DispatchLatency, m.WatchdogExpiries)
	return m
}
