package engine

import "github.com/prometheus/client_golang/prometheus"

const metricsNamespace = "reqsync"

// Metrics are the engine's Prometheus collectors.
type Metrics struct {
	Fetches      *prometheus.CounterVec // kind=load|poll, result=ok|empty|error
	Alerts       prometheus.Counter
	StaleResults prometheus.Counter
	SkippedTicks prometheus.Counter
	RemoteWrites *prometheus.CounterVec // op=save|delete, result=ok|error
	SnapshotSize prometheus.Gauge
	Baseline     prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg. A nil reg
// leaves them unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "fetches_total",
			Help:      "Remote snapshot fetches by kind and result.",
		}, []string{"kind", "result"}),
		Alerts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "alerts_total",
			Help:      "New-requisition alerts raised.",
		}),
		StaleResults: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "stale_results_total",
			Help:      "Fetch results dropped because their session had ended.",
		}),
		SkippedTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "skipped_ticks_total",
			Help:      "Poll ticks skipped while a fetch was outstanding.",
		}),
		RemoteWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "remote_writes_total",
			Help:      "Best-effort remote writes by operation and result.",
		}, []string{"op", "result"}),
		SnapshotSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "snapshot_size",
			Help:      "Requisitions in the current snapshot.",
		}),
		Baseline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "change_baseline",
			Help:      "Record count new polls are compared against.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Fetches, m.Alerts, m.StaleResults, m.SkippedTicks,
			m.RemoteWrites, m.SnapshotSize, m.Baseline,
		)
	}
	return m
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
