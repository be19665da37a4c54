package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ReconcileMetrics holds Prometheus metrics for reconciliation passes and effect calls.
// A nil *ReconcileMetrics is valid and records nothing.
type ReconcileMetrics struct {
	Passes       prometheus.Counter
	PassDuration prometheus.Histogram
	Effects      *prometheus.CounterVec
	MutedCurrent prometheus.Gauge
}

// NewReconcileMetrics creates and registers reconcile metrics on the given registry.
func NewReconcileMetrics(reg prometheus.Registerer) *ReconcileMetrics {
	m := &ReconcileMetrics{
		Passes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "passes_total",
			Help:      "Total number of reconciliation passes.",
		}),
		PassDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "pass_duration_seconds",
			Help:      "Duration of reconciliation passes in seconds.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5},
		}),
		Effects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "effects_total",
			Help:      "Total number of mute/unmute effect calls, by operation and result.",
		}, []string{"op", "result"}),
		MutedCurrent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "reconcile",
			Name:      "muted_identities",
			Help:      "Number of identities currently muted by this process.",
		}),
	}

	reg.MustRegister(m.Passes, m.PassDuration, m.Effects, m.MutedCurrent)
	return m
}

func (m *ReconcileMetrics) ObservePass(d time.Duration, muted int) {
	if m == nil {
		return
	}
	m.Passes.Inc()
	m.PassDuration.Observe(d.Seconds())
	m.MutedCurrent.Set(float64(muted))
}

func (m *ReconcileMetrics) ObserveEffect(op string, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.Effects.WithLabelValues(op, result).Inc()
}
