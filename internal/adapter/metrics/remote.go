package metrics

import "github.com/prometheus/client_golang/prometheus"

// RemoteMetrics holds Prometheus metrics for the remote store bridge.
// A nil *RemoteMetrics is valid and records nothing.
type RemoteMetrics struct {
	Snapshots       prometheus.Counter
	SnapshotErrors  prometheus.Counter
	Writes          *prometheus.CounterVec
	ConnectFailures prometheus.Counter
}

// NewRemoteMetrics creates and registers remote sync metrics on the given registry.
func NewRemoteMetrics(reg prometheus.Registerer) *RemoteMetrics {
	m := &RemoteMetrics{
		Snapshots: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "snapshots_total",
			Help:      "Total number of remote snapshots applied.",
		}),
		SnapshotErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "snapshot_errors_total",
			Help:      "Total number of remote snapshots that could not be decoded.",
		}),
		Writes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "writes_total",
			Help:      "Total number of tag writes, by destination (remote, fallback, failed).",
		}, []string{"destination"}),
		ConnectFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "remote",
			Name:      "connect_failures_total",
			Help:      "Total number of failed connection attempts to the remote store.",
		}),
	}

	reg.MustRegister(m.Snapshots, m.SnapshotErrors, m.Writes, m.ConnectFailures)
	return m
}

func (m *RemoteMetrics) SnapshotApplied() {
	if m != nil {
		m.Snapshots.Inc()
	}
}

func (m *RemoteMetrics) SnapshotRejected() {
	if m != nil {
		m.SnapshotErrors.Inc()
	}
}

func (m *RemoteMetrics) Written(destination string) {
	if m != nil {
		m.Writes.WithLabelValues(destination).Inc()
	}
}

func (m *RemoteMetrics) ConnectFailed() {
	if m != nil {
		m.ConnectFailures.Inc()
	}
}
