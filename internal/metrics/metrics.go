package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the service's Prometheus collectors. A nil *Metrics is a
// valid no-op, which keeps tests free of registries.
type Metrics struct {
	WorkspacesActive prometheus.Gauge
	SnapshotsApplied prometheus.Counter
	StoreWrites      *prometheus.CounterVec
	AuthAttempts     *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		WorkspacesActive: f.NewGauge(prometheus.GaugeOpts{
			Name: "mydiary_workspaces_active",
			Help: "Number of open client workspaces",
		}),
		SnapshotsApplied: f.NewCounter(prometheus.CounterOpts{
			Name: "mydiary_snapshots_applied_total",
			Help: "Live query snapshots applied to entry lists",
		}),
		StoreWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mydiary_store_writes_total",
			Help: "Entry store writes by operation and result",
		}, []string{"op", "result"}),
		AuthAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "mydiary_auth_attempts_total",
			Help: "Sign-in and sign-up attempts by method and result",
		}, []string{"method", "result"}),
	}
}

func (m *Metrics) WorkspaceOpened() {
	if m != nil {
		m.WorkspacesActive.Inc()
	}
}

func (m *Metrics) WorkspaceClosed() {
	if m != nil {
		m.WorkspacesActive.Dec()
	}
}

func (m *Metrics) SnapshotApplied() {
	if m != nil {
		m.SnapshotsApplied.Inc()
	}
}

func (m *Metrics) StoreWrite(op string, err error) {
	if m != nil {
		m.StoreWrites.WithLabelValues(op, result(err)).Inc()
	}
}

func (m *Metrics) AuthAttempt(method string, err error) {
	if m != nil {
		m.AuthAttempts.WithLabelValues(method, result(err)).Inc()
	}
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
