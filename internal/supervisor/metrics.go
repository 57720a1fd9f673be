package supervisor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// SupervisorMetrics exposes Prometheus instrumentation for subprocess
// restarts, grounded on pkg/database.NewDBMetrics's promauto pattern.
type SupervisorMetrics struct {
	restarts *prometheus.CounterVec
	state    *prometheus.GaugeVec
}

// NewSupervisorMetrics registers the restart counter and state gauge, both
// labeled by subprocess name.
func NewSupervisorMetrics(serviceName string) *SupervisorMetrics {
	return &SupervisorMetrics{
		restarts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: serviceName + "_subprocess_restarts_total",
			Help: "Total number of subprocess restart attempts, labeled by subprocess name",
		}, []string{"name"}),
		state: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: serviceName + "_subprocess_state",
			Help: "Current lifecycle state of each supervised subprocess (1 = in that state)",
		}, []string{"name", "state"}),
	}
}

// Observe implements RestartObserver, recording every state transition and
// incrementing the restart counter each time a process enters Backoff,
// i.e. once per scheduled restart.
func (m *SupervisorMetrics) Observe(name string, state ProcessState) {
	for _, s := range []ProcessState{StateStarting, StateRunning, StateExited, StateBackoff, StateStopped, StateFailed} {
		value := 0.0
		if s == state {
			value = 1.0
		}
		m.state.WithLabelValues(name, string(s)).Set(value)
	}
	if state == StateBackoff {
		m.restarts.WithLabelValues(name).Inc()
	}
}
