package ipc

import "github.com/prometheus/client_golang/prometheus"

const (
	resultOK        = "ok"
	resultError     = "error"
	resultTimeout   = "timeout"
	resultNoSession = "no_session"
)

// Metrics counts broker round trips. A nil *Metrics records nothing.
type Metrics struct {
	requests *prometheus.CounterVec
	dropped  prometheus.Counter
}

// NewMetrics registers the broker collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshbox",
			Subsystem: "ipc",
			Name:      "requests_total",
			Help:      "IPC round trips by command and result.",
		}, []string{"command", "result"}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "meshbox",
			Subsystem: "ipc",
			Name:      "status_dropped_total",
			Help:      "Status fetches answered with a default snapshot because one was already in flight.",
		}),
	}
	reg.MustRegister(m.requests, m.dropped)
	return m
}

func (m *Metrics) request(cmd, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(cmd, result).Inc()
}

func (m *Metrics) statusDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}
