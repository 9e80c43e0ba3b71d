package tunnel

import "github.com/prometheus/client_golang/prometheus"

// MachineMetrics exports the Machine's state. A nil *MachineMetrics is
// valid and records nothing.
type MachineMetrics struct {
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
	suppress    *prometheus.CounterVec
}

// NewMachineMetrics registers the tunnel collectors with reg.
func NewMachineMetrics(reg prometheus.Registerer) *MachineMetrics {
	m := &MachineMetrics{
		state: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "meshbox",
			Subsystem: "tunnel",
			Name:      "state",
			Help:      "1 for the current tunnel state, 0 otherwise.",
		}, []string{"state"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshbox",
			Subsystem: "tunnel",
			Name:      "transitions_total",
			Help:      "State transitions by target state.",
		}, []string{"to"}),
		suppress: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "meshbox",
			Subsystem: "tunnel",
			Name:      "suppressed_total",
			Help:      "Callbacks suppressed during a planned restart.",
		}, []string{"event"}),
	}
	reg.MustRegister(m.state, m.transitions, m.suppress)
	return m
}

func (m *MachineMetrics) observe(s State) {
	if m == nil {
		return
	}
	for _, st := range []State{StateDisconnected, StateConnecting, StateConnected, StateDisconnecting} {
		v := 0.0
		if st == s {
			v = 1
		}
		m.state.WithLabelValues(st.String()).Set(v)
	}
}

func (m *MachineMetrics) transition(to State) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(to.String()).Inc()
	m.observe(to)
}

func (m *MachineMetrics) suppressed(event string) {
	if m == nil {
		return
	}
	m.suppress.WithLabelValues(event).Inc()
}
