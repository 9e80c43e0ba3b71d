package tunnel

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// State is the canonical tunnel state shown to the user.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state by name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name.
func (s *State) UnmarshalText(b []byte) error {
	switch string(b) {
	case "disconnected", "":
		*s = StateDisconnected
	case "connecting":
		*s = StateConnecting
	case "connected":
		*s = StateConnected
	case "disconnecting":
		*s = StateDisconnecting
	default:
		return fmt.Errorf("unknown tunnel state %q", string(b))
	}
	return nil
}

const (
	DefaultProbeTimeout = 100 * time.Millisecond
	DefaultFlagTTL      = 2 * time.Second
)

// Probe reports whether the network is currently reachable. It must
// return promptly once ctx is done.
type Probe func(ctx context.Context) bool

// MachineConfig configures a Machine.
type MachineConfig struct {
	Log *logrus.Entry
	// Probe is consulted on disconnect when the network flag is stale.
	// Nil means the network is assumed reachable.
	Probe        Probe
	ProbeTimeout time.Duration // default 100ms
	// FlagTTL is how long a network flag update is trusted without probing.
	FlagTTL time.Duration // default 2s
	// OnChange runs with the Machine locked and must not call back into it.
	OnChange func(prev, next State)
	Metrics  *MachineMetrics
}

// Machine owns the tunnel State. SDK callbacks, network-path updates and
// user requests are serialized through it.
type Machine struct {
	cfg MachineConfig

	mu             sync.Mutex
	state          State
	restarting     bool
	netUnavailable bool
	flagAt         time.Time
	stopped        chan struct{}
}

// NewMachine returns a Machine in StateDisconnected.
func NewMachine(cfg MachineConfig) *Machine {
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.ProbeTimeout == 0 {
		cfg.ProbeTimeout = DefaultProbeTimeout
	}
	if cfg.FlagTTL == 0 {
		cfg.FlagTTL = DefaultFlagTTL
	}
	m := &Machine{
		cfg:     cfg,
		state:   StateDisconnected,
		stopped: make(chan struct{}),
	}
	cfg.Metrics.observe(StateDisconnected)
	return m
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Restarting reports whether a planned restart is in progress.
func (m *Machine) Restarting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.restarting
}

// NetworkUnavailable reports the last value set by SetNetworkAvailable.
func (m *Machine) NetworkUnavailable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.netUnavailable
}

// BeginRestart marks the tunnel as being deliberately restarted. Until the
// next Connected or Disconnected callback, intermediate transitions are
// suppressed.
func (m *Machine) BeginRestart() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarting = true
	m.cfg.Log.Info("restart begun")
}

// SetNetworkAvailable records the network-path observer's verdict.
func (m *Machine) SetNetworkAvailable(available bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.netUnavailable = !available
	m.flagAt = time.Now()
	m.cfg.Log.WithField("available", available).Info("network availability changed")
}

// StopSignal returns a channel closed by the next Disconnected callback.
// Take it before stopping the SDK.
func (m *Machine) StopSignal() <-chan struct{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

// RequestConnect records a user-initiated connect.
func (m *Machine) RequestConnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateConnected {
		return
	}
	m.setLocked(StateConnecting, "user connect")
}

// RequestDisconnect records a user-initiated disconnect.
func (m *Machine) RequestDisconnect() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateDisconnected {
		return
	}
	m.setLocked(StateDisconnecting, "user disconnect")
}

// Connecting handles the SDK's connecting callback.
func (m *Machine) Connecting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.restarting {
		m.suppressLocked("connecting")
		return
	}
	m.setLocked(StateConnecting, "connecting")
}

// Connected handles the SDK's connected callback.
func (m *Machine) Connected() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(StateConnected, "connected")
	m.restarting = false
}

// Disconnecting handles the SDK's disconnecting callback.
func (m *Machine) Disconnecting() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.restarting {
		m.suppressLocked("disconnecting")
		return
	}
	m.setLocked(StateDisconnecting, "disconnecting")
}

// Disconnected handles the SDK's disconnected callback. When the network
// is unavailable the tunnel is held in StateConnecting so it recovers on
// its own once the network returns.
func (m *Machine) Disconnected() {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := StateDisconnected
	if m.networkUnavailableLocked() {
		next = StateConnecting
	}
	m.setLocked(next, "disconnected")
	m.restarting = false

	close(m.stopped)
	m.stopped = make(chan struct{})
}

// StartFailed records that starting the SDK failed. The tunnel goes to
// StateDisconnected regardless of network availability; a failed start is
// never retried.
func (m *Machine) StartFailed() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.setLocked(StateDisconnected, "start failed")
	m.restarting = false
}

// networkUnavailableLocked trusts a fresh flag and falls back to the live
// probe when the flag has not been updated within FlagTTL.
func (m *Machine) networkUnavailableLocked() bool {
	if m.netUnavailable {
		return true
	}
	if !m.flagAt.IsZero() && time.Since(m.flagAt) < m.cfg.FlagTTL {
		return false
	}
	if m.cfg.Probe == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), m.cfg.ProbeTimeout)
	defer cancel()

	result := make(chan bool, 1)
	go func() { result <- m.cfg.Probe(ctx) }()
	select {
	case reachable := <-result:
		if !reachable {
			m.cfg.Log.Info("live probe reports network unreachable")
		}
		return !reachable
	case <-ctx.Done():
		m.cfg.Log.Debug("live probe timed out")
		return false
	}
}

func (m *Machine) setLocked(next State, event string) {
	prev := m.state
	m.cfg.Log.WithFields(logrus.Fields{
		"event":               event,
		"from":                prev,
		"to":                  next,
		"restarting":          m.restarting,
		"network_unavailable": m.netUnavailable,
	}).Info("tunnel state transition")
	m.state = next
	m.cfg.Metrics.transition(next)
	if prev != next && m.cfg.OnChange != nil {
		m.cfg.OnChange(prev, next)
	}
}

func (m *Machine) suppressLocked(event string) {
	m.cfg.Log.WithFields(logrus.Fields{
		"event":               event,
		"state":               m.state,
		"restarting":          m.restarting,
		"network_unavailable": m.netUnavailable,
	}).Info("transition suppressed during restart")
	m.cfg.Metrics.suppressed(event)
}
