// Package extension is the tunnel-process side of meshbox. Engine drives
// the SDK, feeds its callbacks into the connection state machine and the
// route translator, and answers IPC requests from the foreground process.
package extension

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hopboxdev/meshbox/internal/routes"
	"github.com/hopboxdev/meshbox/internal/sdk"
	"github.com/hopboxdev/meshbox/internal/tunnel"
)

const (
	// DefaultLoginTimeout bounds the wait for the SDK's first login URL.
	DefaultLoginTimeout = 30 * time.Second
	applyTimeout        = 10 * time.Second
)

// SettingsApplier installs tunnel network settings on the host.
type SettingsApplier interface {
	Apply(ctx context.Context, s routes.Settings) error
	Reset(ctx context.Context) error
}

// Config configures an Engine.
type Config struct {
	Client  sdk.Client
	Applier SettingsApplier
	// Machine configures the state machine. OnChange is chained after
	// the engine's own hook.
	Machine tunnel.MachineConfig

	ConfigPath    string
	StatePath     string
	ManagementURL string
	AdminURL      string
	ForceRelay    bool

	LoginTimeout time.Duration
	StopTimeout  time.Duration
	Log          *logrus.Entry
}

// Engine implements sdk.Listener, sdk.DNSApplier and ipc.Handler.
type Engine struct {
	cfg     Config
	log     *logrus.Entry
	machine *tunnel.Machine
	builder *routes.Builder
	changes chan tunnel.State

	// applyMu serializes builder updates with their application to the
	// host, so the last settings applied are the builder's latest.
	applyMu sync.Mutex

	mu      sync.Mutex
	fd      int
	ifName  string
	started bool

	login loginState
}

// NewEngine returns an Engine with its state machine in Disconnected.
func NewEngine(cfg Config) (*Engine, error) {
	if cfg.Client == nil {
		return nil, errors.New("extension: SDK client required")
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	if cfg.LoginTimeout == 0 {
		cfg.LoginTimeout = DefaultLoginTimeout
	}
	if cfg.StopTimeout == 0 {
		cfg.StopTimeout = tunnel.DefaultStopTimeout
	}
	e := &Engine{
		cfg:     cfg,
		log:     cfg.Log.WithField("component", "extension"),
		builder: routes.NewBuilder(cfg.Log.WithField("component", "routes")),
		changes: make(chan tunnel.State, 1),
		fd:      -1,
	}

	mc := cfg.Machine
	if mc.Log == nil {
		mc.Log = cfg.Log.WithField("component", "tunnel")
	}
	userHook := mc.OnChange
	mc.OnChange = func(prev, next tunnel.State) {
		e.notify(next)
		if userHook != nil {
			userHook(prev, next)
		}
	}
	e.machine = tunnel.NewMachine(mc)
	return e, nil
}

// Machine returns the engine's state machine.
func (e *Engine) Machine() *tunnel.Machine { return e.machine }

// notify keeps only the latest undelivered state for Run. It runs with
// the Machine locked.
func (e *Engine) notify(s tunnel.State) {
	for {
		select {
		case e.changes <- s:
			return
		default:
		}
		select {
		case <-e.changes:
		default:
		}
	}
}

// Start starts the SDK on the given TUN descriptor. Failures are returned
// to the caller and not retried.
func (e *Engine) Start(_ context.Context, fd int, ifName string) error {
	e.mu.Lock()
	e.fd, e.ifName = fd, ifName
	e.mu.Unlock()

	e.machine.RequestConnect()
	if err := e.cfg.Client.Start(fd, ifName, sdk.Env{ForceRelay: e.cfg.ForceRelay}); err != nil {
		e.log.WithError(err).Error("SDK start failed")
		e.machine.StartFailed()
		return fmt.Errorf("start SDK: %w", err)
	}
	e.mu.Lock()
	e.started = true
	e.mu.Unlock()
	e.log.WithFields(logrus.Fields{"fd": fd, "interface": ifName}).Info("SDK started")
	return nil
}

// Stop stops the SDK and removes the applied network settings.
func (e *Engine) Stop(ctx context.Context) {
	e.mu.Lock()
	started := e.started
	e.started = false
	e.mu.Unlock()
	if !started {
		return
	}
	e.machine.RequestDisconnect()
	e.cfg.Client.Stop()

	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	if e.cfg.Applier != nil {
		if err := e.cfg.Applier.Reset(ctx); err != nil {
			e.log.WithError(err).Warn("reset network settings")
		}
	}
}

// Started reports whether the SDK has been started and not stopped since.
func (e *Engine) Started() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.started
}

// Restart stops the SDK, waits for its disconnected callback and starts it
// again on the same descriptor. Intermediate transitions are suppressed.
func (e *Engine) Restart(ctx context.Context) error {
	e.mu.Lock()
	fd, ifName, started := e.fd, e.ifName, e.started
	e.mu.Unlock()
	if !started {
		return errors.New("restart: tunnel not started")
	}

	e.machine.BeginRestart()
	stopped := e.machine.StopSignal()
	e.cfg.Client.Stop()

	timer := time.NewTimer(e.cfg.StopTimeout)
	defer timer.Stop()
	select {
	case <-stopped:
	case <-timer.C:
		e.log.WithField("timeout", e.cfg.StopTimeout).Warn("SDK did not report disconnect; restarting anyway")
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := e.cfg.Client.Start(fd, ifName, sdk.Env{ForceRelay: e.cfg.ForceRelay}); err != nil {
		e.mu.Lock()
		e.started = false
		e.mu.Unlock()
		e.log.WithError(err).Error("SDK restart failed")
		return fmt.Errorf("restart SDK: %w", err)
	}
	e.log.Info("SDK restarted")
	return nil
}

// SetInterfaceIP records the tunnel's own address and reapplies settings.
func (e *Engine) SetInterfaceIP(ip string) {
	e.update(func() (routes.Settings, bool) {
		return e.builder.SetInterfaceIP(ip), true
	})
}

// Settings returns the merged network settings.
func (e *Engine) Settings() routes.Settings {
	return e.builder.Settings()
}

// update changes the builder and applies the result while holding
// applyMu. change reports false to leave the host untouched.
func (e *Engine) update(change func() (routes.Settings, bool)) {
	e.applyMu.Lock()
	defer e.applyMu.Unlock()
	s, ok := change()
	if !ok || e.cfg.Applier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	if err := e.cfg.Applier.Apply(ctx, s); err != nil {
		e.log.WithError(err).Warn("apply network settings")
		return
	}
	e.log.WithFields(logrus.Fields{
		"ipv4_routes":     len(s.IPv4Routes),
		"ipv6_routes":     len(s.IPv6Routes),
		"include_default": s.IncludeDefault,
		"dns":             s.DNS != nil,
	}).Debug("network settings applied")
}

// OnConnected implements sdk.Listener.
func (e *Engine) OnConnected() { e.machine.Connected() }

// OnConnecting implements sdk.Listener.
func (e *Engine) OnConnecting() { e.machine.Connecting() }

// OnDisconnecting implements sdk.Listener.
func (e *Engine) OnDisconnecting() { e.machine.Disconnecting() }

// OnDisconnected implements sdk.Listener.
func (e *Engine) OnDisconnected() { e.machine.Disconnected() }

// OnNetworkChanged implements sdk.Listener. routes is a comma-separated
// CIDR list.
func (e *Engine) OnNetworkChanged(list string) {
	e.update(func() (routes.Settings, bool) {
		return e.builder.SetRoutes(list), true
	})
}

// OnAddressChanged implements sdk.Listener. The address arrives through
// SetInterfaceIP instead.
func (e *Engine) OnAddressChanged(fqdn, ip string) {
	e.log.WithFields(logrus.Fields{"fqdn": fqdn, "ip": ip}).Debug("address changed")
}

// OnPeersListChanged implements sdk.Listener. Peers are read on demand.
func (e *Engine) OnPeersListChanged(int) {}

// ApplyDNS implements sdk.DNSApplier. Empty or malformed documents leave
// the current DNS settings in place.
func (e *Engine) ApplyDNS(config string) {
	e.update(func() (routes.Settings, bool) {
		return e.builder.SetDNS(config)
	})
}

var (
	_ sdk.Listener   = (*Engine)(nil)
	_ sdk.DNSApplier = (*Engine)(nil)
)
