// Package app is the foreground side of meshbox: it owns the IPC broker,
// the settings provider and the poller for one profile, and asks the OS
// tunnel manager to start or stop the tunnel process.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hopboxdev/meshbox/internal/ipc"
	"github.com/hopboxdev/meshbox/internal/poller"
	"github.com/hopboxdev/meshbox/internal/profile"
	"github.com/hopboxdev/meshbox/internal/settings"
	"github.com/hopboxdev/meshbox/internal/tunnel"
)

const (
	DefaultLoginPoll = time.Second
	DefaultLoginWait = 5 * time.Minute
)

// ErrNotRunning is returned for requests that need the tunnel process.
var ErrNotRunning = errors.New("tunnel process not running")

// TunnelManager starts and stops the tunnel process through the OS.
type TunnelManager interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Config configures a Controller.
type Config struct {
	Profile  *profile.Profile
	Broker   *ipc.Broker
	Settings settings.Provider
	Manager  TunnelManager

	LoginPoll time.Duration
	LoginWait time.Duration
	Log       *logrus.Entry
}

// Controller coordinates the foreground process's view of one profile.
type Controller struct {
	cfg Config
	log *logrus.Entry
}

// New returns a Controller. Profile and Broker are required.
func New(cfg Config) (*Controller, error) {
	if cfg.Profile == nil || cfg.Broker == nil {
		return nil, errors.New("app: profile and broker required")
	}
	if cfg.LoginPoll == 0 {
		cfg.LoginPoll = DefaultLoginPoll
	}
	if cfg.LoginWait == 0 {
		cfg.LoginWait = DefaultLoginWait
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Controller{cfg: cfg, log: cfg.Log.WithField("component", "app")}, nil
}

// Broker returns the controller's broker.
func (c *Controller) Broker() *ipc.Broker { return c.cfg.Broker }

// Settings returns the settings provider, which may be nil.
func (c *Controller) Settings() settings.Provider { return c.cfg.Settings }

// Attach establishes the IPC session when the tunnel process's socket
// accepts connections, and tears it down otherwise.
func (c *Controller) Attach() bool {
	sock, err := c.cfg.Profile.SocketPath()
	if err != nil {
		c.log.WithError(err).Warn("resolve socket path")
		c.cfg.Broker.SetTransport(nil)
		return false
	}
	t := ipc.NewSocketTransport(sock)
	if !t.IsReachable() {
		c.cfg.Broker.SetTransport(nil)
		return false
	}
	c.cfg.Broker.SetTransport(t)
	return true
}

// RunState returns the tunnel process's run state, or nil when it is not
// running.
func (c *Controller) RunState() (*tunnel.RunState, error) {
	path, err := c.cfg.Profile.RunStatePath()
	if err != nil {
		return nil, err
	}
	return tunnel.LoadRunState(path)
}

// Connect transfers the current config when the tunnel process cannot
// read it directly, then starts the tunnel.
func (c *Controller) Connect(ctx context.Context) error {
	if !c.cfg.Profile.SharedStorage {
		if err := c.PushConfig(ctx); err != nil && !errors.Is(err, ErrNotRunning) {
			c.log.WithError(err).Warn("config transfer before connect failed")
		}
	}
	if c.cfg.Manager == nil {
		return errors.New("connect: no tunnel manager")
	}
	if err := c.cfg.Manager.Start(ctx); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	c.log.WithField("profile", c.cfg.Profile.Name).Info("tunnel start requested")
	return nil
}

// Disconnect stops the tunnel.
func (c *Controller) Disconnect(ctx context.Context) error {
	if c.cfg.Manager == nil {
		return errors.New("disconnect: no tunnel manager")
	}
	if err := c.cfg.Manager.Stop(ctx); err != nil {
		return fmt.Errorf("disconnect: %w", err)
	}
	c.cfg.Broker.SetTransport(nil)
	c.log.WithField("profile", c.cfg.Profile.Name).Info("tunnel stop requested")
	return nil
}

// PushConfig sends the patched config blob to the tunnel process. With
// shared storage there is nothing to send.
func (c *Controller) PushConfig(ctx context.Context) error {
	kv, ok := c.cfg.Settings.(*settings.KVProvider)
	if !ok {
		return nil
	}
	blob, err := kv.PatchedConfig()
	if err != nil {
		return fmt.Errorf("push config: %w", err)
	}
	if blob == "" {
		return nil
	}
	if !c.cfg.Broker.Connected() {
		return ErrNotRunning
	}
	if !c.cfg.Broker.SetConfig(ctx, blob) {
		return errors.New("push config: tunnel process rejected config")
	}
	return nil
}

// ImportConfig installs a config blob. Without shared storage the blob is
// cached in the key-value store and pushed patched with the stored
// settings; ErrNotRunning then means it will be sent on the next Connect.
// With shared storage the tunnel process writes it and must be running.
func (c *Controller) ImportConfig(ctx context.Context, blob string) error {
	if kv, ok := c.cfg.Settings.(*settings.KVProvider); ok {
		if err := kv.CacheConfig(blob); err != nil {
			return fmt.Errorf("import config: %w", err)
		}
		return c.PushConfig(ctx)
	}
	doc, err := settings.ParseDocument([]byte(blob))
	if err != nil {
		return fmt.Errorf("import config: %w", err)
	}
	data, err := doc.Bytes()
	if err != nil {
		return fmt.Errorf("import config: %w", err)
	}
	if !c.cfg.Broker.Connected() {
		return ErrNotRunning
	}
	if !c.cfg.Broker.SetConfig(ctx, string(data)) {
		return errors.New("import config: tunnel process rejected config")
	}
	return nil
}

// ClearConfig removes the tunnel process's config and state files.
func (c *Controller) ClearConfig(ctx context.Context) error {
	if !c.cfg.Broker.Connected() {
		return ErrNotRunning
	}
	if !c.cfg.Broker.ClearConfig(ctx) {
		return errors.New("clear config failed")
	}
	return nil
}

// InitializeConfig asks the tunnel process to write a default config.
func (c *Controller) InitializeConfig(ctx context.Context) error {
	if !c.cfg.Broker.Connected() {
		return ErrNotRunning
	}
	if !c.cfg.Broker.InitializeConfig(ctx) {
		return errors.New("initialize config failed")
	}
	return nil
}

// SelectRoute enables a route.
func (c *Controller) SelectRoute(ctx context.Context, id string) error {
	if !c.cfg.Broker.Connected() {
		return ErrNotRunning
	}
	if !c.cfg.Broker.SelectRoute(ctx, id) {
		return fmt.Errorf("select route %q failed", id)
	}
	return nil
}

// DeselectRoute disables a route.
func (c *Controller) DeselectRoute(ctx context.Context, id string) error {
	if !c.cfg.Broker.Connected() {
		return ErrNotRunning
	}
	if !c.cfg.Broker.DeselectRoute(ctx, id) {
		return fmt.Errorf("deselect route %q failed", id)
	}
	return nil
}

// Routes fetches the route selection once.
func (c *Controller) Routes(ctx context.Context) (ipc.RouteSelection, error) {
	if !c.cfg.Broker.Connected() {
		return ipc.RouteSelection{}, ErrNotRunning
	}
	r, ok := c.cfg.Broker.Routes(ctx)
	if !ok {
		return ipc.RouteSelection{}, errors.New("fetch routes failed")
	}
	return r, nil
}

// NewPoller returns a poller over the controller's broker.
func (c *Controller) NewPoller(onStatus func(ipc.StatusSnapshot), onRoutes func(ipc.RouteSelection)) *poller.Poller {
	return poller.New(poller.Config{
		Source:   c.cfg.Broker,
		OnStatus: onStatus,
		OnRoutes: onRoutes,
		Log:      c.cfg.Log,
	})
}

// CommitSettings persists staged settings. Without shared storage the
// patched config is sent to the tunnel process as part of the commit.
func (c *Controller) CommitSettings(ctx context.Context) error {
	if c.cfg.Settings == nil {
		return errors.New("no settings provider")
	}
	if !c.cfg.Settings.Commit(ctx) {
		return errors.New("settings not saved")
	}
	return nil
}
