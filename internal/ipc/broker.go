package ipc

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"github.com/hopboxdev/meshbox/internal/tunnel"
)

// DefaultStatusTimeout bounds a Status round trip.
const DefaultStatusTimeout = 10 * time.Second

// BrokerConfig configures a Broker.
type BrokerConfig struct {
	// Transport may be nil until the session with the tunnel process is
	// established; see SetTransport.
	Transport     Transport
	StatusTimeout time.Duration // default 10s
	Log           *logrus.Entry
	Metrics       *Metrics
}

// Broker is the foreground side of the protocol. Every call fails fast
// with a zero value while no session is established, and decode failures
// are logged and reported as absent data.
type Broker struct {
	cfg    BrokerConfig
	log    *logrus.Entry
	status *semaphore.Weighted

	mu        sync.RWMutex
	transport Transport
}

// NewBroker creates a Broker with defaults applied.
func NewBroker(cfg BrokerConfig) *Broker {
	if cfg.StatusTimeout == 0 {
		cfg.StatusTimeout = DefaultStatusTimeout
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Broker{
		cfg:       cfg,
		log:       cfg.Log.WithField("component", "ipc"),
		status:    semaphore.NewWeighted(1),
		transport: cfg.Transport,
	}
}

// SetTransport installs or, with nil, tears down the session.
func (b *Broker) SetTransport(t Transport) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.transport = t
}

// Connected reports whether a session is established.
func (b *Broker) Connected() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.transport != nil
}

// Send performs one round trip. It returns when the response arrives or
// ctx is done, whichever is first; a late response is discarded.
func (b *Broker) Send(ctx context.Context, msg string) ([]byte, error) {
	b.mu.RLock()
	t := b.transport
	b.mu.RUnlock()

	cmd := commandName(msg)
	if t == nil {
		b.cfg.Metrics.request(cmd, resultNoSession)
		return nil, ErrNoSession
	}

	type result struct {
		data []byte
		err  error
	}
	ch := make(chan result, 1)
	go func() {
		data, err := t.RoundTrip(ctx, msg)
		ch <- result{data, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			b.cfg.Metrics.request(cmd, resultError)
			return nil, r.err
		}
		b.cfg.Metrics.request(cmd, resultOK)
		return r.data, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			b.cfg.Metrics.request(cmd, resultTimeout)
			return nil, ErrTimeout
		}
		b.cfg.Metrics.request(cmd, resultError)
		return nil, ctx.Err()
	}
}

// SendAsync performs Send on a new goroutine and invokes done exactly once
// with the outcome.
func (b *Broker) SendAsync(ctx context.Context, msg string, done func([]byte, error)) {
	c := newCompletion(done)
	go func() {
		data, err := b.Send(ctx, msg)
		c.complete(data, err)
	}()
}

// Status fetches the status snapshot. Only one fetch is in flight at a
// time: a concurrent caller gets a zero snapshot and false immediately.
// A fetch that exceeds the status timeout also yields false.
func (b *Broker) Status(ctx context.Context) (StatusSnapshot, bool) {
	if !b.status.TryAcquire(1) {
		b.cfg.Metrics.statusDropped()
		return defaultSnapshot(), false
	}
	defer b.status.Release(1)

	ctx, cancel := context.WithTimeout(ctx, b.cfg.StatusTimeout)
	defer cancel()

	data, err := b.Send(ctx, CmdStatus)
	if err != nil {
		b.logSendError(CmdStatus, err)
		return defaultSnapshot(), false
	}
	s, err := DecodeStatus(data)
	if err != nil {
		b.log.WithError(err).Warn("malformed status response")
		return defaultSnapshot(), false
	}
	return s, true
}

// Routes fetches the route selection.
func (b *Broker) Routes(ctx context.Context) (RouteSelection, bool) {
	data, err := b.Send(ctx, CmdGetRoutes)
	if err != nil {
		b.logSendError(CmdGetRoutes, err)
		return RouteSelection{}, false
	}
	r, err := DecodeRoutes(data)
	if err != nil {
		b.log.WithError(err).Warn("malformed routes response")
		return RouteSelection{}, false
	}
	return r, true
}

// Login starts a login in the tunnel process and returns the URL to open.
// With deviceAuth the device-code flow is used and UserCode is set.
func (b *Broker) Login(ctx context.Context, deviceAuth bool) (LoginResponse, bool) {
	cmd := CmdLogin
	if deviceAuth {
		cmd = CmdLoginTV
	}
	data, err := b.Send(ctx, cmd)
	if err != nil {
		b.logSendError(cmd, err)
		return LoginResponse{}, false
	}
	resp, err := DecodeLogin(data)
	if err != nil {
		b.log.WithError(err).WithField("command", cmd).Warn("malformed login response")
		return LoginResponse{}, false
	}
	return resp, true
}

// LoginStatus fetches the login diagnostic record.
func (b *Broker) LoginStatus(ctx context.Context) (LoginDiagnostic, bool) {
	data, err := b.Send(ctx, CmdIsLoginComplete)
	if err != nil {
		b.logSendError(CmdIsLoginComplete, err)
		return LoginDiagnostic{}, false
	}
	d, err := DecodeLoginDiagnostic(data)
	if err != nil {
		b.log.WithError(err).Warn("malformed login diagnostic")
		return LoginDiagnostic{}, false
	}
	return d, true
}

// SelectRoute enables the route with the given id.
func (b *Broker) SelectRoute(ctx context.Context, id string) bool {
	return b.ack(ctx, SelectMessage(id))
}

// DeselectRoute disables the route with the given id.
func (b *Broker) DeselectRoute(ctx context.Context, id string) bool {
	return b.ack(ctx, DeselectMessage(id))
}

// SetConfig transfers a serialized SDK configuration.
func (b *Broker) SetConfig(ctx context.Context, json string) bool {
	return b.ack(ctx, SetConfigMessage(json))
}

// ClearConfig removes the tunnel process's configuration and state.
func (b *Broker) ClearConfig(ctx context.Context) bool {
	return b.ack(ctx, CmdClearConfig)
}

// InitializeConfig asks the tunnel process to create a default config.
func (b *Broker) InitializeConfig(ctx context.Context) bool {
	return b.ack(ctx, CmdInitializeConfig)
}

func (b *Broker) ack(ctx context.Context, msg string) bool {
	data, err := b.Send(ctx, msg)
	if err != nil {
		b.logSendError(commandName(msg), err)
		return false
	}
	return DecodeAck(data)
}

func (b *Broker) logSendError(cmd string, err error) {
	entry := b.log.WithField("command", cmd).WithError(err)
	if errors.Is(err, ErrNoSession) {
		entry.Debug("send skipped")
		return
	}
	entry.Warn("send failed")
}

func defaultSnapshot() StatusSnapshot {
	return StatusSnapshot{ManagementStatus: tunnel.StateDisconnected}
}

// completion invokes fn at most once.
type completion struct {
	once sync.Once
	fn   func([]byte, error)
}

func newCompletion(fn func([]byte, error)) *completion {
	return &completion{fn: fn}
}

// complete reports whether this call was the one that ran fn.
func (c *completion) complete(data []byte, err error) bool {
	ran := false
	c.once.Do(func() {
		ran = true
		if c.fn != nil {
			c.fn(data, err)
		}
	})
	return ran
}
