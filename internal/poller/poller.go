// Package poller refreshes tunnel status and route selection for the
// foreground process while it is active.
package poller

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/hopboxdev/meshbox/internal/ipc"
)

// DefaultInterval is the status refresh interval.
const DefaultInterval = 3 * time.Second

// Source is the subset of the broker the poller needs.
type Source interface {
	Status(ctx context.Context) (ipc.StatusSnapshot, bool)
	Routes(ctx context.Context) (ipc.RouteSelection, bool)
}

// Config configures a Poller.
type Config struct {
	Source   Source
	Interval time.Duration // default 3s
	// OnStatus is called when a fetched snapshot differs from the last
	// delivered one.
	OnStatus func(ipc.StatusSnapshot)
	// OnRoutes is called with every successful route fetch.
	OnRoutes func(ipc.RouteSelection)
	Log      *logrus.Entry
}

// Poller fetches status on a timer while active and routes on demand.
type Poller struct {
	cfg Config

	mu         sync.Mutex
	cancel     context.CancelFunc
	generation uint64
	last       *ipc.StatusSnapshot
	wg         sync.WaitGroup
}

// New creates a Poller with defaults applied.
func New(cfg Config) *Poller {
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	cfg.Log = cfg.Log.WithField("component", "poller")
	return &Poller{cfg: cfg}
}

// Start activates the poller: it fetches immediately and then on every
// tick. Calling Start on an active poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.generation++
	gen := p.generation

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.run(ctx, gen)
	}()
	p.cfg.Log.Debug("started")
}

// Stop deactivates the poller. No further fetches are issued; the result
// of a fetch already in flight is discarded.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return
	}
	p.cancel()
	p.cancel = nil
	p.generation++
	p.mu.Unlock()
	p.cfg.Log.Debug("stopped")
}

// Wait blocks until the timer goroutine of a stopped poller has exited.
func (p *Poller) Wait() {
	p.wg.Wait()
}

// Active reports whether the poller is running.
func (p *Poller) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cancel != nil
}

// Refresh fetches status now, outside the timer. It does nothing while
// the poller is inactive.
func (p *Poller) Refresh(ctx context.Context) {
	p.mu.Lock()
	if p.cancel == nil {
		p.mu.Unlock()
		return
	}
	gen := p.generation
	p.mu.Unlock()
	p.fetchStatus(ctx, gen)
}

// RefreshRoutes fetches the route selection and reports it via OnRoutes.
func (p *Poller) RefreshRoutes(ctx context.Context) (ipc.RouteSelection, bool) {
	r, ok := p.cfg.Source.Routes(ctx)
	if !ok {
		return r, false
	}
	if p.cfg.OnRoutes != nil {
		p.cfg.OnRoutes(r)
	}
	return r, true
}

// Last returns the last delivered snapshot.
func (p *Poller) Last() (ipc.StatusSnapshot, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.last == nil {
		return ipc.StatusSnapshot{}, false
	}
	return *p.last, true
}

func (p *Poller) run(ctx context.Context, gen uint64) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	p.fetchStatus(ctx, gen)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.fetchStatus(ctx, gen)
		}
	}
}

func (p *Poller) fetchStatus(ctx context.Context, gen uint64) {
	s, ok := p.cfg.Source.Status(ctx)
	if !ok {
		return
	}
	p.mu.Lock()
	if gen != p.generation {
		p.mu.Unlock()
		return
	}
	if p.last != nil && p.last.Equal(s) {
		p.mu.Unlock()
		return
	}
	p.last = &s
	p.mu.Unlock()

	if p.cfg.OnStatus != nil {
		p.cfg.OnStatus(s)
	}
}
