package tunnel

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// NetEvent is emitted by NetMonitor when network availability changes.
type NetEvent struct {
	Available bool
	At        time.Time
	DownSince time.Time     // zero when Available
	Duration  time.Duration // outage duration (only set on recovery)
}

// MonitorConfig configures a NetMonitor.
type MonitorConfig struct {
	Probe         Probe
	Interval      time.Duration // default 5s
	Timeout       time.Duration // per-probe timeout, default 3s
	FailThreshold int           // consecutive failures before declaring unavailable, default 2
	OnChange      func(NetEvent)
	Log           *logrus.Entry
}

// NetMonitor periodically probes network reachability and reports
// availability changes via OnChange.
type NetMonitor struct {
	cfg       MonitorConfig
	mu        sync.RWMutex
	available bool
	lastOK    time.Time
	downSince time.Time
	failCount int
}

// NewNetMonitor creates a NetMonitor with defaults applied. The network is
// assumed available until the probe says otherwise.
func NewNetMonitor(cfg MonitorConfig) *NetMonitor {
	if cfg.Interval == 0 {
		cfg.Interval = 5 * time.Second
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 3 * time.Second
	}
	if cfg.FailThreshold == 0 {
		cfg.FailThreshold = 2
	}
	if cfg.Log == nil {
		cfg.Log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &NetMonitor{
		cfg:       cfg,
		available: true,
		lastOK:    time.Now(),
	}
}

// Run starts the probe loop. Blocks until ctx is cancelled.
func (m *NetMonitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.check(ctx)
		}
	}
}

func (m *NetMonitor) check(ctx context.Context) {
	checkCtx, cancel := context.WithTimeout(ctx, m.cfg.Timeout)
	defer cancel()
	if m.cfg.Probe != nil && !m.cfg.Probe(checkCtx) {
		m.recordFailure()
		return
	}
	m.recordSuccess()
}

func (m *NetMonitor) recordFailure() {
	m.mu.Lock()
	m.failCount++
	var evt *NetEvent
	if m.failCount >= m.cfg.FailThreshold && m.available {
		now := time.Now()
		m.available = false
		m.downSince = now
		evt = &NetEvent{Available: false, At: now, DownSince: now}
	}
	m.mu.Unlock()

	if evt != nil {
		m.cfg.Log.Warn("network unavailable")
		if m.cfg.OnChange != nil {
			m.cfg.OnChange(*evt)
		}
	}
}

func (m *NetMonitor) recordSuccess() {
	m.mu.Lock()
	now := time.Now()
	m.lastOK = now
	m.failCount = 0

	var evt *NetEvent
	if !m.available {
		downSince := m.downSince
		m.available = true
		m.downSince = time.Time{}
		evt = &NetEvent{Available: true, At: now, Duration: now.Sub(downSince)}
	}
	m.mu.Unlock()

	if evt != nil {
		m.cfg.Log.WithField("outage", evt.Duration.Round(time.Millisecond)).Info("network available")
		if m.cfg.OnChange != nil {
			m.cfg.OnChange(*evt)
		}
	}
}

// Available returns the current availability and the time of the last
// successful probe.
func (m *NetMonitor) Available() (bool, time.Time) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.available, m.lastOK
}
