package extension

import (
	"context"
	"os"
	"path/filepath"
	"slices"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hopboxdev/meshbox/internal/ipc"
	"github.com/hopboxdev/meshbox/internal/sdk"
	"github.com/hopboxdev/meshbox/internal/tunnel"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 2s")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestRunServesIPC(t *testing.T) {
	dir := t.TempDir()
	sock := filepath.Join(dir, "s.sock")
	runPath := filepath.Join(dir, "run.json")

	c := &fakeClient{status: &sdk.StatusDetails{IP: "100.64.0.5", FQDN: "me.mesh"}}
	e := newEngine(t, c, nil, nil)

	probeCalled := make(chan struct{}, 1)
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() {
		done <- e.Run(ctx, RunConfig{
			Profile:      "work",
			SocketPath:   sock,
			RunStatePath: runPath,
			Interface:    "utun9",
			Probe: func(context.Context) bool {
				select {
				case probeCalled <- struct{}{}:
				default:
				}
				return true
			},
			MonitorInterval: 10 * time.Millisecond,
		})
	}()

	tr := ipc.NewSocketTransport(sock)
	waitFor(t, tr.IsReachable)

	b := ipc.NewBroker(ipc.BrokerConfig{Transport: tr, Log: testLog()})
	snap, ok := b.Status(t.Context())
	if !ok || snap.IP != "100.64.0.5" {
		t.Errorf("Status = %+v, %v", snap, ok)
	}

	rs, err := tunnel.LoadRunState(runPath)
	if err != nil || rs == nil {
		t.Fatalf("LoadRunState = %v, %v", rs, err)
	}
	if rs.PID != os.Getpid() || rs.Profile != "work" || rs.SocketPath != sock {
		t.Errorf("run state = %+v", rs)
	}

	e.OnConnecting()
	e.OnConnected()
	waitFor(t, func() bool {
		rs, _ := tunnel.LoadRunState(runPath)
		return rs != nil && rs.State == tunnel.StateConnected
	})

	select {
	case <-probeCalled:
	case <-time.After(2 * time.Second):
		t.Error("network monitor never probed")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if _, err := os.Stat(runPath); !os.IsNotExist(err) {
		t.Errorf("run state not removed: %v", err)
	}
	if tr.IsReachable() {
		t.Error("socket still reachable after Run returned")
	}
}

func TestRunMonitorMarksNetworkUnavailable(t *testing.T) {
	dir := t.TempDir()
	e := newEngine(t, &fakeClient{}, nil, nil)

	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	defer func() {
		cancel()
		<-done
	}()
	go func() {
		defer close(done)
		_ = e.Run(ctx, RunConfig{
			SocketPath:      filepath.Join(dir, "s.sock"),
			Probe:           func(context.Context) bool { return false },
			MonitorInterval: 5 * time.Millisecond,
		})
	}()

	waitFor(t, e.Machine().NetworkUnavailable)
	e.OnDisconnected()
	if got := e.Machine().State(); got != tunnel.StateConnecting {
		t.Errorf("state = %v, want connecting while network is down", got)
	}
}

func TestRunRestartsOnNetworkRecovery(t *testing.T) {
	dir := t.TempDir()
	c := &fakeClient{}
	tr := &transitions{}
	e := newEngine(t, c, nil, tr)
	c.listener = e

	if err := e.Start(t.Context(), 5, "utun5"); err != nil {
		t.Fatal(err)
	}
	e.OnConnected()

	var up atomic.Bool
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	defer func() {
		cancel()
		<-done
	}()
	go func() {
		defer close(done)
		_ = e.Run(ctx, RunConfig{
			SocketPath:      filepath.Join(dir, "s.sock"),
			Probe:           func(context.Context) bool { return up.Load() },
			MonitorInterval: 5 * time.Millisecond,
		})
	}()

	waitFor(t, e.Machine().NetworkUnavailable)
	if n := c.startCount(); n != 1 {
		t.Fatalf("Start called %d times while the network was down, want 1", n)
	}

	up.Store(true)
	waitFor(t, func() bool { return c.startCount() == 2 })
	waitFor(t, func() bool { return !e.Machine().Restarting() })

	if slices.Contains(tr.list(), tunnel.StateDisconnecting) {
		t.Errorf("transitions %v include disconnecting during restart", tr.list())
	}
	c.mu.Lock()
	second := c.starts[1]
	c.mu.Unlock()
	if got := second; got.fd != 5 || got.ifName != "utun5" {
		t.Errorf("restart used %+v, want fd 5 on utun5", got)
	}
}

func TestRunDoesNotRestartStoppedTunnel(t *testing.T) {
	dir := t.TempDir()
	c := &fakeClient{}
	e := newEngine(t, c, nil, nil)

	var up atomic.Bool
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan struct{})
	defer func() {
		cancel()
		<-done
	}()
	go func() {
		defer close(done)
		_ = e.Run(ctx, RunConfig{
			SocketPath:      filepath.Join(dir, "s.sock"),
			Probe:           func(context.Context) bool { return up.Load() },
			MonitorInterval: 5 * time.Millisecond,
		})
	}()

	waitFor(t, e.Machine().NetworkUnavailable)
	up.Store(true)
	waitFor(t, func() bool { return !e.Machine().NetworkUnavailable() })
	time.Sleep(20 * time.Millisecond)

	if n := c.startCount(); n != 0 {
		t.Errorf("Start called %d times for a tunnel that was never started", n)
	}
}
