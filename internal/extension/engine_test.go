package extension

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/hopboxdev/meshbox/internal/netcfg"
	"github.com/hopboxdev/meshbox/internal/routes"
	"github.com/hopboxdev/meshbox/internal/tunnel"
)

type transitions struct {
	mu   sync.Mutex
	seen []tunnel.State
}

func (t *transitions) record(_, next tunnel.State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.seen = append(t.seen, next)
}

func (t *transitions) list() []tunnel.State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return slices.Clone(t.seen)
}

func newEngine(t *testing.T, c *fakeClient, rec *netcfg.Recorder, tr *transitions) *Engine {
	t.Helper()
	cfg := Config{
		Client:     c,
		Applier:    rec,
		ForceRelay: true,
		Log:        testLog(),
	}
	if tr != nil {
		cfg.Machine.OnChange = tr.record
	}
	e, err := NewEngine(cfg)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func TestNewEngineRequiresClient(t *testing.T) {
	if _, err := NewEngine(Config{}); err == nil {
		t.Error("expected error without client")
	}
}

func TestStartPassesEnvironment(t *testing.T) {
	c := &fakeClient{}
	e := newEngine(t, c, nil, nil)

	if err := e.Start(t.Context(), 7, "utun3"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	want := startCall{fd: 7, ifName: "utun3"}
	want.env.ForceRelay = true
	if len(c.starts) != 1 || c.starts[0] != want {
		t.Fatalf("starts = %+v, want [%+v]", c.starts, want)
	}
	if got := e.Machine().State(); got != tunnel.StateConnecting {
		t.Errorf("state = %v, want connecting", got)
	}
	e.OnConnected()
	if got := e.Machine().State(); got != tunnel.StateConnected {
		t.Errorf("state = %v, want connected", got)
	}
}

func TestStartFailureIsNotRetried(t *testing.T) {
	c := &fakeClient{startErr: errors.New("bad fd")}
	e := newEngine(t, c, nil, nil)

	if err := e.Start(t.Context(), 3, "utun3"); err == nil {
		t.Fatal("Start succeeded, want error")
	}
	time.Sleep(20 * time.Millisecond)
	if n := c.startCount(); n != 1 {
		t.Errorf("Start called %d times, want 1", n)
	}
	if got := e.Machine().State(); got != tunnel.StateDisconnected {
		t.Errorf("state = %v, want disconnected", got)
	}
}

func TestStartFailureWhileNetworkDown(t *testing.T) {
	c := &fakeClient{startErr: errors.New("boom")}
	e := newEngine(t, c, nil, nil)
	e.Machine().SetNetworkAvailable(false)

	if err := e.Start(t.Context(), 3, "utun3"); err == nil {
		t.Fatal("Start succeeded, want error")
	}
	if got := e.Machine().State(); got != tunnel.StateDisconnected {
		t.Errorf("state = %v, want disconnected", got)
	}
	if e.Started() {
		t.Error("Started() = true after failed start")
	}
	if n := c.startCount(); n != 1 {
		t.Errorf("Start called %d times, want 1", n)
	}
}

func TestRestartSuppressesDisconnecting(t *testing.T) {
	c := &fakeClient{}
	tr := &transitions{}
	e := newEngine(t, c, nil, tr)
	c.listener = e

	if err := e.Start(t.Context(), 5, "utun5"); err != nil {
		t.Fatal(err)
	}
	e.OnConnected()

	if err := e.Restart(t.Context()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if n := c.startCount(); n != 2 {
		t.Fatalf("Start called %d times, want 2", n)
	}
	if slices.Contains(tr.list(), tunnel.StateDisconnecting) {
		t.Errorf("transitions %v include disconnecting during restart", tr.list())
	}
	if e.Machine().Restarting() {
		t.Error("restart flag still set after disconnected callback")
	}
}

func TestRestartTimesOutWithoutCallback(t *testing.T) {
	c := &fakeClient{}
	e, err := NewEngine(Config{Client: c, Log: testLog(), StopTimeout: 20 * time.Millisecond})
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Start(t.Context(), 5, "utun5"); err != nil {
		t.Fatal(err)
	}
	if err := e.Restart(t.Context()); err != nil {
		t.Fatalf("Restart: %v", err)
	}
	if n := c.startCount(); n != 2 {
		t.Errorf("Start called %d times, want 2", n)
	}
}

func TestRestartBeforeStart(t *testing.T) {
	e := newEngine(t, &fakeClient{}, nil, nil)
	if err := e.Restart(t.Context()); err == nil {
		t.Error("Restart before Start succeeded")
	}
}

func TestStopResetsSettings(t *testing.T) {
	c := &fakeClient{}
	rec := &netcfg.Recorder{}
	e := newEngine(t, c, rec, nil)
	if err := e.Start(t.Context(), 5, "utun5"); err != nil {
		t.Fatal(err)
	}
	e.OnNetworkChanged("10.0.0.0/8")
	e.Stop(t.Context())

	if c.stops != 1 {
		t.Errorf("stops = %d, want 1", c.stops)
	}
	if _, ok := rec.Last(); ok {
		t.Error("settings still applied after Stop")
	}
	e.Stop(t.Context())
	if c.stops != 1 {
		t.Errorf("second Stop reached the SDK")
	}
}

func TestNetworkChangedAppliesRoutes(t *testing.T) {
	rec := &netcfg.Recorder{}
	e := newEngine(t, &fakeClient{}, rec, nil)

	e.SetInterfaceIP("100.64.0.5/16")
	e.OnNetworkChanged("10.1.2.3/24, fd00::/64, bogus")

	s, ok := rec.Last()
	if !ok {
		t.Fatal("nothing applied")
	}
	if s.MTU != routes.MTU {
		t.Errorf("MTU = %d, want %d", s.MTU, routes.MTU)
	}
	if s.Address != "100.64.0.5" || s.SubnetMask != "255.255.0.0" {
		t.Errorf("address = %s/%s", s.Address, s.SubnetMask)
	}
	wantV4 := []routes.IPv4Route{
		{Destination: "10.1.2.0", Mask: "255.255.255.0"},
		{Destination: "100.64.0.0", Mask: "255.255.0.0"},
	}
	if !slices.Equal(s.IPv4Routes, wantV4) {
		t.Errorf("IPv4Routes = %v, want %v", s.IPv4Routes, wantV4)
	}
	if len(s.IPv6Routes) != 1 || s.IPv6Routes[0].PrefixLength != 64 {
		t.Errorf("IPv6Routes = %v", s.IPv6Routes)
	}
}

func TestApplyDNS(t *testing.T) {
	rec := &netcfg.Recorder{}
	e := newEngine(t, &fakeClient{}, rec, nil)

	e.ApplyDNS("")
	e.ApplyDNS("{not json")
	if rec.Count() != 0 {
		t.Fatalf("malformed DNS applied %d times", rec.Count())
	}

	e.ApplyDNS(`{"ServerIP":"100.64.0.1","ServerPort":53,"RouteAll":false,"Domains":[{"Domain":"mesh.internal","MatchOnly":false}]}`)
	s, ok := rec.Last()
	if !ok || s.DNS == nil {
		t.Fatal("DNS not applied")
	}
	if !slices.Equal(s.DNS.MatchDomains, []string{"mesh.internal"}) {
		t.Errorf("MatchDomains = %v", s.DNS.MatchDomains)
	}
}

func TestIgnoredCallbacks(t *testing.T) {
	rec := &netcfg.Recorder{}
	e := newEngine(t, &fakeClient{}, rec, nil)
	e.OnAddressChanged("me.mesh", "100.64.0.5")
	e.OnPeersListChanged(4)
	if rec.Count() != 0 {
		t.Errorf("ignored callbacks applied settings")
	}
}

// gatedApplier holds its first Apply until gate is closed.
type gatedApplier struct {
	netcfg.Recorder
	entered chan struct{}
	gate    chan struct{}
	once    sync.Once
}

func (g *gatedApplier) Apply(ctx context.Context, s routes.Settings) error {
	first := false
	g.once.Do(func() { first = true })
	if first {
		close(g.entered)
		<-g.gate
	}
	return g.Recorder.Apply(ctx, s)
}

func TestConcurrentCallbacksApplyLatestSettings(t *testing.T) {
	g := &gatedApplier{entered: make(chan struct{}), gate: make(chan struct{})}
	e, err := NewEngine(Config{Client: &fakeClient{}, Applier: g, Log: testLog()})
	if err != nil {
		t.Fatal(err)
	}

	routesDone := make(chan struct{})
	go func() {
		defer close(routesDone)
		e.OnNetworkChanged("10.0.0.0/8")
	}()
	<-g.entered

	dnsDone := make(chan struct{})
	go func() {
		defer close(dnsDone)
		e.ApplyDNS(`{"ServerIP":"100.64.0.1","ServerPort":53,"RouteAll":true}`)
	}()
	time.Sleep(20 * time.Millisecond)
	close(g.gate)
	<-routesDone
	<-dnsDone

	if e.Settings().DNS == nil {
		t.Fatal("builder lost DNS settings")
	}
	last, ok := g.Last()
	if !ok {
		t.Fatal("nothing applied")
	}
	if last.DNS == nil {
		t.Error("last settings applied to the host have no DNS")
	}
	if len(last.IPv4Routes) == 0 {
		t.Error("last settings applied to the host have no routes")
	}
	if n := g.Count(); n != 2 {
		t.Errorf("Apply called %d times, want 2", n)
	}
}
