package netcfg

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/hopboxdev/meshbox/internal/routes"
)

func sample() routes.Settings {
	return routes.Settings{
		Address:    "100.64.0.5",
		SubnetMask: "255.255.0.0",
		MTU:        routes.MTU,
		IPv4Routes: []routes.IPv4Route{
			{Destination: "10.1.2.0", Mask: "255.255.255.0"},
			{Destination: "100.64.0.0", Mask: "255.255.0.0"},
		},
		IPv6Routes: []routes.IPv6Route{{Destination: "fd00::", PrefixLength: 64}},
		DNS: &routes.DNSSettings{
			Servers:       []string{"100.64.0.1"},
			MatchDomains:  []string{"corp.example", "mesh.internal"},
			SearchDomains: []string{"mesh.internal"},
		},
	}
}

func lines(cmds []Command) []string {
	var out []string
	for _, c := range cmds {
		out = append(out, c.String())
	}
	return out
}

func TestPlanFromEmpty(t *testing.T) {
	got := lines(Plan("utun100", routes.Settings{}, sample()))
	want := []string{
		"ip addr replace 100.64.0.5/16 dev utun100",
		"ip link set dev utun100 mtu 1280 up",
		"ip route replace 10.1.2.0/24 dev utun100",
		"ip route replace 100.64.0.0/16 dev utun100",
		"ip -6 route replace fd00::/64 dev utun100",
		"resolvectl dns utun100 100.64.0.1",
		"resolvectl domain utun100 ~corp.example mesh.internal",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Plan =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestPlanDiff(t *testing.T) {
	prev := sample()
	next := sample()
	next.IPv4Routes = []routes.IPv4Route{
		{Destination: "100.64.0.0", Mask: "255.255.0.0"},
		{Destination: "192.168.0.0", Mask: "255.255.0.0"},
	}
	got := lines(Plan("utun100", prev, next))
	want := []string{
		"ip link set dev utun100 mtu 1280 up",
		"ip route del 10.1.2.0/24 dev utun100",
		"ip route replace 192.168.0.0/16 dev utun100",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Plan =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestPlanDefaultRouteSplit(t *testing.T) {
	next := routes.Settings{
		IPv4Routes: []routes.IPv4Route{{Destination: "0.0.0.0", Mask: "0.0.0.0"}},
		IPv6Routes: []routes.IPv6Route{{Destination: "::", PrefixLength: 0}},
	}
	got := lines(Plan("wt0", routes.Settings{}, next))
	want := []string{
		"ip route replace 0.0.0.0/1 dev wt0",
		"ip route replace 128.0.0.0/1 dev wt0",
		"ip -6 route replace ::/1 dev wt0",
		"ip -6 route replace 8000::/1 dev wt0",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Plan = %v, want %v", got, want)
	}
}

func TestPlanDNSRouteAllWithPort(t *testing.T) {
	next := routes.Settings{DNS: &routes.DNSSettings{
		Servers:      []string{"100.64.0.1"},
		Port:         5053,
		MatchDomains: []string{""},
	}}
	got := lines(Plan("wt0", routes.Settings{}, next))
	want := []string{
		"resolvectl dns wt0 100.64.0.1:5053",
		"resolvectl domain wt0 ~.",
	}
	if !slices.Equal(got, want) {
		t.Errorf("Plan = %v, want %v", got, want)
	}
}

func TestPlanDNSRemoved(t *testing.T) {
	prev := routes.Settings{DNS: &routes.DNSSettings{Servers: []string{"1.1.1.1"}}}
	got := lines(Plan("wt0", prev, routes.Settings{}))
	if !slices.Equal(got, []string{"resolvectl revert wt0"}) {
		t.Errorf("Plan = %v", got)
	}
}

func TestPlanUnchangedDNSSkipped(t *testing.T) {
	got := lines(Plan("wt0", sample(), sample()))
	for _, l := range got {
		if strings.HasPrefix(l, "resolvectl") {
			t.Errorf("unchanged DNS reapplied: %q", l)
		}
	}
}

func TestResetPlan(t *testing.T) {
	got := lines(ResetPlan("utun100", sample()))
	want := []string{
		"ip route del 10.1.2.0/24 dev utun100",
		"ip route del 100.64.0.0/16 dev utun100",
		"ip -6 route del fd00::/64 dev utun100",
		"ip addr del 100.64.0.5/16 dev utun100",
		"resolvectl revert utun100",
	}
	if !slices.Equal(got, want) {
		t.Errorf("ResetPlan =\n%s\nwant\n%s", strings.Join(got, "\n"), strings.Join(want, "\n"))
	}
}

func TestHostPort(t *testing.T) {
	if got := hostPort("10.0.0.1", 5353); got != "10.0.0.1:5353" {
		t.Errorf("hostPort v4 = %q", got)
	}
	if got := hostPort("fd00::1", 5353); got != "[fd00::1]:5353" {
		t.Errorf("hostPort v6 = %q", got)
	}
}

type fakeRunner struct {
	ran  []string
	fail string
}

func (f *fakeRunner) run(_ context.Context, name string, args ...string) ([]byte, error) {
	line := name + " " + strings.Join(args, " ")
	f.ran = append(f.ran, line)
	if f.fail != "" && strings.Contains(line, f.fail) {
		return []byte("RTNETLINK answers: File exists"), errors.New("exit status 2")
	}
	return nil, nil
}

func TestIPRoute2ApplyContinuesAfterFailure(t *testing.T) {
	logger, hook := test.NewNullLogger()
	fr := &fakeRunner{fail: "10.1.2.0/24"}
	a := NewIPRoute2("utun100", fr.run, logrus.NewEntry(logger))

	err := a.Apply(t.Context(), sample())
	if err == nil || !strings.Contains(err.Error(), "File exists") {
		t.Fatalf("Apply err = %v, want command output in error", err)
	}
	if len(fr.ran) != 7 {
		t.Errorf("ran %d commands, want 7", len(fr.ran))
	}
	if e := hook.LastEntry(); e == nil || e.Level != logrus.WarnLevel {
		t.Errorf("expected warning log, got %v", e)
	}

	fr.ran = nil
	fr.fail = ""
	if err := a.Reset(t.Context()); err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if len(fr.ran) != 5 {
		t.Errorf("Reset ran %d commands, want 5", len(fr.ran))
	}
	fr.ran = nil
	if err := a.Reset(t.Context()); err != nil || len(fr.ran) != 0 {
		t.Errorf("second Reset ran %v, %v", fr.ran, err)
	}
}
