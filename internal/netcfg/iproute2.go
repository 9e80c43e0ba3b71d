package netcfg

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hopboxdev/meshbox/internal/routes"
)

// Command is one host command.
type Command struct {
	Name string
	Args []string
}

func (c Command) String() string {
	return c.Name + " " + strings.Join(c.Args, " ")
}

// Runner executes a command and returns its combined output.
type Runner func(ctx context.Context, name string, args ...string) ([]byte, error)

// ExecRunner runs commands with os/exec.
func ExecRunner(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// IPRoute2 applies settings on Linux with ip(8) and resolvectl(1).
// It remembers what it applied so updates only add and remove the
// difference.
type IPRoute2 struct {
	iface string
	run   Runner
	log   *logrus.Entry

	mu   sync.Mutex
	prev routes.Settings
}

// NewIPRoute2 returns an applier for iface. A nil run uses ExecRunner.
func NewIPRoute2(iface string, run Runner, log *logrus.Entry) *IPRoute2 {
	if run == nil {
		run = ExecRunner
	}
	return &IPRoute2{iface: iface, run: run, log: log}
}

// Apply brings the interface to s. Individual command failures are
// logged and joined; later commands still run.
func (a *IPRoute2) Apply(ctx context.Context, s routes.Settings) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.exec(ctx, Plan(a.iface, a.prev, s))
	a.prev = s
	return err
}

// Reset removes everything Apply added.
func (a *IPRoute2) Reset(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	err := a.exec(ctx, ResetPlan(a.iface, a.prev))
	a.prev = routes.Settings{}
	return err
}

func (a *IPRoute2) exec(ctx context.Context, cmds []Command) error {
	var errs []error
	for _, c := range cmds {
		out, err := a.run(ctx, c.Name, c.Args...)
		if err != nil {
			err = fmt.Errorf("%s: %w: %s", c, err, strings.TrimSpace(string(out)))
			a.log.WithError(err).Warn("network command failed")
			errs = append(errs, err)
			continue
		}
		a.log.WithField("cmd", c.String()).Debug("network command")
	}
	return errors.Join(errs...)
}

// Plan returns the commands that move iface from prev to next.
func Plan(iface string, prev, next routes.Settings) []Command {
	var cmds []Command

	prevAddr, nextAddr := addrCIDR(prev), addrCIDR(next)
	if prevAddr != "" && prevAddr != nextAddr {
		cmds = append(cmds, ip(ipAddrDelArgs(iface, prevAddr)))
	}
	if nextAddr != "" && nextAddr != prevAddr {
		cmds = append(cmds, ip(ipAddrReplaceArgs(iface, nextAddr)))
	}
	if next.MTU > 0 {
		cmds = append(cmds, ip(ipLinkUpArgs(iface, next.MTU)))
	}

	prev4, next4 := ipv4Dests(prev), ipv4Dests(next)
	for _, d := range prev4 {
		if !slices.Contains(next4, d) {
			cmds = append(cmds, ip(ipRouteArgs("del", iface, d)))
		}
	}
	for _, d := range next4 {
		if !slices.Contains(prev4, d) {
			cmds = append(cmds, ip(ipRouteArgs("replace", iface, d)))
		}
	}
	prev6, next6 := ipv6Dests(prev), ipv6Dests(next)
	for _, d := range prev6 {
		if !slices.Contains(next6, d) {
			cmds = append(cmds, ip(append([]string{"-6"}, ipRouteArgs("del", iface, d)...)))
		}
	}
	for _, d := range next6 {
		if !slices.Contains(prev6, d) {
			cmds = append(cmds, ip(append([]string{"-6"}, ipRouteArgs("replace", iface, d)...)))
		}
	}

	switch {
	case next.DNS == nil && prev.DNS != nil:
		cmds = append(cmds, resolvectl(resolvectlRevertArgs(iface)))
	case next.DNS != nil && !dnsEqual(prev.DNS, next.DNS):
		if len(next.DNS.Servers) > 0 {
			cmds = append(cmds, resolvectl(resolvectlDNSArgs(iface, next.DNS)))
		}
		cmds = append(cmds, resolvectl(resolvectlDomainArgs(iface, next.DNS)))
	}
	return cmds
}

// ResetPlan returns the commands that undo prev.
func ResetPlan(iface string, prev routes.Settings) []Command {
	var cmds []Command
	for _, d := range ipv4Dests(prev) {
		cmds = append(cmds, ip(ipRouteArgs("del", iface, d)))
	}
	for _, d := range ipv6Dests(prev) {
		cmds = append(cmds, ip(append([]string{"-6"}, ipRouteArgs("del", iface, d)...)))
	}
	if addr := addrCIDR(prev); addr != "" {
		cmds = append(cmds, ip(ipAddrDelArgs(iface, addr)))
	}
	if prev.DNS != nil {
		cmds = append(cmds, resolvectl(resolvectlRevertArgs(iface)))
	}
	return cmds
}

func ip(args []string) Command         { return Command{Name: "ip", Args: args} }
func resolvectl(args []string) Command { return Command{Name: "resolvectl", Args: args} }

func ipAddrReplaceArgs(iface, cidr string) []string {
	return []string{"addr", "replace", cidr, "dev", iface}
}

func ipAddrDelArgs(iface, cidr string) []string {
	return []string{"addr", "del", cidr, "dev", iface}
}

func ipLinkUpArgs(iface string, mtu int) []string {
	return []string{"link", "set", "dev", iface, "mtu", strconv.Itoa(mtu), "up"}
}

func ipRouteArgs(op, iface, dest string) []string {
	return []string{"route", op, dest, "dev", iface}
}

func resolvectlDNSArgs(iface string, dns *routes.DNSSettings) []string {
	args := []string{"dns", iface}
	for _, s := range dns.Servers {
		if dns.Port > 0 && dns.Port != 53 {
			s = hostPort(s, dns.Port)
		}
		args = append(args, s)
	}
	return args
}

// resolvectlDomainArgs lists match domains as routing-only (~) entries
// and search domains plain. An empty match domain routes every query.
func resolvectlDomainArgs(iface string, dns *routes.DNSSettings) []string {
	args := []string{"domain", iface}
	for _, d := range dns.MatchDomains {
		if d == "" {
			args = append(args, "~.")
			continue
		}
		if slices.Contains(dns.SearchDomains, d) {
			continue
		}
		args = append(args, "~"+d)
	}
	args = append(args, dns.SearchDomains...)
	return args
}

func resolvectlRevertArgs(iface string) []string {
	return []string{"revert", iface}
}

func hostPort(host string, port int) string {
	if strings.Contains(host, ":") {
		return "[" + host + "]:" + strconv.Itoa(port)
	}
	return host + ":" + strconv.Itoa(port)
}

func addrCIDR(s routes.Settings) string {
	if s.Address == "" {
		return ""
	}
	return fmt.Sprintf("%s/%d", s.Address, routes.MaskBits(s.SubnetMask))
}

// ipv4Dests returns route destinations in CIDR form. A default route is
// installed as two /1 halves so it wins over the host's own default
// without replacing it.
func ipv4Dests(s routes.Settings) []string {
	var out []string
	for _, r := range s.IPv4Routes {
		d := r.String()
		if d == "0.0.0.0/0" {
			out = append(out, "0.0.0.0/1", "128.0.0.0/1")
			continue
		}
		out = append(out, d)
	}
	return out
}

func ipv6Dests(s routes.Settings) []string {
	var out []string
	for _, r := range s.IPv6Routes {
		if r.PrefixLength == 0 {
			out = append(out, "::/1", "8000::/1")
			continue
		}
		out = append(out, r.String())
	}
	return out
}

func dnsEqual(a, b *routes.DNSSettings) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Port == b.Port &&
		slices.Equal(a.Servers, b.Servers) &&
		slices.Equal(a.MatchDomains, b.MatchDomains) &&
		slices.Equal(a.SearchDomains, b.SearchDomains)
}
