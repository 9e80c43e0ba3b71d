package routes

import (
	"slices"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
)

// MTU is the fixed tunnel MTU.
const MTU = 1280

// Settings are the OS-level network settings for the tunnel interface.
type Settings struct {
	Address        string       `json:"address"`
	SubnetMask     string       `json:"subnet_mask"`
	MTU            int          `json:"mtu"`
	IPv4Routes     []IPv4Route  `json:"ipv4_routes"`
	IPv6Routes     []IPv6Route  `json:"ipv6_routes"`
	IncludeDefault bool         `json:"include_default"`
	DNS            *DNSSettings `json:"dns,omitempty"`
}

// Builder accumulates route, interface-address and DNS updates, which the
// SDK delivers through separate callbacks, into one Settings value.
type Builder struct {
	log *logrus.Entry

	mu          sync.Mutex
	table       Table
	interfaceIP string
	dns         *DNSSettings
}

// NewBuilder returns an empty Builder.
func NewBuilder(log *logrus.Entry) *Builder {
	return &Builder{log: log}
}

// SetRoutes replaces the route table with the parsed list.
func (b *Builder) SetRoutes(list string) Settings {
	t := Parse(list, b.log)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.table = t
	return b.settingsLocked()
}

// SetInterfaceIP records the tunnel interface's own address, either a bare
// IPv4 address or a CIDR.
func (b *Builder) SetInterfaceIP(ip string) Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.interfaceIP = strings.TrimSpace(ip)
	return b.settingsLocked()
}

// SetDNS applies a DNS configuration document. An empty or malformed
// payload leaves the previous DNS settings in place and reports false.
func (b *Builder) SetDNS(payload string) (Settings, bool) {
	cfg, ok := ParseDNS(payload)
	b.mu.Lock()
	defer b.mu.Unlock()
	if !ok {
		if b.log != nil {
			b.log.Warn("ignoring empty or malformed DNS configuration")
		}
		return b.settingsLocked(), false
	}
	dns := TranslateDNS(cfg)
	b.dns = &dns
	return b.settingsLocked(), true
}

// Settings returns the current merged settings.
func (b *Builder) Settings() Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settingsLocked()
}

func (b *Builder) settingsLocked() Settings {
	s := Settings{
		MTU:            MTU,
		IPv4Routes:     slices.Clone(b.table.IPv4),
		IPv6Routes:     slices.Clone(b.table.IPv6),
		IncludeDefault: b.table.ContainsDefault,
	}
	if b.dns != nil {
		dns := *b.dns
		s.DNS = &dns
	}
	if local, ok := b.localRoute(); ok {
		s.Address = local.address
		s.SubnetMask = local.route.Mask
		if !slices.Contains(s.IPv4Routes, local.route) {
			s.IPv4Routes = append(s.IPv4Routes, local.route)
		}
	}
	return s
}

type localAddr struct {
	address string
	route   IPv4Route
}

func (b *Builder) localRoute() (localAddr, bool) {
	if b.interfaceIP == "" {
		return localAddr{}, false
	}
	cidr := b.interfaceIP
	if !strings.Contains(cidr, "/") {
		cidr += "/32"
	}
	r, ok := parseIPv4(cidr)
	if !ok {
		if b.log != nil {
			b.log.WithField("ip", b.interfaceIP).Warn("ignoring invalid interface address")
		}
		return localAddr{}, false
	}
	addr, _, _ := strings.Cut(cidr, "/")
	return localAddr{address: addr, route: r}, true
}
