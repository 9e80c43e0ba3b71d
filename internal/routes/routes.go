// Package routes translates SDK-reported network state into OS tunnel
// settings: IPv4/IPv6 route lists, DNS resolver configuration and the
// tunnel-local address.
package routes

import (
	"fmt"
	"net/netip"
	"regexp"
	"strconv"
	"strings"

	"github.com/sirupsen/logrus"
)

var (
	ipv4CIDR = regexp.MustCompile(`^(\d{1,3})\.(\d{1,3})\.(\d{1,3})\.(\d{1,3})/(\d{1,2})$`)
	ipv6CIDR = regexp.MustCompile(`^([0-9a-fA-F]{0,4}(?::[0-9a-fA-F]{0,4}){2,7}(?::\d{1,3}(?:\.\d{1,3}){3})?)/(\d{1,3})$`)
)

// IPv4Route is a destination network and its dotted-decimal subnet mask.
type IPv4Route struct {
	Destination string `json:"destination"`
	Mask        string `json:"mask"`
}

// String returns the route in CIDR notation.
func (r IPv4Route) String() string {
	return fmt.Sprintf("%s/%d", r.Destination, MaskBits(r.Mask))
}

// IPv6Route is a destination address and prefix length.
type IPv6Route struct {
	Destination  string `json:"destination"`
	PrefixLength int    `json:"prefix_length"`
}

// String returns the route in CIDR notation.
func (r IPv6Route) String() string {
	return fmt.Sprintf("%s/%d", r.Destination, r.PrefixLength)
}

// Table is the result of parsing a route list.
type Table struct {
	IPv4 []IPv4Route
	IPv6 []IPv6Route
	// ContainsDefault is set when the list includes 0.0.0.0/0 or ::/0.
	ContainsDefault bool
}

// Parse splits a comma-separated CIDR list into IPv4 and IPv6 routes.
// Entries that are neither are logged and dropped.
func Parse(list string, log *logrus.Entry) Table {
	var t Table
	for _, raw := range strings.Split(list, ",") {
		entry := strings.TrimSpace(raw)
		if entry == "" {
			continue
		}
		if r, ok := parseIPv4(entry); ok {
			if entry == "0.0.0.0/0" {
				t.ContainsDefault = true
			}
			t.IPv4 = append(t.IPv4, r)
			continue
		}
		if r, ok := parseIPv6(entry); ok {
			if entry == "::/0" {
				t.ContainsDefault = true
			}
			t.IPv6 = append(t.IPv6, r)
			continue
		}
		if log != nil {
			log.WithField("route", entry).Warn("dropping invalid route")
		}
	}
	return t
}

func parseIPv4(entry string) (IPv4Route, bool) {
	m := ipv4CIDR.FindStringSubmatch(entry)
	if m == nil {
		return IPv4Route{}, false
	}
	var octets [4]int
	for i := range octets {
		n, err := strconv.Atoi(m[i+1])
		if err != nil || n > 255 {
			return IPv4Route{}, false
		}
		octets[i] = n
	}
	prefix, err := strconv.Atoi(m[5])
	if err != nil || prefix > 32 {
		return IPv4Route{}, false
	}
	mask := maskOctets(prefix)
	return IPv4Route{
		Destination: joinOctets(networkOctets(octets, mask)),
		Mask:        joinOctets(mask),
	}, true
}

func parseIPv6(entry string) (IPv6Route, bool) {
	m := ipv6CIDR.FindStringSubmatch(entry)
	if m == nil {
		return IPv6Route{}, false
	}
	prefix, err := strconv.Atoi(m[2])
	if err != nil || prefix > 128 {
		return IPv6Route{}, false
	}
	// The pattern admits malformed groupings such as ":::::".
	if _, err := netip.ParsePrefix(entry); err != nil {
		return IPv6Route{}, false
	}
	return IPv6Route{Destination: m[1], PrefixLength: prefix}, true
}

// SubnetMask returns the dotted-decimal mask for an IPv4 prefix length.
// Lengths outside [0,32] are clamped.
func SubnetMask(prefix int) string {
	return joinOctets(maskOctets(prefix))
}

// NetworkAddress zeroes the host bits of addr under mask. Both arguments
// are dotted-decimal IPv4 strings; an empty string is returned when either
// is malformed.
func NetworkAddress(addr, mask string) string {
	a, ok := splitOctets(addr)
	if !ok {
		return ""
	}
	m, ok := splitOctets(mask)
	if !ok {
		return ""
	}
	return joinOctets(networkOctets(a, m))
}

// MaskBits counts the set bits of a dotted-decimal mask.
func MaskBits(mask string) int {
	m, ok := splitOctets(mask)
	if !ok {
		return 0
	}
	bits := 0
	for _, o := range m {
		for ; o > 0; o >>= 1 {
			bits += o & 1
		}
	}
	return bits
}

func maskOctets(prefix int) [4]int {
	var mask [4]int
	remaining := min(max(prefix, 0), 32)
	for i := range mask {
		bits := min(remaining, 8)
		mask[i] = (255 << (8 - bits)) & 255
		remaining -= bits
	}
	return mask
}

func networkOctets(addr, mask [4]int) [4]int {
	var out [4]int
	for i := range out {
		out[i] = addr[i] & mask[i]
	}
	return out
}

func splitOctets(s string) ([4]int, bool) {
	var out [4]int
	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return out, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil || n < 0 || n > 255 {
			return out, false
		}
		out[i] = n
	}
	return out, true
}

func joinOctets(o [4]int) string {
	return fmt.Sprintf("%d.%d.%d.%d", o[0], o[1], o[2], o[3])
}
