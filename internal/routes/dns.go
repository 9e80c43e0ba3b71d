package routes

import (
	"encoding/json"
	"strings"
)

// DNSConfig is the DNS configuration document delivered by the SDK.
// Field names follow the SDK encoder.
type DNSConfig struct {
	Domains    []DomainConfig `json:"Domains"`
	RouteAll   bool           `json:"RouteAll"`
	ServerIP   string         `json:"ServerIP"`
	ServerPort int            `json:"ServerPort"`
}

// DomainConfig is one DNS domain entry.
type DomainConfig struct {
	Disabled  bool   `json:"Disabled"`
	Domain    string `json:"Domain"`
	MatchOnly bool   `json:"MatchOnly"`
}

// DNSSettings is the resolver configuration applied to the tunnel.
type DNSSettings struct {
	Servers       []string `json:"servers"`
	Port          int      `json:"port,omitempty"`
	MatchDomains  []string `json:"match_domains"`
	SearchDomains []string `json:"search_domains,omitempty"`
}

// ParseDNS decodes a DNS configuration document. It reports false for an
// empty or malformed payload.
func ParseDNS(payload string) (DNSConfig, bool) {
	var cfg DNSConfig
	if strings.TrimSpace(payload) == "" {
		return cfg, false
	}
	if err := json.Unmarshal([]byte(payload), &cfg); err != nil {
		return cfg, false
	}
	return cfg, true
}

// TranslateDNS derives resolver settings from cfg. With RouteAll a single
// empty match domain captures every query. Otherwise each enabled domain
// is a match domain, and also a search domain unless it is match-only.
func TranslateDNS(cfg DNSConfig) DNSSettings {
	s := DNSSettings{Port: cfg.ServerPort}
	if cfg.ServerIP != "" {
		s.Servers = []string{cfg.ServerIP}
	}
	if cfg.RouteAll {
		s.MatchDomains = []string{""}
		return s
	}
	for _, d := range cfg.Domains {
		if d.Disabled {
			continue
		}
		s.MatchDomains = append(s.MatchDomains, d.Domain)
		if !d.MatchOnly {
			s.SearchDomains = append(s.SearchDomains, d.Domain)
		}
	}
	return s
}
