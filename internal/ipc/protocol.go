// Package ipc is the message protocol between the foreground process and
// the tunnel process. Requests are command strings; responses are JSON
// records whose field names are shared with the SDK-side codec.
package ipc

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/hopboxdev/meshbox/internal/tunnel"
)

// Commands.
const (
	CmdLogin            = "Login"
	CmdLoginTV          = "LoginTV"
	CmdIsLoginComplete  = "IsLoginComplete"
	CmdStatus           = "Status"
	CmdGetRoutes        = "GetRoutes"
	CmdSelect           = "Select"
	CmdDeselect         = "Deselect"
	CmdSetConfig        = "SetConfig"
	CmdClearConfig      = "ClearConfig"
	CmdInitializeConfig = "InitializeConfig"
)

// NoNetwork is reported as the network of a route resolved via domains.
const NoNetwork = "no network"

var (
	ErrNoSession      = errors.New("ipc session not established")
	ErrUnknownCommand = errors.New("unknown command")
	ErrTimeout        = errors.New("ipc request timed out")
)

// Message is a parsed request string.
type Message struct {
	Command string
	Arg     string
}

// String encodes the message in wire form.
func (m Message) String() string {
	switch m.Command {
	case CmdSelect, CmdDeselect:
		return m.Command + "-" + m.Arg
	case CmdSetConfig:
		return m.Command + ":" + m.Arg
	default:
		return m.Command
	}
}

// SelectMessage returns the wire form of a route selection.
func SelectMessage(id string) string { return Message{Command: CmdSelect, Arg: id}.String() }

// DeselectMessage returns the wire form of a route deselection.
func DeselectMessage(id string) string { return Message{Command: CmdDeselect, Arg: id}.String() }

// SetConfigMessage returns the wire form of a config transfer.
func SetConfigMessage(json string) string { return Message{Command: CmdSetConfig, Arg: json}.String() }

// ParseMessage decodes a request string.
func ParseMessage(s string) (Message, error) {
	if rest, ok := strings.CutPrefix(s, CmdSetConfig+":"); ok {
		return Message{Command: CmdSetConfig, Arg: rest}, nil
	}
	if id, ok := strings.CutPrefix(s, CmdSelect+"-"); ok && id != "" {
		return Message{Command: CmdSelect, Arg: id}, nil
	}
	if id, ok := strings.CutPrefix(s, CmdDeselect+"-"); ok && id != "" {
		return Message{Command: CmdDeselect, Arg: id}, nil
	}
	switch s {
	case CmdLogin, CmdLoginTV, CmdIsLoginComplete, CmdStatus, CmdGetRoutes, CmdClearConfig, CmdInitializeConfig:
		return Message{Command: s}, nil
	}
	return Message{}, fmt.Errorf("%w: %q", ErrUnknownCommand, s)
}

// commandName returns the command of a wire message for labelling.
func commandName(s string) string {
	m, err := ParseMessage(s)
	if err != nil {
		return "unknown"
	}
	return m.Command
}

// LoginResponse carries the URL to open, and the user code in the
// device-code flow.
type LoginResponse struct {
	URL      string `json:"url"`
	UserCode string `json:"userCode,omitempty"`
}

// LoginDiagnostic describes the tunnel process's login state.
type LoginDiagnostic struct {
	IsComplete    bool   `json:"isComplete"`
	IsExecuting   bool   `json:"isExecuting"`
	LoginRequired bool   `json:"loginRequired"`
	ConfigExists  bool   `json:"configExists"`
	StateExists   bool   `json:"stateExists"`
	LastResult    string `json:"lastResult"`
	LastError     string `json:"lastError"`
}

// Login results.
const (
	LoginResultSuccess = "success"
	LoginResultError   = "error"
)

// StatusSnapshot is the aggregated tunnel status.
type StatusSnapshot struct {
	IP               string       `json:"ip"`
	FQDN             string       `json:"fqdn"`
	ManagementStatus tunnel.State `json:"managementStatus"`
	Peers            []PeerRecord `json:"peers"`
	IsRestarting     bool         `json:"isRestarting"`
}

// Equal compares the fields that are rendered: IP, FQDN, management state
// and the peer set, ignoring peer order.
func (s StatusSnapshot) Equal(o StatusSnapshot) bool {
	if s.IP != o.IP || s.FQDN != o.FQDN || s.ManagementStatus != o.ManagementStatus {
		return false
	}
	if len(s.Peers) != len(o.Peers) {
		return false
	}
	used := make([]bool, len(o.Peers))
	for _, p := range s.Peers {
		found := false
		for j, q := range o.Peers {
			if !used[j] && p.Equal(q) {
				used[j] = true
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// PeerRecord is one peer in a StatusSnapshot.
type PeerRecord struct {
	ID                  string   `json:"id"`
	IP                  string   `json:"ip"`
	FQDN                string   `json:"fqdn"`
	LocalEndpoint       string   `json:"localEndpoint"`
	RemoteEndpoint      string   `json:"remoteEndpoint"`
	LocalCandidateType  string   `json:"localCandidateType"`
	RemoteCandidateType string   `json:"remoteCandidateType"`
	PublicKey           string   `json:"publicKey"`
	Latency             string   `json:"latency"`
	BytesRx             int64    `json:"bytesRx"`
	BytesTx             int64    `json:"bytesTx"`
	ConnStatus          string   `json:"connStatus"`
	LastStatusUpdate    string   `json:"lastStatusUpdate"`
	Direct              bool     `json:"direct"`
	LastHandshake       string   `json:"lastHandshake"`
	Relayed             bool     `json:"relayed"`
	QuantumResistant    bool     `json:"quantumResistant"`
	Routes              []string `json:"routes"`

	// Selected is display state and never crosses the wire.
	Selected bool `json:"-"`
}

// Equal compares every field except Selected. Routes compare as a set.
func (p PeerRecord) Equal(o PeerRecord) bool {
	return p.ID == o.ID &&
		p.IP == o.IP &&
		p.FQDN == o.FQDN &&
		p.LocalEndpoint == o.LocalEndpoint &&
		p.RemoteEndpoint == o.RemoteEndpoint &&
		p.LocalCandidateType == o.LocalCandidateType &&
		p.RemoteCandidateType == o.RemoteCandidateType &&
		p.PublicKey == o.PublicKey &&
		p.Latency == o.Latency &&
		p.BytesRx == o.BytesRx &&
		p.BytesTx == o.BytesTx &&
		p.ConnStatus == o.ConnStatus &&
		p.LastStatusUpdate == o.LastStatusUpdate &&
		p.Direct == o.Direct &&
		p.LastHandshake == o.LastHandshake &&
		p.Relayed == o.Relayed &&
		p.QuantumResistant == o.QuantumResistant &&
		sameSet(p.Routes, o.Routes)
}

func sameSet(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	a, b = slices.Clone(a), slices.Clone(b)
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b)
}

// RouteSelection lists the selectable routes.
type RouteSelection struct {
	Routes []RouteRecord `json:"routes"`
}

// RouteRecord is one selectable route.
type RouteRecord struct {
	ID       string         `json:"id"`
	Name     string         `json:"name"`
	Network  string         `json:"network"`
	Domains  []DomainRecord `json:"domains"`
	Selected bool           `json:"selected"`
}

// DomainRecord is a domain route and its resolved IPs, comma-separated.
type DomainRecord struct {
	Domain      string `json:"domain"`
	ResolvedIPs string `json:"resolvedIPs"`
}

// Request is sent from the foreground process over the socket.
type Request struct {
	Message string `json:"message"`
}

// Response is sent back by the tunnel process. OK is false only when the
// request could not be dispatched; command failures are encoded in Data.
type Response struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
	Data  []byte `json:"data,omitempty"`
}
