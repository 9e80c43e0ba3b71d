// Package sdk describes the mesh-networking SDK binding consumed by the
// tunnel process. The SDK owns the data plane, peer discovery and
// authentication; meshbox only drives it through these interfaces.
package sdk

import "errors"

// ErrLoginRequired is returned by Start when the SDK has no valid session.
var ErrLoginRequired = errors.New("login required")

// Env is passed into Client.Start.
type Env struct {
	ForceRelay bool
}

// Client is the SDK client facade.
type Client interface {
	// Start brings the tunnel up on the given TUN file descriptor.
	Start(fd int, ifName string, env Env) error
	Stop()
	IsLoginRequired() bool
	// Login returns the SSO URL for the interactive flow.
	Login() (string, error)
	// LoginAsync starts a login and reports progress through l. When
	// forceDeviceAuth is set the device-code flow is used.
	LoginAsync(forceDeviceAuth bool, l LoginListener)
	StatusDetails() (*StatusDetails, error)
	RoutesSelectionDetails() (*RoutesSelectionDetails, error)
	SelectRoute(id string) error
	DeselectRoute(id string) error
	SetConfigFromJSON(json string) error
}

// Listener receives tunnel lifecycle callbacks. The SDK delivers them on
// its own goroutine.
type Listener interface {
	OnConnected()
	OnConnecting()
	OnDisconnecting()
	OnDisconnected()
	// OnNetworkChanged carries a comma-separated list of CIDR routes.
	OnNetworkChanged(routes string)
	OnAddressChanged(fqdn, ip string)
	OnPeersListChanged(n int)
}

// DNSApplier receives the DNS configuration as a JSON document.
type DNSApplier interface {
	ApplyDNS(config string)
}

// LoginListener receives the progress of an asynchronous login.
type LoginListener interface {
	OnURL(url, userCode string)
	OnSuccess()
	OnError(err error)
}

// StatusDetails is the status object reported by the SDK.
type StatusDetails struct {
	IP    string
	FQDN  string
	Peers []PeerDetails
}

// PeerDetails is a single peer as reported by the SDK.
type PeerDetails struct {
	PubKey                     string
	IP                         string
	FQDN                       string
	LocalIceCandidateEndpoint  string
	RemoteIceCandidateEndpoint string
	LocalIceCandidateType      string
	RemoteIceCandidateType     string
	Latency                    string
	BytesRx                    int64
	BytesTx                    int64
	ConnStatus                 string
	ConnStatusUpdate           string
	Direct                     bool
	LastWireguardHandshake     string
	Relayed                    bool
	RosenpassEnabled           bool
	Routes                     []string
}

// RoutesSelectionDetails lists the routes advertised to this peer.
type RoutesSelectionDetails struct {
	All    bool
	Append bool
	Routes []RouteInfo
}

// RouteInfo is one selectable network route.
type RouteInfo struct {
	ID       string
	Network  string
	Domains  []DomainInfo
	Selected bool
}

// DomainInfo is a domain-based route and the IPs it currently resolves to.
type DomainInfo struct {
	Domain      string
	ResolvedIPs []string
}
