package tunnel

import (
	"context"
	"net"

	"github.com/pion/stun"
)

const (
	// DefaultRouteTarget is dialed by RouteProbe. No packet is sent.
	DefaultRouteTarget = "1.1.1.1:53"
	DefaultSTUNServer  = "stun.l.google.com:19302"
)

// RouteProbe reports whether the OS has a usable route to target by
// connecting a UDP socket, which resolves the route without sending.
func RouteProbe(target string) Probe {
	return func(ctx context.Context) bool {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "udp", target)
		if err != nil {
			return false
		}
		_ = conn.Close()
		return true
	}
}

// STUNProbe reports whether a STUN binding request to server succeeds.
func STUNProbe(server string) Probe {
	return func(ctx context.Context) bool {
		var d net.Dialer
		conn, err := d.DialContext(ctx, "udp", server)
		if err != nil {
			return false
		}
		defer func() { _ = conn.Close() }()

		c, err := stun.NewClient(conn)
		if err != nil {
			return false
		}
		defer func() { _ = c.Close() }()

		message := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
		done := make(chan bool, 1)
		go func() {
			ok := false
			err := c.Do(message, func(res stun.Event) {
				if res.Error != nil {
					return
				}
				var addr stun.XORMappedAddress
				ok = addr.GetFrom(res.Message) == nil
			})
			done <- err == nil && ok
		}()

		select {
		case ok := <-done:
			return ok
		case <-ctx.Done():
			return false
		}
	}
}

// AnyProbe reports reachable when any of probes does.
func AnyProbe(probes ...Probe) Probe {
	return func(ctx context.Context) bool {
		for _, p := range probes {
			if p(ctx) {
				return true
			}
		}
		return false
	}
}
