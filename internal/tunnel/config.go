package tunnel

import "time"

const (
	// DefaultInterfaceName is used when a profile names no interface.
	DefaultInterfaceName = "utun100"
	// DefaultStopTimeout bounds the wait for the SDK's disconnected
	// callback during a restart.
	DefaultStopTimeout = 5 * time.Second
)
