// Package tunnel holds the connection state machine of the tunnel process,
// the network-availability monitor that feeds it, and the run-state file
// the foreground process uses to find it.
package tunnel
