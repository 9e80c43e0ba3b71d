package ipc

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// Transport carries one request message and returns the response payload.
type Transport interface {
	RoundTrip(ctx context.Context, msg string) ([]byte, error)
}

// SocketTransport talks to a Server over its Unix socket, one connection
// per request.
type SocketTransport struct {
	SocketPath  string
	DialTimeout time.Duration
}

// NewSocketTransport returns a SocketTransport for path.
func NewSocketTransport(path string) *SocketTransport {
	return &SocketTransport{SocketPath: path, DialTimeout: 5 * time.Second}
}

// RoundTrip sends msg and reads the response.
func (t *SocketTransport) RoundTrip(ctx context.Context, msg string) ([]byte, error) {
	d := net.Dialer{Timeout: t.DialTimeout}
	conn, err := d.DialContext(ctx, "unix", t.SocketPath)
	if err != nil {
		return nil, fmt.Errorf("connect to tunnel process at %s: %w", t.SocketPath, err)
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	if err := json.NewEncoder(conn).Encode(Request{Message: msg}); err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}

	var resp Response
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if !resp.OK {
		return nil, fmt.Errorf("tunnel process: %s", resp.Error)
	}
	return resp.Data, nil
}

// IsReachable returns true if the socket accepts connections.
func (t *SocketTransport) IsReachable() bool {
	conn, err := net.DialTimeout("unix", t.SocketPath, time.Second)
	if err != nil {
		return false
	}
	_ = conn.Close()
	return true
}

// LocalTransport dispatches directly to a Handler in the same process.
type LocalTransport struct {
	Handler Handler
	Log     *logrus.Entry
}

// RoundTrip dispatches msg to the handler.
func (t *LocalTransport) RoundTrip(ctx context.Context, msg string) ([]byte, error) {
	log := t.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	resp := Dispatch(ctx, t.Handler, msg, log)
	if !resp.OK {
		return nil, fmt.Errorf("tunnel process: %s", resp.Error)
	}
	return resp.Data, nil
}
