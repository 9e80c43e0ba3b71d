package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hopboxdev/meshbox/internal/tui"
	"github.com/hopboxdev/meshbox/internal/tunnel"
	"github.com/hopboxdev/meshbox/internal/ui"
)

// UpCmd starts the tunnel process and waits until the SDK reports the
// management connection.
type UpCmd struct {
	Wait time.Duration `default:"30s" help:"How long to wait for the tunnel to connect."`
}

func (c *UpCmd) Run(globals *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := openSession(ctx, globals, os.Stderr)
	if err != nil {
		return err
	}
	return tui.Spin(ctx, fmt.Sprintf("Starting tunnel %s", s.profile.Name), func(ctx context.Context, update func(string)) error {
		if err := s.ctrl.Connect(ctx); err != nil {
			return err
		}
		update("Waiting for tunnel process")
		ip, err := waitConnected(ctx, s, c.Wait)
		if err != nil {
			return err
		}
		update(fmt.Sprintf("Tunnel %s connected (%s)", s.profile.Name, ip))
		return nil
	})
}

// waitConnected polls the tunnel process until its management state is
// connected and returns the tunnel IP.
func waitConnected(ctx context.Context, s *session, wait time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()
	last := tunnel.StateDisconnected
	for {
		if s.ctrl.Broker().Connected() || s.ctrl.Attach() {
			snap, ok := s.ctrl.Broker().Status(ctx)
			if ok {
				last = snap.ManagementStatus
				if last == tunnel.StateConnected {
					return snap.IP, nil
				}
			}
		}
		select {
		case <-ctx.Done():
			return "", fmt.Errorf("tunnel still %s after %s (is 'meshctl login' needed?)", last, wait)
		case <-ticker.C:
		}
	}
}

// DownCmd stops the tunnel process.
type DownCmd struct{}

func (c *DownCmd) Run(globals *CLI) error {
	ctx := context.Background()
	s, err := openSession(ctx, globals, os.Stderr)
	if err != nil {
		return err
	}
	if err := s.ctrl.Disconnect(ctx); err != nil {
		return err
	}
	fmt.Println(ui.StepOK(fmt.Sprintf("Tunnel %s stopped", s.profile.Name)))
	return nil
}
