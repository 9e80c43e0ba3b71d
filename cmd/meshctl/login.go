package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hopboxdev/meshbox/internal/ipc"
	"github.com/hopboxdev/meshbox/internal/tui"
)

// LoginCmd logs the tunnel process in to the management server.
type LoginCmd struct {
	TV bool `name:"tv" help:"Use the device-code flow for devices without a browser."`
}

func (c *LoginCmd) Run(globals *CLI) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, err := openSession(ctx, globals, os.Stderr)
	if err != nil {
		return err
	}
	if err := s.requireTunnel(); err != nil {
		return err
	}

	return tui.Spin(ctx, "Requesting login", func(ctx context.Context, update func(string)) error {
		d, err := s.ctrl.Login(ctx, c.TV, func(r ipc.LoginResponse) {
			update(loginPrompt(r))
		})
		if err != nil {
			return err
		}
		if d.LoginRequired {
			return fmt.Errorf("login finished but the tunnel process still requires login")
		}
		update(fmt.Sprintf("Logged in (profile %s)", s.profile.Name))
		return nil
	})
}

// loginPrompt tells the user where to complete the login.
func loginPrompt(r ipc.LoginResponse) string {
	if r.UserCode != "" {
		return fmt.Sprintf("Open %s and enter code %s", r.URL, r.UserCode)
	}
	return fmt.Sprintf("Open %s to log in", r.URL)
}
