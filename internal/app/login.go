package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hopboxdev/meshbox/internal/ipc"
)

// Login starts a login in the tunnel process, hands the URL (and user
// code in the device flow) to onURL and waits for completion. When the
// tunnel process reports no login is required, the diagnostic is returned
// without calling onURL.
func (c *Controller) Login(ctx context.Context, deviceAuth bool, onURL func(ipc.LoginResponse)) (ipc.LoginDiagnostic, error) {
	if !c.cfg.Broker.Connected() {
		return ipc.LoginDiagnostic{}, ErrNotRunning
	}
	resp, ok := c.cfg.Broker.Login(ctx, deviceAuth)
	if !ok {
		d, dok := c.cfg.Broker.LoginStatus(ctx)
		if dok && d.IsComplete && !d.LoginRequired {
			return d, nil
		}
		return d, errors.New("login request failed")
	}
	if onURL != nil {
		onURL(resp)
	}
	return c.WaitLogin(ctx)
}

// WaitLogin polls IsLoginComplete until the login succeeds, fails or
// LoginWait elapses.
func (c *Controller) WaitLogin(ctx context.Context) (ipc.LoginDiagnostic, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.LoginWait)
	defer cancel()

	ticker := time.NewTicker(c.cfg.LoginPoll)
	defer ticker.Stop()
	for {
		d, ok := c.cfg.Broker.LoginStatus(ctx)
		if ok {
			switch {
			case d.IsComplete:
				return d, nil
			case !d.IsExecuting && d.LastResult == ipc.LoginResultError:
				return d, fmt.Errorf("login failed: %s", d.LastError)
			}
		}
		select {
		case <-ctx.Done():
			return d, fmt.Errorf("login not completed: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}
