package extension

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hopboxdev/meshbox/internal/ipc"
	"github.com/hopboxdev/meshbox/internal/tunnel"
)

// RunConfig configures Run.
type RunConfig struct {
	Profile      string
	SocketPath   string
	RunStatePath string
	Interface    string
	// Probe drives the network monitor. Nil disables monitoring.
	Probe           tunnel.Probe
	MonitorInterval time.Duration
}

// Run serves IPC requests, keeps the run-state file current and feeds
// network availability into the state machine until ctx is cancelled.
// When the network comes back, a started SDK is restarted so it rebinds to
// the new path. The SDK is stopped on return.
func (e *Engine) Run(ctx context.Context, rc RunConfig) error {
	if rc.Interface == "" {
		rc.Interface = tunnel.DefaultInterfaceName
	}
	srv := ipc.NewServer(rc.SocketPath, e, e.cfg.Log)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start IPC server: %w", err)
	}
	defer srv.Stop()

	state := &tunnel.RunState{
		PID:        os.Getpid(),
		Profile:    rc.Profile,
		SocketPath: rc.SocketPath,
		Interface:  rc.Interface,
		StartedAt:  time.Now(),
		State:      e.machine.State(),
	}
	if rc.RunStatePath != "" {
		if err := tunnel.WriteRunState(rc.RunStatePath, state); err != nil {
			return fmt.Errorf("write run state: %w", err)
		}
		defer func() {
			if err := tunnel.RemoveRunState(rc.RunStatePath); err != nil {
				e.log.WithError(err).Warn("remove run state")
			}
		}()
	}

	g, gctx := errgroup.WithContext(ctx)

	if rc.Probe != nil {
		mon := tunnel.NewNetMonitor(tunnel.MonitorConfig{
			Probe:    rc.Probe,
			Interval: rc.MonitorInterval,
			OnChange: func(ev tunnel.NetEvent) {
				e.machine.SetNetworkAvailable(ev.Available)
				if !ev.Available || !e.Started() {
					return
				}
				e.log.WithField("outage", ev.Duration.Round(time.Millisecond)).Info("network recovered; restarting SDK")
				if err := e.Restart(gctx); err != nil {
					e.log.WithError(err).Warn("restart after network change")
				}
			},
			Log: e.cfg.Log.WithField("component", "netmon"),
		})
		g.Go(func() error {
			mon.Run(gctx)
			return nil
		})
	}

	g.Go(func() error {
		for {
			select {
			case <-gctx.Done():
				return nil
			case s := <-e.changes:
				if rc.RunStatePath == "" {
					continue
				}
				state.State = s
				if err := tunnel.WriteRunState(rc.RunStatePath, state); err != nil {
					e.log.WithError(err).Warn("update run state")
				}
			}
		}
	})

	e.log.WithField("socket", rc.SocketPath).Info("tunnel process running")
	err := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), applyTimeout)
	defer cancel()
	e.Stop(stopCtx)
	return err
}
