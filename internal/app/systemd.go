package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/hopboxdev/meshbox/internal/netcfg"
)

// SystemdManager runs the tunnel process as a templated systemd unit,
// meshbox-tunnel@<profile>.service.
type SystemdManager struct {
	Unit string
	Run  netcfg.Runner
}

// NewSystemdManager returns a manager for the given profile.
func NewSystemdManager(profileName string) *SystemdManager {
	return &SystemdManager{
		Unit: "meshbox-tunnel@" + profileName + ".service",
		Run:  netcfg.ExecRunner,
	}
}

func (m *SystemdManager) Start(ctx context.Context) error {
	return m.systemctl(ctx, "start", m.Unit)
}

func (m *SystemdManager) Stop(ctx context.Context) error {
	return m.systemctl(ctx, "stop", m.Unit)
}

// Active reports whether the unit is running.
func (m *SystemdManager) Active(ctx context.Context) bool {
	return m.systemctl(ctx, "is-active", "--quiet", m.Unit) == nil
}

func (m *SystemdManager) systemctl(ctx context.Context, args ...string) error {
	out, err := m.Run(ctx, "systemctl", args...)
	if err != nil {
		return fmt.Errorf("systemctl %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}
