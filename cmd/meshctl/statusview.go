package main

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/hopboxdev/meshbox/internal/ipc"
	"github.com/hopboxdev/meshbox/internal/tunnel"
	"github.com/hopboxdev/meshbox/internal/ui"
)

var helpLine = lipgloss.NewStyle().Foreground(ui.Subtle).Render("r refresh • q quit")

// dashData holds everything the status view renders.
type dashData struct {
	profile       string
	managementURL string
	attached      bool
	run           *tunnel.RunState
	now           time.Time

	snap     ipc.StatusSnapshot
	haveSnap bool
	routes   []ipc.RouteRecord
}

func newDashData(s *session) dashData {
	d := dashData{
		profile:       s.profile.Name,
		managementURL: s.profile.ManagementURL,
		attached:      s.attached,
		now:           time.Now(),
	}
	if run, err := s.ctrl.RunState(); err == nil {
		d.run = run
	} else {
		s.log.WithError(err).Debug("load run state")
	}
	return d
}

// renderDashboard renders the full dashboard view from dashData.
func renderDashboard(d dashData, width int) string {
	if width > ui.MaxWidth {
		width = ui.MaxWidth
	}
	contentWidth := max(width-4, 40)

	sections := []string{renderTunnelSection(d, contentWidth)}
	if d.attached && d.haveSnap {
		sections = append(sections, renderPeersSection(d.snap.Peers, contentWidth))
	}
	if d.attached && len(d.routes) > 0 {
		sections = append(sections, renderRoutesSection(d.routes, contentWidth))
	}
	return strings.Join(sections, "\n")
}

func renderTunnelSection(d dashData, width int) string {
	var lines []string

	state := tunnel.StateDisconnected
	if d.attached && d.haveSnap {
		state = d.snap.ManagementStatus
	}
	status := ui.StateDot(state) + " " + state.String()
	if d.attached && d.snap.IsRestarting {
		status += " (restarting)"
	}
	lines = append(lines, ui.Row("PROFILE", d.profile, "STATUS", status, width))
	lines = append(lines, ui.Row("MANAGEMENT", ui.Dash(d.managementURL), "", "", width))

	if !d.attached {
		lines = append(lines, "", "Tunnel process not running. Run 'meshctl up' to start it.")
		return ui.Section("Tunnel", strings.Join(lines, "\n"), width)
	}

	lines = append(lines, ui.Row("IP", ui.Dash(d.snap.IP), "FQDN", ui.Dash(d.snap.FQDN), width))
	if d.run != nil {
		lines = append(lines, ui.Row("PID", fmt.Sprint(d.run.PID), "UPTIME", formatDuration(d.now.Sub(d.run.StartedAt)), width))
		if d.run.Interface != "" {
			lines = append(lines, ui.Row("INTERFACE", d.run.Interface, "", "", width))
		}
	}
	return ui.Section("Tunnel", strings.Join(lines, "\n"), width)
}

func renderPeersSection(peers []ipc.PeerRecord, width int) string {
	if len(peers) == 0 {
		return ui.Section("Peers", "No peers.", width)
	}
	peers = slices.Clone(peers)
	slices.SortFunc(peers, func(a, b ipc.PeerRecord) int { return strings.Compare(a.FQDN, b.FQDN) })

	rows := make([][]string, 0, len(peers))
	for _, p := range peers {
		rows = append(rows, []string{
			ui.Check(strings.EqualFold(p.ConnStatus, "connected")) + " " + ui.Dash(p.FQDN),
			ui.Dash(p.IP),
			peerPath(p),
			ui.Dash(p.Latency),
			ui.Bytes(p.BytesRx) + " / " + ui.Bytes(p.BytesTx),
		})
	}
	table := ui.Table([]string{"PEER", "IP", "PATH", "LATENCY", "RX / TX"}, rows)
	return ui.Section(fmt.Sprintf("Peers (%d)", len(peers)), table, width)
}

// peerPath describes how traffic reaches a peer.
func peerPath(p ipc.PeerRecord) string {
	var path string
	switch {
	case p.Relayed:
		path = "relayed"
	case p.Direct:
		path = "direct"
	default:
		return "-"
	}
	if p.QuantumResistant {
		path += ", pq"
	}
	return path
}

func renderRoutesSection(routes []ipc.RouteRecord, width int) string {
	return ui.Section("Routes", routesTable(routes), width)
}

func routesTable(routes []ipc.RouteRecord) string {
	rows := make([][]string, 0, len(routes))
	for _, r := range routes {
		rows = append(rows, []string{ui.Check(r.Selected), r.ID, r.Network, domainList(r.Domains)})
	}
	return ui.Table([]string{"", "ID", "NETWORK", "DOMAINS"}, rows)
}

func domainList(domains []ipc.DomainRecord) string {
	if len(domains) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(domains))
	for _, d := range domains {
		if d.ResolvedIPs == "" {
			parts = append(parts, d.Domain)
			continue
		}
		parts = append(parts, d.Domain+" ("+d.ResolvedIPs+")")
	}
	return strings.Join(parts, ", ")
}

// formatDuration formats a duration as a compact human-readable string.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm %ds", int(d.Minutes()), int(d.Seconds())%60)
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh %dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd %dh", int(d.Hours())/24, int(d.Hours())%24)
}
