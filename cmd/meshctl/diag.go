package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/hopboxdev/meshbox/internal/ipc"
	"github.com/hopboxdev/meshbox/internal/tunnel"
	"github.com/hopboxdev/meshbox/internal/ui"
)

// DiagCmd checks what the tunnel needs: a route out, a STUN server that
// answers, and a tunnel process that answers and is logged in.
type DiagCmd struct {
	Route   string        `default:"${route_target}" help:"Address used to check for a default route."`
	STUN    string        `name:"stun" default:"${stun_server}" help:"STUN server used to check UDP reachability."`
	Timeout time.Duration `default:"3s" help:"Timeout for each check."`
}

func (c *DiagCmd) Run(globals *CLI) error {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	s, err := openSessionWithMetrics(ctx, globals, os.Stderr, ipc.NewMetrics(reg))
	if err != nil {
		return err
	}

	probe := func(p tunnel.Probe) bool {
		ctx, cancel := context.WithTimeout(ctx, c.Timeout)
		defer cancel()
		return p(ctx)
	}
	netLines := []string{
		ui.Row("ROUTE", ui.Check(probe(tunnel.RouteProbe(c.Route)))+" "+c.Route, "", "", ui.MaxWidth),
		ui.Row("STUN", ui.Check(probe(tunnel.STUNProbe(c.STUN)))+" "+c.STUN, "", "", ui.MaxWidth),
	}
	fmt.Println(ui.Section("Network", strings.Join(netLines, "\n"), ui.MaxWidth))

	if !s.attached {
		fmt.Println(ui.Section("Tunnel process", "Not running. Run 'meshctl up' to start it.", ui.MaxWidth))
		return nil
	}

	tctx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	start := time.Now()
	snap, statusOK := s.ctrl.Broker().Status(tctx)
	rtt := time.Since(start)
	d, loginOK := s.ctrl.Broker().LoginStatus(tctx)

	var lines []string
	if statusOK {
		lines = append(lines, ui.Row("STATE", ui.StateDot(snap.ManagementStatus)+" "+snap.ManagementStatus.String(), "IPC RTT", fmt.Sprintf("%dms", rtt.Milliseconds()), ui.MaxWidth))
	}
	if loginOK {
		lines = append(lines, loginLines(d)...)
	}
	if len(lines) == 0 {
		lines = append(lines, ui.StepFail("Tunnel process did not answer"))
	}
	fmt.Println(ui.Section("Tunnel process", strings.Join(lines, "\n"), ui.MaxWidth))

	if counts := requestCounts(reg); counts != "" {
		fmt.Println(ui.Section("IPC requests", counts, ui.MaxWidth))
	}
	return nil
}

// loginLines renders a login diagnostic.
func loginLines(d ipc.LoginDiagnostic) []string {
	lines := []string{
		ui.Row("LOGIN", ui.Check(!d.LoginRequired)+" "+loginSummary(d), "RUNNING", ui.Check(d.IsExecuting), ui.MaxWidth),
		ui.Row("CONFIG", ui.Check(d.ConfigExists), "STATE FILE", ui.Check(d.StateExists), ui.MaxWidth),
	}
	if d.LastError != "" {
		lines = append(lines, ui.StepFail(d.LastError))
	}
	return lines
}

func loginSummary(d ipc.LoginDiagnostic) string {
	switch {
	case d.LoginRequired:
		return "required"
	case d.LastResult != "":
		return "ok (last " + d.LastResult + ")"
	}
	return "ok"
}

// requestCounts summarizes the broker counters gathered from reg.
func requestCounts(reg prometheus.Gatherer) string {
	families, err := reg.Gather()
	if err != nil {
		return ""
	}
	var rows [][]string
	for _, mf := range families {
		if mf.GetName() != "meshbox_ipc_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			rows = append(rows, []string{labels["command"], labels["result"], fmt.Sprint(m.GetCounter().GetValue())})
		}
	}
	if len(rows) == 0 {
		return ""
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i][0]+rows[i][1] < rows[j][0]+rows[j][1] })
	return ui.Table([]string{"COMMAND", "RESULT", "COUNT"}, rows)
}
