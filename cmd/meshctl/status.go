package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/hopboxdev/meshbox/internal/ipc"
	"github.com/hopboxdev/meshbox/internal/poller"
)

// StatusCmd shows tunnel status and peers.
type StatusCmd struct {
	Once bool `help:"Print the status once instead of opening the dashboard."`
}

func (c *StatusCmd) Run(globals *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var logOut io.Writer = io.Discard
	if globals.Verbose {
		logOut = os.Stderr
	}
	s, err := openSession(ctx, globals, logOut)
	if err != nil {
		return err
	}

	if c.Once {
		d := newDashData(s)
		if s.attached {
			if snap, ok := s.ctrl.Broker().Status(ctx); ok {
				d.snap, d.haveSnap = snap, true
			}
			if r, err := s.ctrl.Routes(ctx); err == nil {
				d.routes = r.Routes
			}
		}
		fmt.Println(renderDashboard(d, 80))
		return nil
	}

	m := &dashModel{ctx: ctx, s: s, data: newDashData(s), width: 80}
	p := tea.NewProgram(m)
	m.poller = s.ctrl.NewPoller(func(snap ipc.StatusSnapshot) { p.Send(statusMsg(snap)) }, nil)
	if s.attached {
		m.poller.Start(ctx)
	}
	defer func() {
		m.poller.Stop()
		m.poller.Wait()
	}()

	_, err = p.Run()
	return err
}

// dashModel is the Bubble Tea model for the status dashboard. Status
// arrives from the poller; the tick only re-attaches and reloads the run
// state.
type dashModel struct {
	ctx      context.Context
	s        *session
	poller   *poller.Poller
	data     dashData
	width    int
	quitting bool
}

// Messages.
type (
	tickMsg   time.Time
	statusMsg ipc.StatusSnapshot
	routesMsg []ipc.RouteRecord
	attachMsg struct {
		attached bool
		data     dashData
	}
)

func tickCmd() tea.Cmd {
	return tea.Tick(poller.DefaultInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m *dashModel) routesCmd() tea.Cmd {
	pl := m.poller
	return func() tea.Msg {
		r, ok := pl.RefreshRoutes(m.ctx)
		if !ok {
			return nil
		}
		return routesMsg(r.Routes)
	}
}

// attachCmd retries the IPC session and reloads the run state.
func (m *dashModel) attachCmd() tea.Cmd {
	s := m.s
	return func() tea.Msg {
		attached := s.ctrl.Attach()
		return attachMsg{attached: attached, data: newDashData(s)}
	}
}

func (m *dashModel) Init() tea.Cmd {
	if m.data.attached {
		return tea.Batch(tickCmd(), m.routesCmd())
	}
	return tickCmd()
}

func (m *dashModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			pl, ctx := m.poller, m.ctx
			refresh := func() tea.Msg { pl.Refresh(ctx); return nil }
			return m, tea.Batch(refresh, m.routesCmd())
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		m.data.now = time.Time(msg)
		return m, tea.Batch(m.attachCmd(), tickCmd())

	case attachMsg:
		wasAttached := m.data.attached
		snap, haveSnap, routes := m.data.snap, m.data.haveSnap, m.data.routes
		m.data = msg.data
		m.data.attached = msg.attached
		m.data.snap, m.data.haveSnap, m.data.routes = snap, haveSnap, routes
		switch {
		case !msg.attached:
			m.poller.Stop()
		case !wasAttached:
			m.poller.Start(m.ctx)
			return m, m.routesCmd()
		}
		return m, nil

	case statusMsg:
		m.data.snap = ipc.StatusSnapshot(msg)
		m.data.haveSnap = true
		return m, nil

	case routesMsg:
		m.data.routes = msg
		return m, nil
	}

	return m, nil
}

func (m *dashModel) View() string {
	if m.quitting {
		return ""
	}
	return renderDashboard(m.data, m.width) + "\n" + helpLine
}
