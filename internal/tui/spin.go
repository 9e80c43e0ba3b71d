// Package tui runs a single long operation behind a spinner.
package tui

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/hopboxdev/meshbox/internal/ui"
)

// Task is the work shown behind the spinner. update replaces the text
// next to it.
type Task func(ctx context.Context, update func(string)) error

type doneMsg struct{ err error }

type updateMsg string

type spinModel struct {
	ctx     context.Context
	cancel  context.CancelFunc
	task    Task
	spinner spinner.Model
	text    string
	err     error
	done    bool
	program *tea.Program
}

func (m *spinModel) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run())
}

func (m *spinModel) run() tea.Cmd {
	return func() tea.Msg {
		defer func() {
			if r := recover(); r != nil {
				m.program.Send(doneMsg{err: fmt.Errorf("panic: %v", r)})
			}
		}()
		update := func(s string) {
			if m.program != nil {
				m.program.Send(updateMsg(s))
			}
		}
		return doneMsg{err: m.task(m.ctx, update)}
	}
}

func (m *spinModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			m.cancel()
			m.err = context.Canceled
			m.done = true
			return m, tea.Quit
		}
	case updateMsg:
		m.text = string(msg)
		return m, nil
	case doneMsg:
		m.err = msg.err
		m.done = true
		return m, tea.Quit
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m *spinModel) View() string {
	switch {
	case m.done && m.err != nil:
		return ui.StepFail(m.text) + "\n"
	case m.done:
		return ui.StepOK(m.text) + "\n"
	default:
		return m.spinner.View() + " " + m.text + "\n"
	}
}

// Spin runs task behind a spinner titled title. When stdout is not a
// terminal the progress is printed line by line instead.
func Spin(ctx context.Context, title string, task Task) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return spinPlain(ctx, os.Stdout, title, task)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(ui.Yellow)

	m := &spinModel{ctx: ctx, cancel: cancel, task: task, spinner: s, text: title}
	p := tea.NewProgram(m)
	m.program = p

	result, err := p.Run()
	if err != nil {
		return fmt.Errorf("TUI: %w", err)
	}
	if r, ok := result.(*spinModel); ok && r.err != nil {
		return r.err
	}
	return nil
}

func spinPlain(ctx context.Context, w io.Writer, title string, task Task) error {
	text := title
	_, _ = fmt.Fprintln(w, title)
	err := task(ctx, func(s string) {
		text = s
		_, _ = fmt.Fprintln(w, "  "+s)
	})
	if err != nil {
		_, _ = fmt.Fprintln(w, ui.StepFail(text))
		return err
	}
	_, _ = fmt.Fprintln(w, ui.StepOK(text))
	return nil
}
