package tui

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
)

func newTestModel(task Task) *spinModel {
	ctx, cancel := context.WithCancel(context.Background())
	return &spinModel{ctx: ctx, cancel: cancel, task: task, spinner: spinner.New(), text: "Waiting"}
}

func TestSpinModelUpdateText(t *testing.T) {
	m := newTestModel(nil)
	model, cmd := m.Update(updateMsg("Open the URL"))
	if model.(*spinModel).text != "Open the URL" {
		t.Errorf("text = %q", m.text)
	}
	if cmd != nil {
		t.Error("updateMsg should return nil cmd")
	}
	if !strings.Contains(m.View(), "Open the URL") {
		t.Errorf("View = %q", m.View())
	}
}

func TestSpinModelDone(t *testing.T) {
	m := newTestModel(nil)
	_, cmd := m.Update(doneMsg{})
	if cmd == nil || !m.done || m.err != nil {
		t.Fatalf("done = %v, err = %v", m.done, m.err)
	}
	if !strings.Contains(m.View(), "✔") {
		t.Errorf("View = %q, want checkmark", m.View())
	}
}

func TestSpinModelFailure(t *testing.T) {
	m := newTestModel(nil)
	m.Update(doneMsg{err: errors.New("boom")})
	if m.err == nil || !strings.Contains(m.View(), "✘") {
		t.Errorf("err = %v, View = %q", m.err, m.View())
	}
}

func TestSpinModelRunsTask(t *testing.T) {
	called := false
	m := newTestModel(func(context.Context, func(string)) error {
		called = true
		return nil
	})
	msg := m.run()()
	if !called {
		t.Error("task not called")
	}
	if d, ok := msg.(doneMsg); !ok || d.err != nil {
		t.Errorf("msg = %#v", msg)
	}
}

func TestSpinPlain(t *testing.T) {
	var buf bytes.Buffer
	err := spinPlain(t.Context(), &buf, "Logging in", func(_ context.Context, update func(string)) error {
		update("Waiting for browser")
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	if !strings.Contains(out, "Logging in") || !strings.Contains(out, "✔") || !strings.Contains(out, "Waiting for browser") {
		t.Errorf("output = %q", out)
	}

	buf.Reset()
	want := errors.New("timeout")
	if err := spinPlain(t.Context(), &buf, "x", func(context.Context, func(string)) error { return want }); !errors.Is(err, want) {
		t.Errorf("err = %v", err)
	}
	if !strings.Contains(buf.String(), "✘") {
		t.Errorf("output = %q", buf.String())
	}
}
