package main

import (
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/hopboxdev/meshbox/internal/ipc"
)

func TestRequestCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	l, _ := test.NewNullLogger()
	b := ipc.NewBroker(ipc.BrokerConfig{Log: logrus.NewEntry(l), Metrics: ipc.NewMetrics(reg)})

	if got := requestCounts(reg); got != "" {
		t.Errorf("counts before any request = %q, want empty", got)
	}

	b.Status(t.Context())
	b.Routes(t.Context())
	b.Routes(t.Context())

	got := requestCounts(reg)
	for _, want := range []string{"COMMAND", "Status", "GetRoutes", "no_session", "2"} {
		if !strings.Contains(got, want) {
			t.Errorf("counts missing %q:\n%s", want, got)
		}
	}
}

func TestLoginSummary(t *testing.T) {
	tests := []struct {
		d    ipc.LoginDiagnostic
		want string
	}{
		{ipc.LoginDiagnostic{LoginRequired: true, LastResult: ipc.LoginResultError}, "required"},
		{ipc.LoginDiagnostic{LastResult: ipc.LoginResultSuccess}, "ok (last success)"},
		{ipc.LoginDiagnostic{}, "ok"},
	}
	for _, tt := range tests {
		if got := loginSummary(tt.d); got != tt.want {
			t.Errorf("loginSummary(%+v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestLoginLinesShowsError(t *testing.T) {
	lines := loginLines(ipc.LoginDiagnostic{LoginRequired: true, LastError: "token expired"})
	if len(lines) != 3 || !strings.Contains(lines[2], "token expired") {
		t.Errorf("lines = %q", lines)
	}
}
