package ipc

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/hopboxdev/meshbox/internal/tunnel"
)

type mockHandler struct {
	mu       sync.Mutex
	selected []string
	config   string
	cleared  bool
	loginErr error
}

func (h *mockHandler) HandleLogin(_ context.Context, deviceAuth bool) (LoginResponse, error) {
	if h.loginErr != nil {
		return LoginResponse{}, h.loginErr
	}
	if deviceAuth {
		return LoginResponse{URL: "https://login.example/device", UserCode: "WXYZ"}, nil
	}
	return LoginResponse{URL: "https://login.example/sso"}, nil
}

func (h *mockHandler) HandleLoginStatus() LoginDiagnostic {
	return LoginDiagnostic{IsComplete: true, ConfigExists: true, LastResult: LoginResultSuccess}
}

func (h *mockHandler) HandleStatus() StatusSnapshot {
	return StatusSnapshot{IP: "100.64.0.1", FQDN: "me.mesh", ManagementStatus: tunnel.StateConnected}
}

func (h *mockHandler) HandleRoutes() RouteSelection {
	return RouteSelection{Routes: []RouteRecord{
		{ID: "lan", Name: "lan", Network: "192.168.0.0/24", Selected: true},
		{ID: "web", Name: "web", Network: NoNetwork, Domains: []DomainRecord{{Domain: "example.com", ResolvedIPs: "93.184.216.34"}}},
	}}
}

func (h *mockHandler) HandleSelectRoute(id string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if id == "missing" {
		return errors.New("no such route")
	}
	h.selected = append(h.selected, id)
	return nil
}

func (h *mockHandler) HandleDeselectRoute(id string) error {
	if id == "missing" {
		return errors.New("no such route")
	}
	return nil
}

func (h *mockHandler) HandleSetConfig(json string) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.config = json
	return nil
}

func (h *mockHandler) HandleClearConfig() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.cleared = true
	return nil
}

func (h *mockHandler) HandleInitializeConfig() error { return nil }

func startServer(t *testing.T, h Handler) *Broker {
	t.Helper()
	sockPath := filepath.Join(t.TempDir(), "ipc.sock")
	srv := NewServer(sockPath, h, nil)
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(srv.Stop)
	return NewBroker(BrokerConfig{Transport: NewSocketTransport(sockPath)})
}

func TestServerStatus(t *testing.T) {
	b := startServer(t, &mockHandler{})
	s, ok := b.Status(t.Context())
	if !ok {
		t.Fatal("Status failed")
	}
	if s.IP != "100.64.0.1" || s.ManagementStatus != tunnel.StateConnected {
		t.Errorf("Status = %+v", s)
	}
}

func TestServerRoutes(t *testing.T) {
	b := startServer(t, &mockHandler{})
	r, ok := b.Routes(t.Context())
	if !ok {
		t.Fatal("Routes failed")
	}
	if len(r.Routes) != 2 {
		t.Fatalf("routes = %d, want 2", len(r.Routes))
	}
	if r.Routes[1].Network != NoNetwork || r.Routes[1].Domains[0].Domain != "example.com" {
		t.Errorf("domain route = %+v", r.Routes[1])
	}
}

func TestServerLogin(t *testing.T) {
	b := startServer(t, &mockHandler{})

	resp, ok := b.Login(t.Context(), false)
	if !ok || resp.URL != "https://login.example/sso" || resp.UserCode != "" {
		t.Errorf("Login = %+v, %v", resp, ok)
	}
	resp, ok = b.Login(t.Context(), true)
	if !ok || resp.UserCode != "WXYZ" {
		t.Errorf("LoginTV = %+v, %v", resp, ok)
	}
	d, ok := b.LoginStatus(t.Context())
	if !ok || !d.IsComplete || d.LastResult != LoginResultSuccess {
		t.Errorf("LoginStatus = %+v, %v", d, ok)
	}
}

func TestServerLoginFailure(t *testing.T) {
	b := startServer(t, &mockHandler{loginErr: errors.New("management unreachable")})
	if _, ok := b.Login(t.Context(), false); ok {
		t.Error("Login succeeded despite handler error")
	}
}

func TestServerAcks(t *testing.T) {
	h := &mockHandler{}
	b := startServer(t, h)

	if !b.SelectRoute(t.Context(), "lan") {
		t.Error("SelectRoute(lan) = false")
	}
	if b.SelectRoute(t.Context(), "missing") {
		t.Error("SelectRoute(missing) = true")
	}
	if b.DeselectRoute(t.Context(), "missing") {
		t.Error("DeselectRoute(missing) = true")
	}
	if !b.SetConfig(t.Context(), `{"ManagementURL":"https://mgmt.example:443"}`) {
		t.Error("SetConfig = false")
	}
	if !b.ClearConfig(t.Context()) {
		t.Error("ClearConfig = false")
	}
	if !b.InitializeConfig(t.Context()) {
		t.Error("InitializeConfig = false")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.selected) != 1 || h.selected[0] != "lan" {
		t.Errorf("selected = %v", h.selected)
	}
	if h.config != `{"ManagementURL":"https://mgmt.example:443"}` {
		t.Errorf("config = %q", h.config)
	}
	if !h.cleared {
		t.Error("config not cleared")
	}
}

func TestServerRejectsUnknownCommand(t *testing.T) {
	sockPath := filepath.Join(t.TempDir(), "ipc.sock")
	srv := NewServer(sockPath, &mockHandler{}, nil)
	if err := srv.Start(); err != nil {
		t.Fatal(err)
	}
	defer srv.Stop()

	conn, err := net.DialTimeout("unix", sockPath, time.Second)
	if err != nil {
		t.Fatal(err)
	}
	defer func() { _ = conn.Close() }()
	_ = json.NewEncoder(conn).Encode(Request{Message: "Restart"})
	var resp Response
	_ = json.NewDecoder(conn).Decode(&resp)
	if resp.OK {
		t.Error("expected OK=false for unknown command")
	}
	if resp.Error == "" {
		t.Error("expected error message")
	}
}

func TestDispatchLogsFailedCommand(t *testing.T) {
	logger, hook := test.NewNullLogger()
	resp := Dispatch(t.Context(), &mockHandler{}, SelectMessage("missing"), logrus.NewEntry(logger))
	if !resp.OK || DecodeAck(resp.Data) {
		t.Errorf("resp = %+v, want OK with false ack", resp)
	}
	if len(hook.AllEntries()) == 0 {
		t.Error("failure was not logged")
	}
}

func TestLocalTransport(t *testing.T) {
	b := NewBroker(BrokerConfig{Transport: &LocalTransport{Handler: &mockHandler{}}})
	if s, ok := b.Status(t.Context()); !ok || s.FQDN != "me.mesh" {
		t.Errorf("Status = %+v, %v", s, ok)
	}
}
