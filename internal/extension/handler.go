package extension

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/hopboxdev/meshbox/internal/ipc"
	"github.com/hopboxdev/meshbox/internal/sdk"
	"github.com/hopboxdev/meshbox/internal/settings"
)

var _ ipc.Handler = (*Engine)(nil)

func (e *Engine) HandleLogin(ctx context.Context, deviceAuth bool) (ipc.LoginResponse, error) {
	return e.Login(ctx, deviceAuth)
}

func (e *Engine) HandleLoginStatus() ipc.LoginDiagnostic {
	d := e.login.snapshot()
	d.LoginRequired = e.cfg.Client.IsLoginRequired()
	d.ConfigExists = fileExists(e.cfg.ConfigPath)
	d.StateExists = fileExists(e.cfg.StatePath)
	return d
}

func (e *Engine) HandleStatus() ipc.StatusSnapshot {
	snap := ipc.StatusSnapshot{
		ManagementStatus: e.machine.State(),
		IsRestarting:     e.machine.Restarting(),
		Peers:            []ipc.PeerRecord{},
	}
	details, err := e.cfg.Client.StatusDetails()
	if err != nil {
		e.log.WithError(err).Debug("status details unavailable")
		return snap
	}
	if details == nil {
		return snap
	}
	snap.IP = details.IP
	snap.FQDN = details.FQDN
	for _, p := range details.Peers {
		snap.Peers = append(snap.Peers, peerRecord(p))
	}
	return snap
}

func peerRecord(p sdk.PeerDetails) ipc.PeerRecord {
	return ipc.PeerRecord{
		ID:                  p.PubKey,
		IP:                  p.IP,
		FQDN:                p.FQDN,
		LocalEndpoint:       p.LocalIceCandidateEndpoint,
		RemoteEndpoint:      p.RemoteIceCandidateEndpoint,
		LocalCandidateType:  p.LocalIceCandidateType,
		RemoteCandidateType: p.RemoteIceCandidateType,
		PublicKey:           p.PubKey,
		Latency:             p.Latency,
		BytesRx:             p.BytesRx,
		BytesTx:             p.BytesTx,
		ConnStatus:          p.ConnStatus,
		LastStatusUpdate:    p.ConnStatusUpdate,
		Direct:              p.Direct,
		LastHandshake:       p.LastWireguardHandshake,
		Relayed:             p.Relayed,
		QuantumResistant:    p.RosenpassEnabled,
		Routes:              p.Routes,
	}
}

func (e *Engine) HandleRoutes() ipc.RouteSelection {
	sel := ipc.RouteSelection{Routes: []ipc.RouteRecord{}}
	details, err := e.cfg.Client.RoutesSelectionDetails()
	if err != nil {
		e.log.WithError(err).Debug("route details unavailable")
		return sel
	}
	if details == nil {
		return sel
	}
	for _, r := range details.Routes {
		rec := ipc.RouteRecord{
			ID:       r.ID,
			Name:     r.ID,
			Network:  r.Network,
			Domains:  []ipc.DomainRecord{},
			Selected: r.Selected,
		}
		if len(r.Domains) > 0 {
			rec.Network = ipc.NoNetwork
		}
		for _, d := range r.Domains {
			rec.Domains = append(rec.Domains, ipc.DomainRecord{
				Domain:      d.Domain,
				ResolvedIPs: strings.Join(d.ResolvedIPs, ","),
			})
		}
		sel.Routes = append(sel.Routes, rec)
	}
	return sel
}

func (e *Engine) HandleSelectRoute(id string) error {
	return e.cfg.Client.SelectRoute(id)
}

func (e *Engine) HandleDeselectRoute(id string) error {
	return e.cfg.Client.DeselectRoute(id)
}

// HandleSetConfig hands a config blob from the foreground to the SDK and
// persists it for the next start.
func (e *Engine) HandleSetConfig(blob string) error {
	if !json.Valid([]byte(blob)) {
		return errors.New("set config: invalid JSON")
	}
	if err := e.cfg.Client.SetConfigFromJSON(blob); err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	if e.cfg.ConfigPath == "" {
		return nil
	}
	if err := writeFile(e.cfg.ConfigPath, []byte(blob)); err != nil {
		return fmt.Errorf("set config: %w", err)
	}
	e.log.Info("config updated from foreground")
	return nil
}

// HandleClearConfig removes the SDK config and state files.
func (e *Engine) HandleClearConfig() error {
	var errs []error
	for _, p := range []string{e.cfg.ConfigPath, e.cfg.StatePath} {
		if p == "" {
			continue
		}
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("clear config: %w", err)
	}
	e.log.Info("config cleared")
	return nil
}

// HandleInitializeConfig writes a default config naming the management
// server when none exists.
func (e *Engine) HandleInitializeConfig() error {
	if e.cfg.ConfigPath == "" {
		return errors.New("initialize config: no config path")
	}
	if fileExists(e.cfg.ConfigPath) {
		return nil
	}
	if e.cfg.ManagementURL == "" {
		return errors.New("initialize config: no management URL")
	}
	doc := settings.NewDocument()
	fields := []struct {
		name string
		val  any
	}{
		{settings.FieldManagementURL, e.cfg.ManagementURL},
		{settings.FieldAdminURL, e.cfg.AdminURL},
		{settings.FieldRosenpassEnabled, false},
		{settings.FieldRosenpassPermissive, false},
		{settings.FieldPreSharedKey, ""},
	}
	for _, f := range fields {
		if err := doc.Upsert(f.name, f.val); err != nil {
			return fmt.Errorf("initialize config: %w", err)
		}
	}
	data, err := doc.Bytes()
	if err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}
	if err := e.cfg.Client.SetConfigFromJSON(string(data)); err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}
	if err := writeFile(e.cfg.ConfigPath, data); err != nil {
		return fmt.Errorf("initialize config: %w", err)
	}
	e.log.WithField("management_url", e.cfg.ManagementURL).Info("config initialized")
	return nil
}

func fileExists(path string) bool {
	if path == "" {
		return false
	}
	_, err := os.Stat(path)
	return err == nil
}

func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	return os.WriteFile(path, data, 0600)
}
