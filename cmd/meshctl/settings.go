package main

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/hopboxdev/meshbox/internal/psk"
	"github.com/hopboxdev/meshbox/internal/settings"
	"github.com/hopboxdev/meshbox/internal/ui"
)

// SettingsCmd shows or changes the tunnel settings managed by meshbox.
type SettingsCmd struct {
	Show SettingsShowCmd `cmd:"" name:"show" default:"1" help:"Show current settings."`
	Edit SettingsEditCmd `cmd:"" name:"edit" help:"Edit settings interactively."`
	Set  SettingsSetCmd  `cmd:"" name:"set" help:"Set one setting."`
}

// Setting keys accepted by 'meshctl settings set'.
const (
	keyRosenpass  = "rosenpass"
	keyPermissive = "rosenpass-permissive"
	keyPSK        = "psk"
)

// SettingsShowCmd prints the current settings.
type SettingsShowCmd struct{}

func (c *SettingsShowCmd) Run(globals *CLI) error {
	ctx := context.Background()
	s, err := openSession(ctx, globals, os.Stderr)
	if err != nil {
		return err
	}
	fmt.Println(ui.Section("Settings", settingsTable(s.ctrl.Settings()), ui.MaxWidth))
	return nil
}

// SettingsEditCmd edits all settings in a form.
type SettingsEditCmd struct{}

func (c *SettingsEditCmd) Run(globals *CLI) error {
	ctx := context.Background()
	s, err := openSession(ctx, globals, os.Stderr)
	if err != nil {
		return err
	}
	prov := s.ctrl.Settings()

	enabled := prov.RosenpassEnabled()
	permissive := prov.RosenpassPermissive()
	key := prov.PreSharedKey()
	form := huh.NewForm(huh.NewGroup(
		huh.NewConfirm().
			Title("Enable Rosenpass?").
			Description("Post-quantum key exchange between peers.").
			Value(&enabled),
		huh.NewConfirm().
			Title("Rosenpass permissive mode?").
			Description("Keep talking to peers that do not run Rosenpass.").
			Value(&permissive),
		huh.NewInput().
			Title("Pre-shared key").
			Description("Base64 WireGuard key. Leave empty for none.").
			EchoMode(huh.EchoModePassword).
			Value(&key).
			Validate(validatePSK),
	))
	if err := form.Run(); err != nil {
		return err
	}

	prov.SetRosenpassEnabled(enabled)
	prov.SetRosenpassPermissive(permissive)
	if err := prov.SetPreSharedKey(key); err != nil {
		return err
	}
	return commitSettings(ctx, s)
}

// SettingsSetCmd sets a single value.
type SettingsSetCmd struct {
	Key   string `arg:"" enum:"rosenpass,rosenpass-permissive,psk" help:"One of rosenpass, rosenpass-permissive, psk."`
	Value string `arg:"" help:"on/off for booleans; a key, 'generate' or 'none' for psk."`
}

func (c *SettingsSetCmd) Run(globals *CLI) error {
	ctx := context.Background()
	s, err := openSession(ctx, globals, os.Stderr)
	if err != nil {
		return err
	}
	if err := applySetting(s.ctrl.Settings(), c.Key, c.Value); err != nil {
		return err
	}
	return commitSettings(ctx, s)
}

// applySetting stages one key/value on prov.
func applySetting(prov settings.Provider, key, value string) error {
	switch key {
	case keyRosenpass, keyPermissive:
		b, err := parseSwitch(value)
		if err != nil {
			return err
		}
		if key == keyRosenpass {
			prov.SetRosenpassEnabled(b)
		} else {
			prov.SetRosenpassPermissive(b)
		}
		return nil
	case keyPSK:
		switch strings.ToLower(value) {
		case "none", "":
			return prov.SetPreSharedKey("")
		case "generate":
			k, err := psk.Generate()
			if err != nil {
				return err
			}
			return prov.SetPreSharedKey(k)
		}
		return prov.SetPreSharedKey(value)
	}
	return fmt.Errorf("unknown setting %q", key)
}

// parseSwitch accepts on/off alongside strconv's boolean forms.
func parseSwitch(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on", "yes":
		return true, nil
	case "off", "no":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("invalid value %q: want on or off", s)
	}
	return b, nil
}

func validatePSK(s string) error {
	if strings.TrimSpace(s) == "" || psk.Valid(s) {
		return nil
	}
	return psk.ErrInvalidKey
}

func settingsTable(prov settings.Provider) string {
	onOff := func(b bool) string {
		if b {
			return ui.Check(true) + " on"
		}
		return ui.Check(false) + " off"
	}
	rows := [][]string{
		{keyRosenpass, onOff(prov.RosenpassEnabled())},
		{keyPermissive, onOff(prov.RosenpassPermissive())},
		{keyPSK, ui.Dash(psk.Display(prov.PreSharedKey()))},
	}
	return ui.Table([]string{"SETTING", "VALUE"}, rows)
}

// commitSettings saves staged settings and explains where they went.
func commitSettings(ctx context.Context, s *session) error {
	err := s.ctrl.CommitSettings(ctx)
	switch {
	case err == nil:
		fmt.Println(ui.StepOK("Settings saved"))
		if s.profile.SharedStorage {
			fmt.Println("Changes take effect the next time the tunnel connects.")
		}
		return nil
	case !s.profile.SharedStorage && !s.attached:
		// The store is written before the transfer is attempted.
		fmt.Fprintln(os.Stderr, ui.Warn("Settings saved locally; they are sent on the next 'meshctl up'."))
		return nil
	}
	return fmt.Errorf("%w (rerun with -v for details)", err)
}
