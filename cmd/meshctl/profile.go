package main

import (
	"fmt"
	"strings"

	"github.com/hopboxdev/meshbox/internal/profile"
	"github.com/hopboxdev/meshbox/internal/tunnel"
	"github.com/hopboxdev/meshbox/internal/ui"
)

// ProfileCmd manages profiles.
type ProfileCmd struct {
	Add     ProfileAddCmd     `cmd:"" name:"add" help:"Create or update a profile."`
	Rm      ProfileRmCmd      `cmd:"" name:"rm" help:"Remove a profile."`
	Ls      ProfileLsCmd      `cmd:"" name:"ls" help:"List profiles."`
	Default ProfileDefaultCmd `cmd:"" name:"default" help:"Get or set the default profile."`
}

// ProfileAddCmd writes a profile file.
type ProfileAddCmd struct {
	Name          string `arg:""`
	ManagementURL string `name:"management-url" required:"" help:"Management server URL."`
	AdminURL      string `name:"admin-url" help:"Admin console URL."`
	Container     string `help:"Directory for the SDK config and state (default ~/.local/share/meshbox/<name>)."`
	Interface     string `help:"Tunnel interface name." default:"${default_interface}"`
	ForceRelay    bool   `name:"force-relay" help:"Always relay peer traffic."`
	SharedStorage bool   `name:"shared-storage" default:"true" negatable:"" help:"The tunnel process reads the container directly."`
	LogLevel      string `name:"log-level" enum:"debug,info,warn,error" default:"info"`
}

func (c *ProfileAddCmd) Run() error {
	p := &profile.Profile{
		Name:          c.Name,
		ManagementURL: c.ManagementURL,
		AdminURL:      c.AdminURL,
		Container:     c.Container,
		Interface:     c.Interface,
		ForceRelay:    c.ForceRelay,
		SharedStorage: c.SharedStorage,
		LogLevel:      c.LogLevel,
	}
	if err := p.Save(); err != nil {
		return err
	}
	fmt.Println(ui.StepOK(fmt.Sprintf("Profile %s saved", c.Name)))

	// The first profile becomes the default.
	if cfg, err := profile.LoadGlobalConfig(); err == nil && cfg.DefaultProfile == "" {
		if err := profile.SetDefault(c.Name); err != nil {
			return err
		}
	}
	return nil
}

// ProfileRmCmd removes a profile.
type ProfileRmCmd struct {
	Name string `arg:""`
}

func (c *ProfileRmCmd) Run() error {
	if err := profile.Delete(c.Name); err != nil {
		return err
	}
	if cfg, err := profile.LoadGlobalConfig(); err == nil && cfg.DefaultProfile == c.Name {
		cfg.DefaultProfile = ""
		_ = cfg.Save()
	}
	return nil
}

// ProfileLsCmd lists profiles and marks the default and running ones.
type ProfileLsCmd struct{}

func (c *ProfileLsCmd) Run() error {
	names, err := profile.List()
	if err != nil {
		return err
	}
	if len(names) == 0 {
		fmt.Println(ui.Section("Profiles", "No profiles. Use 'meshctl profile add' to create one.", ui.MaxWidth))
		return nil
	}
	cfg, _ := profile.LoadGlobalConfig()
	var lines []string
	for _, n := range names {
		line := "  " + n
		if cfg != nil && n == cfg.DefaultProfile {
			line = fmt.Sprintf("%s %s   (default)", ui.StateDot(profileState(n)), n)
		} else if profileState(n) == tunnel.StateConnected {
			line = fmt.Sprintf("%s %s", ui.StateDot(tunnel.StateConnected), n)
		}
		lines = append(lines, line)
	}
	fmt.Println(ui.Section("Profiles", strings.Join(lines, "\n"), ui.MaxWidth))
	return nil
}

// profileState reports the last state the profile's tunnel process
// recorded, or disconnected when it is not running.
func profileState(name string) tunnel.State {
	p, err := profile.Load(name)
	if err != nil {
		return tunnel.StateDisconnected
	}
	path, err := p.RunStatePath()
	if err != nil {
		return tunnel.StateDisconnected
	}
	rs, err := tunnel.LoadRunState(path)
	if err != nil || rs == nil {
		return tunnel.StateDisconnected
	}
	return rs.State
}

// ProfileDefaultCmd gets or sets the default profile.
type ProfileDefaultCmd struct {
	Name string `arg:"" optional:"" help:"Profile to make the default. If omitted, prints the current default."`
}

func (c *ProfileDefaultCmd) Run() error {
	if c.Name == "" {
		cfg, err := profile.LoadGlobalConfig()
		if err != nil {
			return err
		}
		if cfg.DefaultProfile == "" {
			fmt.Printf("No default profile set; %q is used.\n", profile.DefaultName)
		} else {
			fmt.Println(cfg.DefaultProfile)
		}
		return nil
	}
	if _, err := profile.Load(c.Name); err != nil {
		return fmt.Errorf("profile %q not found: run 'meshctl profile add %s --management-url <url>' first", c.Name, c.Name)
	}
	if err := profile.SetDefault(c.Name); err != nil {
		return err
	}
	fmt.Printf("Default profile set to %q.\n", c.Name)
	return nil
}
