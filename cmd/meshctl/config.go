package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/hopboxdev/meshbox/internal/app"
	"github.com/hopboxdev/meshbox/internal/ui"
)

// ConfigCmd manages the SDK config held by the tunnel process.
type ConfigCmd struct {
	Push  ConfigPushCmd  `cmd:"" name:"push" help:"Send the config to the tunnel process."`
	Clear ConfigClearCmd `cmd:"" name:"clear" help:"Remove the tunnel's config and state."`
	Init  ConfigInitCmd  `cmd:"" name:"init" help:"Write a default config if none exists."`
}

// ConfigPushCmd sends a config file, or the cached config, to the tunnel
// process.
type ConfigPushCmd struct {
	File string `arg:"" optional:"" help:"Config JSON to install ('-' for stdin). Without it the cached config is re-sent."`
}

func (c *ConfigPushCmd) Run(globals *CLI) error {
	ctx := context.Background()
	s, err := openSession(ctx, globals, os.Stderr)
	if err != nil {
		return err
	}

	if c.File == "" {
		if s.profile.SharedStorage {
			fmt.Println("Profile uses shared storage; the tunnel process reads the config directly.")
			return nil
		}
		if err := s.requireTunnel(); err != nil {
			return err
		}
		if err := s.ctrl.PushConfig(ctx); err != nil {
			return err
		}
		fmt.Println(ui.StepOK("Config sent"))
		return nil
	}

	blob, err := readConfigFile(c.File)
	if err != nil {
		return err
	}
	err = s.ctrl.ImportConfig(ctx, string(blob))
	switch {
	case err == nil:
		fmt.Println(ui.StepOK("Config installed"))
		return nil
	case errors.Is(err, app.ErrNotRunning) && !s.profile.SharedStorage:
		fmt.Fprintln(os.Stderr, ui.Warn("Config cached; it is sent on the next 'meshctl up'."))
		return nil
	case errors.Is(err, app.ErrNotRunning):
		return s.requireTunnel()
	}
	return err
}

func readConfigFile(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return data, nil
}

// ConfigClearCmd removes the config and state files in the tunnel's
// container.
type ConfigClearCmd struct{}

func (c *ConfigClearCmd) Run(globals *CLI) error {
	ctx := context.Background()
	s, err := openSession(ctx, globals, os.Stderr)
	if err != nil {
		return err
	}
	if err := s.requireTunnel(); err != nil {
		return err
	}
	if err := s.ctrl.ClearConfig(ctx); err != nil {
		return err
	}
	fmt.Println(ui.StepOK("Config and state removed"))
	return nil
}

// ConfigInitCmd asks the tunnel process to write its default config.
type ConfigInitCmd struct{}

func (c *ConfigInitCmd) Run(globals *CLI) error {
	ctx := context.Background()
	s, err := openSession(ctx, globals, os.Stderr)
	if err != nil {
		return err
	}
	if err := s.requireTunnel(); err != nil {
		return err
	}
	if err := s.ctrl.InitializeConfig(ctx); err != nil {
		return err
	}
	fmt.Println(ui.StepOK("Default config written"))
	return nil
}
