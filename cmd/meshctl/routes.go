package main

import (
	"context"
	"fmt"
	"os"

	"github.com/hopboxdev/meshbox/internal/ui"
)

// RoutesCmd lists and selects network routes.
type RoutesCmd struct {
	Ls       RoutesLsCmd       `cmd:"" name:"ls" help:"List routes."`
	Select   RoutesSelectCmd   `cmd:"" name:"select" help:"Select a route."`
	Deselect RoutesDeselectCmd `cmd:"" name:"deselect" help:"Deselect a route."`
}

// RoutesLsCmd lists the routes offered by the network.
type RoutesLsCmd struct{}

func (c *RoutesLsCmd) Run(globals *CLI) error {
	ctx := context.Background()
	s, err := openSession(ctx, globals, os.Stderr)
	if err != nil {
		return err
	}
	if err := s.requireTunnel(); err != nil {
		return err
	}
	sel, err := s.ctrl.Routes(ctx)
	if err != nil {
		return err
	}
	if len(sel.Routes) == 0 {
		fmt.Println(ui.Section("Routes", "No routes offered by the network.", ui.MaxWidth))
		return nil
	}
	fmt.Println(ui.Section("Routes", routesTable(sel.Routes), ui.MaxWidth))
	return nil
}

// RoutesSelectCmd selects a route by ID.
type RoutesSelectCmd struct {
	ID string `arg:"" help:"Route ID from 'meshctl routes ls'."`
}

func (c *RoutesSelectCmd) Run(globals *CLI) error {
	return changeRoute(globals, c.ID, true)
}

// RoutesDeselectCmd deselects a route by ID.
type RoutesDeselectCmd struct {
	ID string `arg:"" help:"Route ID from 'meshctl routes ls'."`
}

func (c *RoutesDeselectCmd) Run(globals *CLI) error {
	return changeRoute(globals, c.ID, false)
}

func changeRoute(globals *CLI, id string, selected bool) error {
	ctx := context.Background()
	s, err := openSession(ctx, globals, os.Stderr)
	if err != nil {
		return err
	}
	if err := s.requireTunnel(); err != nil {
		return err
	}
	if selected {
		err = s.ctrl.SelectRoute(ctx, id)
	} else {
		err = s.ctrl.DeselectRoute(ctx, id)
	}
	if err != nil {
		return err
	}
	verb := "deselected"
	if selected {
		verb = "selected"
	}
	fmt.Println(ui.StepOK(fmt.Sprintf("Route %s %s", id, verb)))
	return nil
}
