package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"
	"github.com/sirupsen/logrus"

	"github.com/hopboxdev/meshbox/internal/app"
	"github.com/hopboxdev/meshbox/internal/ipc"
	"github.com/hopboxdev/meshbox/internal/profile"
	"github.com/hopboxdev/meshbox/internal/settings"
	"github.com/hopboxdev/meshbox/internal/tunnel"
)

// CLI is the top-level Kong struct.
type CLI struct {
	Verbose bool   `short:"v" help:"Verbose output."`
	Profile string `short:"p" help:"Profile name from ~/.config/meshbox/profiles/."`

	Up       UpCmd       `cmd:"" help:"Start the tunnel."`
	Down     DownCmd     `cmd:"" help:"Stop the tunnel."`
	Status   StatusCmd   `cmd:"" help:"Show tunnel status and peers."`
	Routes   RoutesCmd   `cmd:"" help:"List and select network routes."`
	Login    LoginCmd    `cmd:"" help:"Log in to the management server."`
	Settings SettingsCmd `cmd:"" help:"Show or change tunnel settings."`
	Config   ConfigCmd   `cmd:"" help:"Manage the tunnel's SDK config."`
	Profiles ProfileCmd  `cmd:"" name:"profile" help:"Manage profiles."`
	Diag     DiagCmd     `cmd:"" help:"Check network reachability and the tunnel process."`
	Version  VersionCmd  `cmd:"" help:"Print version."`
}

func newParser(cli *CLI) (*kong.Kong, error) {
	return kong.New(cli,
		kong.Name("meshctl"),
		kong.Description("meshbox CLI: control the mesh tunnel from the foreground"),
		kong.UsageOnError(),
		kong.Vars{
			"default_interface": tunnel.DefaultInterfaceName,
			"route_target":      tunnel.DefaultRouteTarget,
			"stun_server":       tunnel.DefaultSTUNServer,
		},
		kong.ConfigureHelp(kong.HelpOptions{
			NoExpandSubcommands: true,
			Compact:             true,
		}),
	)
}

func main() {
	var cli CLI
	k, err := newParser(&cli)
	if err != nil {
		panic(err)
	}

	args := os.Args[1:]
	if len(args) == 0 || (len(args) == 1 && args[0] == "help") {
		_, _ = k.Parse([]string{"--help"})
		os.Exit(0)
	}

	ctx, err := k.Parse(args)
	k.FatalIfErrorf(err)
	k.FatalIfErrorf(ctx.Run(&cli))
}

// newLogger returns the root entry for a command. --verbose overrides the
// profile's level.
func newLogger(globals *CLI, p *profile.Profile, out io.Writer) *logrus.Entry {
	l := logrus.New()
	l.SetOutput(out)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: !globals.Verbose})
	switch {
	case globals.Verbose:
		l.SetLevel(logrus.DebugLevel)
	case p != nil:
		l.SetLevel(p.Level())
	default:
		l.SetLevel(logrus.WarnLevel)
	}
	return logrus.NewEntry(l).WithField("profile", profileName(p))
}

func profileName(p *profile.Profile) string {
	if p == nil {
		return ""
	}
	return p.Name
}

// loadProfile resolves and loads the profile selected by --profile or the
// global default.
func loadProfile(globals *CLI) (*profile.Profile, error) {
	name := profile.Resolve(globals.Profile)
	p, err := profile.Load(name)
	if err != nil {
		return nil, fmt.Errorf("%w (create it with 'meshctl profile add %s --management-url <url>')", err, name)
	}
	return p, nil
}

// session is what most commands need: the profile, a controller wired to
// it and whether the tunnel process answered.
type session struct {
	profile  *profile.Profile
	ctrl     *app.Controller
	attached bool
	log      *logrus.Entry
}

func openSession(ctx context.Context, globals *CLI, logOut io.Writer) (*session, error) {
	return openSessionWithMetrics(ctx, globals, logOut, nil)
}

func openSessionWithMetrics(ctx context.Context, globals *CLI, logOut io.Writer, metrics *ipc.Metrics) (*session, error) {
	p, err := loadProfile(globals)
	if err != nil {
		return nil, err
	}
	log := newLogger(globals, p, logOut)

	broker := ipc.NewBroker(ipc.BrokerConfig{Log: log, Metrics: metrics})
	opts := settings.Options{
		SharedStorage: p.SharedStorage,
		Transfer:      broker,
		Log:           log,
	}
	if opts.ConfigPath, err = p.ConfigPath(); err != nil {
		return nil, err
	}
	if opts.StorePath, err = p.StorePath(); err != nil {
		return nil, err
	}
	prov, err := settings.NewProvider(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("load settings: %w", err)
	}

	ctrl, err := app.New(app.Config{
		Profile:  p,
		Broker:   broker,
		Settings: prov,
		Manager:  app.NewSystemdManager(p.Name),
		Log:      log,
	})
	if err != nil {
		return nil, err
	}
	return &session{profile: p, ctrl: ctrl, attached: ctrl.Attach(), log: log}, nil
}

// requireTunnel fails with a hint when the tunnel process is not running.
func (s *session) requireTunnel() error {
	if s.attached {
		return nil
	}
	return fmt.Errorf("%w for profile %q: run 'meshctl up' first", app.ErrNotRunning, s.profile.Name)
}
