// Package settings exposes the user-editable VPN settings (Rosenpass and
// the pre-shared key) over two storage models: a config file shared with
// the tunnel process, or a foreground key-value store whose values are
// patched into the SDK config and transferred over IPC.
package settings

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

// Provider reads and writes settings. Setters only touch the in-memory
// view; Commit persists them.
type Provider interface {
	RosenpassEnabled() bool
	SetRosenpassEnabled(v bool)
	RosenpassPermissive() bool
	SetRosenpassPermissive(v bool)
	PreSharedKey() string
	// SetPreSharedKey validates and stages a key. An empty key clears it.
	SetPreSharedKey(key string) error
	HasPreSharedKey() bool
	// Commit persists staged values and reports success.
	Commit(ctx context.Context) bool
	// Reload discards staged values and re-reads the backing store.
	Reload(ctx context.Context) error
}

// Transferer delivers a config blob to the tunnel process.
type Transferer interface {
	SetConfig(ctx context.Context, json string) bool
}

// Options select and configure a Provider.
type Options struct {
	// SharedStorage is true when the tunnel process can read the
	// foreground's files directly.
	SharedStorage bool
	// ConfigPath is the SDK config file, used with shared storage.
	ConfigPath string
	// StorePath is the TOML key-value store, used without shared storage.
	StorePath string
	// Transfer sends patched configs to the tunnel process.
	Transfer Transferer
	Log      *logrus.Entry
}

// values is the staged state common to both providers.
type values struct {
	rosenpassEnabled    bool
	rosenpassPermissive bool
	preSharedKey        string
}

// NewProvider returns the provider matching the platform's storage model,
// with its values loaded.
func NewProvider(ctx context.Context, opts Options) (Provider, error) {
	log := opts.Log
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	log = log.WithField("component", "settings")

	var p Provider
	if opts.SharedStorage {
		if opts.ConfigPath == "" {
			return nil, errors.New("settings: shared storage requires a config path")
		}
		p = NewFileProvider(opts.ConfigPath, log)
	} else {
		if opts.StorePath == "" {
			return nil, errors.New("settings: key-value storage requires a store path")
		}
		p = NewKVProvider(NewKVStore(opts.StorePath), opts.Transfer, log)
	}
	if err := p.Reload(ctx); err != nil {
		return nil, err
	}
	return p, nil
}
