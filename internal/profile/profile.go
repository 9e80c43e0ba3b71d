// Package profile stores named connection profiles and resolves the
// per-profile container directory shared by the foreground and tunnel
// processes.
package profile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// DefaultName is used when no profile is selected.
const DefaultName = "default"

// Profile holds the parameters for one mesh network.
// Stored at ~/.config/meshbox/profiles/<name>.yaml.
type Profile struct {
	Name          string `yaml:"name"`
	ManagementURL string `yaml:"management_url"`
	AdminURL      string `yaml:"admin_url,omitempty"`
	// Container is the directory holding the SDK config and state files.
	// Defaults to ~/.local/share/meshbox/<name>.
	Container  string `yaml:"container,omitempty"`
	Socket     string `yaml:"socket,omitempty"`    // IPC socket, defaults inside Container
	Interface  string `yaml:"interface,omitempty"` // tunnel interface name
	ForceRelay bool   `yaml:"force_relay,omitempty"`
	// SharedStorage is true when the tunnel process reads Container
	// directly. Otherwise the foreground transfers config over IPC.
	SharedStorage bool   `yaml:"shared_storage"`
	LogLevel      string `yaml:"log_level,omitempty"`
}

// ConfigDir returns the directory where profiles are stored.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".config", "meshbox", "profiles"), nil
}

// DataDir returns the default container directory for a profile.
func DataDir(name string) (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	return filepath.Join(home, ".local", "share", "meshbox", name), nil
}

func validName(name string) error {
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return fmt.Errorf("invalid profile name %q", name)
	}
	return nil
}

// Save writes the profile to ~/.config/meshbox/profiles/<name>.yaml.
func (p *Profile) Save() error {
	if err := validName(p.Name); err != nil {
		return err
	}
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal profile: %w", err)
	}
	return os.WriteFile(filepath.Join(dir, p.Name+".yaml"), data, 0600)
}

// Load reads a profile by name.
func Load(name string) (*Profile, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(dir, name+".yaml"))
	if err != nil {
		return nil, fmt.Errorf("read profile %q: %w", name, err)
	}
	var p Profile
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse profile %q: %w", name, err)
	}
	if p.Name == "" {
		p.Name = name
	}
	return &p, nil
}

// List returns the names of all saved profiles.
func List() ([]string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list profiles: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	return names, nil
}

// Delete removes a profile by name. The container directory is kept.
func Delete(name string) error {
	if err := validName(name); err != nil {
		return err
	}
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(dir, name+".yaml")); err != nil {
		return fmt.Errorf("delete profile %q: %w", name, err)
	}
	return nil
}

// ContainerDir returns the resolved container directory.
func (p *Profile) ContainerDir() (string, error) {
	if p.Container != "" {
		return p.Container, nil
	}
	return DataDir(p.Name)
}

func (p *Profile) containerFile(name string) (string, error) {
	dir, err := p.ContainerDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// ConfigPath is the SDK config file.
func (p *Profile) ConfigPath() (string, error) { return p.containerFile("config.json") }

// StatePath is the SDK state file.
func (p *Profile) StatePath() (string, error) { return p.containerFile("state.json") }

// StorePath is the foreground key-value store.
func (p *Profile) StorePath() (string, error) { return p.containerFile("settings.toml") }

// RunStatePath is the run-state file written by the tunnel process.
func (p *Profile) RunStatePath() (string, error) { return p.containerFile("run.json") }

// SocketPath is the IPC socket.
func (p *Profile) SocketPath() (string, error) {
	if p.Socket != "" {
		return p.Socket, nil
	}
	return p.containerFile("meshbox.sock")
}

// Level parses LogLevel, defaulting to info.
func (p *Profile) Level() logrus.Level {
	if p.LogLevel == "" {
		return logrus.InfoLevel
	}
	lvl, err := logrus.ParseLevel(p.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// GlobalConfig is ~/.config/meshbox/config.yaml.
type GlobalConfig struct {
	DefaultProfile string `yaml:"default_profile,omitempty"`
}

func globalPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(filepath.Dir(dir), "config.yaml"), nil
}

// LoadGlobalConfig reads the global config. A missing file is empty.
func LoadGlobalConfig() (*GlobalConfig, error) {
	path, err := globalPath()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &GlobalConfig{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read global config: %w", err)
	}
	var cfg GlobalConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse global config: %w", err)
	}
	return &cfg, nil
}

// Save writes the global config.
func (c *GlobalConfig) Save() error {
	path, err := globalPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal global config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// SetDefault records name as the default profile.
func SetDefault(name string) error {
	cfg, err := LoadGlobalConfig()
	if err != nil {
		return err
	}
	cfg.DefaultProfile = name
	return cfg.Save()
}

// Resolve returns the profile name to use: flag, then the global
// default, then DefaultName.
func Resolve(flag string) string {
	if flag != "" {
		return flag
	}
	if cfg, err := LoadGlobalConfig(); err == nil && cfg.DefaultProfile != "" {
		return cfg.DefaultProfile
	}
	return DefaultName
}
