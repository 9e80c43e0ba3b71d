package tunnel

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	ps "github.com/mitchellh/go-ps"
)

// RunState describes a running tunnel process.
// Written to <container>/run/tunnel.json.
type RunState struct {
	PID        int       `json:"pid"`
	Profile    string    `json:"profile"`
	SocketPath string    `json:"socket_path"`
	Interface  string    `json:"interface,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	State      State     `json:"state"`
}

// WriteRunState writes the run state to path, creating its directory.
func WriteRunState(path string, state *RunState) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LoadRunState reads the run state at path.
// Returns nil, nil if the file does not exist or the recorded process is no longer running.
func LoadRunState(path string) (*RunState, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read run state: %w", err)
	}
	var state RunState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("parse run state: %w", err)
	}
	if state.PID > 0 && !pidAlive(state.PID) {
		_ = os.Remove(path)
		return nil, nil
	}
	return &state, nil
}

// RemoveRunState deletes the run state file.
func RemoveRunState(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove run state: %w", err)
	}
	return nil
}

func pidAlive(pid int) bool {
	p, err := ps.FindProcess(pid)
	return err == nil && p != nil
}
