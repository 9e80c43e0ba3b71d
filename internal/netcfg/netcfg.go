// Package netcfg applies tunnel network settings to the host.
package netcfg

import (
	"context"
	"sync"

	"github.com/hopboxdev/meshbox/internal/routes"
)

// Recorder keeps the last applied settings without touching the host.
// It is used where another process applies settings, and in tests.
type Recorder struct {
	mu      sync.Mutex
	last    routes.Settings
	applied bool
	count   int
}

func (r *Recorder) Apply(_ context.Context, s routes.Settings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = s
	r.applied = true
	r.count++
	return nil
}

func (r *Recorder) Reset(_ context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = routes.Settings{}
	r.applied = false
	return nil
}

// Last returns the most recent settings and whether any are applied.
func (r *Recorder) Last() (routes.Settings, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.applied
}

// Count returns how many times Apply was called.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
