package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
	"github.com/sirupsen/logrus"

	"github.com/hopboxdev/meshbox/internal/psk"
)

// StoreValues is the on-disk layout of the key-value store.
type StoreValues struct {
	RosenpassEnabled    bool   `toml:"rosenpass_enabled"`
	RosenpassPermissive bool   `toml:"rosenpass_permissive"`
	PreSharedKey        string `toml:"pre_shared_key,omitempty"`
	// ConfigJSON is the last SDK config blob seen by the foreground.
	ConfigJSON string `toml:"config_json,multiline,omitempty"`
}

// KVStore is a TOML file owned by the foreground process.
type KVStore struct {
	path string
	mu   sync.Mutex
}

func NewKVStore(path string) *KVStore {
	return &KVStore{path: path}
}

// Path returns the store's file path.
func (s *KVStore) Path() string { return s.path }

// Load reads the store. A missing file yields zero values.
func (s *KVStore) Load() (StoreValues, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var v StoreValues
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return v, nil
	}
	if err != nil {
		return v, fmt.Errorf("read store %s: %w", s.path, err)
	}
	if err := toml.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("parse store %s: %w", s.path, err)
	}
	return v, nil
}

// Save replaces the store contents.
func (s *KVStore) Save(v StoreValues) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := toml.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode store: %w", err)
	}
	if err := writeFileAtomic(s.path, data); err != nil {
		return fmt.Errorf("write store %s: %w", s.path, err)
	}
	return nil
}

// KVProvider keeps settings in a foreground store and patches them into
// the cached SDK config, which is then sent to the tunnel process.
type KVProvider struct {
	store    *KVStore
	transfer Transferer
	log      *logrus.Entry

	mu sync.Mutex
	v  values
}

// NewKVProvider returns a provider over store. transfer may be nil, in
// which case Commit only persists locally.
func NewKVProvider(store *KVStore, transfer Transferer, log *logrus.Entry) *KVProvider {
	return &KVProvider{store: store, transfer: transfer, log: log}
}

func (p *KVProvider) RosenpassEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.v.rosenpassEnabled
}

func (p *KVProvider) SetRosenpassEnabled(v bool) {
	p.mu.Lock()
	p.v.rosenpassEnabled = v
	p.mu.Unlock()
}

func (p *KVProvider) RosenpassPermissive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.v.rosenpassPermissive
}

func (p *KVProvider) SetRosenpassPermissive(v bool) {
	p.mu.Lock()
	p.v.rosenpassPermissive = v
	p.mu.Unlock()
}

func (p *KVProvider) PreSharedKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.v.preSharedKey
}

func (p *KVProvider) SetPreSharedKey(key string) error {
	norm, err := psk.Normalize(key)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.v.preSharedKey = norm
	p.mu.Unlock()
	return nil
}

func (p *KVProvider) HasPreSharedKey() bool {
	return p.PreSharedKey() != ""
}

// Commit saves the staged values, patches them into the cached config and
// transfers the result. It returns false if any step fails.
func (p *KVProvider) Commit(ctx context.Context) bool {
	p.mu.Lock()
	v := p.v
	p.mu.Unlock()

	sv, err := p.store.Load()
	if err != nil {
		p.log.WithError(err).Error("load store for commit")
		return false
	}
	sv.RosenpassEnabled = v.rosenpassEnabled
	sv.RosenpassPermissive = v.rosenpassPermissive
	sv.PreSharedKey = v.preSharedKey

	if sv.ConfigJSON == "" {
		if err := p.store.Save(sv); err != nil {
			p.log.WithError(err).Error("save store")
			return false
		}
		p.log.Debug("no cached config; settings stored locally")
		return true
	}

	patched, err := p.patch(sv.ConfigJSON, v)
	if err != nil {
		p.log.WithError(err).Error("patch config")
		return false
	}
	sv.ConfigJSON = patched
	if err := p.store.Save(sv); err != nil {
		p.log.WithError(err).Error("save store")
		return false
	}
	if p.transfer == nil {
		return true
	}
	if !p.transfer.SetConfig(ctx, patched) {
		p.log.Warn("config transfer to tunnel process failed")
		return false
	}
	return true
}

// Reload re-reads the store.
func (p *KVProvider) Reload(_ context.Context) error {
	sv, err := p.store.Load()
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.v = values{
		rosenpassEnabled:    sv.RosenpassEnabled,
		rosenpassPermissive: sv.RosenpassPermissive,
		preSharedKey:        sv.PreSharedKey,
	}
	p.mu.Unlock()
	return nil
}

// CacheConfig stores a config blob received from the management server
// or the user. Managed fields present in the blob replace the stored
// values.
func (p *KVProvider) CacheConfig(blob string) error {
	doc, err := ParseDocument([]byte(blob))
	if err != nil {
		return err
	}
	sv, err := p.store.Load()
	if err != nil {
		return err
	}
	sv.ConfigJSON = blob
	if b, ok := doc.Bool(FieldRosenpassEnabled); ok {
		sv.RosenpassEnabled = b
	}
	if b, ok := doc.Bool(FieldRosenpassPermissive); ok {
		sv.RosenpassPermissive = b
	}
	if s, ok := doc.String(FieldPreSharedKey); ok {
		sv.PreSharedKey = s
	}
	if err := p.store.Save(sv); err != nil {
		return err
	}
	p.mu.Lock()
	p.v = values{
		rosenpassEnabled:    sv.RosenpassEnabled,
		rosenpassPermissive: sv.RosenpassPermissive,
		preSharedKey:        sv.PreSharedKey,
	}
	p.mu.Unlock()
	return nil
}

// PatchedConfig returns the cached config with the stored values applied,
// or "" when no config is cached.
func (p *KVProvider) PatchedConfig() (string, error) {
	sv, err := p.store.Load()
	if err != nil {
		return "", err
	}
	if sv.ConfigJSON == "" {
		return "", nil
	}
	return p.patch(sv.ConfigJSON, values{
		rosenpassEnabled:    sv.RosenpassEnabled,
		rosenpassPermissive: sv.RosenpassPermissive,
		preSharedKey:        sv.PreSharedKey,
	})
}

// patch applies v to blob. Fields missing from blob are left out.
func (p *KVProvider) patch(blob string, v values) (string, error) {
	doc, err := ParseDocument([]byte(blob))
	if err != nil {
		return "", err
	}
	if err := applyValues(doc, v, doc.Set); err != nil {
		if !errors.Is(err, ErrFieldAbsent) {
			return "", err
		}
		p.log.WithError(err).Debug("config lacks field; not updated")
	}
	out, err := doc.Bytes()
	if err != nil {
		return "", err
	}
	return string(out), nil
}
