package settings

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/hopboxdev/meshbox/internal/psk"
)

// FileProvider edits the SDK config file in place. The tunnel process
// reads the same file, so no transfer is needed.
type FileProvider struct {
	path string
	log  *logrus.Entry

	mu sync.Mutex
	v  values
}

// NewFileProvider returns a provider over the config file at path.
// Call Reload before reading values.
func NewFileProvider(path string, log *logrus.Entry) *FileProvider {
	return &FileProvider{path: path, log: log}
}

func (p *FileProvider) RosenpassEnabled() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.v.rosenpassEnabled
}

func (p *FileProvider) SetRosenpassEnabled(v bool) {
	p.mu.Lock()
	p.v.rosenpassEnabled = v
	p.mu.Unlock()
}

func (p *FileProvider) RosenpassPermissive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.v.rosenpassPermissive
}

func (p *FileProvider) SetRosenpassPermissive(v bool) {
	p.mu.Lock()
	p.v.rosenpassPermissive = v
	p.mu.Unlock()
}

func (p *FileProvider) PreSharedKey() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.v.preSharedKey
}

func (p *FileProvider) SetPreSharedKey(key string) error {
	norm, err := psk.Normalize(key)
	if err != nil {
		return err
	}
	p.mu.Lock()
	p.v.preSharedKey = norm
	p.mu.Unlock()
	return nil
}

func (p *FileProvider) HasPreSharedKey() bool {
	return p.PreSharedKey() != ""
}

// Commit merges the staged values into the latest file contents. Fields
// the SDK has not written yet are added.
func (p *FileProvider) Commit(_ context.Context) bool {
	p.mu.Lock()
	v := p.v
	p.mu.Unlock()

	doc, err := p.read()
	if err != nil {
		p.log.WithError(err).Error("read config for commit")
		return false
	}
	if err := applyValues(doc, v, doc.Upsert); err != nil {
		p.log.WithError(err).Error("patch config")
		return false
	}
	data, err := doc.Bytes()
	if err != nil {
		p.log.WithError(err).Error("encode config")
		return false
	}
	if err := writeFileAtomic(p.path, data); err != nil {
		p.log.WithError(err).Error("write config")
		return false
	}
	p.log.WithField("path", p.path).Debug("settings committed")
	return true
}

// Reload re-reads the config file. A missing file yields zero values.
func (p *FileProvider) Reload(_ context.Context) error {
	doc, err := p.read()
	if err != nil {
		return err
	}
	v := extractValues(doc)
	p.mu.Lock()
	p.v = v
	p.mu.Unlock()
	return nil
}

func (p *FileProvider) read() (*Document, error) {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, fs.ErrNotExist) {
		return NewDocument(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", p.path, err)
	}
	return ParseDocument(data)
}

// extractValues reads the managed fields, treating absent ones as zero.
func extractValues(doc *Document) values {
	var v values
	v.rosenpassEnabled, _ = doc.Bool(FieldRosenpassEnabled)
	v.rosenpassPermissive, _ = doc.Bool(FieldRosenpassPermissive)
	v.preSharedKey, _ = doc.String(FieldPreSharedKey)
	return v
}

// applyValues writes v into doc with the given setter.
func applyValues(doc *Document, v values, set func(string, any) error) error {
	fields := []struct {
		name string
		val  any
	}{
		{FieldRosenpassEnabled, v.rosenpassEnabled},
		{FieldRosenpassPermissive, v.rosenpassPermissive},
		{FieldPreSharedKey, v.preSharedKey},
	}
	var errs []error
	for _, f := range fields {
		if err := set(f.name, f.val); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func writeFileAtomic(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return nil
}
