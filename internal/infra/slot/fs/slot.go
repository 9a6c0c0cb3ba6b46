// Package fs implements a slot stored as a JSON file on the local filesystem.
package fs

import (
	"context"
	"errors"
	"fmt"
	iofs "io/fs"
	"os"
	"path/filepath"
	"sync"

	"treewalk/internal/slot/core"
)

// Slot implements core.Slot as <root>/<key>.json. Writes go to a temp file
// that is renamed into place so readers never observe a partial payload.
type Slot struct {
	mu   sync.Mutex
	name string
	path string
}

// New returns a filesystem slot rooted at root, creating the directory if needed.
func New(root, name string) (*Slot, error) {
	if root == "" {
		root = "./data"
	}
	key, err := core.KeyFor(name)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create slot root: %w", err)
	}
	return &Slot{name: name, path: filepath.Join(root, key+".json")}, nil
}

// Name returns the slot name.
func (s *Slot) Name() string { return s.name }

// Path returns the backing file path.
func (s *Slot) Path() string { return s.path }

// Driver returns the slot driver identifier.
func (s *Slot) Driver() core.Driver { return core.DriverFilesystem }

// Read returns the file contents or core.ErrEmpty when the file does not exist.
func (s *Slot) Read(_ context.Context) ([]byte, error) {
	// #nosec G304 -- path is built from a sanitized slot key under the configured root
	b, err := os.ReadFile(s.path)
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, core.ErrEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("read slot %s: %w", s.name, err)
	}
	return b, nil
}

// Write atomically replaces the file contents.
func (s *Slot) Write(_ context.Context, payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()
	if _, err := tmp.Write(payload); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("rename slot file: %w", err)
	}
	return nil
}

// Close is a no-op.
func (s *Slot) Close() error { return nil }
