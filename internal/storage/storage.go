// Package storage is the durable JSON document collaborator of the hub core.
// It owns a private application data directory and reads/writes small named
// JSON documents inside it. A missing document reads back as an empty JSON
// array so callers never special-case first run.
package storage

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Store reads and writes JSON documents under a single base directory.
type Store struct {
	dir string
}

// New returns a Store rooted at dir. The directory is created on first write,
// not here, so constructing a Store is side-effect free.
func New(dir string) (*Store, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("storage: empty data directory")
	}
	return &Store{dir: dir}, nil
}

// Dir returns the base data directory.
func (s *Store) Dir() string { return s.dir }

// ServersDir returns the staging directory for installed server assets of the
// given source kind ("npm" or "github"), creating it if needed.
func (s *Store) ServersDir(kind string) (string, error) {
	dir := filepath.Join(s.dir, "mcp_servers", kind)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("storage: create servers dir: %w", err)
	}
	return dir, nil
}

// Save writes the document atomically (write temp file, rename).
func (s *Store) Save(name string, data []byte) error {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return fmt.Errorf("storage: create data dir: %w", err)
	}
	path := s.path(name)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("storage: write %s: %w", name, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("storage: replace %s: %w", name, err)
	}
	return nil
}

// Load reads the named document. A missing file yields the empty-collection
// default "[]" rather than an error.
func (s *Store) Load(name string) ([]byte, error) {
	b, err := os.ReadFile(s.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return []byte("[]"), nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", name, err)
	}
	return b, nil
}

// Delete removes the named document. Deleting a missing document is a no-op.
func (s *Store) Delete(name string) error {
	err := os.Remove(s.path(name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("storage: delete %s: %w", name, err)
	}
	return nil
}

func (s *Store) path(name string) string {
	return filepath.Join(s.dir, name+".json")
}
