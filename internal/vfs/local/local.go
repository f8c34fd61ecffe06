// Package local implements vfs.FS against a directory on the local
// filesystem, one extent per file. It exists for development and for
// single-host deployments that want the mount's durability semantics
// without a network-attached object store.
package local

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jamesmcclain/s3bd-go/internal/vfs"
)

// Backend is a vfs.FS rooted at a local directory.
type Backend struct {
	root string
}

// New returns a Backend rooted at dir, creating it if necessary.
func New(dir string) (*Backend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("local backend: create root %s: %w", dir, err)
	}
	return &Backend{root: dir}, nil
}

func (b *Backend) path(name string) string {
	return filepath.Join(b.root, filepath.FromSlash(name))
}

// Get implements vfs.FS.
func (b *Backend) Get(_ context.Context, name string) ([]byte, error) {
	data, err := os.ReadFile(b.path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("get %s: %w", name, vfs.ErrNotFound)
		}
		return nil, fmt.Errorf("get %s: %w", name, vfs.ErrIO)
	}
	return data, nil
}

// Put implements vfs.FS.
func (b *Backend) Put(_ context.Context, name string, data []byte) error {
	p := b.path(name)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return fmt.Errorf("put %s: %w", name, vfs.ErrIO)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("put %s: %w", name, vfs.ErrIO)
	}
	if err := os.Rename(tmp, p); err != nil {
		return fmt.Errorf("put %s: rename: %w", name, vfs.ErrIO)
	}
	return nil
}

// Delete implements vfs.FS.
func (b *Backend) Delete(_ context.Context, name string) error {
	if err := os.Remove(b.path(name)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete %s: %w", name, vfs.ErrIO)
	}
	return nil
}

// Exists implements vfs.FS.
func (b *Backend) Exists(_ context.Context, name string) (bool, error) {
	_, err := os.Stat(b.path(name))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", name, vfs.ErrIO)
}

// Close implements vfs.FS. The local backend holds no persistent handle.
func (b *Backend) Close() error { return nil }
