// Package memory implements vfs.FS as an in-memory map, the in-memory-for-
// tests backend variant. It is the engine's own test double, adapted from
// the mock client used to stand in for a real object store in unit tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jamesmcclain/s3bd-go/internal/vfs"
)

// Backend is a vfs.FS backed by an in-process map. Safe for concurrent use.
type Backend struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New returns an empty Backend.
func New() *Backend {
	return &Backend{objects: make(map[string][]byte)}
}

// Get implements vfs.FS.
func (b *Backend) Get(_ context.Context, name string) ([]byte, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	data, ok := b.objects[name]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", name, vfs.ErrNotFound)
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Put implements vfs.FS.
func (b *Backend) Put(_ context.Context, name string, data []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	b.objects[name] = cp
	return nil
}

// Delete implements vfs.FS.
func (b *Backend) Delete(_ context.Context, name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, name)
	return nil
}

// Exists implements vfs.FS.
func (b *Backend) Exists(_ context.Context, name string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.objects[name]
	return ok, nil
}

// Close implements vfs.FS. The in-memory backend holds no resources.
func (b *Backend) Close() error { return nil }

// Len reports the number of objects currently stored, for test assertions.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
