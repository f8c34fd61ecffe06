// Package vfs defines the storage-backend-agnostic interface the storage
// engine uses to persist and recover extents. Concrete backends (S3, local
// disk, in-memory, Postgres, MongoDB) live in subpackages and all satisfy
// the same FS capability set, generalizing the backend plurality of the
// filesystem this was adapted from from whole-file objects to fixed-size
// extent objects.
package vfs

import "context"

// FS is the capability set a backing store must provide. Names are opaque
// object identifiers (e.g. an S3 key, a local path, a document ID); the
// engine is responsible for producing names via the extent naming template.
type FS interface {
	// Get fetches the full contents of name. It returns ErrNotFound if the
	// object does not exist.
	Get(ctx context.Context, name string) ([]byte, error)

	// Put stores data under name, replacing any existing object.
	Put(ctx context.Context, name string, data []byte) error

	// Delete removes name. It is not an error if name does not exist.
	Delete(ctx context.Context, name string) error

	// Exists reports whether name is present, without fetching its contents.
	Exists(ctx context.Context, name string) (bool, error)

	// Close releases any resources (connections, handles) held by the backend.
	Close() error
}
