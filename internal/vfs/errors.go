package vfs

import "errors"

// Sentinel errors forming the backend side of the error taxonomy: a backend
// implementation should wrap one of these with fmt.Errorf("...: %w", ...)
// so callers can classify failures with errors.Is regardless of which
// concrete backend raised them.
var (
	// ErrNotFound means the named object does not exist in the backing
	// store. The engine recovers from this by filling the extent with the
	// fill byte rather than treating it as a failure.
	ErrNotFound = errors.New("vfs: object not found")

	// ErrIO means a transient or backend-internal failure occurred while
	// reading or writing. Foreground operations propagate it; background
	// flush/sync work retries.
	ErrIO = errors.New("vfs: i/o error")

	// ErrUnseekable means the backend cannot support a partial update of an
	// already-stored object (e.g. an append-only or PUT-only object store).
	// It is fatal to the operation that raised it.
	ErrUnseekable = errors.New("vfs: backend does not support seek/partial update")

	// ErrPermission means the backend rejected the operation for
	// authorization reasons.
	ErrPermission = errors.New("vfs: permission denied")
)
