// Package scratch implements the scratch descriptor pool: a fixed number of
// independent file descriptors onto one sparse host file, acquired by
// round-robin non-blocking try-lock so that no single caller ever blocks
// waiting on one specific descriptor — it blocks, at worst, waiting for
// *some* descriptor in the pool to free up.
//
// Presence of a page's data is represented structurally: data written at an
// offset is present, an untouched offset is a hole. Holes are detected with
// SEEK_DATA/SEEK_HOLE and created with FALLOC_FL_PUNCH_HOLE, both exposed
// through golang.org/x/sys/unix rather than the raw syscall package.
package scratch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sys/unix"
)

// DefaultDescriptors is the pool size used when Descriptors is unset in Options.
const DefaultDescriptors = 1 << 6

type lockedFD struct {
	mu sync.Mutex
	f  *os.File
}

// Pool is a fixed-size set of file descriptors onto a single sparse file.
type Pool struct {
	descriptors []lockedFD
	path        string
	next        uint64 // round-robin cursor, advanced with an atomic-free mutex below
	nextMu      sync.Mutex
}

// Options configures pool construction.
type Options struct {
	// Dir is the directory the scratch file is created in. Defaults to
	// os.TempDir() if empty.
	Dir string
	// Descriptors is the pool size. Defaults to DefaultDescriptors if <= 0.
	Descriptors int
	// Keep, if true, leaves the scratch file on disk after Close instead of
	// unlinking it immediately after creation (the default POSIX-idiomatic
	// "delete while open" pattern, which keeps the space reclaimed the
	// instant every descriptor closes even on a crash).
	Keep bool
}

// Open creates (or reuses) the scratch file and opens a pool of descriptors
// onto it.
func Open(opts Options) (*Pool, error) {
	dir := opts.Dir
	if dir == "" {
		dir = os.TempDir()
	}
	n := opts.Descriptors
	if n <= 0 {
		n = DefaultDescriptors
	}

	path := filepath.Join(dir, fmt.Sprintf("s3bd.%d", os.Getpid()))

	p := &Pool{
		descriptors: make([]lockedFD, n),
		path:        path,
	}

	for i := 0; i < n; i++ {
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
		if err != nil {
			p.closeOpened(i)
			return nil, fmt.Errorf("scratch: open descriptor %d: %w", i, err)
		}
		p.descriptors[i].f = f
	}

	if !opts.Keep {
		if err := os.Remove(path); err != nil {
			p.closeOpened(n)
			return nil, fmt.Errorf("scratch: unlink scratch file: %w", err)
		}
	}

	return p, nil
}

func (p *Pool) closeOpened(n int) {
	for i := 0; i < n; i++ {
		if p.descriptors[i].f != nil {
			p.descriptors[i].f.Close()
		}
	}
}

// Close closes every descriptor in the pool.
func (p *Pool) Close() error {
	var firstErr error
	for i := range p.descriptors {
		if err := p.descriptors[i].f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Handle is an acquired descriptor. Release must be called exactly once.
type Handle struct {
	pool  *Pool
	index int
}

// Acquire blocks until some descriptor in the pool is free, trying each in
// round-robin order starting from the pool's rotating cursor so repeated
// callers don't all pile onto descriptor 0.
func (p *Pool) Acquire() *Handle {
	p.nextMu.Lock()
	start := p.next
	p.next++
	p.nextMu.Unlock()

	n := uint64(len(p.descriptors))
	for i := uint64(0); ; i++ {
		idx := int((start + i) % n)
		if p.descriptors[idx].mu.TryLock() {
			return &Handle{pool: p, index: idx}
		}
	}
}

// File returns the *os.File the handle refers to.
func (h *Handle) File() *os.File {
	return h.pool.descriptors[h.index].f
}

// Release returns the handle's descriptor to the pool.
func (h *Handle) Release() {
	h.pool.descriptors[h.index].mu.Unlock()
}

// HasData reports whether any byte in [off, off+size) is present (backed by
// actual data rather than a hole), using SEEK_DATA to find the next
// present byte at or after off.
func HasData(f *os.File, off, size int64) (bool, error) {
	fd := int(f.Fd())
	dataOff, err := unix.Seek(fd, off, unix.SEEK_DATA)
	if err != nil {
		if err == unix.ENXIO {
			// No data at or beyond off: the rest of the file is a hole.
			return false, nil
		}
		return false, fmt.Errorf("scratch: seek data: %w", err)
	}
	return dataOff < off+size, nil
}

// PunchHole releases the backing space for [off, off+size) without
// changing the file's apparent size, turning that range back into a hole.
func PunchHole(f *os.File, off, size int64) error {
	fd := int(f.Fd())
	mode := unix.FALLOC_FL_PUNCH_HOLE | unix.FALLOC_FL_KEEP_SIZE
	if err := unix.Fallocate(fd, uint32(mode), off, size); err != nil {
		return fmt.Errorf("scratch: fallocate punch hole: %w", err)
	}
	return nil
}

// Path returns the scratch file's path, primarily for diagnostics and tests.
func (p *Pool) Path() string {
	return p.path
}
