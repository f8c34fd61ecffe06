// Package engine implements the storage engine: page-addressed reads and
// writes over a scratch-file-backed local cache, extent-granular locking,
// an LRU eviction policy, and background workers that keep dirty data
// flowing to the remote backing store.
//
// The extent lock table's downgradable counting lock is the piece that
// makes the residency check-and-fill race-free: an operation always
// acquires an extent exclusively first (so at most one goroutine ever
// performs the unflush-on-demand fill), and only downgrades to a shared
// hold afterward if all it needed was read access.
package engine

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/jamesmcclain/s3bd-go/internal/extentlock"
	"github.com/jamesmcclain/s3bd-go/internal/flushqueue"
	"github.com/jamesmcclain/s3bd-go/internal/lru"
	"github.com/jamesmcclain/s3bd-go/internal/scratch"
	"github.com/jamesmcclain/s3bd-go/internal/vfs"
)

// Config configures Engine construction.
type Config struct {
	Backend vfs.FS

	ScratchDir         string
	ScratchDescriptors int
	KeepScratchFile    bool

	CacheMegabytes int
	SyncInterval   time.Duration

	// Debug enables invariant panics (alignment assertions) instead of the
	// release posture of returning an error.
	Debug bool
}

// Engine wires the scratch pool, extent lock table, LRU policy, flush
// queue, and backing store together into the read/write/flush surface the
// mount shim drives.
type Engine struct {
	backend vfs.FS

	scratchPool *scratch.Pool
	locks       *extentlock.Table
	cache       *lru.Cache
	queue       *flushqueue.Queue

	syncInterval time.Duration
	debug        bool
}

// New constructs an Engine. The caller must call Run to start its
// background workers and Close to release the scratch pool and backend.
func New(cfg Config) (*Engine, error) {
	if cfg.Backend == nil {
		return nil, fmt.Errorf("engine: backend is required")
	}

	pool, err := scratch.Open(scratch.Options{
		Dir:         cfg.ScratchDir,
		Descriptors: cfg.ScratchDescriptors,
		Keep:        cfg.KeepScratchFile,
	})
	if err != nil {
		return nil, fmt.Errorf("engine: open scratch pool: %w", err)
	}

	megabytes := cfg.CacheMegabytes
	if megabytes <= 0 {
		megabytes = DefaultCacheMegabytes
	}
	capacity := (megabytes * 1024 * 1024) / ExtentSize
	if capacity <= 0 {
		capacity = 1
	}

	interval := cfg.SyncInterval
	if interval <= 0 {
		interval = DefaultSyncInterval
	}

	e := &Engine{
		backend:      cfg.Backend,
		scratchPool:  pool,
		locks:        extentlock.New(ExtentBuckets),
		queue:        flushqueue.New(),
		syncInterval: interval,
		debug:        cfg.Debug,
	}
	e.cache = lru.New(capacity, e.onEvict)

	return e, nil
}

// Close releases the scratch pool and the backing store's resources. It
// does not flush dirty data; callers should cancel the context passed to
// Run and wait for it to return first.
func (e *Engine) Close() error {
	var firstErr error
	if err := e.scratchPool.Close(); err != nil {
		firstErr = err
	}
	if err := e.backend.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

// Run starts the continuous sync worker and the drain worker, both tied to
// ctx, and blocks until both exit (on ctx cancellation) or one fails.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return e.syncWorker(ctx) })
	g.Go(func() error { return e.drainWorker(ctx) })
	return g.Wait()
}

func (e *Engine) onEvict(tag uint64) {
	e.queue.Insert(tag, true)
}

// extentResident reports whether extTag's scratch-file window currently
// holds data rather than a hole — the only source of truth for residency.
// There is deliberately no in-memory shadow of this: the scratch file's
// SEEK_DATA/SEEK_HOLE state *is* the presence tracking.
func (e *Engine) extentResident(extTag uint64) (bool, error) {
	h := e.scratchPool.Acquire()
	defer h.Release()

	resident, err := scratch.HasData(h.File(), int64(extTag), ExtentSize)
	if err != nil {
		return false, fmt.Errorf("engine: check residency of %#x: %w", extTag, err)
	}
	return resident, nil
}

// ResidentExtents reports how many extents the LRU currently tracks as
// touched, for maintenance reporting. The LRU is the membership record of
// what's been brought in since the last eviction; per-extent residency
// itself is always re-derived from the scratch file, never cached here.
func (e *Engine) ResidentExtents() int {
	return e.cache.Len()
}

// PendingFlushes reports the flush queue's current depth, for maintenance
// reporting.
func (e *Engine) PendingFlushes() int {
	return e.queue.Len()
}

// extentObjectName returns the remote object name for an extent tag.
func extentObjectName(tag uint64) string {
	return fmt.Sprintf(ExtentObjectTemplate, tag)
}

func (e *Engine) assertAligned(cond bool, msg string) error {
	if cond {
		return nil
	}
	if e.debug {
		panic("engine: invariant violated: " + msg)
	}
	return fmt.Errorf("engine: invariant violated: %s", msg)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
