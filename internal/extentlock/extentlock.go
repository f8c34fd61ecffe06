// Package extentlock implements a sharded per-extent lock table with
// shared/exclusive semantics and a dirty bit, the structure the storage
// engine uses to serialize concurrent access to the same extent while
// letting unrelated extents proceed independently.
//
// Each entry's refcount follows one convention: 0 means idle (no entry need
// exist at all), a positive count is the number of concurrent shared
// (reader) holders, and -1 means a single exclusive (writer) holder.
// Compatibility is checked before any refcount update: an exclusive request
// only succeeds against an idle entry; a shared request only succeeds
// against an idle or already-shared entry.
package extentlock

import (
	"hash/fnv"
	"runtime"
	"sort"
	"sync"
)

// DefaultBuckets is the shard count used when Buckets is unset in New.
const DefaultBuckets = 1 << 8

type entry struct {
	dirty    bool
	refcount int
}

type bucket struct {
	mu      sync.Mutex
	entries map[uint64]*entry
}

// Table is a sharded lock table keyed by extent tag.
type Table struct {
	buckets []bucket
	// hint is the round-robin starting shard for FirstDirtyUnreferenced,
	// mirroring the original's atomic scan hint so repeated scans sweep
	// the table instead of always restarting at shard zero.
	hintMu sync.Mutex
	hint   int
}

// New creates a Table with the given number of shards. If buckets <= 0,
// DefaultBuckets is used.
func New(buckets int) *Table {
	if buckets <= 0 {
		buckets = DefaultBuckets
	}
	t := &Table{buckets: make([]bucket, buckets)}
	for i := range t.buckets {
		t.buckets[i].entries = make(map[uint64]*entry)
	}
	return t
}

func (t *Table) shard(tag uint64) *bucket {
	h := fnv.New64a()
	var b [8]byte
	for i := 0; i < 8; i++ {
		b[i] = byte(tag >> (8 * i))
	}
	h.Write(b[:])
	return &t.buckets[h.Sum64()%uint64(len(t.buckets))]
}

// TryLock attempts to acquire tag non-blockingly. exclusive requests a
// writer lock (refcount -1); non-exclusive requests a reader lock
// (refcount +1, compatible with other readers). It reports whether the
// lock was acquired.
func (t *Table) TryLock(tag uint64, exclusive bool) bool {
	b := t.shard(tag)
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[tag]
	if !ok {
		e = &entry{}
		b.entries[tag] = e
	}

	if exclusive {
		if e.refcount != 0 {
			return false
		}
		e.refcount = -1
		e.dirty = true
		return true
	}

	if e.refcount < 0 {
		return false
	}
	e.refcount++
	return true
}

// SpinLock blocks until tag can be acquired with the given mode.
func (t *Table) SpinLock(tag uint64, exclusive bool) {
	for !t.TryLock(tag, exclusive) {
		// Cooperative yield, mirroring the original's sleep(0) retry —
		// there is no ordering guarantee among waiters, only eventual
		// acquisition once the holder releases.
		runtime.Gosched()
	}
}

// Downgrade converts an exclusive hold on tag into a single shared hold.
// The caller must currently hold tag exclusively.
func (t *Table) Downgrade(tag uint64) {
	b := t.shard(tag)
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[tag]
	if !ok || e.refcount != -1 {
		panic("extentlock: downgrade of a non-exclusively-held extent")
	}
	e.refcount = 1
}

// Unlock releases one hold on tag. markClean clears the dirty bit; it is
// only meaningful on release of the last holder and is typically set by a
// successful flush.
func (t *Table) Unlock(tag uint64, exclusive bool, markClean bool) {
	b := t.shard(tag)
	b.mu.Lock()
	defer b.mu.Unlock()

	e, ok := b.entries[tag]
	if !ok {
		panic("extentlock: unlock of an untracked extent")
	}

	if exclusive {
		if e.refcount != -1 {
			panic("extentlock: exclusive unlock of a non-exclusively-held extent")
		}
		e.refcount = 0
	} else {
		if e.refcount <= 0 {
			panic("extentlock: shared unlock of a non-shared extent")
		}
		e.refcount--
	}

	if markClean {
		e.dirty = false
	}
}

// MarkDirty sets the dirty bit on tag, creating its entry if absent.
func (t *Table) MarkDirty(tag uint64) {
	b := t.shard(tag)
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[tag]
	if !ok {
		e = &entry{}
		b.entries[tag] = e
	}
	e.dirty = true
}

// IsDirty reports whether tag is currently marked dirty.
func (t *Table) IsDirty(tag uint64) bool {
	b := t.shard(tag)
	b.mu.Lock()
	defer b.mu.Unlock()
	e, ok := b.entries[tag]
	return ok && e.dirty
}

// FirstDirtyUnreferenced scans the table round-robin from the last scan
// position and returns the first extent tag found dirty with a zero
// refcount, along with true. If none is found after a full sweep, it
// returns (0, false). While scanning, any clean, unreferenced entry
// encountered is opportunistically erased, since such entries carry no
// information worth retaining once idle.
func (t *Table) FirstDirtyUnreferenced() (uint64, bool) {
	t.hintMu.Lock()
	start := t.hint
	t.hintMu.Unlock()

	n := len(t.buckets)
	for i := 0; i < n; i++ {
		idx := (start + i) % n
		b := &t.buckets[idx]

		b.mu.Lock()
		found, tag := scanBucketLocked(b)
		b.mu.Unlock()

		if found {
			t.hintMu.Lock()
			t.hint = (idx + 1) % n
			t.hintMu.Unlock()
			return tag, true
		}
	}
	return 0, false
}

// scanBucketLocked must be called with b.mu held. It deletes clean,
// unreferenced entries it passes over and returns the first dirty,
// unreferenced tag found, in ascending tag order for determinism.
func scanBucketLocked(b *bucket) (bool, uint64) {
	tags := make([]uint64, 0, len(b.entries))
	for tag := range b.entries {
		tags = append(tags, tag)
	}
	sort.Slice(tags, func(i, j int) bool { return tags[i] < tags[j] })

	for _, tag := range tags {
		e := b.entries[tag]
		if e.refcount != 0 {
			continue
		}
		if e.dirty {
			return true, tag
		}
		delete(b.entries, tag)
	}
	return false, 0
}
