package engine

import (
	"context"
	"time"
)

// syncWorker periodically scans the extent lock table for dirty,
// unreferenced extents and enqueues sync-only flushes (shouldRemove=false)
// for them. It never evicts anything itself — that's the LRU's job via
// onEvict — it only keeps the remote copy from drifting too far behind a
// long-held-but-idle dirty extent.
func (e *Engine) syncWorker(ctx context.Context) error {
	ticker := time.NewTicker(e.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			e.scanDirtyUnreferenced()
		}
	}
}

// scanDirtyUnreferenced performs one sweep of the extent lock table,
// enqueuing every dirty, unreferenced extent it finds. FirstDirtyUnreferenced
// never clears the dirty bit itself (only a flush does), so a tag already
// seen this sweep marks the end of the lap rather than continued progress.
func (e *Engine) scanDirtyUnreferenced() {
	seen := make(map[uint64]bool)
	for {
		tag, ok := e.locks.FirstDirtyUnreferenced()
		if !ok || seen[tag] {
			return
		}
		seen[tag] = true
		e.queue.Insert(tag, false)
	}
}

// drainWorker pops the flush queue and performs each flush under the
// extent's exclusive lock, blocking briefly between empty pops rather than
// busy-spinning.
func (e *Engine) drainWorker(ctx context.Context) error {
	const idleBackoff = 10 * time.Millisecond

	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		entry, ok := e.queue.Pop()
		if !ok {
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(idleBackoff):
			}
			continue
		}

		e.locks.SpinLock(entry.ExtentTag, true)
		err := e.storageFlush(ctx, entry.ExtentTag, entry.ShouldRemove)
		if err == nil {
			e.locks.Unlock(entry.ExtentTag, true, true)
		} else {
			// Leave the extent dirty so a future sync pass retries; the
			// request itself is not requeued automatically to avoid a tight
			// failure loop against an unreachable backend.
			e.locks.Unlock(entry.ExtentTag, true, false)
		}
	}
}
