// Package flushqueue implements the storage engine's deduplicating flush
// queue: a set of pending (extentTag, shouldRemove) requests, never more
// than one entry per tag. Eviction-class entries (shouldRemove true) always
// drain ahead of sync-class entries (shouldRemove false), since an eviction
// is already holding a slot the LRU wants back; within a class, entries
// drain in ascending-tag order. A later insertion for a tag already queued
// ORs in shouldRemove rather than creating a duplicate entry, so a
// sync-queued extent that gets evicted before the sync worker reaches it is
// promoted into the eviction class and reordered ahead of the remaining
// sync-class entries.
package flushqueue

import (
	"container/heap"
	"sync"
)

// Entry is one pending flush request.
type Entry struct {
	ExtentTag    uint64
	ShouldRemove bool
}

type item struct {
	tag          uint64
	shouldRemove bool
	index        int
}

// priorityHeap orders eviction-class items (shouldRemove true) ahead of all
// sync-class items, and ascending by tag within a class.
type priorityHeap []*item

func (h priorityHeap) Len() int { return len(h) }

func (h priorityHeap) Less(i, j int) bool {
	if h[i].shouldRemove != h[j].shouldRemove {
		return h[i].shouldRemove
	}
	return h[i].tag < h[j].tag
}

func (h priorityHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *priorityHeap) Push(x interface{}) {
	it := x.(*item)
	it.index = len(*h)
	*h = append(*h, it)
}

func (h *priorityHeap) Pop() interface{} {
	old := *h
	n := len(old)
	it := old[n-1]
	old[n-1] = nil
	it.index = -1
	*h = old[:n-1]
	return it
}

// Queue is a deduplicating, class-and-tag-ordered set of pending flush
// requests.
type Queue struct {
	mu    sync.Mutex
	heap  priorityHeap
	items map[uint64]*item
}

// New returns an empty Queue.
func New() *Queue {
	return &Queue{items: make(map[uint64]*item)}
}

// Insert enqueues a flush request for extentTag. If the tag is already
// queued, shouldRemove is OR'd into the existing entry; an upgrade from
// sync-class to eviction-class reorders the entry ahead of the remaining
// sync-class entries.
func (q *Queue) Insert(extentTag uint64, shouldRemove bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if it, ok := q.items[extentTag]; ok {
		if shouldRemove && !it.shouldRemove {
			it.shouldRemove = true
			heap.Fix(&q.heap, it.index)
		}
		return
	}

	it := &item{tag: extentTag, shouldRemove: shouldRemove}
	q.items[extentTag] = it
	heap.Push(&q.heap, it)
}

// Pop removes and returns the highest-priority pending entry: eviction-class
// entries before sync-class entries, ascending tag within a class. The
// second return value is false if the queue is empty.
func (q *Queue) Pop() (Entry, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.heap.Len() == 0 {
		return Entry{}, false
	}
	it := heap.Pop(&q.heap).(*item)
	delete(q.items, it.tag)
	return Entry{ExtentTag: it.tag, ShouldRemove: it.shouldRemove}, true
}

// Delete removes extentTag from the queue if present, without returning it,
// for when a caller decides a pending flush is no longer necessary.
func (q *Queue) Delete(extentTag uint64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	it, ok := q.items[extentTag]
	if !ok {
		return
	}
	heap.Remove(&q.heap, it.index)
	delete(q.items, extentTag)
}

// IsEmpty reports whether the queue currently has no pending entries.
func (q *Queue) IsEmpty() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items) == 0
}

// Len reports the number of pending entries.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
