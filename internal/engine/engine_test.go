package engine

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jamesmcclain/s3bd-go/internal/flushqueue"
	"github.com/jamesmcclain/s3bd-go/internal/scratch"
	"github.com/jamesmcclain/s3bd-go/internal/vfs/memory"
)

func newTestEngine(t *testing.T, cacheMegabytes int) *Engine {
	t.Helper()
	e, err := New(Config{
		Backend:            memory.New(),
		ScratchDir:         t.TempDir(),
		ScratchDescriptors: 4,
		CacheMegabytes:     cacheMegabytes,
		SyncInterval:       time.Hour,
	})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

// drainOnce pops one pending entry and flushes it exactly the way
// drainWorker would, synchronously, so tests can assert on eviction-induced
// flushes without racing a background goroutine.
func drainOnce(t *testing.T, e *Engine) (flushqueue.Entry, bool) {
	t.Helper()
	entry, ok := e.queue.Pop()
	if !ok {
		return flushqueue.Entry{}, false
	}
	e.locks.SpinLock(entry.ExtentTag, true)
	if err := e.storageFlush(context.Background(), entry.ExtentTag, entry.ShouldRemove); err != nil {
		e.locks.Unlock(entry.ExtentTag, true, false)
		t.Fatalf("storageFlush(%#x) returned error: %v", entry.ExtentTag, err)
	}
	e.locks.Unlock(entry.ExtentTag, true, true)
	return entry, true
}

func TestEmptyReadIsFillByte(t *testing.T) {
	e := newTestEngine(t, DefaultCacheMegabytes)
	buf := make([]byte, 8)
	n, err := e.Read(context.Background(), 0, buf)
	if err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if n != 8 {
		t.Fatalf("expected 8 bytes, got %d", n)
	}
	want := bytes.Repeat([]byte{FillByte}, 8)
	if !bytes.Equal(buf, want) {
		t.Errorf("expected all fill bytes, got % X", buf)
	}
}

func TestAlignedRoundTripSurvivesFlush(t *testing.T) {
	e := newTestEngine(t, DefaultCacheMegabytes)
	ctx := context.Background()
	const off = 0x400000

	want := bytes.Repeat([]byte{0xAA}, PageSize)
	if _, err := e.Write(ctx, off, want); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	got := make([]byte, PageSize)
	if _, err := e.Read(ctx, off, got); err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("round-trip before flush mismatched")
	}

	tag := extentTag(off)
	e.locks.SpinLock(tag, true)
	if err := e.storageFlush(ctx, tag, false); err != nil {
		e.locks.Unlock(tag, true, false)
		t.Fatalf("storageFlush returned error: %v", err)
	}
	e.locks.Unlock(tag, true, true)

	got2 := make([]byte, PageSize)
	if _, err := e.Read(ctx, off, got2); err != nil {
		t.Fatalf("Read after flush returned error: %v", err)
	}
	if !bytes.Equal(got2, want) {
		t.Fatalf("round-trip after flush mismatched")
	}
}

func TestUnalignedWritePreservesNeighbors(t *testing.T) {
	e := newTestEngine(t, DefaultCacheMegabytes)
	ctx := context.Background()
	const base = 0x400000

	if _, err := e.Write(ctx, base, bytes.Repeat([]byte{0xBB}, PageSize)); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if _, err := e.Write(ctx, base+0x21, bytes.Repeat([]byte{0xCC}, 3)); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	got := make([]byte, PageSize)
	if _, err := e.Read(ctx, base, got); err != nil {
		t.Fatalf("Read returned error: %v", err)
	}

	for i := 0; i < 0x21; i++ {
		if got[i] != 0xBB {
			t.Fatalf("byte %#x: expected 0xBB, got %#x", i, got[i])
		}
	}
	for i := 0x21; i < 0x24; i++ {
		if got[i] != 0xCC {
			t.Fatalf("byte %#x: expected 0xCC, got %#x", i, got[i])
		}
	}
	for i := 0x24; i < PageSize; i++ {
		if got[i] != 0xBB {
			t.Fatalf("byte %#x: expected 0xBB, got %#x", i, got[i])
		}
	}
}

func TestCrossPageUnalignedRead(t *testing.T) {
	e := newTestEngine(t, DefaultCacheMegabytes)
	ctx := context.Background()
	const base = 0x500000

	if _, err := e.Write(ctx, base, bytes.Repeat([]byte{0xDD}, 2*PageSize)); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	buf := make([]byte, 4103)
	if _, err := e.Read(ctx, base+0xFFA, buf); err != nil {
		t.Fatalf("Read returned error: %v", err)
	}

	// The read spans [0x500FFA, 0x502001): 6 bytes of page 1 and all 4096 of
	// page 2 were written; the final byte at 0x502000 never was, so it reads
	// back as the fill byte.
	want := append(bytes.Repeat([]byte{0xDD}, 4102), FillByte)
	if !bytes.Equal(buf, want) {
		t.Fatalf("expected 4102 bytes of 0xDD across the page boundary then one fill byte, got % X", buf)
	}
}

func TestEvictionInducesFlush(t *testing.T) {
	// 2 extents worth of megabytes: CacheMegabytes*1MiB / ExtentSize == 2.
	megabytes := (2 * ExtentSize) / (1024 * 1024)
	e := newTestEngine(t, megabytes)
	ctx := context.Background()

	tagA := uint64(0 * ExtentSize)
	tagB := uint64(1 * ExtentSize)
	tagC := uint64(2 * ExtentSize)

	if _, err := e.Write(ctx, int64(tagA), []byte{0x01}); err != nil {
		t.Fatalf("write A: %v", err)
	}
	if _, err := e.Write(ctx, int64(tagB), []byte{0x02}); err != nil {
		t.Fatalf("write B: %v", err)
	}
	if _, err := e.Write(ctx, int64(tagC), []byte{0x03}); err != nil {
		t.Fatalf("write C: %v", err)
	}

	if e.queue.IsEmpty() {
		t.Fatal("expected extent A's eviction to have queued a flush")
	}

	entry, ok := drainOnce(t, e)
	if !ok {
		t.Fatal("expected a pending flush entry")
	}
	if entry.ExtentTag != tagA {
		t.Fatalf("expected evicted tag to be A (%#x), got %#x", tagA, entry.ExtentTag)
	}
	if !entry.ShouldRemove {
		t.Error("expected the eviction-triggered flush to request removal")
	}

	exists, err := e.backend.Exists(ctx, extentObjectName(tagA))
	if err != nil {
		t.Fatalf("Exists returned error: %v", err)
	}
	if !exists {
		t.Error("expected extent A's object to exist in the backend after flush")
	}
	h := e.scratchPool.Acquire()
	dataPresent, err := scratch.HasData(h.File(), int64(tagA), ExtentSize)
	h.Release()
	if err != nil {
		t.Fatalf("HasData: %v", err)
	}
	if dataPresent {
		t.Error("expected extent A's scratch window to be all holes after the eviction flush punched it")
	}
}

func TestConcurrentReadersExcludeWriter(t *testing.T) {
	e := newTestEngine(t, DefaultCacheMegabytes)
	tag := extentTag(0x600000)

	e.locks.SpinLock(tag, false)
	e.locks.SpinLock(tag, false) // second reader, compatible

	if e.locks.TryLock(tag, true) {
		t.Fatal("expected exclusive try-lock to fail while readers hold the extent")
	}

	e.locks.Unlock(tag, false, false)
	e.locks.Unlock(tag, false, false)

	if !e.locks.TryLock(tag, true) {
		t.Fatal("expected exclusive try-lock to succeed once readers release")
	}
	e.locks.Unlock(tag, true, false)
}

func TestFlushIsIdempotent(t *testing.T) {
	e := newTestEngine(t, DefaultCacheMegabytes)
	ctx := context.Background()
	tag := extentTag(0x700000)

	if _, err := e.Write(ctx, int64(tag), bytes.Repeat([]byte{0xEE}, PageSize)); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}

	e.locks.SpinLock(tag, true)
	if err := e.storageFlush(ctx, tag, false); err != nil {
		e.locks.Unlock(tag, true, false)
		t.Fatalf("first storageFlush returned error: %v", err)
	}
	e.locks.Unlock(tag, true, true)

	first, err := e.backend.Get(ctx, extentObjectName(tag))
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	e.locks.SpinLock(tag, true)
	if err := e.storageFlush(ctx, tag, false); err != nil {
		e.locks.Unlock(tag, true, false)
		t.Fatalf("second storageFlush returned error: %v", err)
	}
	e.locks.Unlock(tag, true, true)

	second, err := e.backend.Get(ctx, extentObjectName(tag))
	if err != nil {
		t.Fatalf("Get returned error: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("expected two consecutive flushes without intervening writes to be byte-identical")
	}
}

func TestConcurrentWritesToDistinctExtentsDoNotBlock(t *testing.T) {
	e := newTestEngine(t, DefaultCacheMegabytes)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			off := int64(i) * ExtentSize
			buf := bytes.Repeat([]byte{byte(i)}, PageSize)
			if _, err := e.Write(ctx, off, buf); err != nil {
				errs <- err
			}
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Errorf("concurrent write returned error: %v", err)
	}
}
