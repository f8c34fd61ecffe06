package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/jamesmcclain/s3bd-go/internal/ioutilx"
	"github.com/jamesmcclain/s3bd-go/internal/scratch"
	"github.com/jamesmcclain/s3bd-go/internal/vfs"
)

// Read satisfies size bytes starting at offset, splitting across page and
// extent boundaries as needed. It always returns either len(buf) bytes read
// or a non-nil error — there is no such thing as a short read against this
// device, since absent data recovers as the fill byte rather than EOF.
func (e *Engine) Read(ctx context.Context, offset int64, buf []byte) (int, error) {
	return e.storageRead(ctx, offset, buf)
}

// Write persists len(buf) bytes at offset, splitting across page and extent
// boundaries as needed.
func (e *Engine) Write(ctx context.Context, offset int64, buf []byte) (int, error) {
	return e.storageWrite(ctx, offset, buf)
}

func (e *Engine) storageRead(ctx context.Context, offset int64, buf []byte) (int, error) {
	total := 0
	for len(buf) > 0 {
		tag := pageTag(offset)
		extTag := extentTagOfPage(tag)
		diff := offset - int64(tag)
		chunk := min64(int64(len(buf)), PageSize-diff)

		if err := e.withExtent(ctx, extTag, false, func() error {
			var page [PageSize]byte
			if err := e.alignedPageRead(tag, page[:]); err != nil {
				return err
			}
			copy(buf[:chunk], page[diff:diff+chunk])
			return nil
		}); err != nil {
			return total, err
		}

		offset += chunk
		buf = buf[chunk:]
		total += int(chunk)
	}
	return total, nil
}

func (e *Engine) storageWrite(ctx context.Context, offset int64, buf []byte) (int, error) {
	total := 0
	for len(buf) > 0 {
		tag := pageTag(offset)
		extTag := extentTagOfPage(tag)
		diff := offset - int64(tag)
		chunk := min64(int64(len(buf)), PageSize-diff)

		if err := e.withExtent(ctx, extTag, true, func() error {
			if diff == 0 && chunk == PageSize {
				return e.alignedWholePageWrite(tag, buf[:chunk])
			}
			var page [PageSize]byte
			if err := e.alignedPageRead(tag, page[:]); err != nil {
				return err
			}
			copy(page[diff:diff+chunk], buf[:chunk])
			return e.alignedWholePageWrite(tag, page[:])
		}); err != nil {
			return total, err
		}

		offset += chunk
		buf = buf[chunk:]
		total += int(chunk)
	}
	return total, nil
}

// withExtent acquires extTag (exclusively if exclusive is true, otherwise
// shared), ensuring the extent is resident in the scratch file first. The
// residency check-and-fill always happens under a brief exclusive hold —
// acquired unconditionally, then downgraded to shared afterward if the
// caller only wanted shared access — so at most one goroutine ever performs
// the unflush fetch for a given extent. fn runs with the requested lock
// held and the extent touched in the LRU.
func (e *Engine) withExtent(ctx context.Context, extTag uint64, exclusive bool, fn func() error) error {
	e.locks.SpinLock(extTag, true)

	resident, fillErr := e.extentResident(extTag)
	if fillErr == nil && !resident {
		fillErr = e.storageUnflush(ctx, extTag)
	}

	if fillErr == nil && !exclusive {
		e.locks.Downgrade(extTag)
	}

	if fillErr != nil {
		e.locks.Unlock(extTag, true, false)
		return fillErr
	}

	e.cache.Touch(extTag)

	err := fn()

	// Reads and writes alike leave the extent dirty: the exclusive
	// acquisition at the top of this function (TryLock(exclusive)) set the
	// dirty bit for both. markClean is false here — cleanliness is only ever
	// established by a successful flush.
	e.locks.Unlock(extTag, exclusive, false)
	return err
}

func (e *Engine) alignedPageRead(pageTag uint64, buf []byte) error {
	if err := e.assertAligned(pageTag&pageMask == 0, "alignedPageRead on a non-page-aligned tag"); err != nil {
		return err
	}
	if err := e.assertAligned(len(buf) == PageSize, "alignedPageRead with a non-page-sized buffer"); err != nil {
		return err
	}

	h := e.scratchPool.Acquire()
	defer h.Release()

	if err := ioutilx.FullRead(h.File(), buf, int64(pageTag)); err != nil {
		return fmt.Errorf("engine: aligned page read at %#x: %w", pageTag, err)
	}
	return nil
}

func (e *Engine) alignedWholePageWrite(pageTag uint64, buf []byte) error {
	if err := e.assertAligned(pageTag&pageMask == 0, "alignedWholePageWrite on a non-page-aligned tag"); err != nil {
		return err
	}
	if err := e.assertAligned(len(buf) == PageSize, "alignedWholePageWrite with a non-page-sized buffer"); err != nil {
		return err
	}

	h := e.scratchPool.Acquire()
	defer h.Release()

	if err := ioutilx.FullWrite(h.File(), buf, int64(pageTag)); err != nil {
		return fmt.Errorf("engine: aligned whole page write at %#x: %w", pageTag, err)
	}
	return nil
}

// storageUnflush brings extTag fully into the scratch file: the real
// extent contents if the remote object exists, or FillByte-filled bytes if
// it has never been written remotely. The caller must hold extTag
// exclusively.
func (e *Engine) storageUnflush(ctx context.Context, extTag uint64) error {
	data, err := e.backend.Get(ctx, extentObjectName(extTag))
	switch {
	case err == nil:
		if len(data) != ExtentSize {
			padded := make([]byte, ExtentSize)
			copy(padded, data)
			for i := len(data); i < ExtentSize; i++ {
				padded[i] = FillByte
			}
			data = padded
		}
	case errors.Is(err, vfs.ErrNotFound):
		data = make([]byte, ExtentSize)
		for i := range data {
			data[i] = FillByte
		}
	default:
		return fmt.Errorf("engine: unflush %#x: %w", extTag, err)
	}

	h := e.scratchPool.Acquire()
	writeErr := ioutilx.FullWrite(h.File(), data, int64(extTag))
	h.Release()
	if writeErr != nil {
		return fmt.Errorf("engine: unflush %#x: write scratch: %w", extTag, writeErr)
	}

	return nil
}

// storageFlush pushes extTag's current scratch-file contents to the
// backing store, unless the extent is already clean — in which case the
// remote write is skipped entirely and only the optional punch-hole runs.
// If shouldRemove is true, the extent's hole in the scratch file is punched
// after a successful write (or immediately, if nothing needed writing). The
// caller must hold extTag exclusively.
func (e *Engine) storageFlush(ctx context.Context, extTag uint64, shouldRemove bool) error {
	if !e.locks.IsDirty(extTag) {
		if !shouldRemove {
			return nil
		}
		h := e.scratchPool.Acquire()
		err := scratch.PunchHole(h.File(), int64(extTag), ExtentSize)
		h.Release()
		if err != nil {
			return fmt.Errorf("engine: flush %#x: punch hole: %w", extTag, err)
		}
		return nil
	}

	h := e.scratchPool.Acquire()
	data := make([]byte, ExtentSize)
	readErr := ioutilx.FullRead(h.File(), data, int64(extTag))
	if readErr != nil {
		h.Release()
		return fmt.Errorf("engine: flush %#x: read scratch: %w", extTag, readErr)
	}

	if err := e.backend.Put(ctx, extentObjectName(extTag), data); err != nil {
		h.Release()
		return fmt.Errorf("engine: flush %#x: put: %w", extTag, err)
	}

	if shouldRemove {
		err := scratch.PunchHole(h.File(), int64(extTag), ExtentSize)
		h.Release()
		if err != nil {
			return fmt.Errorf("engine: flush %#x: punch hole: %w", extTag, err)
		}
	} else {
		h.Release()
	}

	return nil
}
