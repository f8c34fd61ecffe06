package mount

import (
	"bytes"
	"context"
	"syscall"
	"testing"

	"bazil.org/fuse"

	"github.com/jamesmcclain/s3bd-go/internal/engine"
	"github.com/jamesmcclain/s3bd-go/internal/vfs/memory"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Config{
		Backend:            memory.New(),
		ScratchDir:         t.TempDir(),
		ScratchDescriptors: 4,
	})
	if err != nil {
		t.Fatalf("engine.New returned error: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestRootListsDeviceFile(t *testing.T) {
	r := &root{engine: newTestEngine(t)}
	entries, err := r.ReadDirAll(context.Background())
	if err != nil {
		t.Fatalf("ReadDirAll returned error: %v", err)
	}
	if len(entries) != 1 || entries[0].Name != deviceName {
		t.Fatalf("expected a single %q entry, got %v", deviceName, entries)
	}
}

func TestLookupRejectsUnknownNames(t *testing.T) {
	r := &root{engine: newTestEngine(t)}
	if _, err := r.Lookup(context.Background(), "nonexistent"); err == nil {
		t.Error("expected Lookup of an unknown name to fail")
	}
	if _, err := r.Lookup(context.Background(), deviceName); err != nil {
		t.Errorf("expected Lookup of %q to succeed, got %v", deviceName, err)
	}
}

func TestDeviceAttrIsFixed(t *testing.T) {
	d := &device{engine: newTestEngine(t)}
	var a fuse.Attr
	if err := d.Attr(context.Background(), &a); err != nil {
		t.Fatalf("Attr returned error: %v", err)
	}
	if a.Mode != 0600 {
		t.Errorf("expected mode 0600, got %v", a.Mode)
	}
	if a.Size != uint64(engine.DeviceSize) {
		t.Errorf("expected size %d, got %d", engine.DeviceSize, a.Size)
	}
}

func TestDeviceReadWriteRoundTrip(t *testing.T) {
	d := &device{engine: newTestEngine(t)}
	ctx := context.Background()

	writeReq := &fuse.WriteRequest{Offset: 0x400000, Data: bytes.Repeat([]byte{0x7A}, 128)}
	var writeResp fuse.WriteResponse
	if err := d.Write(ctx, writeReq, &writeResp); err != nil {
		t.Fatalf("Write returned error: %v", err)
	}
	if writeResp.Size != 128 {
		t.Fatalf("expected write size 128, got %d", writeResp.Size)
	}

	readReq := &fuse.ReadRequest{Offset: 0x400000, Size: 128}
	var readResp fuse.ReadResponse
	if err := d.Read(ctx, readReq, &readResp); err != nil {
		t.Fatalf("Read returned error: %v", err)
	}
	if !bytes.Equal(readResp.Data, writeReq.Data) {
		t.Errorf("read back mismatched data")
	}
}

func TestReadOnlyDeviceReportsReducedModeAndRejectsWrites(t *testing.T) {
	d := &device{engine: newTestEngine(t), readOnly: true}
	ctx := context.Background()

	var a fuse.Attr
	if err := d.Attr(ctx, &a); err != nil {
		t.Fatalf("Attr returned error: %v", err)
	}
	if a.Mode != 0400 {
		t.Errorf("expected mode 0400 in read-only mode, got %v", a.Mode)
	}

	writeReq := &fuse.WriteRequest{Offset: 0x400000, Data: bytes.Repeat([]byte{0x7A}, 128)}
	var writeResp fuse.WriteResponse
	if err := d.Write(ctx, writeReq, &writeResp); err != syscall.EROFS {
		t.Errorf("expected EROFS on write in read-only mode, got %v", err)
	}
}

func TestDeviceRefusesAttributeMutation(t *testing.T) {
	d := &device{engine: newTestEngine(t)}
	err := d.Setattr(context.Background(), &fuse.SetattrRequest{}, &fuse.SetattrResponse{})
	if err != syscall.EPERM {
		t.Errorf("expected EPERM, got %v", err)
	}
}
