package scratch

import (
	"os"
	"testing"
)

func TestAcquireReleaseRoundRobin(t *testing.T) {
	p, err := Open(Options{Dir: t.TempDir(), Descriptors: 2, Keep: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	h1 := p.Acquire()
	h2 := p.Acquire()
	if h1.index == h2.index {
		t.Fatal("expected two concurrent acquires to get distinct descriptors")
	}
	h1.Release()
	h2.Release()
}

func TestScratchFileUnlinkedByDefault(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(Options{Dir: dir, Descriptors: 1})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	if _, err := os.Stat(p.Path()); !os.IsNotExist(err) {
		t.Errorf("expected scratch file to be unlinked, stat err = %v", err)
	}

	// File is still usable via the open descriptor even though unlinked.
	h := p.Acquire()
	defer h.Release()
	if _, err := h.File().WriteAt([]byte("x"), 0); err != nil {
		t.Errorf("write to unlinked scratch file: %v", err)
	}
}

func TestScratchFileKept(t *testing.T) {
	dir := t.TempDir()
	p, err := Open(Options{Dir: dir, Descriptors: 1, Keep: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	if _, err := os.Stat(p.Path()); err != nil {
		t.Errorf("expected scratch file to exist, got: %v", err)
	}
}

func TestHasDataAndPunchHole(t *testing.T) {
	p, err := Open(Options{Dir: t.TempDir(), Descriptors: 1, Keep: true})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	h := p.Acquire()
	defer h.Release()
	f := h.File()

	present, err := HasData(f, 0, 4096)
	if err != nil {
		t.Fatalf("HasData: %v", err)
	}
	if present {
		t.Error("expected empty region to report no data")
	}

	if _, err := f.WriteAt(make([]byte, 4096), 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	present, err = HasData(f, 0, 4096)
	if err != nil {
		t.Fatalf("HasData after write: %v", err)
	}
	if !present {
		t.Error("expected written region to report data present")
	}

	if err := PunchHole(f, 0, 4096); err != nil {
		t.Fatalf("PunchHole: %v", err)
	}

	present, err = HasData(f, 0, 4096)
	if err != nil {
		t.Fatalf("HasData after punch: %v", err)
	}
	if present {
		t.Error("expected punched region to report no data")
	}
}
