package flushqueue

import "testing"

func TestPopsInAscendingTagOrder(t *testing.T) {
	q := New()
	q.Insert(300, false)
	q.Insert(100, false)
	q.Insert(200, false)

	var order []uint64
	for {
		e, ok := q.Pop()
		if !ok {
			break
		}
		order = append(order, e.ExtentTag)
	}

	want := []uint64{100, 200, 300}
	if len(order) != len(want) {
		t.Fatalf("expected %v, got %v", want, order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("expected %v, got %v", want, order)
		}
	}
}

func TestDuplicateInsertOrsShouldRemove(t *testing.T) {
	q := New()
	q.Insert(42, false)
	q.Insert(42, true)

	if q.Len() != 1 {
		t.Fatalf("expected dedup to a single entry, got %d", q.Len())
	}

	e, ok := q.Pop()
	if !ok {
		t.Fatal("expected an entry")
	}
	if !e.ShouldRemove {
		t.Error("expected shouldRemove to be OR'd to true")
	}
}

func TestDeleteBeforePop(t *testing.T) {
	q := New()
	q.Insert(1, false)
	q.Delete(1)

	if !q.IsEmpty() {
		t.Error("expected queue to be empty after delete")
	}
	if _, ok := q.Pop(); ok {
		t.Error("expected pop to find nothing after delete")
	}
}

func TestPopOnEmptyQueue(t *testing.T) {
	q := New()
	if _, ok := q.Pop(); ok {
		t.Error("expected pop on empty queue to return false")
	}
}

func TestEvictionClassPrecedesSyncClassRegardlessOfTag(t *testing.T) {
	q := New()
	q.Insert(100, false) // sync-class, low tag
	q.Insert(50, true)   // eviction-class, lower tag
	q.Insert(200, true)  // eviction-class, higher tag

	e1, ok := q.Pop()
	if !ok || !e1.ShouldRemove || e1.ExtentTag != 50 {
		t.Fatalf("expected eviction-class tag 50 first, got %+v (ok=%v)", e1, ok)
	}
	e2, ok := q.Pop()
	if !ok || !e2.ShouldRemove || e2.ExtentTag != 200 {
		t.Fatalf("expected eviction-class tag 200 second, got %+v (ok=%v)", e2, ok)
	}
	e3, ok := q.Pop()
	if !ok || e3.ShouldRemove || e3.ExtentTag != 100 {
		t.Fatalf("expected sync-class tag 100 last, got %+v (ok=%v)", e3, ok)
	}
}

func TestUpgradeToEvictionClassReordersAheadOfSyncEntries(t *testing.T) {
	q := New()
	q.Insert(10, false)
	q.Insert(20, false)
	q.Insert(10, true) // promotes tag 10 to eviction-class

	e, ok := q.Pop()
	if !ok || e.ExtentTag != 10 || !e.ShouldRemove {
		t.Fatalf("expected promoted tag 10 to pop first, got %+v (ok=%v)", e, ok)
	}
	e, ok = q.Pop()
	if !ok || e.ExtentTag != 20 || e.ShouldRemove {
		t.Fatalf("expected remaining sync-class tag 20 second, got %+v (ok=%v)", e, ok)
	}
}
