package queue

import (
	"sync"
	"testing"
)

// testItem is a simple struct for testing the generic queue
type testItem struct {
	ID   int
	Name string
}

func ids(items []testItem) []int {
	out := make([]int, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestQueue_New(t *testing.T) {
	q := New[testItem](0)
	if q == nil {
		t.Fatal("expected non-nil queue")
	}
	if !q.Empty() {
		t.Error("expected empty queue")
	}
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}
}

func TestQueue_PushPop(t *testing.T) {
	q := New[testItem](0)

	q.Push(testItem{ID: 1, Name: "first"})
	q.Push(testItem{ID: 2}, testItem{ID: 3})
	if q.Len() != 3 {
		t.Errorf("expected length 3, got %d", q.Len())
	}

	item, ok := q.Pop()
	if !ok || item.ID != 1 || item.Name != "first" {
		t.Errorf("expected first item, got %+v ok=%v", item, ok)
	}
	if q.Len() != 2 {
		t.Errorf("expected length 2 after pop, got %d", q.Len())
	}
}

func TestQueue_PopEmpty(t *testing.T) {
	q := New[testItem](0)

	item, ok := q.Pop()
	if ok {
		t.Error("expected ok=false on empty queue")
	}
	if item.ID != 0 || item.Name != "" {
		t.Errorf("expected zero value, got %+v", item)
	}
}

func TestQueue_GetAndEmpty(t *testing.T) {
	q := New[testItem](0)
	q.Push(testItem{ID: 1}, testItem{ID: 2}, testItem{ID: 3})

	items := q.GetAndEmpty()
	if !equalInts(ids(items), []int{1, 2, 3}) {
		t.Errorf("unexpected items: %v", ids(items))
	}
	if !q.Empty() {
		t.Error("expected queue to be empty after GetAndEmpty")
	}

	q.Push(testItem{ID: 4})
	if q.Len() != 1 {
		t.Errorf("queue not usable after GetAndEmpty, len %d", q.Len())
	}
	// the returned slice is not aliased by later pushes
	if items[0].ID != 1 {
		t.Errorf("returned slice was modified: %v", ids(items))
	}
}

func TestQueue_Requeue(t *testing.T) {
	q := New[testItem](0)
	q.Push(testItem{ID: 1}, testItem{ID: 2})

	batch := q.GetAndEmpty()
	q.Push(testItem{ID: 3})
	q.Requeue(batch...)

	if got := ids(q.GetAndEmpty()); !equalInts(got, []int{1, 2, 3}) {
		t.Errorf("expected requeued items first, got %v", got)
	}

	if n := q.Requeue(); n != 0 {
		t.Errorf("expected no eviction for empty requeue, got %d", n)
	}
}

func TestQueue_LimitEvictsOldest(t *testing.T) {
	q := New[testItem](3)

	if n := q.Push(testItem{ID: 1}, testItem{ID: 2}); n != 0 {
		t.Errorf("expected no eviction, got %d", n)
	}
	if n := q.Push(testItem{ID: 3}, testItem{ID: 4}, testItem{ID: 5}); n != 2 {
		t.Errorf("expected 2 evicted, got %d", n)
	}
	if n := q.Requeue(testItem{ID: 0}); n != 1 {
		t.Errorf("expected 1 evicted on requeue, got %d", n)
	}

	if got := ids(q.GetAndEmpty()); !equalInts(got, []int{3, 4, 5}) {
		t.Errorf("expected newest items kept, got %v", got)
	}
	if q.Evicted() != 3 {
		t.Errorf("expected 3 evicted in total, got %d", q.Evicted())
	}
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[testItem](0)
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(testItem{ID: base*100 + j})
			}
		}(i)
	}
	wg.Wait()

	if q.Len() != 1000 {
		t.Errorf("expected 1000 items, got %d", q.Len())
	}
}
