package queue

import (
	"sync"
	"testing"
)

type testItem struct {
	ID   int
	Name string
}

func TestQueue_New(t *testing.T) {
	q := New[testItem]()
	if q == nil {
		t.Fatal("expected non-nil queue")
	}
	if q.Len() != 0 {
		t.Errorf("expected length 0, got %d", q.Len())
	}
}

func TestQueue_Push(t *testing.T) {
	q := New[testItem]()

	if n := q.Push(testItem{ID: 1, Name: "first"}); n != 1 {
		t.Errorf("expected length 1, got %d", n)
	}
	if n := q.Push(testItem{ID: 2}, testItem{ID: 3}); n != 3 {
		t.Errorf("expected length 3, got %d", n)
	}
}

func TestQueue_Pop(t *testing.T) {
	q := New[testItem]()

	if _, ok := q.Pop(); ok {
		t.Error("expected ok=false on empty queue")
	}

	q.Push(testItem{ID: 1}, testItem{ID: 2})
	item, ok := q.Pop()
	if !ok || item.ID != 1 {
		t.Errorf("expected first item, got %+v ok=%v", item, ok)
	}
	if q.Len() != 1 {
		t.Errorf("expected length 1, got %d", q.Len())
	}
}

func TestQueue_Clear(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)

	if dropped := q.Clear(); dropped != 3 {
		t.Errorf("expected 3 dropped, got %d", dropped)
	}
	if q.Len() != 0 {
		t.Error("expected empty queue after Clear")
	}
}

func TestQueue_Drain(t *testing.T) {
	q := New[string]()
	q.Push("a", "b", "c")

	got := q.Drain()
	if len(got) != 3 || got[0] != "a" || got[2] != "c" {
		t.Errorf("unexpected drain result %v", got)
	}
	if q.Len() != 0 {
		t.Error("expected empty queue after Drain")
	}

	q.Push("d")
	if got[0] != "a" {
		t.Error("drained slice must not alias new pushes")
	}
}

func TestQueue_DrainEmpty(t *testing.T) {
	q := New[int]()
	got := q.Drain()
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty non-nil slice, got %#v", got)
	}
}

func TestQueue_TakeFront(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3, 4, 5)

	front := q.TakeFront(2)
	if len(front) != 2 || front[0] != 1 || front[1] != 2 {
		t.Fatalf("unexpected front %v", front)
	}

	q.Push(6)
	rest := q.Drain()
	want := []int{3, 4, 5, 6}
	if len(rest) != len(want) {
		t.Fatalf("expected %v, got %v", want, rest)
	}
	for i := range want {
		if rest[i] != want[i] {
			t.Errorf("index %d: expected %d, got %d", i, want[i], rest[i])
		}
	}
}

func TestQueue_TakeFrontMoreThanLen(t *testing.T) {
	q := New[int]()
	q.Push(1, 2)

	if got := q.TakeFront(10); len(got) != 2 {
		t.Errorf("expected 2 items, got %v", got)
	}
	if got := q.TakeFront(0); len(got) != 0 {
		t.Errorf("expected no items, got %v", got)
	}
}

func TestQueue_Peek(t *testing.T) {
	q := New[int]()
	q.Push(1, 2, 3)

	got := q.Peek(2)
	if len(got) != 2 || got[0] != 1 {
		t.Errorf("unexpected peek %v", got)
	}
	if q.Len() != 3 {
		t.Error("peek must not remove items")
	}
}

func TestQueue_Concurrent(t *testing.T) {
	q := New[int]()
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Push(base*100 + j)
			}
		}(i)
	}
	wg.Wait()

	if q.Len() != 1000 {
		t.Errorf("expected 1000 items, got %d", q.Len())
	}
}
