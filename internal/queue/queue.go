package queue

import (
	"sync"
)

// Queue is a generic thread-safe FIFO queue.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
}

// New creates a new empty queue.
func New[T any]() *Queue[T] {
	return &Queue[T]{
		items: make([]T, 0),
	}
}

// Push appends items to the back of the queue and returns the new length.
func (q *Queue[T]) Push(items ...T) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, items...)
	return len(q.items)
}

// Pop removes and returns the first item. ok is false if the queue is empty.
func (q *Queue[T]) Pop() (item T, ok bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return item, false
	}
	item = q.items[0]
	var zero T
	q.items[0] = zero
	q.items = q.items[1:]
	return item, true
}

// Len returns the number of items in the queue.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Clear removes all items and returns how many were dropped.
func (q *Queue[T]) Clear() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = make([]T, 0)
	return n
}

// Drain returns all items in insertion order and empties the queue.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	result := q.items
	q.items = make([]T, 0, cap(q.items))
	return result
}

// Peek returns a copy of up to n items from the front without removing them.
func (q *Queue[T]) Peek(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n > len(q.items) {
		n = len(q.items)
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	copy(out, q.items[:n])
	return out
}

// TakeFront removes and returns up to n items from the front. The remainder
// stays queued ahead of anything pushed later.
func (q *Queue[T]) TakeFront(n int) []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if n >= len(q.items) {
		result := q.items
		q.items = make([]T, 0)
		return result
	}
	if n <= 0 {
		return []T{}
	}
	out := make([]T, n)
	copy(out, q.items[:n])
	rest := make([]T, len(q.items)-n)
	copy(rest, q.items[n:])
	q.items = rest
	return out
}
