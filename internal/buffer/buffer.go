package buffer

import (
	"sync"
)

// Ring is a thread-safe bounded history. Once full, each Push drops the
// oldest entry.
type Ring[T any] struct {
	mu       sync.Mutex
	data     []T
	capacity int
}

// New creates a Ring holding at most capacity items. A capacity below one
// is treated as one.
func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &Ring[T]{
		data:     make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Push appends an item, dropping the oldest if the ring is full.
func (r *Ring[T]) Push(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.data) >= r.capacity {
		copy(r.data, r.data[1:])
		r.data[len(r.data)-1] = item
		return
	}
	r.data = append(r.data, item)
}

// Items returns a copy of the contents, oldest first.
func (r *Ring[T]) Items() []T {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]T, len(r.data))
	copy(out, r.data)
	return out
}

// Len returns the current number of items.
func (r *Ring[T]) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.data)
}
