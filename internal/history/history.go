// Package history provides the fixed-capacity ring buffer backing the
// in-memory measurement history consumed by the UI collaborators.
package history

import "sync"

// Ring keeps the last N inserted values. Once filled, each insert
// overwrites the oldest entry; there is no delete operation. Writes come
// from the dispatch path only; readers get copies, so UI goroutines never
// observe a half-updated buffer.
type Ring[T any] struct {
	mu     sync.RWMutex
	ring   []T
	head   int
	filled bool
}

// New returns a ring of the given capacity.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{ring: make([]T, capacity)}
}

// Insert stores a value, overwriting the oldest once the ring is full.
// It always succeeds.
func (r *Ring[T]) Insert(v T) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring[r.head] = v
	r.head++
	if r.head == len(r.ring) {
		r.head = 0
		r.filled = true
	}
}

// Size is the number of valid entries, at most the capacity.
func (r *Ring[T]) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.filled {
		return len(r.ring)
	}
	return r.head
}

// Filled reports whether the ring has wrapped at least once.
func (r *Ring[T]) Filled() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.filled
}

// Empty reports whether nothing has ever been inserted.
func (r *Ring[T]) Empty() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return !r.filled && r.head == 0
}

// Latest returns the most recently inserted value.
func (r *Ring[T]) Latest() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.filled && r.head == 0 {
		var zero T
		return zero, false
	}
	i := r.head - 1
	if i < 0 {
		i = len(r.ring) - 1
	}
	return r.ring[i], true
}

// Snapshot returns all valid entries oldest first, reassembling the order
// across the wrap boundary.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.filled {
		out := make([]T, 0, len(r.ring))
		out = append(out, r.ring[r.head:]...)
		out = append(out, r.ring[:r.head]...)
		return out
	}
	out := make([]T, r.head)
	copy(out, r.ring[:r.head])
	return out
}
