// Package ring provides a fixed-capacity buffer that evicts the oldest
// entry on overflow. Not safe for concurrent use; callers synchronize.
package ring

// Ring is a fixed-capacity FIFO over values of type T.
type Ring[T any] struct {
	buf      []T
	capacity int
	head     int // next write position
	count    int
}

func New[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		capacity = 1
	}

	return &Ring[T]{
		buf:      make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends v, evicting the oldest entry when full.
func (r *Ring[T]) Push(v T) {
	r.buf[r.head] = v
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
}

// Snapshot returns all entries in chronological order.
func (r *Ring[T]) Snapshot() []T {
	if r.count == 0 {
		return nil
	}

	out := make([]T, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(start+i)%r.capacity]
	}

	return out
}

// Recent returns up to n of the newest entries, oldest first.
func (r *Ring[T]) Recent(n int) []T {
	if n <= 0 || r.count == 0 {
		return nil
	}
	if n > r.count {
		n = r.count
	}

	out := make([]T, n)
	start := (r.head - n + r.capacity) % r.capacity
	for i := 0; i < n; i++ {
		out[i] = r.buf[(start+i)%r.capacity]
	}

	return out
}

func (r *Ring[T]) Len() int {
	return r.count
}

func (r *Ring[T]) Cap() int {
	return r.capacity
}
