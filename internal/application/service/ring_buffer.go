package service

// ringBuffer keeps the most recent items up to a fixed capacity, evicting the
// oldest first. It is not safe for concurrent use.
type ringBuffer[T any] struct {
	items []T
	start int
	size  int
}

func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer[T]{items: make([]T, capacity)}
}

func (r *ringBuffer[T]) push(item T) {
	capacity := len(r.items)
	if r.size < capacity {
		r.items[(r.start+r.size)%capacity] = item
		r.size++
		return
	}
	r.items[r.start] = item
	r.start = (r.start + 1) % capacity
}

// last returns up to n of the newest items, oldest first.
func (r *ringBuffer[T]) last(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n < 0 {
		n = 0
	}
	out := make([]T, n)
	capacity := len(r.items)
	offset := r.size - n
	for i := range n {
		out[i] = r.items[(r.start+offset+i)%capacity]
	}
	return out
}

// snapshot returns every item, oldest first.
func (r *ringBuffer[T]) snapshot() []T {
	return r.last(r.size)
}

func (r *ringBuffer[T]) len() int {
	return r.size
}

func (r *ringBuffer[T]) clear() {
	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.start = 0
	r.size = 0
}
