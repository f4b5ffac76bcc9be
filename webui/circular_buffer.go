package webui

import "sync"

// CircularBuffer is a fixed-size FIFO that overwrites its oldest entry when
// full. Safe for concurrent use.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	data     []T
	capacity int
	size     int
	head     int // next write position
}

// NewCircularBuffer creates a buffer holding at most capacity items.
// Panics if capacity is less than 1.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity < 1 {
		panic("webui: CircularBuffer capacity must be at least 1")
	}
	return &CircularBuffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}
}

// Push appends item, dropping the oldest entry when full.
func (b *CircularBuffer[T]) Push(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// GetAll returns a copy of the contents, oldest first.
func (b *CircularBuffer[T]) GetAll() []T {
	return b.GetLast(b.capacity)
}

// GetLast returns up to n of the newest items, oldest first.
func (b *CircularBuffer[T]) GetLast(n int) []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return []T{}
	}

	out := make([]T, n)
	start := (b.head - n + b.capacity) % b.capacity
	for i := 0; i < n; i++ {
		out[i] = b.data[(start+i)%b.capacity]
	}
	return out
}

