// File: internal/concurrency/ring.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Bounded lock-free ring buffer for exactly one producer goroutine and
// one consumer goroutine. Head and tail cursors are padded apart to
// avoid false sharing on the hot path.

package concurrency

import "sync/atomic"

// RingBuffer is a single-producer single-consumer bounded queue.
type RingBuffer[T any] struct {
	data []T
	mask uint64
	_    [56]byte
	head atomic.Uint64
	_    [56]byte
	tail atomic.Uint64
	_    [56]byte
}

// NewRingBuffer creates a ring buffer with the given capacity, which
// must be a power of two.
func NewRingBuffer[T any](capacity uint64) *RingBuffer[T] {
	if capacity == 0 || capacity&(capacity-1) != 0 {
		panic("concurrency: ring capacity must be a power of two")
	}
	return &RingBuffer[T]{
		data: make([]T, capacity),
		mask: capacity - 1,
	}
}

// Enqueue appends v and reports whether space was available. Producer
// side only.
func (r *RingBuffer[T]) Enqueue(v T) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint64(len(r.data)) {
		return false
	}
	r.data[tail&r.mask] = v
	r.tail.Store(tail + 1)
	return true
}

// Dequeue removes the oldest element. Consumer side only.
func (r *RingBuffer[T]) Dequeue() (T, bool) {
	var zero T
	head := r.head.Load()
	if head == r.tail.Load() {
		return zero, false
	}
	v := r.data[head&r.mask]
	r.data[head&r.mask] = zero
	r.head.Store(head + 1)
	return v, true
}

// Drain invokes fn for up to limit queued elements and returns how many
// were consumed. Consumer side only.
func (r *RingBuffer[T]) Drain(limit int, fn func(T)) int {
	count := 0
	for count < limit {
		v, ok := r.Dequeue()
		if !ok {
			break
		}
		fn(v)
		count++
	}
	return count
}

// Len returns the number of queued elements.
func (r *RingBuffer[T]) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Cap returns the fixed capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.data)
}

// NextPowerOfTwo rounds v up to the nearest power of two, with a floor
// of one.
func NextPowerOfTwo(v uint64) uint64 {
	if v == 0 {
		return 1
	}
	v--
	v |= v >> 1
	v |= v >> 2
	v |= v >> 4
	v |= v >> 8
	v |= v >> 16
	v |= v >> 32
	return v + 1
}
