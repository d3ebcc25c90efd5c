// File: internal/concurrency/ring_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package concurrency

import "testing"

func TestRingBuffer_EnqueueDequeue(t *testing.T) {
	r := NewRingBuffer[int](8)
	for i := 0; i < 5; i++ {
		if !r.Enqueue(i) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	if got := r.Len(); got != 5 {
		t.Fatalf("Len = %d, want 5", got)
	}
	for i := 0; i < 5; i++ {
		v, ok := r.Dequeue()
		if !ok || v != i {
			t.Fatalf("dequeue = (%d, %v), want (%d, true)", v, ok, i)
		}
	}
	if _, ok := r.Dequeue(); ok {
		t.Fatal("dequeue on empty ring succeeded")
	}
}

func TestRingBuffer_FullRejectsEnqueue(t *testing.T) {
	r := NewRingBuffer[int](4)
	for i := 0; i < 4; i++ {
		if !r.Enqueue(i) {
			t.Fatalf("enqueue %d failed", i)
		}
	}
	if r.Enqueue(99) {
		t.Fatal("enqueue on full ring succeeded")
	}
	if v, ok := r.Dequeue(); !ok || v != 0 {
		t.Fatalf("dequeue = (%d, %v), want (0, true)", v, ok)
	}
	if !r.Enqueue(99) {
		t.Fatal("enqueue after dequeue failed")
	}
}

func TestRingBuffer_DrainLimit(t *testing.T) {
	r := NewRingBuffer[int](16)
	for i := 0; i < 10; i++ {
		r.Enqueue(i)
	}
	var seen []int
	n := r.Drain(4, func(v int) { seen = append(seen, v) })
	if n != 4 || len(seen) != 4 {
		t.Fatalf("drain consumed %d (%v), want 4", n, seen)
	}
	for i, v := range seen {
		if v != i {
			t.Fatalf("seen[%d] = %d, want %d", i, v, i)
		}
	}
	if n = r.Drain(100, func(int) {}); n != 6 {
		t.Fatalf("second drain consumed %d, want 6", n)
	}
}

func TestRingBuffer_NonPowerOfTwoPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for capacity 6")
		}
	}()
	NewRingBuffer[int](6)
}

func TestRingBuffer_SingleProducerSingleConsumer(t *testing.T) {
	const total = 100000
	r := NewRingBuffer[int](1024)
	done := make(chan int)

	go func() {
		sum := 0
		for count := 0; count < total; {
			v, ok := r.Dequeue()
			if !ok {
				continue
			}
			if v != count {
				t.Errorf("out of order: got %d, want %d", v, count)
				break
			}
			sum += v
			count++
		}
		done <- sum
	}()

	for i := 0; i < total; {
		if r.Enqueue(i) {
			i++
		}
	}

	want := total * (total - 1) / 2
	if sum := <-done; sum != want {
		t.Fatalf("consumer sum = %d, want %d", sum, want)
	}
}

func TestNextPowerOfTwo(t *testing.T) {
	cases := map[uint64]uint64{
		0: 1, 1: 1, 2: 2, 3: 4, 4: 4, 5: 8, 1023: 1024, 1024: 1024, 1025: 2048,
	}
	for in, want := range cases {
		if got := NextPowerOfTwo(in); got != want {
			t.Errorf("NextPowerOfTwo(%d) = %d, want %d", in, got, want)
		}
	}
}
