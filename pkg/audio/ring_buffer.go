// Package audio provides audio capture and buffering utilities.
//
// SampleRing implements a fixed-size lock-free circular buffer for float64
// samples. It is the only memory shared between the capture callback and
// the analysis loop.
//
// Main features:
//   - Single producer / single consumer, atomic head and tail indices
//   - Push never blocks; samples arriving while the ring is full are dropped
//   - DrainInto copies in arrival order without allocating
//
// Usage:
//
//	ring := NewSampleRing(4800) // 100ms at 48kHz
//	ring.Push(sample)           // capture callback
//	n := ring.DrainInto(buf)    // analysis loop
package audio

import (
	"sync/atomic"
)

// SampleRing is a single-producer/single-consumer ring of audio samples.
//
// Overflow policy is drop-newest: when the ring is full the incoming sample is
// discarded and counted in Dropped. The samples already queued are kept so the
// consumer always sees a gap-free prefix of the stream.
type SampleRing struct {
	buf  []float64
	mask uint64

	// head is advanced only by the consumer, tail only by the producer.
	head atomic.Uint64
	tail atomic.Uint64

	dropped atomic.Uint64
}

// NewSampleRing creates a ring holding at least capacity samples.
// The capacity is rounded up to the next power of two.
func NewSampleRing(capacity int) *SampleRing {
	if capacity < 1 {
		capacity = 1
	}
	size := 1
	for size < capacity {
		size <<= 1
	}
	return &SampleRing{
		buf:  make([]float64, size),
		mask: uint64(size - 1),
	}
}

// Push appends one sample. It returns false if the ring was full and the
// sample was dropped. Must only be called from the producer goroutine.
func (r *SampleRing) Push(sample float64) bool {
	tail := r.tail.Load()
	if tail-r.head.Load() >= uint64(len(r.buf)) {
		r.dropped.Add(1)
		return false
	}
	r.buf[tail&r.mask] = sample
	r.tail.Store(tail + 1)
	return true
}

// PushSlice appends as many samples as fit and returns the number accepted.
// The rest are dropped.
func (r *SampleRing) PushSlice(samples []float64) int {
	tail := r.tail.Load()
	free := uint64(len(r.buf)) - (tail - r.head.Load())
	n := uint64(len(samples))
	if n > free {
		r.dropped.Add(n - free)
		n = free
	}
	for i := uint64(0); i < n; i++ {
		r.buf[(tail+i)&r.mask] = samples[i]
	}
	r.tail.Store(tail + n)
	return int(n)
}

// DrainInto moves up to len(dst) buffered samples into dst, oldest first,
// and returns how many were copied. Must only be called from the consumer
// goroutine.
func (r *SampleRing) DrainInto(dst []float64) int {
	head := r.head.Load()
	avail := r.tail.Load() - head
	n := uint64(len(dst))
	if avail < n {
		n = avail
	}
	if n == 0 {
		return 0
	}

	start := head & r.mask
	first := uint64(len(r.buf)) - start
	if first > n {
		first = n
	}
	copy(dst[:first], r.buf[start:start+first])
	copy(dst[first:n], r.buf[:n-first])

	r.head.Store(head + n)
	return int(n)
}

// Len returns the number of samples waiting to be drained.
func (r *SampleRing) Len() int {
	return int(r.tail.Load() - r.head.Load())
}

// Capacity returns the total capacity of the ring in samples.
func (r *SampleRing) Capacity() int {
	return len(r.buf)
}

// Dropped returns how many samples were discarded because the ring was full.
func (r *SampleRing) Dropped() uint64 {
	return r.dropped.Load()
}
