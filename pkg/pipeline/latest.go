package pipeline

import (
	"sync"
)

// LatestChan is a single-slot channel where a new value replaces any unread
// one. Publish never blocks, so a slow reader only ever misses stale values.
type LatestChan[T any] struct {
	mu sync.Mutex
	ch chan T
}

// NewLatestChan creates an empty LatestChan.
func NewLatestChan[T any]() *LatestChan[T] {
	return &LatestChan[T]{
		ch: make(chan T, 1),
	}
}

// Publish stores val, overwriting an unread value if there is one.
func (lc *LatestChan[T]) Publish(val T) {
	lc.mu.Lock()
	defer lc.mu.Unlock()

	select {
	case lc.ch <- val:
		return
	default:
	}
	// Slot is full: drop the stale value and retry once.
	select {
	case <-lc.ch:
	default:
	}
	select {
	case lc.ch <- val:
	default:
	}
}

// TryRecv returns the latest value if one is waiting.
func (lc *LatestChan[T]) TryRecv() (T, bool) {
	select {
	case val := <-lc.ch:
		return val, true
	default:
		var zero T
		return zero, false
	}
}

// Chan exposes the receive side for use in select statements.
func (lc *LatestChan[T]) Chan() <-chan T {
	return lc.ch
}

// Clear drops any unread value.
func (lc *LatestChan[T]) Clear() {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	select {
	case <-lc.ch:
	default:
	}
}
