package pipeline

import (
	"sync"
)

// StatusQueue is an unbounded FIFO of status messages from the loop to the
// presentation side. Push never blocks and never drops.
type StatusQueue struct {
	mu     sync.Mutex
	items  []StatusMessage
	notify chan struct{}
}

// NewStatusQueue creates an empty queue.
func NewStatusQueue() *StatusQueue {
	return &StatusQueue{
		notify: make(chan struct{}, 1),
	}
}

// Push appends msg and wakes a waiting reader.
func (q *StatusQueue) Push(msg StatusMessage) {
	q.mu.Lock()
	q.items = append(q.items, msg)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// Drain removes and returns every queued message in order.
func (q *StatusQueue) Drain() []StatusMessage {
	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// Len returns the number of queued messages.
func (q *StatusQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Notify is signalled after Push; receive from it, then Drain.
func (q *StatusQueue) Notify() <-chan struct{} {
	return q.notify
}
