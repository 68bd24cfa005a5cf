package bus

import (
	"errors"
	"sync/atomic"
)

var (
	ErrQueueFull   = errors.New("bus: event queue full")
	ErrQueueClosed = errors.New("bus: event queue closed")
)

// Queue is a bounded, non-blocking event queue. Posted events are dispatched
// ahead of journal frames.
type Queue struct {
	ch     chan Event
	closed uint32
}

// NewQueue allocates a queue with the given capacity.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 1
	}
	return &Queue{ch: make(chan Event, capacity)}
}

// TryPublish enqueues an event without blocking.
func (q *Queue) TryPublish(e Event) error {
	if atomic.LoadUint32(&q.closed) != 0 {
		return ErrQueueClosed
	}
	select {
	case q.ch <- e:
		return nil
	default:
		return ErrQueueFull
	}
}

// TryNext pops an event without blocking.
func (q *Queue) TryNext() (Event, bool) {
	select {
	case e, ok := <-q.ch:
		return e, ok
	default:
		return Event{}, false
	}
}

// Len is the number of queued events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops the queue from accepting new events.
func (q *Queue) Close() {
	if atomic.CompareAndSwapUint32(&q.closed, 0, 1) {
		close(q.ch)
	}
}
