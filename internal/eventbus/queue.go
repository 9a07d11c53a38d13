package eventbus

import (
	"sync"

	"github.com/roach88/photostack/internal/ir"
)

// delivery is one event bound for one handler.
type delivery struct {
	event   ir.Event
	handler int // index into the handler table entry for event.Name
	attempt int // 0 for the first delivery
}

// deliveryQueue is a thread-safe unbounded FIFO queue.
//
// The queue is unbounded so handlers can publish follow-up events without
// blocking on the workers that are running them.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the worker loop.
type deliveryQueue struct {
	mu     sync.Mutex
	items  []delivery
	closed bool
	signal chan struct{} // Signals availability (buffered, size 1)
}

func newDeliveryQueue() *deliveryQueue {
	return &deliveryQueue{
		items:  make([]delivery, 0, 64),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds a delivery to the back of the queue.
// Returns false if the queue is closed.
func (q *deliveryQueue) Enqueue(d delivery) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.items = append(q.items, d)
	q.notify()
	return true
}

// TryDequeue removes the front delivery without blocking.
// Returns (delivery{}, false) if the queue is empty.
func (q *deliveryQueue) TryDequeue() (delivery, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.items) == 0 {
		return delivery{}, false
	}

	d := q.items[0]
	// Drop the reference so the payload can be collected.
	q.items[0] = delivery{}

	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
		// Signals coalesce; pass the wake-up on to another idle worker.
		q.notify()
	}

	return d, true
}

// notify must be called with q.mu held.
func (q *deliveryQueue) notify() {
	if q.closed {
		return
	}
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Wait returns a channel that signals when deliveries may be available.
// The channel is closed when the queue is closed.
func (q *deliveryQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *deliveryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Done reports whether the queue is closed and fully drained.
func (q *deliveryQueue) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.items) == 0
}

// Closed reports whether Close has been called.
func (q *deliveryQueue) Closed() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed
}

// Close signals that no more deliveries will be enqueued.
// Wakes any waiting workers by closing the signal channel.
func (q *deliveryQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}
