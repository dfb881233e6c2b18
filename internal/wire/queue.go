package wire

import "sync"

// Queue is the strictly-ordered, single-consumer inbound message queue
// kept per local endpoint. Messages are appended as the transport
// delivers them and drained in FIFO order, so order across the session
// is a causal order, not just a delivery order.
//
// The handler-busy gate defers draining while a UI-affecting handler is
// in flight: call Hold before handing a message to such a handler and
// Release when the handler signals completion. A slow screen transition
// can therefore never be raced by the next queued message.
//
// F identifies the sender (typically *transport.Peer).
type Queue[F any] struct {
	mu       sync.Mutex
	items    []queued[F]
	busy     bool
	draining bool
	handler  func(from F, msg Message)
}

type queued[F any] struct {
	from F
	msg  Message
}

// NewQueue creates a queue delivering to handler. The handler is always
// invoked from the goroutine that unblocked the queue (Append or
// Release), never concurrently with itself.
func NewQueue[F any](handler func(from F, msg Message)) *Queue[F] {
	return &Queue[F]{handler: handler}
}

// Append enqueues an inbound message and drains if the gate is clear.
func (q *Queue[F]) Append(from F, msg Message) {
	q.mu.Lock()
	q.items = append(q.items, queued[F]{from: from, msg: msg})
	q.mu.Unlock()
	q.drain()
}

// Hold sets the handler-busy gate. Draining stops after the current
// message until Release is called.
func (q *Queue[F]) Hold() {
	q.mu.Lock()
	q.busy = true
	q.mu.Unlock()
}

// Release clears the gate and resumes draining.
func (q *Queue[F]) Release() {
	q.mu.Lock()
	q.busy = false
	q.mu.Unlock()
	q.drain()
}

// Len returns the number of undelivered messages.
func (q *Queue[F]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *Queue[F]) drain() {
	for {
		q.mu.Lock()
		// A handler called from drain may Append; the outer drain loop
		// already covers the new item, so refuse re-entry.
		if q.busy || q.draining || len(q.items) == 0 {
			q.mu.Unlock()
			return
		}
		item := q.items[0]
		q.items = q.items[1:]
		q.draining = true
		q.mu.Unlock()

		q.handler(item.from, item.msg)

		q.mu.Lock()
		q.draining = false
		q.mu.Unlock()
	}
}
