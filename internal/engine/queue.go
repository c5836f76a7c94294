package engine

import (
	"sync"

	"github.com/roach88/reqsync/internal/model"
)

// eventKind distinguishes between event kinds.
type eventKind int

const (
	eventStart eventKind = iota + 1
	eventStop
	eventFetch
	eventFetched
	eventUpsert
	eventDelete
)

func (k eventKind) String() string {
	switch k {
	case eventStart:
		return "start"
	case eventStop:
		return "stop"
	case eventFetch:
		return "fetch"
	case eventFetched:
		return "fetched"
	case eventUpsert:
		return "upsert"
	case eventDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// event is one unit of work for the Run loop. Which fields are set depends
// on kind.
type event struct {
	kind eventKind

	user       model.User        // start
	background bool              // fetch, fetched
	tag        int64             // fetched: session the fetch was issued for
	snapshot   model.Snapshot    // fetched
	err        error             // fetched
	record     model.Requisition // upsert
	assign     bool              // upsert: fill id, number and timestamps
	id         string            // delete

	reply chan reply
}

// reply is the loop's answer to a waiting caller.
type reply struct {
	snapshot model.Snapshot
	record   model.Requisition
	err      error
}

// send delivers r without blocking. Reply channels are buffered with room
// for exactly one answer; a nil channel means nobody is waiting.
func send(ch chan reply, r reply) {
	if ch == nil {
		return
	}
	select {
	case ch <- r:
	default:
	}
}

// eventQueue is a thread-safe FIFO queue for events.
//
// The queue is unbounded so that fetch goroutines never block when posting
// results back to a busy loop.
//
// The queue uses a channel for signaling to enable context-aware waiting
// in the Run loop.
type eventQueue struct {
	mu     sync.Mutex
	events []event
	closed bool
	signal chan struct{} // buffered, size 1
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		events: make([]event, 0, 16),
		signal: make(chan struct{}, 1),
	}
}

// Enqueue adds an event to the back of the queue.
// Returns false if the queue is closed.
func (q *eventQueue) Enqueue(e event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.events = append(q.events, e)

	// Non-blocking; the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// TryDequeue removes the front event without blocking.
func (q *eventQueue) TryDequeue() (event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.events) == 0 {
		return event{}, false
	}

	e := q.events[0]

	// Clear the slot so the backing array does not pin snapshots.
	q.events[0] = event{}

	if len(q.events) == 1 {
		q.events = q.events[:0]
	} else {
		q.events = q.events[1:]
	}

	return e, true
}

// Wait returns a channel that signals when events may be available. It is
// closed by Close.
func (q *eventQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

// Drained reports whether the queue is closed and has nothing left.
func (q *eventQueue) Drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && len(q.events) == 0
}

// Close stops further enqueues and wakes any waiter.
func (q *eventQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	close(q.signal)
}

// Drain removes and returns every queued event.
func (q *eventQueue) Drain() []event {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.events
	q.events = nil
	return out
}
