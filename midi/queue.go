package midi

import "sync"

// eventQueue is an unbounded FIFO shared between the capture goroutine
// (producer) and the reducer (consumer). The lock is held only for the
// enqueue or dequeue itself, never across normalization or reduction work.
type eventQueue struct {
	mu     sync.Mutex
	events []Event
}

func (q *eventQueue) push(e Event) {
	q.mu.Lock()
	q.events = append(q.events, e)
	q.mu.Unlock()
}

// pop returns the oldest event, or an EMPTY event when the queue has none.
func (q *eventQueue) pop() Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return Event{}
	}
	e := q.events[0]
	q.events = q.events[1:]
	if len(q.events) == 0 {
		q.events = nil
	}
	return e
}

func (q *eventQueue) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}
