package eventbuilder

import "sync"

// EventQueue is the FIFO hand-off between two adjacent stages. Capacity 0
// means unbounded; otherwise Push refuses events once the queue is full and
// the producer keeps ownership.
type EventQueue struct {
	mu        sync.Mutex
	events    []*Event
	capacity  int
	highWater int
}

func NewEventQueue(capacity int) *EventQueue {
	if capacity < 0 {
		capacity = 0
	}
	return &EventQueue{capacity: capacity}
}

// Push transfers ownership of the event to the queue. It returns false, and
// the caller still owns the event, when the queue is full.
func (q *EventQueue) Push(e *Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.capacity > 0 && len(q.events) >= q.capacity {
		return false
	}
	q.events = append(q.events, e)
	if len(q.events) > q.highWater {
		q.highWater = len(q.events)
	}
	return true
}

// Pop transfers ownership of the oldest event to the caller, or returns nil.
func (q *EventQueue) Pop() *Event {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.events) == 0 {
		return nil
	}
	e := q.events[0]
	q.events[0] = nil
	q.events = q.events[1:]
	return e
}

// Drain empties the queue and returns how many events were dropped.
func (q *EventQueue) Drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.events)
	q.events = nil
	return n
}

func (q *EventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.events)
}

func (q *EventQueue) Capacity() int {
	return q.capacity
}

// HighWater is the largest length the queue ever reached.
func (q *EventQueue) HighWater() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.highWater
}
