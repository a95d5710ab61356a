package telemetry

import (
	"sort"
	"sync"

	eventbuilder "github.com/next-exp/eventbuilder_go/pkg"
)

// EventBuffer holds completed but unreleased events ordered by timestamp.
// Events with equal timestamps keep their arrival order.
type EventBuffer struct {
	mu       sync.Mutex
	events   []*eventbuilder.Event
	capacity int
}

// NewEventBuffer creates a buffer whose lookahead bound is capacity events.
// 0 means no bound.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{capacity: capacity}
}

func (b *EventBuffer) Push(e *eventbuilder.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := sort.Search(len(b.events), func(i int) bool {
		return b.events[i].Timestamp > e.Timestamp
	})
	b.events = append(b.events, nil)
	copy(b.events[i+1:], b.events[i:])
	b.events[i] = e
}

// Oldest returns the earliest event without removing it.
func (b *EventBuffer) Oldest() *eventbuilder.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	return b.events[0]
}

func (b *EventBuffer) PopOldest() *eventbuilder.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.events) == 0 {
		return nil
	}
	e := b.events[0]
	b.events[0] = nil
	b.events = b.events[1:]
	return e
}

func (b *EventBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.events)
}

// Overflowing reports whether the buffer holds more events than its bound.
func (b *EventBuffer) Overflowing() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.capacity > 0 && len(b.events) > b.capacity
}

// PointingBuffer holds pointing snapshots ordered by timestamp.
type PointingBuffer struct {
	mu        sync.Mutex
	snapshots []*eventbuilder.Pointing
}

func NewPointingBuffer() *PointingBuffer {
	return &PointingBuffer{}
}

func (b *PointingBuffer) Push(p *eventbuilder.Pointing) {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := sort.Search(len(b.snapshots), func(i int) bool {
		return b.snapshots[i].Timestamp > p.Timestamp
	})
	b.snapshots = append(b.snapshots, nil)
	copy(b.snapshots[i+1:], b.snapshots[i:])
	b.snapshots[i] = p
}

// Covers reports whether a snapshot at or after timestamp exists.
func (b *PointingBuffer) Covers(timestamp uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := len(b.snapshots)
	return n > 0 && b.snapshots[n-1].Timestamp >= timestamp
}

// Match returns a copy of the snapshot closest to timestamp among the two that
// bracket it. The earlier one wins ties.
func (b *PointingBuffer) Match(timestamp uint64) (*eventbuilder.Pointing, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.snapshots) == 0 {
		return nil, false
	}
	after := sort.Search(len(b.snapshots), func(i int) bool {
		return b.snapshots[i].Timestamp >= timestamp
	})

	var best *eventbuilder.Pointing
	switch {
	case after == 0:
		best = b.snapshots[0]
	case after == len(b.snapshots):
		best = b.snapshots[after-1]
	default:
		before := b.snapshots[after-1]
		next := b.snapshots[after]
		if timestamp-before.Timestamp <= next.Timestamp-timestamp {
			best = before
		} else {
			best = next
		}
	}
	match := *best
	return &match, true
}

// Prune drops snapshots that can no longer bracket an event at or after
// timestamp.
func (b *PointingBuffer) Prune(timestamp uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	after := sort.Search(len(b.snapshots), func(i int) bool {
		return b.snapshots[i].Timestamp >= timestamp
	})
	drop := after - 1
	if drop <= 0 {
		return
	}
	for i := 0; i < drop; i++ {
		b.snapshots[i] = nil
	}
	b.snapshots = b.snapshots[drop:]
}

func (b *PointingBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.snapshots)
}
