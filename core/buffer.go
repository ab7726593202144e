package core

import (
	"sync"
	"time"
)

// EventBuffer is a bounded FIFO of retained security events. The oldest
// entries are dropped silently on overflow: this is observability data,
// not a durable log. All methods are safe for concurrent use.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []*SecurityEvent
	capacity int
}

// NewEventBuffer creates a buffer holding at most capacity events.
func NewEventBuffer(capacity int) *EventBuffer {
	if capacity <= 0 {
		capacity = DefaultBufferCapacity
	}
	return &EventBuffer{
		events:   make([]*SecurityEvent, 0, capacity),
		capacity: capacity,
	}
}

// Append retains an event, evicting the oldest entry when full.
func (eb *EventBuffer) Append(e *SecurityEvent) {
	eb.mu.Lock()
	defer eb.mu.Unlock()

	eb.events = append(eb.events, e)
	if len(eb.events) > eb.capacity {
		eb.events = eb.events[1:]
	}
}

// Len returns the number of retained events.
func (eb *EventBuffer) Len() int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	return len(eb.events)
}

// Capacity returns the configured bound.
func (eb *EventBuffer) Capacity() int {
	return eb.capacity
}

// Snapshot returns a copy of the retained events in insertion order.
func (eb *EventBuffer) Snapshot() []*SecurityEvent {
	eb.mu.RLock()
	defer eb.mu.RUnlock()
	out := make([]*SecurityEvent, len(eb.events))
	copy(out, eb.events)
	return out
}

// ForActor returns up to limit events for the actor, most recent first.
func (eb *EventBuffer) ForActor(actorID string, limit int) []*SecurityEvent {
	return eb.filter(limit, func(e *SecurityEvent) bool {
		return e.ActorID == actorID
	})
}

// ByType returns up to limit events of the given type, most recent first.
func (eb *EventBuffer) ByType(eventType EventType, limit int) []*SecurityEvent {
	return eb.filter(limit, func(e *SecurityEvent) bool {
		return e.Type == eventType
	})
}

// ByMinSeverity returns up to limit events at or above the given severity,
// most recent first.
func (eb *EventBuffer) ByMinSeverity(min Severity, limit int) []*SecurityEvent {
	return eb.filter(limit, func(e *SecurityEvent) bool {
		return e.Severity.AtLeast(min)
	})
}

// CountRecent counts retained events of the given type for the actor whose
// timestamps fall within window of now. The scan is bounded by the buffer
// capacity.
func (eb *EventBuffer) CountRecent(actorID string, eventType EventType, window time.Duration, now time.Time) int {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	cutoff := now.Add(-window)
	count := 0
	for i := len(eb.events) - 1; i >= 0; i-- {
		e := eb.events[i]
		if e.Timestamp.Before(cutoff) {
			continue
		}
		if e.ActorID == actorID && e.Type == eventType {
			count++
		}
	}
	return count
}

// filter scans newest-to-oldest collecting up to limit matches.
func (eb *EventBuffer) filter(limit int, match func(*SecurityEvent) bool) []*SecurityEvent {
	eb.mu.RLock()
	defer eb.mu.RUnlock()

	if limit <= 0 {
		limit = eb.capacity
	}
	out := make([]*SecurityEvent, 0, limit)
	for i := len(eb.events) - 1; i >= 0 && len(out) < limit; i-- {
		if match(eb.events[i]) {
			out = append(out, eb.events[i])
		}
	}
	return out
}
