// Package timeline implements the append-only event log: a single mutex
// guarding a slice, since its operations are short and low-contention.
package timeline

import (
	"sync"
	"time"

	"github.com/logline-motor/motor/internal/domain"
)

// Timeline is the append-only ordered history of events. The zero value
// is not usable; construct with New.
type Timeline struct {
	mu     sync.Mutex
	events []domain.Event
	nextID uint64
}

// New returns an empty Timeline.
func New() *Timeline {
	return &Timeline{nextID: 1}
}

// Append assigns the next monotonic sequence number to event, sets its
// timestamp if unset, stores it, and returns the stamped copy. Append is
// totally ordered across the process: concurrent callers are serialized by
// the internal mutex.
func (t *Timeline) Append(event domain.Event) domain.Event {
	t.mu.Lock()
	defer t.mu.Unlock()

	event.ID = t.nextID
	t.nextID++
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	t.events = append(t.events, event)
	return event
}

// ListEvents returns every event appended so far, in append order. The
// returned slice is a copy safe for the caller to retain.
func (t *Timeline) ListEvents() []domain.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]domain.Event, len(t.events))
	copy(out, t.events)
	return out
}

// FindEventsByKind returns every event whose Kind equals kind, matched
// case-sensitively, in append order.
func (t *Timeline) FindEventsByKind(kind domain.EventKind) []domain.Event {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []domain.Event
	for _, e := range t.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// ClearTimeline removes every event and resets the id counter. Test-only.
func (t *Timeline) ClearTimeline() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.events = nil
	t.nextID = 1
}

// Len reports the number of events currently on the timeline.
func (t *Timeline) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.events)
}
