package timeline

import (
	"sync"
	"testing"

	"github.com/logline-motor/motor/internal/domain"
)

func TestAppendAssignsMonotonicIDs(t *testing.T) {
	tl := New()
	e1 := tl.Append(domain.IdeaRegisteredEvent("a"))
	e2 := tl.Append(domain.IdeaRegisteredEvent("b"))

	if e2.ID <= e1.ID {
		t.Fatalf("expected e2.ID (%d) > e1.ID (%d)", e2.ID, e1.ID)
	}
}

func TestFindEventsByKind(t *testing.T) {
	tl := New()
	tl.Append(domain.IdeaRegisteredEvent("a"))
	tl.Append(domain.ContractRegisteredEvent("c1"))
	tl.Append(domain.IdeaRegisteredEvent("b"))

	ideas := tl.FindEventsByKind(domain.EventIdeaRegistered)
	if len(ideas) != 2 {
		t.Fatalf("expected 2 IdeaRegistered events, got %d", len(ideas))
	}
}

func TestClearTimeline(t *testing.T) {
	tl := New()
	tl.Append(domain.IdeaRegisteredEvent("a"))
	tl.ClearTimeline()
	if tl.Len() != 0 {
		t.Fatalf("expected empty timeline after clear, got %d events", tl.Len())
	}
}

// TestConcurrentAppendIsLinearAndMonotonic exercises the timeline
// monotonicity property: under concurrent appends, ListEvents is a linear
// extension and every event id is unique and strictly increasing in append
// order.
func TestConcurrentAppendIsLinearAndMonotonic(t *testing.T) {
	tl := New()
	const n = 200

	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tl.Append(domain.IdeaRegisteredEvent("x"))
		}()
	}
	wg.Wait()

	events := tl.ListEvents()
	if len(events) != n {
		t.Fatalf("expected %d events, got %d", n, len(events))
	}
	for i := 1; i < len(events); i++ {
		if events[i].ID <= events[i-1].ID {
			t.Fatalf("events not strictly increasing at index %d: %d <= %d", i, events[i].ID, events[i-1].ID)
		}
	}
}
