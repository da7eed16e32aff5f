package registry

import (
	"sync"
	"testing"
)

func TestRegisterFetchRemove(t *testing.T) {
	r := New()

	if got := r.RegisterEntity("e1", "TEST"); got != "e1" {
		t.Fatalf("expected e1, got %s", got)
	}

	ent, ok := r.FetchEntity("e1")
	if !ok {
		t.Fatal("expected entity to be found")
	}
	if ent.Type != "TEST" {
		t.Fatalf("unexpected type: %s", ent.Type)
	}

	if !r.RemoveEntity("e1") {
		t.Fatal("expected removal to succeed")
	}
	if r.RemoveEntity("e1") {
		t.Fatal("expected second removal to report false")
	}
	if _, ok := r.FetchEntity("e1"); ok {
		t.Fatal("expected entity to be gone after removal")
	}
}

func TestRegisterOverwriteIsLastWriterWins(t *testing.T) {
	r := New()
	r.RegisterEntity("e1", "TEST")
	r.RegisterEntity("e1", "OTHER")

	ent, ok := r.FetchEntity("e1")
	if !ok {
		t.Fatal("expected entity to be found")
	}
	if ent.Type != "OTHER" {
		t.Fatalf("expected overwrite to replace type, got %s", ent.Type)
	}
}

func TestListEntitiesByType(t *testing.T) {
	r := New()
	r.RegisterEntity("a", "CONTRACT")
	r.RegisterEntity("b", "CONTRACT")
	r.RegisterEntity("c", "IDEA")

	ids := r.ListEntitiesByType("CONTRACT")
	if len(ids) != 2 {
		t.Fatalf("expected 2 contracts, got %d: %v", len(ids), ids)
	}
}

// TestConcurrentRegisterUniqueness exercises the registry uniqueness
// property: after any sequence of register/remove operations every id maps
// to exactly one entity.
func TestConcurrentRegisterUniqueness(t *testing.T) {
	r := New()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			r.RegisterEntity("shared", "TEST")
			r.FetchEntity("shared")
		}(i)
	}
	wg.Wait()

	ent, ok := r.FetchEntity("shared")
	if !ok {
		t.Fatal("expected entity to exist after concurrent registration")
	}
	if ent.LogicalID != "shared" {
		t.Fatalf("unexpected logical id: %s", ent.LogicalID)
	}
	if ids := r.ListEntitiesByType("TEST"); len(ids) != 1 {
		t.Fatalf("expected exactly one entity of type TEST, got %d", len(ids))
	}
}
