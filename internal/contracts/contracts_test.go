package contracts

import "testing"

func TestCreate_DuplicateIDFails(t *testing.T) {
	s := New()
	if _, err := s.Create("c1", []string{"clause-a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := s.Create("c1", []string{"clause-b"}); err != ErrExists {
		t.Fatalf("expected ErrExists, got %v", err)
	}
}

func TestGet_NotFound(t *testing.T) {
	s := New()
	if _, err := s.Get("missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdate_RefreshesUpdatedAt(t *testing.T) {
	s := New()
	created, err := s.Create("c1", []string{"clause-a"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	updated, err := s.Update("c1", []string{"clause-a", "clause-b"})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.UpdatedAt.Before(created.UpdatedAt) {
		t.Fatalf("expected UpdatedAt to advance: created=%v updated=%v", created.UpdatedAt, updated.UpdatedAt)
	}
	if len(updated.Clauses) != 2 {
		t.Fatalf("expected 2 clauses after update, got %d", len(updated.Clauses))
	}
	if created.CreatedAt != updated.CreatedAt {
		t.Fatalf("expected CreatedAt to remain fixed across updates")
	}
}

func TestUpdate_NotFound(t *testing.T) {
	s := New()
	if _, err := s.Update("missing", []string{"x"}); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	s := New()
	if _, err := s.Create("c1", []string{"clause-a"}); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Remove("c1"); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if err := s.Remove("c1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound on double remove, got %v", err)
	}
}

func TestList(t *testing.T) {
	s := New()
	s.Create("c1", []string{"a"})
	s.Create("c2", []string{"b"})

	ids := s.List()
	if len(ids) != 2 {
		t.Fatalf("expected 2 ids, got %d", len(ids))
	}
}

func TestContent_JoinsClausesWithCommaSpace(t *testing.T) {
	c, err := New().Create("c1", []string{"alpha", "beta", "gamma"})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got, want := Content(c), "alpha, beta, gamma"; got != want {
		t.Fatalf("Content() = %q, want %q", got, want)
	}
}
