package entity

import (
	"testing"

	"github.com/google/uuid"

	"github.com/loredeck/vkernel/errors"
	"github.com/loredeck/vkernel/kernel"
	"github.com/loredeck/vkernel/storage"
)

func bootStore(t *testing.T) *Store {
	t.Helper()
	k, err := kernel.NewWithStore(kernel.Config{Mode: kernel.ModeDebug}, storage.NewMemory())
	if err != nil {
		t.Fatalf("boot: %v", err)
	}
	t.Cleanup(func() { _ = k.Shutdown() })
	return NewStore(k, "")
}

func TestCreateGetRoundTrip(t *testing.T) {
	s := bootStore(t)

	rec, err := s.Create(Record{
		Kind:  "character",
		Name:  "Brynja",
		Attrs: map[string]any{"level": float64(3)},
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if rec.ID == uuid.Nil {
		t.Fatal("id not assigned")
	}
	if rec.CreatedAt.IsZero() || !rec.UpdatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("timestamps: %+v", rec)
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Brynja" || got.Kind != "character" {
		t.Fatalf("round trip: %+v", got)
	}
	if got.Attrs["level"] != float64(3) {
		t.Fatalf("attrs: %v", got.Attrs)
	}
}

func TestCreateDuplicateID(t *testing.T) {
	s := bootStore(t)

	id := uuid.New()
	if _, err := s.Create(Record{ID: id, Name: "first"}); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.Create(Record{ID: id, Name: "second"})
	if errors.CodeOf(err) != errors.AlreadyExists {
		t.Fatalf("duplicate create: got %v, want already_exists", err)
	}
}

func TestGetMissing(t *testing.T) {
	s := bootStore(t)
	if _, err := s.Get(uuid.New()); errors.CodeOf(err) != errors.EntityNotFound {
		t.Fatalf("get missing: got %v, want entity_not_found", err)
	}
}

func TestUpdateProtectsIdentity(t *testing.T) {
	s := bootStore(t)

	rec, err := s.Create(Record{Name: "before"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, err := s.Update(rec.ID, func(r *Record) error {
		r.Name = "after"
		r.ID = uuid.New()
		r.CreatedAt = r.CreatedAt.AddDate(-1, 0, 0)
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Name != "after" {
		t.Fatalf("mutation lost: %+v", updated)
	}
	if updated.ID != rec.ID || !updated.CreatedAt.Equal(rec.CreatedAt) {
		t.Fatalf("identity fields mutated: %+v", updated)
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) && !updated.UpdatedAt.Equal(updated.CreatedAt) {
		t.Fatalf("updated_at not stamped: %+v", updated)
	}

	got, err := s.Get(rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "after" {
		t.Fatalf("update not persisted: %+v", got)
	}
}

func TestUpdateMissing(t *testing.T) {
	s := bootStore(t)
	_, err := s.Update(uuid.New(), func(*Record) error { return nil })
	if errors.CodeOf(err) != errors.EntityNotFound {
		t.Fatalf("update missing: got %v, want entity_not_found", err)
	}
}

func TestRemove(t *testing.T) {
	s := bootStore(t)

	rec, err := s.Create(Record{Name: "doomed"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.Remove(rec.ID); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := s.Get(rec.ID); errors.CodeOf(err) != errors.EntityNotFound {
		t.Fatalf("get after remove: got %v, want entity_not_found", err)
	}
	if err := s.Remove(rec.ID); errors.CodeOf(err) != errors.EntityNotFound {
		t.Fatalf("second remove: got %v, want entity_not_found", err)
	}
}

func TestList(t *testing.T) {
	s := bootStore(t)

	want := make(map[uuid.UUID]bool)
	for i := 0; i < 3; i++ {
		rec, err := s.Create(Record{Name: "entry"})
		if err != nil {
			t.Fatalf("create %d: %v", i, err)
		}
		want[rec.ID] = true
	}

	ids, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("list: got %d ids, want 3", len(ids))
	}
	for _, id := range ids {
		if !want[id] {
			t.Fatalf("unexpected id %s", id)
		}
	}
}
