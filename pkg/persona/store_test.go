package persona

import (
	"errors"
	"testing"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory()
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveAssignsIDAndTimestamps(t *testing.T) {
	s := newTestStore(t)

	d := &Descriptor{Name: "Ada"}
	if err := s.Save(d); err != nil {
		t.Fatalf("save: %v", err)
	}
	if d.ID == "" {
		t.Fatal("save did not assign an ID")
	}
	if d.CreatedAt.IsZero() || d.UpdatedAt.IsZero() {
		t.Fatalf("timestamps not stamped: %v / %v", d.CreatedAt, d.UpdatedAt)
	}

	created := d.CreatedAt
	d.VoiceStyle = "slow and warm"
	if err := s.Save(d); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if !d.CreatedAt.Equal(created) {
		t.Fatalf("created at moved: %v -> %v", created, d.CreatedAt)
	}
	if d.UpdatedAt.Before(created) {
		t.Fatalf("updated %v is before created %v", d.UpdatedAt, created)
	}
}

func TestStore_SaveRejectsInvalid(t *testing.T) {
	s := newTestStore(t)

	if err := s.Save(&Descriptor{}); !errors.Is(err, ErrInvalid) {
		t.Fatalf("save = %v, want ErrInvalid", err)
	}
	all, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("invalid descriptor leaked into the store: %d entries", len(all))
	}
}

func TestStore_GetRoundTrip(t *testing.T) {
	s := newTestStore(t)

	d := &Descriptor{
		Name:     "Moira",
		Traits:   []string{"sarcastic"},
		Memories: []string{"the van"},
	}
	if err := s.Save(d); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Get(d.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Moira" || len(got.Traits) != 1 || got.Traits[0] != "sarcastic" {
		t.Fatalf("got %+v", got)
	}
	if len(got.Memories) != 1 || got.Memories[0] != "the van" {
		t.Fatalf("memories = %v", got.Memories)
	}
}

func TestStore_GetMissing(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("no-such-id")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("get = %v, want ErrNotFound", err)
	}
}

func TestStore_ListSortsByName(t *testing.T) {
	s := newTestStore(t)

	for _, name := range []string{"zelda", "Ada", "moira"} {
		if err := s.Save(&Descriptor{Name: name}); err != nil {
			t.Fatalf("save %s: %v", name, err)
		}
	}

	all, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("got %d entries, want 3", len(all))
	}
	want := []string{"Ada", "moira", "zelda"}
	for i, d := range all {
		if d.Name != want[i] {
			t.Fatalf("list[%d] = %q, want %q", i, d.Name, want[i])
		}
	}
}

func TestStore_Delete(t *testing.T) {
	s := newTestStore(t)

	d := &Descriptor{Name: "Ada"}
	if err := s.Save(d); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Delete(d.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Get(d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("get after delete = %v, want ErrNotFound", err)
	}
	if err := s.Delete(d.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete = %v, want ErrNotFound", err)
	}
}

func TestStore_Resolve(t *testing.T) {
	s := newTestStore(t)

	d := &Descriptor{Name: "Ada"}
	if err := s.Save(d); err != nil {
		t.Fatalf("save: %v", err)
	}

	byID, err := s.Resolve(d.ID)
	if err != nil {
		t.Fatalf("resolve by id: %v", err)
	}
	if byID.ID != d.ID {
		t.Fatalf("resolved %q, want %q", byID.ID, d.ID)
	}

	byName, err := s.Resolve("aDa")
	if err != nil {
		t.Fatalf("resolve by name: %v", err)
	}
	if byName.ID != d.ID {
		t.Fatalf("resolved %q, want %q", byName.ID, d.ID)
	}

	if _, err := s.Resolve("nobody"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("resolve missing = %v, want ErrNotFound", err)
	}
}

func TestStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(dir)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	d := &Descriptor{Name: "Ada", VoiceStyle: "slow"}
	if err := s.Save(d); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s, err = Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s.Close()
	got, err := s.Get(d.ID)
	if err != nil {
		t.Fatalf("get after reopen: %v", err)
	}
	if got.Name != "Ada" || got.VoiceStyle != "slow" {
		t.Fatalf("got %+v", got)
	}
}
