package form

import (
	"errors"
	"testing"

	"github.com/marcus/lk/internal/models"
)

// fakePersister records write-through calls and can simulate failures.
type fakePersister struct {
	saved   map[int]models.SlotRecord
	cleared []int
	fail    bool
}

func newFakePersister() *fakePersister {
	return &fakePersister{saved: make(map[int]models.SlotRecord)}
}

func (p *fakePersister) SaveSlot(entityID string, slot int, rec models.SlotRecord) error {
	if p.fail {
		return errors.New("disk full")
	}
	p.saved[slot] = rec.Clone()
	return nil
}

func (p *fakePersister) ClearSlot(entityID string, slot int) error {
	if p.fail {
		return errors.New("disk full")
	}
	delete(p.saved, slot)
	p.cleared = append(p.cleared, slot)
	return nil
}

func TestGetFallsBackWhenUnset(t *testing.T) {
	s := New("lock.a", newFakePersister(), nil)

	if got := s.Name(1, "remote name"); got != "remote name" {
		t.Fatalf("expected fallback, got %q", got)
	}

	s.SetName(1, "Alice")
	if got := s.Name(1, "remote name"); got != "Alice" {
		t.Fatalf("cached value should win, got %q", got)
	}
	// Other fields of the same record still fall back individually.
	if got := s.Code(1, "0000"); got != "0000" {
		t.Fatalf("unset field should use fallback, got %q", got)
	}
}

func TestSetWritesThrough(t *testing.T) {
	p := newFakePersister()
	s := New("lock.a", p, nil)

	s.SetCode(5, "4321")
	rec, ok := p.saved[5]
	if !ok {
		t.Fatal("write-through did not reach persister")
	}
	if rec.Code == nil || *rec.Code != "4321" {
		t.Fatalf("persisted record mismatch: %+v", rec)
	}
}

func TestWriteThroughFailureIsNonFatal(t *testing.T) {
	p := newFakePersister()
	p.fail = true
	s := New("lock.a", p, nil)

	s.SetName(1, "Alice")
	if got := s.Name(1, ""); got != "Alice" {
		t.Fatal("in-memory value lost after persist failure")
	}
}

func TestSyncFromRemoteCachedWins(t *testing.T) {
	s := New("lock.a", newFakePersister(), nil)
	s.SetName(1, "Edited")

	view := models.SlotView{Name: "Remote", Code: "1111"}
	s.SyncFromRemote(1, false, view)
	if got := s.Name(1, ""); got != "Edited" {
		t.Fatalf("non-forced sync overwrote cached record: %q", got)
	}

	s.SyncFromRemote(1, true, view)
	if got := s.Name(1, ""); got != "Remote" {
		t.Fatalf("forced sync should seed from remote: %q", got)
	}
	if got := s.Code(1, ""); got != "1111" {
		t.Fatalf("forced sync missing code: %q", got)
	}
}

func TestMergeConfirmedRespectsLeases(t *testing.T) {
	s := New("lock.a", newFakePersister(), nil)
	s.Expand(3)
	s.Lease(3, FieldCode)

	view := models.SlotView{Name: "Remote", Code: "9999", LockStatus: models.StatusEnabled}
	s.MergeConfirmed(3, view)

	// Code has a lease and no cached value: must stay absent, not remote.
	rec, _ := s.Record(3)
	if rec.Code != nil {
		t.Fatalf("leased field filled from remote: %q", *rec.Code)
	}
	// Name had no lease and no cached value: falls back to remote.
	if rec.Name == nil || *rec.Name != "Remote" {
		t.Fatalf("unleased absent field should fill from remote: %+v", rec)
	}
}

func TestMergeConfirmedCachedPreferred(t *testing.T) {
	s := New("lock.a", newFakePersister(), nil)
	s.SetName(2, "Local Edit")

	s.MergeConfirmed(2, models.SlotView{Name: "Remote", Code: "5555"})

	if got := s.Name(2, ""); got != "Local Edit" {
		t.Fatalf("cached name clobbered by merge: %q", got)
	}
	if got := s.Code(2, ""); got != "5555" {
		t.Fatalf("absent code should fall back to remote: %q", got)
	}
}

func TestPruneSkipsExpanded(t *testing.T) {
	p := newFakePersister()
	s := New("lock.a", p, map[int]models.SlotRecord{
		1: {},
		2: {},
		3: {},
	})
	s.SetName(1, "One")
	s.SetName(2, "Two")
	s.SetName(3, "Three")
	s.Expand(2)

	// Hub only reports slot 1 now.
	s.Prune(map[int]bool{1: true})

	if _, ok := s.Record(1); !ok {
		t.Fatal("reported slot pruned")
	}
	if _, ok := s.Record(2); !ok {
		t.Fatal("expanded slot pruned while under edit")
	}
	if _, ok := s.Record(3); ok {
		t.Fatal("unreported slot survived prune")
	}
}

func TestCollapseReleasesLeases(t *testing.T) {
	s := New("lock.a", newFakePersister(), nil)
	s.Expand(4)
	s.Lease(4, FieldName)

	s.Collapse(4)
	if s.HasLease(4, FieldName) {
		t.Fatal("lease survived collapse")
	}
	if s.IsExpanded(4) {
		t.Fatal("slot still expanded after collapse")
	}
}

func TestClearRemovesRecord(t *testing.T) {
	p := newFakePersister()
	s := New("lock.a", p, nil)
	s.SetName(6, "Gone")

	s.Clear(6)
	if _, ok := s.Record(6); ok {
		t.Fatal("record survived clear")
	}
	if len(p.cleared) != 1 || p.cleared[0] != 6 {
		t.Fatalf("durable clear not propagated: %v", p.cleared)
	}
}
