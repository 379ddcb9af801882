package monitor

import (
	"context"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/lk/internal/audit"
	"github.com/marcus/lk/internal/form"
	"github.com/marcus/lk/internal/models"
	"github.com/marcus/lk/internal/reconcile"
	"github.com/marcus/lk/internal/snapshot"
)

type stubBackend struct{}

func (stubBackend) Slots(context.Context) (snapshot.Snapshot, error) {
	return snapshot.Snapshot{}, nil
}
func (stubBackend) PullCodes(context.Context) error     { return nil }
func (stubBackend) PushCode(context.Context, int) error { return nil }
func (stubBackend) SetUserCode(context.Context, int, string, string, models.CodeType, bool) error {
	return nil
}
func (stubBackend) ClearUserCode(context.Context, int) error                    { return nil }
func (stubBackend) SetUserSchedule(context.Context, int, models.Schedule) error { return nil }
func (stubBackend) SetUsageLimit(context.Context, int, *int) error              { return nil }
func (stubBackend) SetUserStatus(context.Context, int, bool) error              { return nil }
func (stubBackend) ResetUsageCount(context.Context, int) error                  { return nil }

type nopPersister struct{}

func (nopPersister) SaveSlot(string, int, models.SlotRecord) error { return nil }
func (nopPersister) ClearSlot(string, int) error                   { return nil }

func newTestModel(t *testing.T, slots []reconcile.SlotSummary) *Model {
	t.Helper()
	store := form.New("lock.test", nopPersister{}, nil)
	engine := reconcile.New(stubBackend{}, store, audit.New(16))
	m := New(engine, audit.New(16), "lock.test", nil)
	m.slots = slots
	return m
}

func keyRune(r rune) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}}
}

func testSlots() []reconcile.SlotSummary {
	return []reconcile.SlotSummary{
		{Slot: 1, Name: "Alice", Code: "1111", CodeType: models.CodeTypePIN, Status: models.StatusEnabled},
		{Slot: 2, Name: "Bob", Code: "2222", CodeType: models.CodeTypePIN, Status: models.StatusEnabled},
	}
}

func TestCursorMovement(t *testing.T) {
	m := newTestModel(t, testSlots())

	m.Update(keyRune('j'))
	if m.cursor != 1 {
		t.Fatalf("expected cursor 1, got %d", m.cursor)
	}
	m.Update(keyRune('j'))
	if m.cursor != 1 {
		t.Fatalf("cursor must stop at the last slot, got %d", m.cursor)
	}
	m.Update(keyRune('k'))
	if m.cursor != 0 {
		t.Fatalf("expected cursor 0, got %d", m.cursor)
	}
}

func TestEditorLeasesFollowFocus(t *testing.T) {
	m := newTestModel(t, testSlots())
	store := m.engine.Form()

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	if m.editor == nil {
		t.Fatal("expected the editor to open")
	}
	if !store.IsExpanded(1) {
		t.Fatal("expanding the editor must mark the slot expanded")
	}
	if !store.HasLease(1, form.FieldName) {
		t.Fatal("expected the name field leased on open")
	}

	m.Update(tea.KeyMsg{Type: tea.KeyTab})
	if store.HasLease(1, form.FieldName) {
		t.Fatal("name lease must be released when focus moves")
	}
	if !store.HasLease(1, form.FieldCode) {
		t.Fatal("expected the code field leased after tab")
	}
}

func TestEscClosesEditor(t *testing.T) {
	m := newTestModel(t, testSlots())
	store := m.engine.Form()

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.editor != nil {
		t.Fatal("expected the editor closed")
	}
	if store.IsExpanded(1) {
		t.Fatal("closing the editor must collapse the slot")
	}
	if store.HasLease(1, form.FieldName) {
		t.Fatal("closing the editor must release leases")
	}
}

func TestTypedEditKeepsWriteThrough(t *testing.T) {
	m := newTestModel(t, testSlots())

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.Update(keyRune('X'))
	if got := m.engine.Form().Name(1, ""); got != "AliceX" {
		t.Fatalf("expected typed edit mirrored to the store, got %q", got)
	}
}

func TestScheduleAndLimitEditsWriteThrough(t *testing.T) {
	m := newTestModel(t, testSlots())

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	ed := m.editor
	ed.setFocus(m, fieldStart)
	in := ed.inputs[fieldStart]
	in.SetValue("2026-09-01 08:0")
	ed.inputs[fieldStart] = in

	m.Update(keyRune('0'))
	sched := m.engine.Form().Schedule(1, models.Schedule{})
	if sched.Start == nil {
		t.Fatal("expected the parsed start written through to the store")
	}
	want := time.Date(2026, 9, 1, 8, 0, 0, 0, time.Local)
	if !sched.Start.Equal(want) {
		t.Fatalf("expected start %v, got %v", want, sched.Start)
	}

	ed.setFocus(m, fieldLimit)
	m.Update(keyRune('5'))
	limit := m.engine.Form().UsageLimit(1, nil)
	if limit == nil || *limit != 5 {
		t.Fatalf("expected limit 5 written through, got %v", limit)
	}
}

func TestHalfTypedScheduleStaysLocal(t *testing.T) {
	m := newTestModel(t, testSlots())

	m.Update(tea.KeyMsg{Type: tea.KeyEnter})
	m.editor.setFocus(m, fieldStart)
	m.Update(keyRune('2'))

	sched := m.engine.Form().Schedule(1, models.Schedule{})
	if sched.Start != nil {
		t.Fatalf("unparseable start must not reach the store, got %v", sched.Start)
	}
}

func TestSaveConflictAsksForConfirmation(t *testing.T) {
	m := newTestModel(t, testSlots())

	in := reconcile.SaveInput{Slot: 1, Name: "Alice", Code: "1111"}
	m.Update(saveDoneMsg{in: in, res: reconcile.SaveResult{Slot: 1, Conflict: true}})
	if m.confirm != confirmOverwrite {
		t.Fatalf("expected overwrite confirmation, got %v", m.confirm)
	}

	m.Update(keyRune('n'))
	if m.confirm != confirmNone {
		t.Fatal("expected confirmation dismissed")
	}
}

func TestClearAsksForConfirmation(t *testing.T) {
	m := newTestModel(t, testSlots())

	m.Update(keyRune('d'))
	if m.confirm != confirmClear {
		t.Fatalf("expected clear confirmation, got %v", m.confirm)
	}
	m.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if m.confirm != confirmNone {
		t.Fatal("expected confirmation dismissed")
	}
}
