package reconcile

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marcus/lk/internal/audit"
	"github.com/marcus/lk/internal/form"
	"github.com/marcus/lk/internal/hub"
	"github.com/marcus/lk/internal/models"
	"github.com/marcus/lk/internal/snapshot"
)

type memPersister struct{}

func (memPersister) SaveSlot(string, int, models.SlotRecord) error { return nil }
func (memPersister) ClearSlot(string, int) error                   { return nil }

// fakeBackend serves a queue of snapshots; the last one repeats once the
// queue drains.
type fakeBackend struct {
	mu    sync.Mutex
	snaps []snapshot.Snapshot

	slotsErr   error
	pullErr    error
	pushErr    error
	setCodeErr error // returned for non-override SetUserCode calls

	slotsCalls int
	pushed     []int
	cleared    []int
	scheduled  []int
	overrides  []bool
}

func (b *fakeBackend) Slots(context.Context) (snapshot.Snapshot, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.slotsCalls++
	if b.slotsErr != nil {
		return nil, b.slotsErr
	}
	if len(b.snaps) == 0 {
		return snapshot.Snapshot{}, nil
	}
	s := b.snaps[0]
	if len(b.snaps) > 1 {
		b.snaps = b.snaps[1:]
	}
	return s, nil
}

func (b *fakeBackend) PullCodes(context.Context) error { return b.pullErr }

func (b *fakeBackend) PushCode(_ context.Context, slot int) error {
	if b.pushErr != nil {
		return b.pushErr
	}
	b.mu.Lock()
	b.pushed = append(b.pushed, slot)
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) SetUserCode(_ context.Context, slot int, code, name string, ct models.CodeType, override bool) error {
	b.mu.Lock()
	b.overrides = append(b.overrides, override)
	b.mu.Unlock()
	if !override && b.setCodeErr != nil {
		return b.setCodeErr
	}
	return nil
}

func (b *fakeBackend) ClearUserCode(_ context.Context, slot int) error {
	b.mu.Lock()
	b.cleared = append(b.cleared, slot)
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) SetUserSchedule(_ context.Context, slot int, _ models.Schedule) error {
	b.mu.Lock()
	b.scheduled = append(b.scheduled, slot)
	b.mu.Unlock()
	return nil
}

func (b *fakeBackend) SetUsageLimit(context.Context, int, *int) error { return nil }
func (b *fakeBackend) SetUserStatus(context.Context, int, bool) error { return nil }
func (b *fakeBackend) ResetUsageCount(context.Context, int) error     { return nil }

func newTestEngine(t *testing.T, backend *fakeBackend, initial map[int]models.SlotRecord) *Engine {
	t.Helper()
	store := form.New("lock.front_door", memPersister{}, initial)
	e := New(backend, store, audit.New(32))
	e.sleep = noSleep
	e.refreshAttempts = 3
	e.overrideAttempts = 3
	return e
}

func TestSaveRejectsShortPIN(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend, nil)

	_, err := e.Save(context.Background(), SaveInput{Slot: 1, Name: "Alice", Code: "12"})
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if verr.Field != form.FieldCode {
		t.Fatalf("expected code field rejection, got %s", verr.Field)
	}
	if len(backend.overrides) != 0 {
		t.Fatal("backend must not be called for invalid input")
	}
}

func TestSaveValidation(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend, nil)
	cases := []struct {
		name string
		in   SaveInput
	}{
		{"missing name", SaveInput{Slot: 1, Code: "1234"}},
		{"slot out of range", SaveInput{Slot: 21, Name: "A", Code: "1234"}},
		{"non-digit pin", SaveInput{Slot: 1, Name: "A", Code: "12ab"}},
		{"pin too long", SaveInput{Slot: 1, Name: "A", Code: "12345678901"}},
		{"unknown code type", SaveInput{Slot: 1, Name: "A", Code: "1234", CodeType: "card"}},
		{"negative usage limit", SaveInput{Slot: 1, Name: "A", Code: "1234", UsageLimit: intptr(-1)}},
		{"schedule end before start", SaveInput{Slot: 1, Name: "A", Code: "1234", Schedule: &models.Schedule{
			Start: timeptr(time.Now().Add(2 * time.Hour)), End: timeptr(time.Now().Add(time.Hour)),
		}}},
		{"past schedule start", SaveInput{Slot: 1, Name: "A", Code: "1234", Schedule: &models.Schedule{
			Start: timeptr(time.Now().Add(-24 * time.Hour)), End: timeptr(time.Now().Add(24 * time.Hour)),
		}}},
		{"past schedule end", SaveInput{Slot: 1, Name: "A", Code: "1234", Schedule: &models.Schedule{
			End: timeptr(time.Now().Add(-time.Hour)),
		}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var verr *ValidationError
			if _, err := e.Save(context.Background(), tc.in); !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
		})
	}
	if len(backend.overrides) != 0 {
		t.Fatal("backend must not be called for invalid input")
	}
}

func TestSetScheduleRejectsPastStart(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend, nil)

	sched := models.Schedule{
		Start: timeptr(time.Now().Add(-time.Hour)),
		End:   timeptr(time.Now().Add(time.Hour)),
	}
	var verr *ValidationError
	if err := e.SetSchedule(context.Background(), 1, sched); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(backend.scheduled) != 0 {
		t.Fatal("backend must not be called for a past-dated schedule")
	}
}

func TestSaveCommitsSubmittedValues(t *testing.T) {
	enabled := models.StatusEnabled
	backend := &fakeBackend{snaps: []snapshot.Snapshot{{
		// Hub still reports stale values; the committed record must equal
		// what was submitted, not the echo.
		2: {Name: "Stale", Code: "0000", LockCode: "0000", LockStatusFromLock: &enabled},
	}}}
	e := newTestEngine(t, backend, nil)

	res, err := e.Save(context.Background(), SaveInput{
		Slot: 2, Name: "Alice", Code: "1234", Enabled: true,
	})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if res.Conflict {
		t.Fatal("unexpected conflict")
	}
	if res.State != models.NeedsPush {
		t.Fatalf("expected NeedsPush against stale lock code, got %v", res.State)
	}

	rec, ok := e.Form().Record(2)
	if !ok {
		t.Fatal("expected a committed record")
	}
	if *rec.Name != "Alice" || *rec.Code != "1234" || *rec.Status != models.StatusEnabled {
		t.Fatalf("record does not match submitted values: %+v", rec)
	}
}

func TestSaveConflictWritesNothing(t *testing.T) {
	backend := &fakeBackend{setCodeErr: hub.ErrSlotOccupied}
	e := newTestEngine(t, backend, nil)

	res, err := e.Save(context.Background(), SaveInput{Slot: 3, Name: "Bob", Code: "5678"})
	if err != nil {
		t.Fatalf("Save failed: %v", err)
	}
	if !res.Conflict {
		t.Fatal("expected a conflict result")
	}
	if _, ok := e.Form().Record(3); ok {
		t.Fatal("conflicted save must not commit a record")
	}
}

func TestSaveWithOverrideConfirms(t *testing.T) {
	enabled := models.StatusEnabled
	stale := snapshot.Snapshot{3: {Name: "Old", Code: "0000"}}
	confirmed := snapshot.Snapshot{3: {
		Name: "Bob", Code: "5678", LockCode: "5678", LockStatusFromLock: &enabled,
	}}
	backend := &fakeBackend{setCodeErr: hub.ErrSlotOccupied, snaps: []snapshot.Snapshot{stale, confirmed}}
	e := newTestEngine(t, backend, nil)

	res, err := e.SaveWithOverride(context.Background(), SaveInput{
		Slot: 3, Name: "Bob", Code: "5678", Enabled: true,
	})
	if err != nil {
		t.Fatalf("SaveWithOverride failed: %v", err)
	}
	if res.State != models.Synced {
		t.Fatalf("expected Synced after confirmed override, got %v", res.State)
	}
	if len(backend.overrides) != 1 || !backend.overrides[0] {
		t.Fatalf("expected one override call, got %v", backend.overrides)
	}
	rec, _ := e.Form().Record(3)
	if rec.Name == nil || *rec.Name != "Bob" {
		t.Fatalf("expected committed record for Bob, got %+v", rec)
	}
}

func TestSaveWithOverrideTimeoutAssumesSuccess(t *testing.T) {
	// The hub never echoes the new values; the write is still committed.
	backend := &fakeBackend{snaps: []snapshot.Snapshot{{3: {Name: "Old", Code: "0000"}}}}
	e := newTestEngine(t, backend, nil)

	res, err := e.SaveWithOverride(context.Background(), SaveInput{
		Slot: 3, Name: "Bob", Code: "5678", Enabled: true,
	})
	if err != nil {
		t.Fatalf("SaveWithOverride failed: %v", err)
	}
	rec, ok := e.Form().Record(3)
	if !ok || *rec.Code != "5678" {
		t.Fatalf("expected committed record despite timeout, got %+v", rec)
	}
	if res.State == models.Synced {
		t.Fatal("unconfirmed override must not report Synced")
	}
}

func TestRefreshConfirmsOnFirstChangedPoll(t *testing.T) {
	backend := &fakeBackend{snaps: []snapshot.Snapshot{
		{}, // baseline: empty lock
		{3: {Name: "Carol", Code: "4321", LockCode: "4321"}},
	}}
	e := newTestEngine(t, backend, nil)

	res, err := e.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if !res.Confirmed {
		t.Fatal("expected a confirmed refresh")
	}
	if res.Polls != 1 {
		t.Fatalf("expected confirmation on the first poll, got %d", res.Polls)
	}
	if len(res.Details) != 1 || !strings.Contains(res.Details[0], "new user") {
		t.Fatalf("expected a new-user detail, got %v", res.Details)
	}
	rec, ok := e.Form().Record(3)
	if !ok || *rec.Name != "Carol" {
		t.Fatalf("expected record seeded from the lock, got %+v", rec)
	}
}

func TestRefreshTimeoutTrustsPull(t *testing.T) {
	snap := snapshot.Snapshot{1: {Name: "Alice", Code: "1111", LockCode: "1111"}}
	backend := &fakeBackend{snaps: []snapshot.Snapshot{snap}}
	e := newTestEngine(t, backend, nil)

	res, err := e.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if res.Confirmed {
		t.Fatal("identical snapshots must not confirm")
	}
	if res.Polls != e.refreshAttempts {
		t.Fatalf("expected the full poll budget, got %d", res.Polls)
	}
	// The unchanged snapshot is still applied: the pull is assumed good.
	if _, ok := e.Form().Record(1); !ok {
		t.Fatal("expected the snapshot applied after timeout")
	}
}

func TestRefreshPreservesExpandedEdits(t *testing.T) {
	baseline := snapshot.Snapshot{
		1: {Name: "Alice", Code: "1111"},
		2: {Name: "Remote", Code: "2222"},
	}
	changed := snapshot.Snapshot{
		1: {Name: "Alicia", Code: "1111"},
		2: {Name: "Remote", Code: "2222"},
	}
	backend := &fakeBackend{snaps: []snapshot.Snapshot{baseline, changed}}

	e := newTestEngine(t, backend, map[int]models.SlotRecord{
		2: {Name: strptr("Draft")},
	})
	e.Form().Expand(2)

	if _, err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	rec, _ := e.Form().Record(2)
	if *rec.Name != "Draft" {
		t.Fatalf("in-flight edit clobbered: name %q", *rec.Name)
	}
	if rec.Code == nil || *rec.Code != "2222" {
		t.Fatalf("expected absent field filled from lock, got %+v", rec.Code)
	}

	rec, _ = e.Form().Record(1)
	if *rec.Name != "Alicia" {
		t.Fatalf("non-expanded slot must follow the lock, got %q", *rec.Name)
	}
}

func TestRefreshPrunesUnreportedSlots(t *testing.T) {
	backend := &fakeBackend{snaps: []snapshot.Snapshot{
		{},
		{1: {Name: "Alice", Code: "1111"}},
	}}
	e := newTestEngine(t, backend, map[int]models.SlotRecord{
		7: {Name: strptr("Ghost")},
		9: {Name: strptr("Editing")},
	})
	e.Form().Expand(9)

	if _, err := e.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if _, ok := e.Form().Record(7); ok {
		t.Fatal("unreported slot should have been pruned")
	}
	if _, ok := e.Form().Record(9); !ok {
		t.Fatal("expanded slot must survive pruning")
	}
}

func TestRefreshPullFailureLeavesRecords(t *testing.T) {
	backend := &fakeBackend{pullErr: errors.New("zwave node asleep")}
	e := newTestEngine(t, backend, map[int]models.SlotRecord{
		1: {Name: strptr("Alice")},
	})

	if _, err := e.Refresh(context.Background()); err == nil {
		t.Fatal("expected pull failure to surface")
	}
	rec, ok := e.Form().Record(1)
	if !ok || *rec.Name != "Alice" {
		t.Fatalf("failed refresh must not touch records, got %+v", rec)
	}
}

func TestPushMergesConfirmedView(t *testing.T) {
	enabled := models.StatusEnabled
	backend := &fakeBackend{snaps: []snapshot.Snapshot{{
		4: {Name: "Dana", Code: "4444", LockCode: "4444", LockStatusFromLock: &enabled},
	}}}
	e := newTestEngine(t, backend, map[int]models.SlotRecord{
		4: {Code: strptr("4444")},
	})

	if err := e.Push(context.Background(), 4); err != nil {
		t.Fatalf("Push failed: %v", err)
	}
	if len(backend.pushed) != 1 || backend.pushed[0] != 4 {
		t.Fatalf("expected one push for slot 4, got %v", backend.pushed)
	}
	rec, _ := e.Form().Record(4)
	if rec.Name == nil || *rec.Name != "Dana" {
		t.Fatalf("expected name filled from confirmed view, got %+v", rec)
	}
	if *rec.Code != "4444" {
		t.Fatalf("cached code must survive the merge, got %q", *rec.Code)
	}
}

func TestPushFailureLeavesRecord(t *testing.T) {
	backend := &fakeBackend{pushErr: errors.New("node unreachable")}
	e := newTestEngine(t, backend, map[int]models.SlotRecord{
		4: {Name: strptr("Dana")},
	})

	if err := e.Push(context.Background(), 4); err == nil {
		t.Fatal("expected push failure to surface")
	}
	rec, _ := e.Form().Record(4)
	if *rec.Name != "Dana" {
		t.Fatalf("failed push must not touch the record, got %+v", rec)
	}
}

func TestClearRemovesRecord(t *testing.T) {
	backend := &fakeBackend{}
	e := newTestEngine(t, backend, map[int]models.SlotRecord{
		5: {Name: strptr("Eve")},
	})

	if err := e.Clear(context.Background(), 5); err != nil {
		t.Fatalf("Clear failed: %v", err)
	}
	if len(backend.cleared) != 1 || backend.cleared[0] != 5 {
		t.Fatalf("expected backend clear for slot 5, got %v", backend.cleared)
	}
	if _, ok := e.Form().Record(5); ok {
		t.Fatal("record should be gone after clear")
	}
}

func TestOverviewMergesCachedOverRemote(t *testing.T) {
	enabled := models.StatusEnabled
	backend := &fakeBackend{snaps: []snapshot.Snapshot{{
		1: {Name: "Alice", Code: "1111", LockCode: "1111", LockStatusFromLock: &enabled, Enabled: true},
		2: {Name: "Bob", Code: "2222", Enabled: true},
	}}}
	e := newTestEngine(t, backend, map[int]models.SlotRecord{
		2: {Name: strptr("Robert")},
		8: {Name: strptr("Local"), Code: strptr("8888")},
	})

	sums, err := e.Overview(context.Background())
	if err != nil {
		t.Fatalf("Overview failed: %v", err)
	}
	if len(sums) != 3 {
		t.Fatalf("expected 3 summaries, got %d", len(sums))
	}
	if sums[0].Slot != 1 || sums[0].State != models.Synced {
		t.Fatalf("slot 1 should be synced: %+v", sums[0])
	}
	if sums[1].Name != "Robert" {
		t.Fatalf("cached name must win, got %q", sums[1].Name)
	}
	if len(sums[1].Unsaved) != 1 || sums[1].Unsaved[0] != form.FieldName {
		t.Fatalf("expected name marked unsaved, got %v", sums[1].Unsaved)
	}
	if sums[2].Slot != 8 || sums[2].Reported || sums[2].State != models.NeedsPush {
		t.Fatalf("cache-only slot should need push: %+v", sums[2])
	}
}
