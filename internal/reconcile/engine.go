// Package reconcile merges three views of the lock's code slots: the user's
// in-flight edits, the durable local cache, and the backend's reported state.
// Remote operations are confirmed by bounded polling against a snapshot
// baseline; when the budget runs out the hub's answer is trusted rather than
// blocking the user forever.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/marcus/lk/internal/audit"
	"github.com/marcus/lk/internal/form"
	"github.com/marcus/lk/internal/hub"
	"github.com/marcus/lk/internal/models"
	"github.com/marcus/lk/internal/snapshot"
)

// Backend is the slice of the hub client the engine drives.
type Backend interface {
	Slots(ctx context.Context) (snapshot.Snapshot, error)
	PullCodes(ctx context.Context) error
	PushCode(ctx context.Context, slot int) error
	SetUserCode(ctx context.Context, slot int, code, name string, codeType models.CodeType, override bool) error
	ClearUserCode(ctx context.Context, slot int) error
	SetUserSchedule(ctx context.Context, slot int, sched models.Schedule) error
	SetUsageLimit(ctx context.Context, slot int, maxUses *int) error
	SetUserStatus(ctx context.Context, slot int, enabled bool) error
	ResetUsageCount(ctx context.Context, slot int) error
}

// ValidationError rejects a save before anything is sent to the backend.
type ValidationError struct {
	Field  form.Field
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Engine coordinates slot reconciliation for one lock entity.
type Engine struct {
	backend Backend
	form    *form.Store
	log     *audit.Log

	notify func(string)
	sleep  func(context.Context, time.Duration) error

	refreshInterval  time.Duration
	refreshAttempts  int
	overrideInterval time.Duration
	overrideAttempts int
	pushStageDelay   time.Duration
	pushSettle       time.Duration
}

// New creates an engine with the production polling budgets.
func New(backend Backend, store *form.Store, log *audit.Log) *Engine {
	return &Engine{
		backend: backend,
		form:    store,
		log:     log,
		notify:  func(string) {},
		sleep:   sleepCtx,

		refreshInterval:  300 * time.Millisecond,
		refreshAttempts:  20,
		overrideInterval: 300 * time.Millisecond,
		overrideAttempts: 17,
		pushStageDelay:   800 * time.Millisecond,
		pushSettle:       1500 * time.Millisecond,
	}
}

// SetNotify installs a sink for human-readable progress messages. Messages
// are advisory only.
func (e *Engine) SetNotify(fn func(string)) {
	if fn != nil {
		e.notify = fn
	}
}

// Form exposes the engine's editable slot store.
func (e *Engine) Form() *form.Store {
	return e.form
}

// RefreshResult describes how a refresh concluded.
type RefreshResult struct {
	// Confirmed is false when no slot change was observed within the polling
	// budget and the pull was assumed to have succeeded anyway.
	Confirmed bool
	Details   []string
	Polls     int
}

// Refresh asks the hub to read every slot from the physical lock, waits for
// the entity snapshot to change relative to a baseline, then folds the
// confirmed state into the local records. Slots under active edit are merged
// field by field so in-flight edits survive; all other slots are overwritten
// with the lock's truth, and slots the hub no longer reports are pruned.
func (e *Engine) Refresh(ctx context.Context) (RefreshResult, error) {
	baseline, err := e.backend.Slots(ctx)
	if err != nil {
		// No baseline: the first successful poll counts as the change.
		slog.Warn("refresh baseline unavailable", "err", err)
		baseline = nil
	}

	e.log.Record("refresh", 0, "starting pull from lock")
	e.notify("Reading codes from lock...")
	if err := e.backend.PullCodes(ctx); err != nil {
		e.log.Record("refresh", 0, "pull failed: %v", err)
		return RefreshResult{}, fmt.Errorf("pull codes: %w", err)
	}

	var (
		latest  snapshot.Snapshot
		details []string
		polls   int
	)
	outcome := awaitUntil(ctx, e.sleep, e.refreshInterval, e.refreshAttempts, func(ctx context.Context) bool {
		polls++
		cur, err := e.backend.Slots(ctx)
		if err != nil {
			slog.Debug("refresh poll failed", "poll", polls, "err", err)
			return false
		}
		latest = cur
		res := snapshot.Diff(baseline, cur)
		if res.Changed {
			details = res.Details
			return true
		}
		return false
	})

	switch outcome {
	case Cancelled:
		e.log.Record("refresh", 0, "cancelled after %d polls", polls)
		return RefreshResult{Polls: polls}, ctx.Err()
	case TimedOut:
		// The lock may already have matched the baseline. Trust the pull and
		// apply whatever the hub reports.
		e.log.Record("refresh", 0, "no change after %d polls, trusting pull result", polls)
	case Confirmed:
		for _, d := range details {
			e.log.Record("refresh", 0, "%s", d)
		}
	}

	if latest == nil {
		if latest, err = e.backend.Slots(ctx); err != nil {
			e.log.Record("refresh", 0, "snapshot unavailable after pull: %v", err)
			return RefreshResult{Polls: polls}, fmt.Errorf("read slots after pull: %w", err)
		}
	}
	e.applySnapshot(latest)
	e.notify("Refresh complete")
	return RefreshResult{Confirmed: outcome == Confirmed, Details: details, Polls: polls}, nil
}

// applySnapshot folds a confirmed snapshot into the local records.
func (e *Engine) applySnapshot(snap snapshot.Snapshot) {
	reported := make(map[int]bool, len(snap))
	for slot, view := range snap {
		reported[slot] = true
		if e.form.IsExpanded(slot) {
			e.form.MergeConfirmed(slot, view)
		} else {
			e.form.SetRecord(slot, models.RecordFromView(view))
		}
	}
	e.form.Prune(reported)
}

// Push writes a slot's cached code and status to the physical lock, waits for
// the device to settle, then merges the hub's confirmed view back into the
// record.
func (e *Engine) Push(ctx context.Context, slot int) error {
	if !models.ValidSlot(slot) {
		return &ValidationError{Field: "slot", Reason: fmt.Sprintf("slot %d out of range 1-%d", slot, models.MaxSlots)}
	}

	e.log.Record("push", slot, "issuing push to lock")
	e.notify(fmt.Sprintf("Pushing slot %d to lock...", slot))
	if err := e.backend.PushCode(ctx, slot); err != nil {
		e.log.Record("push", slot, "push failed: %v", err)
		return fmt.Errorf("push slot %d: %w", slot, err)
	}

	for _, msg := range []string{"Device is processing the command...", "Verifying result..."} {
		if err := e.sleep(ctx, e.pushStageDelay); err != nil {
			return err
		}
		e.notify(msg)
	}
	if err := e.sleep(ctx, e.pushSettle); err != nil {
		return err
	}

	snap, err := e.backend.Slots(ctx)
	if err != nil {
		e.log.Record("push", slot, "could not verify push: %v", err)
		return fmt.Errorf("read slots after push: %w", err)
	}
	if view, ok := snap[slot]; ok {
		e.form.MergeConfirmed(slot, view)
		rec, _ := e.form.Record(slot)
		e.log.Record("push", slot, "push complete, sync state %s", Evaluate(rec, view))
	} else {
		e.log.Record("push", slot, "slot not reported after push")
	}
	e.notify(fmt.Sprintf("Slot %d pushed", slot))
	return nil
}

// SaveInput carries the values the user submitted for a slot.
type SaveInput struct {
	Slot     int
	Name     string
	Code     string
	CodeType models.CodeType
	Enabled  bool
	// Schedule nil leaves the slot's schedule unchanged.
	Schedule *models.Schedule
	// UsageLimit nil leaves the slot's usage limit unchanged.
	UsageLimit *int
}

// SaveResult describes how a save concluded.
type SaveResult struct {
	Slot int
	// Conflict means the slot holds a code the hub does not recognize and
	// nothing was written. The caller must confirm, then retry with
	// SaveWithOverride.
	Conflict bool
	State    models.SyncState
}

func (e *Engine) validate(in SaveInput) error {
	if !models.ValidSlot(in.Slot) {
		return &ValidationError{Field: "slot", Reason: fmt.Sprintf("slot %d out of range 1-%d", in.Slot, models.MaxSlots)}
	}
	if in.Name == "" {
		return &ValidationError{Field: form.FieldName, Reason: "name is required"}
	}
	switch in.CodeType {
	case models.CodeTypeFob:
		// Fob identifiers are read from the lock, not entered; anything the
		// hub reported is accepted as-is.
	case models.CodeTypePIN, "":
		if len(in.Code) < models.MinCodeLength || len(in.Code) > models.MaxCodeLength {
			return &ValidationError{
				Field:  form.FieldCode,
				Reason: fmt.Sprintf("PIN must be %d-%d digits", models.MinCodeLength, models.MaxCodeLength),
			}
		}
		for _, r := range in.Code {
			if r < '0' || r > '9' {
				return &ValidationError{Field: form.FieldCode, Reason: "PIN must contain only digits"}
			}
		}
	default:
		return &ValidationError{Field: form.FieldCodeType, Reason: fmt.Sprintf("unknown code type %q", in.CodeType)}
	}
	if in.Schedule != nil {
		if err := validateSchedule(*in.Schedule); err != nil {
			return err
		}
	}
	if in.UsageLimit != nil && *in.UsageLimit < 0 {
		return &ValidationError{Field: form.FieldUsageLimit, Reason: "limit must not be negative"}
	}
	return nil
}

// validateSchedule rejects unordered or past-dated validity windows before
// anything is sent to the backend.
func validateSchedule(s models.Schedule) error {
	if s.Start != nil && s.End != nil && !s.End.After(*s.Start) {
		return &ValidationError{Field: form.FieldSchedule, Reason: "end must be after start"}
	}
	now := time.Now()
	if s.Start != nil && s.Start.Before(now) {
		return &ValidationError{Field: form.FieldSchedule, Reason: "start is in the past"}
	}
	if s.End != nil && s.End.Before(now) {
		return &ValidationError{Field: form.FieldSchedule, Reason: "end is in the past"}
	}
	return nil
}

// Save validates and writes a slot's values to the backend, then commits them
// to the local record. A slot-occupied rejection is reported as a conflict
// with nothing written; every other backend failure leaves the local record
// untouched.
func (e *Engine) Save(ctx context.Context, in SaveInput) (SaveResult, error) {
	if err := e.validate(in); err != nil {
		return SaveResult{Slot: in.Slot}, err
	}

	e.log.Record("save", in.Slot, "saving user %q", in.Name)
	err := e.backend.SetUserCode(ctx, in.Slot, in.Code, in.Name, codeTypeOrDefault(in.CodeType), false)
	if errors.Is(err, hub.ErrSlotOccupied) {
		e.log.Record("save", in.Slot, "slot occupied by unknown code, confirmation required")
		return SaveResult{Slot: in.Slot, Conflict: true}, nil
	}
	if err != nil {
		e.log.Record("save", in.Slot, "save failed: %v", err)
		return SaveResult{Slot: in.Slot}, fmt.Errorf("save slot %d: %w", in.Slot, err)
	}

	return e.finishSave(ctx, in)
}

// SaveWithOverride retries a conflicted save with the occupied-slot
// protection bypassed, then polls until the backend reports the submitted
// name and code. A poll timeout is not an error; the write is assumed to have
// landed.
func (e *Engine) SaveWithOverride(ctx context.Context, in SaveInput) (SaveResult, error) {
	if err := e.validate(in); err != nil {
		return SaveResult{Slot: in.Slot}, err
	}

	e.log.Record("save", in.Slot, "overwriting occupied slot with user %q", in.Name)
	if err := e.backend.SetUserCode(ctx, in.Slot, in.Code, in.Name, codeTypeOrDefault(in.CodeType), true); err != nil {
		e.log.Record("save", in.Slot, "override save failed: %v", err)
		return SaveResult{Slot: in.Slot}, fmt.Errorf("save slot %d: %w", in.Slot, err)
	}

	var polls int
	outcome := awaitUntil(ctx, e.sleep, e.overrideInterval, e.overrideAttempts, func(ctx context.Context) bool {
		polls++
		snap, err := e.backend.Slots(ctx)
		if err != nil {
			return false
		}
		view, ok := snap[in.Slot]
		return ok && view.Name == in.Name && view.Code == in.Code
	})
	switch outcome {
	case Cancelled:
		return SaveResult{Slot: in.Slot}, ctx.Err()
	case TimedOut:
		e.log.Record("save", in.Slot, "override not confirmed after %d polls, assuming success", polls)
	case Confirmed:
		e.log.Record("save", in.Slot, "override confirmed after %d polls", polls)
	}

	return e.finishSave(ctx, in)
}

// finishSave commits the submitted values to the local record and evaluates
// the slot's sync state. The committed record always equals what was
// submitted; the backend's echo never replaces user input here.
func (e *Engine) finishSave(ctx context.Context, in SaveInput) (SaveResult, error) {
	if err := e.setSecondary(ctx, in); err != nil {
		return SaveResult{Slot: in.Slot}, err
	}

	rec, _ := e.form.Record(in.Slot)
	name := in.Name
	code := in.Code
	ct := codeTypeOrDefault(in.CodeType)
	status := models.StatusDisabled
	if in.Enabled {
		status = models.StatusEnabled
	}
	rec.Name = &name
	rec.Code = &code
	rec.CodeType = &ct
	rec.Status = &status
	if in.Schedule != nil {
		s := *in.Schedule
		rec.Schedule = &s
	}
	if in.UsageLimit != nil {
		l := *in.UsageLimit
		rec.UsageLimit = &l
	}
	e.form.SetRecord(in.Slot, rec)

	res := SaveResult{Slot: in.Slot, State: models.SyncUnknown}
	snap, err := e.backend.Slots(ctx)
	if err != nil {
		slog.Warn("could not evaluate sync state after save", "slot", in.Slot, "err", err)
		return res, nil
	}
	if view, ok := snap[in.Slot]; ok {
		res.State = Evaluate(rec, view)
	} else {
		res.State = models.NeedsPush
	}
	e.log.Record("save", in.Slot, "saved, sync state %s", res.State)
	return res, nil
}

func (e *Engine) setSecondary(ctx context.Context, in SaveInput) error {
	if err := e.backend.SetUserStatus(ctx, in.Slot, in.Enabled); err != nil {
		return fmt.Errorf("set slot %d status: %w", in.Slot, err)
	}
	if in.Schedule != nil {
		if err := e.backend.SetUserSchedule(ctx, in.Slot, *in.Schedule); err != nil {
			return fmt.Errorf("set slot %d schedule: %w", in.Slot, err)
		}
	}
	if in.UsageLimit != nil {
		if err := e.backend.SetUsageLimit(ctx, in.Slot, in.UsageLimit); err != nil {
			return fmt.Errorf("set slot %d usage limit: %w", in.Slot, err)
		}
	}
	return nil
}

func codeTypeOrDefault(ct models.CodeType) models.CodeType {
	if ct == "" {
		return models.CodeTypePIN
	}
	return ct
}

// Clear removes a slot from the backend and, on success, from the local
// records.
func (e *Engine) Clear(ctx context.Context, slot int) error {
	if err := e.backend.ClearUserCode(ctx, slot); err != nil {
		e.log.Record("save", slot, "clear failed: %v", err)
		return fmt.Errorf("clear slot %d: %w", slot, err)
	}
	e.form.Clear(slot)
	e.log.Record("save", slot, "slot cleared")
	return nil
}

// SetStatus enables or disables a slot on the backend and mirrors the change
// locally.
func (e *Engine) SetStatus(ctx context.Context, slot int, enabled bool) error {
	if err := e.backend.SetUserStatus(ctx, slot, enabled); err != nil {
		return fmt.Errorf("set slot %d status: %w", slot, err)
	}
	status := models.StatusDisabled
	if enabled {
		status = models.StatusEnabled
	}
	e.form.SetStatus(slot, status)
	e.log.Record("save", slot, "status set to %d", status)
	return nil
}

// SetSchedule updates a slot's validity window on the backend and locally.
func (e *Engine) SetSchedule(ctx context.Context, slot int, sched models.Schedule) error {
	if err := validateSchedule(sched); err != nil {
		return err
	}
	if err := e.backend.SetUserSchedule(ctx, slot, sched); err != nil {
		return fmt.Errorf("set slot %d schedule: %w", slot, err)
	}
	e.form.SetSchedule(slot, sched)
	e.log.Record("save", slot, "schedule updated")
	return nil
}

// SetUsageLimit updates a slot's maximum use count on the backend and
// locally. A nil limit removes it.
func (e *Engine) SetUsageLimit(ctx context.Context, slot int, limit *int) error {
	if limit != nil && *limit < 0 {
		return &ValidationError{Field: form.FieldUsageLimit, Reason: "limit must not be negative"}
	}
	if err := e.backend.SetUsageLimit(ctx, slot, limit); err != nil {
		return fmt.Errorf("set slot %d usage limit: %w", slot, err)
	}
	e.form.SetUsageLimit(slot, limit)
	e.log.Record("save", slot, "usage limit updated")
	return nil
}

// ResetUsage zeroes a slot's usage counter on the backend.
func (e *Engine) ResetUsage(ctx context.Context, slot int) error {
	if err := e.backend.ResetUsageCount(ctx, slot); err != nil {
		return fmt.Errorf("reset slot %d usage count: %w", slot, err)
	}
	e.log.Record("save", slot, "usage count reset")
	return nil
}

// SlotSummary is the merged read model for one slot: cached values over the
// hub's view, plus the derived sync state and any unsaved edits.
type SlotSummary struct {
	Slot       int
	Name       string
	Code       string
	CodeType   models.CodeType
	Status     int
	Schedule   models.Schedule
	UsageLimit *int
	UsageCount int

	State    models.SyncState
	Unsaved  []form.Field
	Reported bool
	View     models.SlotView
}

// Overview fetches the hub snapshot and merges it with the local records into
// per-slot summaries, ascending by slot.
func (e *Engine) Overview(ctx context.Context) ([]SlotSummary, error) {
	snap, err := e.backend.Slots(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch slots: %w", err)
	}

	seen := make(map[int]bool, len(snap))
	slots := make([]int, 0, len(snap))
	for slot := range snap {
		seen[slot] = true
		slots = append(slots, slot)
	}
	for _, slot := range e.form.Slots() {
		if !seen[slot] {
			slots = append(slots, slot)
		}
	}
	sort.Ints(slots)

	out := make([]SlotSummary, 0, len(slots))
	for _, slot := range slots {
		view, reported := snap[slot]
		rec, hasRec := e.form.Record(slot)

		fallbackStatus := models.StatusDisabled
		if view.Enabled {
			fallbackStatus = models.StatusEnabled
		}
		sum := SlotSummary{
			Slot:       slot,
			Name:       e.form.Name(slot, view.Name),
			Code:       e.form.Code(slot, view.Code),
			CodeType:   e.form.CodeType(slot, codeTypeOrDefault(view.CodeType)),
			Status:     e.form.Status(slot, fallbackStatus),
			Schedule:   e.form.Schedule(slot, view.Schedule),
			UsageLimit: e.form.UsageLimit(slot, view.UsageLimit),
			UsageCount: view.UsageCount,
			Reported:   reported,
			View:       view,
		}
		switch {
		case reported:
			sum.State = Evaluate(rec, view)
			sum.Unsaved = UnsavedFields(rec, view)
		case hasRec && rec.Code != nil:
			sum.State = models.NeedsPush
		default:
			sum.State = models.SyncUnknown
		}
		out = append(out, sum)
	}
	return out, nil
}
