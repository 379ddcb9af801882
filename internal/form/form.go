// Package form is the in-memory layer that shields user edits from remote
// updates. Every mutation writes through to the durable cache immediately;
// reads take an explicit fallback so precedence (cached over remote) stays
// visible at the call site. Per-field edit leases mark fields an editor is
// actively writing, the generalized form of "this input has focus".
package form

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/marcus/lk/internal/models"
)

// Field names an editable slot field for lease tracking.
type Field string

const (
	FieldName       Field = "name"
	FieldCode       Field = "code"
	FieldCodeType   Field = "code_type"
	FieldStatus     Field = "status"
	FieldSchedule   Field = "schedule"
	FieldUsageLimit Field = "usage_limit"
)

var editableFields = []Field{
	FieldName, FieldCode, FieldCodeType, FieldStatus, FieldSchedule, FieldUsageLimit,
}

// Persister is the durable cache surface the form layer writes through to.
type Persister interface {
	SaveSlot(entityID string, slot int, rec models.SlotRecord) error
	ClearSlot(entityID string, slot int) error
}

// Store holds the per-slot editable records for one lock entity.
type Store struct {
	mu       sync.Mutex
	entityID string
	persist  Persister
	records  map[int]models.SlotRecord
	leases   map[int]map[Field]bool
	expanded map[int]bool
}

// New creates a store seeded from previously cached records.
func New(entityID string, persist Persister, initial map[int]models.SlotRecord) *Store {
	records := make(map[int]models.SlotRecord, len(initial))
	for slot, rec := range initial {
		records[slot] = rec.Clone()
	}
	return &Store{
		entityID: entityID,
		persist:  persist,
		records:  records,
		leases:   make(map[int]map[Field]bool),
		expanded: make(map[int]bool),
	}
}

// Record returns a copy of the slot's record and whether one exists.
func (s *Store) Record(slot int) (models.SlotRecord, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[slot]
	if !ok {
		return models.SlotRecord{}, false
	}
	return rec.Clone(), true
}

// Slots returns the slot numbers with cached records, ascending.
func (s *Store) Slots() []int {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]int, 0, len(s.records))
	for slot := range s.records {
		out = append(out, slot)
	}
	sort.Ints(out)
	return out
}

// Name returns the cached name for the slot, or fallback when unset.
func (s *Store) Name(slot int, fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[slot]; ok && rec.Name != nil {
		return *rec.Name
	}
	return fallback
}

// Code returns the cached code for the slot, or fallback when unset.
func (s *Store) Code(slot int, fallback string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[slot]; ok && rec.Code != nil {
		return *rec.Code
	}
	return fallback
}

// CodeType returns the cached code type for the slot, or fallback when unset.
func (s *Store) CodeType(slot int, fallback models.CodeType) models.CodeType {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[slot]; ok && rec.CodeType != nil {
		return *rec.CodeType
	}
	return fallback
}

// Status returns the cached status for the slot, or fallback when unset.
func (s *Store) Status(slot int, fallback int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[slot]; ok && rec.Status != nil {
		return *rec.Status
	}
	return fallback
}

// Schedule returns the cached schedule for the slot, or fallback when unset.
func (s *Store) Schedule(slot int, fallback models.Schedule) models.Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[slot]; ok && rec.Schedule != nil {
		return *rec.Schedule
	}
	return fallback
}

// UsageLimit returns the cached usage limit for the slot, or fallback when unset.
func (s *Store) UsageLimit(slot int, fallback *int) *int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec, ok := s.records[slot]; ok && rec.UsageLimit != nil {
		v := *rec.UsageLimit
		return &v
	}
	return fallback
}

// SetName sets the slot's name and writes through to the cache.
func (s *Store) SetName(slot int, v string) {
	s.mutate(slot, func(rec *models.SlotRecord) { rec.Name = &v })
}

// SetCode sets the slot's code and writes through to the cache.
func (s *Store) SetCode(slot int, v string) {
	s.mutate(slot, func(rec *models.SlotRecord) { rec.Code = &v })
}

// SetCodeType sets the slot's code type and writes through to the cache.
func (s *Store) SetCodeType(slot int, v models.CodeType) {
	s.mutate(slot, func(rec *models.SlotRecord) { rec.CodeType = &v })
}

// SetStatus sets the slot's cached status and writes through to the cache.
func (s *Store) SetStatus(slot int, v int) {
	s.mutate(slot, func(rec *models.SlotRecord) { rec.Status = &v })
}

// SetSchedule sets the slot's schedule and writes through to the cache.
func (s *Store) SetSchedule(slot int, v models.Schedule) {
	s.mutate(slot, func(rec *models.SlotRecord) { rec.Schedule = &v })
}

// SetUsageLimit sets the slot's usage limit and writes through to the cache.
func (s *Store) SetUsageLimit(slot int, v *int) {
	s.mutate(slot, func(rec *models.SlotRecord) {
		if v == nil {
			rec.UsageLimit = nil
			return
		}
		limit := *v
		rec.UsageLimit = &limit
	})
}

// SetRecord replaces the slot's whole record and writes through to the cache.
func (s *Store) SetRecord(slot int, rec models.SlotRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[slot] = rec.Clone()
	s.persistSlot(slot)
}

func (s *Store) mutate(slot int, fn func(*models.SlotRecord)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec := s.records[slot]
	fn(&rec)
	s.records[slot] = rec
	s.persistSlot(slot)
}

// persistSlot writes the slot through to the durable cache. Cache failures
// are non-fatal: the in-memory record keeps working for the session.
func (s *Store) persistSlot(slot int) {
	if err := s.persist.SaveSlot(s.entityID, slot, s.records[slot]); err != nil {
		slog.Warn("cache write-through failed", "entity", s.entityID, "slot", slot, "err", err)
	}
}

// SyncFromRemote seeds the slot's record from the hub's view. When a cached
// record already exists and force is false this is a no-op: cached data wins.
func (s *Store) SyncFromRemote(slot int, force bool, view models.SlotView) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[slot]; ok && !force {
		return
	}
	s.records[slot] = models.RecordFromView(view)
	s.persistSlot(slot)
}

// MergeConfirmed applies a confirmed remote view to the slot's record at
// field level: leased fields are never touched, present cached fields win
// over remote values, and only absent fields fall back to the remote view.
func (s *Store) MergeConfirmed(slot int, view models.SlotView) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := s.records[slot]
	remote := models.RecordFromView(view)
	leases := s.leases[slot]

	if rec.Name == nil && !leases[FieldName] {
		rec.Name = remote.Name
	}
	if rec.Code == nil && !leases[FieldCode] {
		rec.Code = remote.Code
	}
	if rec.CodeType == nil && !leases[FieldCodeType] {
		rec.CodeType = remote.CodeType
	}
	if rec.Status == nil && !leases[FieldStatus] {
		rec.Status = remote.Status
	}
	if rec.Schedule == nil && !leases[FieldSchedule] {
		rec.Schedule = remote.Schedule
	}
	if rec.UsageLimit == nil && !leases[FieldUsageLimit] {
		rec.UsageLimit = remote.UsageLimit
	}

	s.records[slot] = rec
	s.persistSlot(slot)
}

// Expand marks the slot as under active interactive edit.
func (s *Store) Expand(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.expanded[slot] = true
}

// Collapse ends interactive editing for the slot and releases its leases.
func (s *Store) Collapse(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.expanded, slot)
	delete(s.leases, slot)
}

// IsExpanded reports whether the slot is under active interactive edit.
func (s *Store) IsExpanded(slot int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.expanded[slot]
}

// Lease marks a field as actively being written by an editor.
func (s *Store) Lease(slot int, field Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.leases[slot] == nil {
		s.leases[slot] = make(map[Field]bool)
	}
	s.leases[slot][field] = true
}

// Release drops a field's edit lease.
func (s *Store) Release(slot int, field Field) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if leases, ok := s.leases[slot]; ok {
		delete(leases, field)
		if len(leases) == 0 {
			delete(s.leases, slot)
		}
	}
}

// HasLease reports whether the field currently has an edit lease.
func (s *Store) HasLease(slot int, field Field) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.leases[slot][field]
}

// Prune removes records for slots the hub no longer reports. Slots under
// active edit are never pruned; an edit in progress is not silently deleted.
func (s *Store) Prune(reported map[int]bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for slot := range s.records {
		if reported[slot] || s.expanded[slot] {
			continue
		}
		delete(s.records, slot)
		if err := s.persist.ClearSlot(s.entityID, slot); err != nil {
			slog.Warn("cache prune failed", "entity", s.entityID, "slot", slot, "err", err)
		}
	}
}

// Clear removes one slot's record from memory and the durable cache.
func (s *Store) Clear(slot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, slot)
	if err := s.persist.ClearSlot(s.entityID, slot); err != nil {
		slog.Warn("cache clear failed", "entity", s.entityID, "slot", slot, "err", err)
	}
}

// Fields returns the full set of editable field names.
func Fields() []Field {
	out := make([]Field, len(editableFields))
	copy(out, editableFields)
	return out
}
