// Package models defines the slot domain types shared across lk: the
// editable per-slot record the user owns, the hub-reported snapshot record,
// and the derived sync tri-state.
package models

import "time"

// MaxSlots is the fixed number of user-code slots on the lock.
const MaxSlots = 20

// Code length bounds for PIN codes.
const (
	MinCodeLength = 4
	MaxCodeLength = 10
)

// CodeType distinguishes keypad PINs from RF fobs.
type CodeType string

const (
	CodeTypePIN CodeType = "pin"
	CodeTypeFob CodeType = "fob"
)

// Slot status values as reported by the lock hardware.
const (
	StatusAvailable = 0
	StatusEnabled   = 1
	StatusDisabled  = 2
)

// SyncState is the derived indicator of whether cached and lock-reported
// values agree for a slot.
type SyncState int

const (
	// SyncUnknown means the lock has not reported a value for the slot yet.
	SyncUnknown SyncState = iota
	// Synced means both code and status match what the lock reports.
	Synced
	// NeedsPush means the cached code or status differs from the lock.
	NeedsPush
)

func (s SyncState) String() string {
	switch s {
	case Synced:
		return "synced"
	case NeedsPush:
		return "needs-push"
	default:
		return "unknown"
	}
}

// Schedule restricts when a code is valid. Either bound may be nil.
type Schedule struct {
	Start *time.Time `json:"start"`
	End   *time.Time `json:"end"`
}

// IsZero reports whether the schedule has no bounds set.
func (s Schedule) IsZero() bool {
	return s.Start == nil && s.End == nil
}

// SlotView is the hub's last-reported view of one slot: the editable fields
// as the backend entity knows them plus the read-only lock-confirmed fields.
// It is the record shape of the entity snapshot read model.
type SlotView struct {
	Name     string   `json:"name"`
	Code     string   `json:"code"`
	CodeType CodeType `json:"code_type"`
	Enabled  bool     `json:"enabled"`

	// Read-only fields, authoritative only after a confirmed pull/push.
	LockCode           string `json:"lock_code"`
	LockStatus         int    `json:"lock_status"`
	LockStatusFromLock *int   `json:"lock_status_from_lock"`
	LockEnabled        *bool  `json:"lock_enabled"`
	SyncedToLock       bool   `json:"synced_to_lock"`

	Schedule   Schedule `json:"schedule"`
	UsageLimit *int     `json:"usage_limit"`
	UsageCount int      `json:"usage_count"`
}

// EffectiveLockStatus resolves the lock-reported status for a slot view.
// Precedence: explicit 0/1/2 status from the lock, then the lock-enabled
// flag, then the generic enabled flag. The second return is false when no
// lock-reported value exists at all.
func (v SlotView) EffectiveLockStatus() (int, bool) {
	if v.LockStatusFromLock != nil {
		return *v.LockStatusFromLock, true
	}
	if v.LockEnabled != nil {
		if *v.LockEnabled {
			return StatusEnabled, true
		}
		return StatusDisabled, true
	}
	if v.SyncedToLock {
		if v.Enabled {
			return StatusEnabled, true
		}
		return StatusDisabled, true
	}
	return StatusAvailable, false
}

// ValidSlot reports whether n is a usable slot index.
func ValidSlot(n int) bool {
	return n >= 1 && n <= MaxSlots
}
