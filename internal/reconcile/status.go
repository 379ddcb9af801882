package reconcile

import (
	"github.com/marcus/lk/internal/form"
	"github.com/marcus/lk/internal/models"
)

// desiredStatus resolves the status the user wants for a slot: the cached
// status when one exists, otherwise the hub's enabled flag.
func desiredStatus(rec models.SlotRecord, view models.SlotView) int {
	if rec.Status != nil {
		return *rec.Status
	}
	if view.Enabled {
		return models.StatusEnabled
	}
	return models.StatusDisabled
}

func cachedCode(rec models.SlotRecord, view models.SlotView) string {
	if rec.Code != nil {
		return *rec.Code
	}
	return view.Code
}

func cachedType(rec models.SlotRecord, view models.SlotView) models.CodeType {
	if rec.CodeType != nil {
		return *rec.CodeType
	}
	if view.CodeType != "" {
		return view.CodeType
	}
	return models.CodeTypePIN
}

// Evaluate derives the sync state for a slot from its cached record and the
// hub's reported view.
//
// A PIN slot is synced when the lock holds the cached code in the desired
// status, or, for a disabled or cleared slot, when the lock reports the slot
// available or holds no code: disabling a PIN removes it from the lock, so an
// empty slot is the correct disabled state, and a code still present means
// the removal has not reached the device. Fobs are enrolled physically and
// cannot be written over the wire, so only the enable state is comparable.
func Evaluate(rec models.SlotRecord, view models.SlotView) models.SyncState {
	lockStatus, known := view.EffectiveLockStatus()
	if !known {
		return models.SyncUnknown
	}

	want := desiredStatus(rec, view)

	if cachedType(rec, view) == models.CodeTypeFob {
		if want == lockStatus {
			return models.Synced
		}
		if want == models.StatusDisabled && lockStatus == models.StatusAvailable {
			return models.Synced
		}
		return models.NeedsPush
	}

	if want == models.StatusEnabled {
		code := cachedCode(rec, view)
		if lockStatus == models.StatusEnabled && code != "" && view.LockCode == code {
			return models.Synced
		}
		return models.NeedsPush
	}

	if lockStatus == models.StatusAvailable || view.LockCode == "" {
		return models.Synced
	}
	return models.NeedsPush
}

// UnsavedFields reports which cached fields differ from the hub's view of the
// slot, i.e. edits that exist locally but have not reached the backend. Only
// fields the user actually set are considered.
func UnsavedFields(rec models.SlotRecord, view models.SlotView) []form.Field {
	var out []form.Field
	if rec.Name != nil && *rec.Name != view.Name {
		out = append(out, form.FieldName)
	}
	if rec.Code != nil && *rec.Code != view.Code {
		out = append(out, form.FieldCode)
	}
	if rec.CodeType != nil {
		vt := view.CodeType
		if vt == "" {
			vt = models.CodeTypePIN
		}
		if *rec.CodeType != vt {
			out = append(out, form.FieldCodeType)
		}
	}
	if rec.Status != nil {
		vs := models.StatusDisabled
		if view.Enabled {
			vs = models.StatusEnabled
		}
		if *rec.Status != vs {
			out = append(out, form.FieldStatus)
		}
	}
	if rec.Schedule != nil && !scheduleEqual(*rec.Schedule, view.Schedule) {
		out = append(out, form.FieldSchedule)
	}
	if rec.UsageLimit != nil {
		if view.UsageLimit == nil || *view.UsageLimit != *rec.UsageLimit {
			out = append(out, form.FieldUsageLimit)
		}
	}
	return out
}

// HasUnsaved reports whether the slot has any local edits not yet saved to
// the backend.
func HasUnsaved(rec models.SlotRecord, view models.SlotView) bool {
	return len(UnsavedFields(rec, view)) > 0
}

func scheduleEqual(a, b models.Schedule) bool {
	if (a.Start == nil) != (b.Start == nil) || (a.End == nil) != (b.End == nil) {
		return false
	}
	if a.Start != nil && !a.Start.Equal(*b.Start) {
		return false
	}
	if a.End != nil && !a.End.Equal(*b.End) {
		return false
	}
	return true
}
