// Package snapshot captures point-in-time copies of the hub's slot state and
// detects material change between them. A snapshot is taken before a remote
// operation starts and used as the diff baseline while polling for the
// operation's effect to land.
package snapshot

import (
	"fmt"
	"sort"

	"github.com/marcus/lk/internal/models"
)

// Snapshot is an immutable copy of all slots' remote state, keyed by slot.
type Snapshot map[int]models.SlotView

// Capture deep-copies the given slot views into a new Snapshot.
func Capture(slots map[int]models.SlotView) Snapshot {
	snap := make(Snapshot, len(slots))
	for n, v := range slots {
		snap[n] = cloneView(v)
	}
	return snap
}

func cloneView(v models.SlotView) models.SlotView {
	c := v
	if v.LockStatusFromLock != nil {
		s := *v.LockStatusFromLock
		c.LockStatusFromLock = &s
	}
	if v.LockEnabled != nil {
		b := *v.LockEnabled
		c.LockEnabled = &b
	}
	if v.Schedule.Start != nil {
		t := *v.Schedule.Start
		c.Schedule.Start = &t
	}
	if v.Schedule.End != nil {
		t := *v.Schedule.End
		c.Schedule.End = &t
	}
	if v.UsageLimit != nil {
		l := *v.UsageLimit
		c.UsageLimit = &l
	}
	return c
}

// Result is the outcome of a diff: whether anything material changed, plus
// human-readable descriptions of each change.
type Result struct {
	Changed bool
	Details []string
}

// Diff reports whether current has materially changed relative to previous.
//
// A nil previous means no baseline was captured; in that case the result is
// changed iff current is non-empty. Treating "no baseline" as "assume
// changed" keeps a failed capture from turning into an infinite wait.
//
// For slots present in both, exactly these fields are compared: lock status,
// lock code, lock-reported status, name, and code. Slots only in current are
// new and count as changed. Slots only in previous are not compared; removal
// shows up as a change on the slot's replacement or not at all.
func Diff(previous, current Snapshot) Result {
	if previous == nil {
		return Result{Changed: len(current) > 0}
	}

	var res Result
	for _, n := range sortedSlots(current) {
		cur := current[n]
		prev, ok := previous[n]
		if !ok {
			res.Changed = true
			res.Details = append(res.Details, fmt.Sprintf("slot %d: new user %q", n, cur.Name))
			continue
		}
		res.Details = append(res.Details, fieldChanges(n, prev, cur)...)
	}
	if len(res.Details) > 0 {
		res.Changed = true
	}
	return res
}

func fieldChanges(n int, prev, cur models.SlotView) []string {
	var details []string
	if prev.LockStatus != cur.LockStatus {
		details = append(details, fmt.Sprintf("slot %d: lock status %d -> %d", n, prev.LockStatus, cur.LockStatus))
	}
	if prev.LockCode != cur.LockCode {
		details = append(details, fmt.Sprintf("slot %d: lock code changed", n))
	}
	if !intPtrEqual(prev.LockStatusFromLock, cur.LockStatusFromLock) {
		details = append(details, fmt.Sprintf("slot %d: lock-reported status %s -> %s",
			n, intPtrString(prev.LockStatusFromLock), intPtrString(cur.LockStatusFromLock)))
	}
	if prev.Name != cur.Name {
		details = append(details, fmt.Sprintf("slot %d: name %q -> %q", n, prev.Name, cur.Name))
	}
	if prev.Code != cur.Code {
		details = append(details, fmt.Sprintf("slot %d: code changed", n))
	}
	return details
}

func sortedSlots(s Snapshot) []int {
	slots := make([]int, 0, len(s))
	for n := range s {
		slots = append(slots, n)
	}
	sort.Ints(slots)
	return slots
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

func intPtrString(p *int) string {
	if p == nil {
		return "none"
	}
	return fmt.Sprintf("%d", *p)
}
