// Package audit keeps a bounded in-memory log of reconciliation events for
// diagnosis. It is observability only; nothing in the engine depends on it
// for correctness.
package audit

import (
	"fmt"
	"sync"
	"time"
)

// DefaultCapacity is the number of entries retained before the oldest are
// dropped.
const DefaultCapacity = 256

// Entry is one recorded reconciliation event.
type Entry struct {
	Time    time.Time
	Op      string // refresh | push | save | cache
	Slot    int    // 0 when the event is not slot-specific
	Message string
}

func (e Entry) String() string {
	if e.Slot > 0 {
		return fmt.Sprintf("%s %s slot %d: %s", e.Time.Format(time.RFC3339), e.Op, e.Slot, e.Message)
	}
	return fmt.Sprintf("%s %s: %s", e.Time.Format(time.RFC3339), e.Op, e.Message)
}

// Log is a fixed-capacity ring buffer of entries.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	next    int
	full    bool
}

// New creates a log with the given capacity; cap <= 0 uses DefaultCapacity.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Log{entries: make([]Entry, capacity)}
}

// Record appends an event, evicting the oldest entry when full.
func (l *Log) Record(op string, slot int, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = Entry{
		Time:    time.Now(),
		Op:      op,
		Slot:    slot,
		Message: fmt.Sprintf(format, args...),
	}
	l.next++
	if l.next == len(l.entries) {
		l.next = 0
		l.full = true
	}
}

// Entries returns the retained events, oldest first.
func (l *Log) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.full {
		out := make([]Entry, l.next)
		copy(out, l.entries[:l.next])
		return out
	}
	out := make([]Entry, 0, len(l.entries))
	out = append(out, l.entries[l.next:]...)
	out = append(out, l.entries[:l.next]...)
	return out
}

// Len returns the number of retained entries.
func (l *Log) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.full {
		return len(l.entries)
	}
	return l.next
}
