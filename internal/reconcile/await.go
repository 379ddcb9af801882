package reconcile

import (
	"context"
	"time"
)

// Outcome classifies how a bounded wait ended.
type Outcome int

const (
	// Confirmed means the predicate observed the expected state.
	Confirmed Outcome = iota
	// TimedOut means the attempt budget ran out without confirmation.
	TimedOut
	// Cancelled means the context ended the wait early.
	Cancelled
)

func (o Outcome) String() string {
	switch o {
	case Confirmed:
		return "confirmed"
	case TimedOut:
		return "timed-out"
	default:
		return "cancelled"
	}
}

// awaitUntil polls pred up to attempts times, sleeping interval before each
// check. The sleep func is injectable so tests run without real delays.
func awaitUntil(ctx context.Context, sleep func(context.Context, time.Duration) error, interval time.Duration, attempts int, pred func(context.Context) bool) Outcome {
	for i := 0; i < attempts; i++ {
		if err := sleep(ctx, interval); err != nil {
			return Cancelled
		}
		if pred(ctx) {
			return Confirmed
		}
	}
	return TimedOut
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
