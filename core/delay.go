package core

import (
	"context"
	"time"
)

// Sleep waits for d or until ctx is done, whichever comes first.
// Returns ctx.Err() if the wait was cut short. Non-positive durations return
// immediately (after a cancellation check).
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
