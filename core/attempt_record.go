package core

import (
	"time"
)

// AttemptRecord counts requests from one caller inside a fixed window.
// Values are immutable; Increment returns a new record.
type AttemptRecord struct {
	// Count is the number of requests within the current window
	Count int

	// ResetAt is when the count starts over
	ResetAt time.Time
}

// NewAttemptRecord starts a window of the given length with Count=1.
func NewAttemptRecord(window time.Duration) AttemptRecord {
	return AttemptRecord{
		Count:   1,
		ResetAt: time.Now().Add(window),
	}
}

// ShouldReset returns true once the window has elapsed.
func (a AttemptRecord) ShouldReset() bool {
	return time.Now().After(a.ResetAt)
}

// IsBlocked returns true if the count has reached or exceeded limit.
func (a AttemptRecord) IsBlocked(limit int) bool {
	return a.Count >= limit
}

// TimeUntilReset returns the duration until the window ends, or zero.
func (a AttemptRecord) TimeUntilReset() time.Duration {
	remaining := time.Until(a.ResetAt)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Increment returns the record with one more request counted. An expired
// record starts a fresh window of the given length instead.
func (a AttemptRecord) Increment(window time.Duration) AttemptRecord {
	if a.ShouldReset() {
		return NewAttemptRecord(window)
	}
	return AttemptRecord{
		Count:   a.Count + 1,
		ResetAt: a.ResetAt,
	}
}
