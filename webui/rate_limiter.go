package webui

import (
	"context"
	"sync"
	"time"

	"fluxrelay/core"
)

// RateLimiter caps generation requests per client in a fixed window.
type RateLimiter struct {
	mu          sync.Mutex
	records     map[string]core.AttemptRecord
	maxRequests int
	window      time.Duration
}

// NewRateLimiter allows maxRequests per client every windowMinutes.
func NewRateLimiter(maxRequests, windowMinutes int) *RateLimiter {
	return &RateLimiter{
		records:     make(map[string]core.AttemptRecord),
		maxRequests: maxRequests,
		window:      time.Duration(windowMinutes) * time.Minute,
	}
}

// Allow counts a request from client. It returns false and the time until
// the window resets once the client is over its limit.
func (r *RateLimiter) Allow(client string) (bool, time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, exists := r.records[client]
	if !exists || record.ShouldReset() {
		r.records[client] = core.NewAttemptRecord(r.window)
		return true, 0
	}

	if record.IsBlocked(r.maxRequests) {
		return false, record.TimeUntilReset()
	}

	r.records[client] = record.Increment(r.window)
	return true, 0
}

// Reset forgets client.
func (r *RateLimiter) Reset(client string) {
	r.mu.Lock()
	delete(r.records, client)
	r.mu.Unlock()
}

// Cleanup drops expired records and returns how many were removed.
func (r *RateLimiter) Cleanup() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for client, record := range r.records {
		if record.ShouldReset() {
			delete(r.records, client)
			removed++
		}
	}
	return removed
}

// StartCleanupTicker runs Cleanup every interval until ctx is done.
func (r *RateLimiter) StartCleanupTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.Cleanup()
			}
		}
	}()
}

// Count returns the number of tracked clients.
func (r *RateLimiter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}
