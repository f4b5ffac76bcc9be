// Package shutdown coordinates a graceful stop: it admits generation runs
// while the process is serving, waits for the admitted ones to drain, and
// then runs registered cleanup hooks in priority order.
package shutdown

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrTrackerClosed is returned when a run is offered after Close.
var ErrTrackerClosed = errors.New("run tracker is closed")

// RunTracker counts in-flight runs.
//
//	release, ok := tracker.Begin()
//	if !ok {
//	    return // shutting down
//	}
//	defer release()
type RunTracker struct {
	wg     sync.WaitGroup
	mu     sync.RWMutex
	active atomic.Int64
	closed bool
}

// NewRunTracker returns an open tracker.
func NewRunTracker() *RunTracker {
	return &RunTracker{}
}

// Begin admits a run. The returned release must be called when the run
// ends; calling it more than once is harmless. ok is false once the
// tracker is closed.
func (t *RunTracker) Begin() (release func(), ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if t.closed {
		return nil, false
	}

	t.wg.Add(1)
	t.active.Add(1)

	var once sync.Once
	return func() {
		once.Do(func() {
			t.active.Add(-1)
			t.wg.Done()
		})
	}, true
}

// Wait blocks until every admitted run has released or ctx is done.
func (t *RunTracker) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops admitting runs. Runs already admitted are unaffected.
func (t *RunTracker) Close() {
	t.mu.Lock()
	t.closed = true
	t.mu.Unlock()
}

// Active returns the number of admitted runs that have not released.
func (t *RunTracker) Active() int64 {
	return t.active.Load()
}

// IsClosed reports whether Close has been called.
func (t *RunTracker) IsClosed() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.closed
}
