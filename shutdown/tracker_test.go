package shutdown

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func TestRunTracker_BeginRelease(t *testing.T) {
	tracker := NewRunTracker()

	release, ok := tracker.Begin()
	if !ok {
		t.Fatal("Begin on open tracker returned false")
	}
	if tracker.Active() != 1 {
		t.Errorf("Active() = %d, want 1", tracker.Active())
	}

	release()
	release()
	if tracker.Active() != 0 {
		t.Errorf("Active() after double release = %d, want 0", tracker.Active())
	}
}

func TestRunTracker_ClosedRejects(t *testing.T) {
	tracker := NewRunTracker()
	tracker.Close()

	release, ok := tracker.Begin()
	if ok || release != nil {
		t.Error("Begin after Close should be rejected")
	}
	if !tracker.IsClosed() {
		t.Error("IsClosed() = false after Close")
	}
}

func TestRunTracker_WaitDrains(t *testing.T) {
	tracker := NewRunTracker()
	release, _ := tracker.Begin()
	tracker.Close()

	go func() {
		time.Sleep(20 * time.Millisecond)
		release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := tracker.Wait(ctx); err != nil {
		t.Fatalf("Wait() = %v, want nil", err)
	}
}

func TestRunTracker_WaitTimeout(t *testing.T) {
	tracker := NewRunTracker()
	release, _ := tracker.Begin()
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if err := tracker.Wait(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Wait() = %v, want DeadlineExceeded", err)
	}
}

func TestRunTracker_Concurrent(t *testing.T) {
	tracker := NewRunTracker()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if release, ok := tracker.Begin(); ok {
				release()
			}
		}()
	}
	wg.Wait()

	if tracker.Active() != 0 {
		t.Errorf("Active() = %d, want 0", tracker.Active())
	}
}
