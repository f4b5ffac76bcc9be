package shutdown

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func TestManager_Defaults(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t))

	if m.timeout != 60*time.Second {
		t.Errorf("timeout = %v, want 60s", m.timeout)
	}
	if m.IsShuttingDown() {
		t.Error("new manager is shutting down")
	}
	if m.Context().Err() != nil {
		t.Error("context cancelled before shutdown")
	}

	m = NewManager(nil, WithTimeout(5*time.Second))
	if m.timeout != 5*time.Second {
		t.Errorf("timeout = %v, want 5s", m.timeout)
	}
}

func TestManager_ShutdownSequence(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	m := NewManager(zap.New(core), WithTimeout(2*time.Second))

	var order []string
	m.Register("logger", 90, func(context.Context) error { order = append(order, "logger"); return nil })
	m.Register("http", 10, func(context.Context) error { order = append(order, "http"); return nil })

	release, ok := m.Begin()
	if !ok {
		t.Fatal("Begin rejected before shutdown")
	}
	if m.ActiveOperations() != 1 {
		t.Errorf("ActiveOperations() = %d, want 1", m.ActiveOperations())
	}

	var drained atomic.Bool
	go func() {
		time.Sleep(20 * time.Millisecond)
		drained.Store(true)
		release()
	}()

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if !drained.Load() {
		t.Error("Shutdown returned before the run released")
	}
	if !reflect.DeepEqual(order, []string{"http", "logger"}) {
		t.Errorf("hook order = %v", order)
	}
	if m.Context().Err() == nil {
		t.Error("context not cancelled by Shutdown")
	}
	if _, ok := m.Begin(); ok {
		t.Error("Begin admitted a run after Shutdown")
	}
	if logs.FilterMessage("shutdown complete").Len() != 1 {
		t.Error("missing completion log")
	}

	if err := m.Shutdown(); err != nil {
		t.Errorf("second Shutdown() = %v, want nil", err)
	}
}

func TestManager_ShutdownReportsHookErrors(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), WithTimeout(time.Second))
	m.Register("bad", 1, func(context.Context) error { return errors.New("nope") })

	if err := m.Shutdown(); err == nil {
		t.Error("Shutdown() = nil, want error")
	}
}

func TestManager_DrainTimeoutStillRunsHooks(t *testing.T) {
	m := NewManager(zaptest.NewLogger(t), WithTimeout(30*time.Millisecond))
	release, _ := m.Begin()
	defer release()

	var hookCtxErr error
	m.Register("http", 10, func(ctx context.Context) error {
		hookCtxErr = ctx.Err()
		return nil
	})

	if err := m.Shutdown(); err != nil {
		t.Fatalf("Shutdown() = %v", err)
	}
	if hookCtxErr != nil {
		t.Errorf("hook got a dead context: %v", hookCtxErr)
	}
}

func TestManager_Trigger(t *testing.T) {
	m := NewManager(nil)
	m.Trigger()

	select {
	case <-m.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("Trigger did not cancel the context")
	}
}

func TestManager_SignalHandling(t *testing.T) {
	exitCode := make(chan int, 1)
	m := NewManager(zaptest.NewLogger(t),
		WithSignals(os.Interrupt),
		WithExit(func(code int) { exitCode <- code }))
	m.Start()
	m.Start()

	m.sigCh <- syscall.SIGTERM
	select {
	case <-m.Context().Done():
	case <-time.After(time.Second):
		t.Fatal("first signal did not cancel the context")
	}

	m.sigCh <- os.Interrupt
	select {
	case code := <-exitCode:
		if code != 130 {
			t.Errorf("exit code = %d, want 130", code)
		}
	case <-time.After(time.Second):
		t.Fatal("second signal did not force an exit")
	}
}
