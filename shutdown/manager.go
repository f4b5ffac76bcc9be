package shutdown

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"go.uber.org/zap"

	"fluxrelay/core"
)

// Manager ties signal handling, run tracking and cleanup hooks together.
//
//	m := shutdown.NewManager(logger, shutdown.WithTimeout(cfg.ShutdownTimeout))
//	m.Register("http", 10, shutdown.StopServer(server))
//	m.Start()
//	<-m.Context().Done()
//	err := m.Shutdown()
type Manager struct {
	logger  *zap.Logger
	timeout time.Duration
	exit    func(code int)
	signals []os.Signal

	mu       sync.Mutex
	started  bool
	stopping bool

	ctx    context.Context
	cancel context.CancelFunc

	tracker *RunTracker
	hooks   *Hooks
	counter *signalCounter
	sigCh   chan os.Signal
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithTimeout bounds the drain and the cleanup hooks together. Default 60s.
func WithTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		if timeout > 0 {
			m.timeout = timeout
		}
	}
}

// WithExit replaces os.Exit for the forced exit on a repeated signal.
func WithExit(exit func(code int)) ManagerOption {
	return func(m *Manager) {
		m.exit = exit
	}
}

// WithSignals replaces the default SIGINT/SIGTERM set.
func WithSignals(sigs ...os.Signal) ManagerOption {
	return func(m *Manager) {
		m.signals = sigs
	}
}

// NewManager returns a Manager that is not yet listening for signals.
func NewManager(logger *zap.Logger, opts ...ManagerOption) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())

	m := &Manager{
		logger:  logger,
		timeout: 60 * time.Second,
		exit:    os.Exit,
		signals: []os.Signal{os.Interrupt, syscall.SIGTERM},
		ctx:     ctx,
		cancel:  cancel,
		tracker: NewRunTracker(),
		hooks:   NewHooks(),
		sigCh:   make(chan os.Signal, 2),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.counter = newSignalCounter(2, func(sig os.Signal) {
		m.logger.Warn("second signal received, exiting without cleanup",
			zap.String("signal", sig.String()))
		m.exit(exitCodeFor(sig))
	})
	return m
}

func exitCodeFor(sig os.Signal) int {
	switch sig {
	case os.Interrupt:
		return core.ExitCodeSIGINT
	case syscall.SIGTERM:
		return core.ExitCodeSIGTERM
	default:
		return core.ExitCodeError
	}
}

// Context is cancelled when shutdown begins.
func (m *Manager) Context() context.Context {
	return m.ctx
}

// Register adds a cleanup hook. Lower priorities run first.
func (m *Manager) Register(name string, priority int, fn core.ShutdownFunc) {
	m.hooks.Add(name, priority, fn)
	m.logger.Debug("shutdown hook registered",
		zap.String("name", name),
		zap.Int("priority", priority))
}

// Start listens for the configured signals. The first cancels Context;
// the second exits the process. Calling Start again does nothing.
func (m *Manager) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.started {
		return
	}
	m.started = true

	signal.Notify(m.sigCh, m.signals...)
	go m.watch()
}

// watch keeps counting after cancellation so a second signal still forces
// an exit during a slow drain.
func (m *Manager) watch() {
	for sig := range m.sigCh {
		m.handleSignal(sig)
	}
}

func (m *Manager) handleSignal(sig os.Signal) {
	if m.counter.observe(sig) == 1 {
		m.logger.Info("shutdown signal received", zap.String("signal", sig.String()))
		m.cancel()
	}
}

// Trigger begins shutdown without a signal, as an OS service stop does.
func (m *Manager) Trigger() {
	m.cancel()
}

// Shutdown closes admission, waits for in-flight runs and runs the hooks,
// all within the configured timeout. It returns an error when a hook fails.
// Only the first call does any work.
func (m *Manager) Shutdown() error {
	m.mu.Lock()
	if m.stopping {
		m.mu.Unlock()
		return nil
	}
	m.stopping = true
	m.mu.Unlock()

	m.cancel()
	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	m.tracker.Close()
	if active := m.tracker.Active(); active > 0 {
		m.logger.Info("waiting for in-flight runs", zap.Int64("active", active))
	}
	if err := m.tracker.Wait(ctx); err != nil {
		m.logger.Warn("in-flight runs did not finish in time",
			zap.Duration("waited", time.Since(start)),
			zap.Int64("remaining", m.tracker.Active()))
	}

	// Hooks always get at least a second, even after a slow drain.
	hookCtx := ctx
	if remaining := time.Until(start.Add(m.timeout)); remaining < time.Second {
		var hookCancel context.CancelFunc
		hookCtx, hookCancel = context.WithTimeout(context.Background(), time.Second)
		defer hookCancel()
	}

	m.logger.Info("running shutdown hooks", zap.Strings("hooks", m.hooks.Names()))
	errs := m.hooks.Run(hookCtx)
	for _, err := range errs {
		m.logger.Error("shutdown hook failed", zap.Error(err))
	}

	if m.started {
		signal.Stop(m.sigCh)
	}

	if len(errs) > 0 {
		return fmt.Errorf("shutdown finished with %d failed hooks", len(errs))
	}
	m.logger.Info("shutdown complete", zap.Duration("duration", time.Since(start)))
	return nil
}

// Begin admits a generation run; see RunTracker.Begin.
func (m *Manager) Begin() (release func(), ok bool) {
	release, ok = m.tracker.Begin()
	if !ok {
		m.logger.Debug("run rejected during shutdown")
	}
	return release, ok
}

// ActiveOperations returns the number of in-flight runs.
func (m *Manager) ActiveOperations() int64 {
	return m.tracker.Active()
}

// IsShuttingDown reports whether Shutdown has started.
func (m *Manager) IsShuttingDown() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopping
}

// RegisteredHooks lists hook names in execution order.
func (m *Manager) RegisteredHooks() []string {
	return m.hooks.Names()
}
