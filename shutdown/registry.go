package shutdown

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"fluxrelay/core"
)

type hook struct {
	name     string
	priority int
	fn       core.ShutdownFunc
}

// Hooks is an ordered set of cleanup functions. Lower priorities run
// first; equal priorities run in registration order.
//
// Priorities used by fluxrelay:
//   - 10: stop the HTTP server and the websocket hub
//   - 90: flush the logger
type Hooks struct {
	mu    sync.Mutex
	hooks []hook
	ran   bool
}

// NewHooks returns an empty set.
func NewHooks() *Hooks {
	return &Hooks{}
}

// Add registers fn. Adding after Run is a no-op.
func (h *Hooks) Add(name string, priority int, fn core.ShutdownFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ran {
		return
	}
	h.hooks = append(h.hooks, hook{name: name, priority: priority, fn: fn})
}

// Run calls every hook once, in order, even when earlier ones fail. Each
// failure is returned wrapped with the hook's name. A second Run returns
// nil without calling anything.
func (h *Hooks) Run(ctx context.Context) []error {
	h.mu.Lock()
	if h.ran {
		h.mu.Unlock()
		return nil
	}
	h.ran = true
	ordered := h.sorted()
	h.mu.Unlock()

	var errs []error
	for _, hk := range ordered {
		if err := hk.fn(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", hk.name, err))
		}
	}
	return errs
}

// Names lists hook names in execution order.
func (h *Hooks) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	ordered := h.sorted()
	names := make([]string, len(ordered))
	for i, hk := range ordered {
		names[i] = hk.name
	}
	return names
}

// Len returns the number of registered hooks.
func (h *Hooks) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.hooks)
}

// sorted must be called with h.mu held.
func (h *Hooks) sorted() []hook {
	ordered := slices.Clone(h.hooks)
	slices.SortStableFunc(ordered, func(a, b hook) int {
		return a.priority - b.priority
	})
	return ordered
}
