package shutdown

import (
	"os"
	"sync"
)

// signalCounter implements "first signal drains, second signal exits".
type signalCounter struct {
	mu         sync.Mutex
	count      int
	forceAfter int
	onForce    func(os.Signal)
}

func newSignalCounter(forceAfter int, onForce func(os.Signal)) *signalCounter {
	return &signalCounter{forceAfter: forceAfter, onForce: onForce}
}

// observe records sig and returns the running count. onForce fires each
// time the count reaches forceAfter or beyond.
func (s *signalCounter) observe(sig os.Signal) int {
	s.mu.Lock()
	s.count++
	count := s.count
	force := s.onForce != nil && count >= s.forceAfter
	s.mu.Unlock()

	if force {
		s.onForce(sig)
	}
	return count
}
