package metrics

import (
	"slices"
	"strings"
	"sync"
	"time"

	"fluxrelay/gradio"
	"fluxrelay/pipeline"
)

// StoreConfig configures a Store.
type StoreConfig struct {
	// RecentRuns is how many finished runs Snapshot lists.
	RecentRuns int
}

// DefaultStoreConfig returns a default configuration.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{RecentRuns: 20}
}

// Store aggregates progress events. It implements pipeline.ProgressReporter
// and is safe for concurrent use.
//
//	stats := metrics.NewStore(metrics.DefaultStoreConfig(), time.Now())
//	orch.SetReporter(pipeline.Reporters(broadcaster, stats))
type Store struct {
	mu sync.RWMutex

	recent []RunRecord
	recCap int
	head   int
	size   int

	total         int64
	succeeded     int64
	attempts      int64
	totalDuration time.Duration
	byKind        map[string]int64

	addresses map[string]*AddressStats
	inFlight  map[string]int // run id → attempts so far

	startTime time.Time
}

// NewStore creates an empty Store. startTime is used for uptime.
func NewStore(config StoreConfig, startTime time.Time) *Store {
	capacity := config.RecentRuns
	if capacity < 1 {
		capacity = DefaultStoreConfig().RecentRuns
	}
	return &Store{
		recent:    make([]RunRecord, capacity),
		recCap:    capacity,
		byKind:    make(map[string]int64),
		addresses: make(map[string]*AddressStats),
		inFlight:  make(map[string]int),
		startTime: startTime,
	}
}

// Report folds one event into the statistics.
func (s *Store) Report(ev pipeline.ProgressEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch ev.Type {
	case pipeline.EventRunStarted:
		s.inFlight[ev.RunID] = 0

	case pipeline.EventAttemptStarted:
		s.inFlight[ev.RunID]++
		s.attempts++
		s.address(ev.Address).Attempts++

	case pipeline.EventAttemptFailed:
		a := s.address(ev.Address)
		a.Failures++
		a.LastFailureKind = ev.ErrorKind
		a.LastFailure = ev.Time
		if ev.ErrorKind == gradio.KindResourceExhausted.String() {
			a.ResourceExhausted++
		}
		s.byKind[ev.ErrorKind]++

	case pipeline.EventRunFinished:
		s.recordRun(RunRecord{
			RunID:    ev.RunID,
			Success:  ev.Success,
			Attempts: s.inFlight[ev.RunID],
			Elapsed:  ev.Elapsed,
			Finished: ev.Time,
			Message:  ev.Message,
		})
		delete(s.inFlight, ev.RunID)
	}
}

func (s *Store) address(addr string) *AddressStats {
	if addr == "" {
		addr = "none"
	}
	a, ok := s.addresses[addr]
	if !ok {
		a = &AddressStats{Address: addr}
		s.addresses[addr] = a
	}
	return a
}

func (s *Store) recordRun(r RunRecord) {
	s.recent[s.head] = r
	s.head = (s.head + 1) % s.recCap
	if s.size < s.recCap {
		s.size++
	}

	s.total++
	if r.Success {
		s.succeeded++
	}
	s.totalDuration += r.Elapsed
}

// RunMetrics returns the run aggregates.
func (s *Store) RunMetrics() RunMetrics {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runMetrics()
}

func (s *Store) runMetrics() RunMetrics {
	m := RunMetrics{
		Total:          s.total,
		Succeeded:      s.succeeded,
		Failed:         s.total - s.succeeded,
		InFlight:       len(s.inFlight),
		Attempts:       s.attempts,
		FailuresByKind: make(map[string]int64, len(s.byKind)),
	}
	if s.total > 0 {
		m.SuccessRate = float64(s.succeeded) / float64(s.total) * 100
		m.AvgDuration = s.totalDuration / time.Duration(s.total)
	}
	for k, v := range s.byKind {
		m.FailuresByKind[k] = v
	}
	return m
}

// RecentRuns returns up to limit finished runs, most recent first.
func (s *Store) RecentRuns(limit int) []RunRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.recentRuns(limit)
}

func (s *Store) recentRuns(limit int) []RunRecord {
	if limit <= 0 || s.size == 0 {
		return []RunRecord{}
	}
	limit = min(limit, s.size)

	out := make([]RunRecord, limit)
	for i := 0; i < limit; i++ {
		out[i] = s.recent[(s.head-1-i+s.recCap)%s.recCap]
	}
	return out
}

// AddressStats returns per-address aggregates sorted by address.
func (s *Store) AddressStats() []AddressStats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addressStats()
}

func (s *Store) addressStats() []AddressStats {
	out := make([]AddressStats, 0, len(s.addresses))
	for _, a := range s.addresses {
		out = append(out, *a)
	}
	slices.SortFunc(out, func(a, b AddressStats) int {
		return strings.Compare(a.Address, b.Address)
	})
	return out
}

// Snapshot returns everything at once under a single lock.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
		Runs:      s.runMetrics(),
		Addresses: s.addressStats(),
		Recent:    s.recentRuns(s.recCap),
	}
}
