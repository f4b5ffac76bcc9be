// Package metrics keeps in-memory run statistics built from pipeline
// progress events: run outcomes, attempt counts and per-address failures.
package metrics

import "time"

// RunRecord is one finished run.
type RunRecord struct {
	RunID    string        `json:"run_id"`
	Success  bool          `json:"success"`
	Attempts int           `json:"attempts"`
	Elapsed  time.Duration `json:"elapsed"`
	Finished time.Time     `json:"finished"`
	Message  string        `json:"message,omitempty"`
}

// AddressStats aggregates attempts made from one egress address.
type AddressStats struct {
	Address           string    `json:"address"`
	Attempts          int64     `json:"attempts"`
	Failures          int64     `json:"failures"`
	ResourceExhausted int64     `json:"resource_exhausted"`
	LastFailureKind   string    `json:"last_failure_kind,omitempty"`
	LastFailure       time.Time `json:"last_failure,omitempty"`
}

// RunMetrics aggregates finished runs.
type RunMetrics struct {
	Total          int64            `json:"total"`
	Succeeded      int64            `json:"succeeded"`
	Failed         int64            `json:"failed"`
	InFlight       int              `json:"in_flight"`
	SuccessRate    float64          `json:"success_rate"`
	AvgDuration    time.Duration    `json:"avg_duration"`
	Attempts       int64            `json:"attempts"`
	FailuresByKind map[string]int64 `json:"failures_by_kind"`
}

// Snapshot is the JSON body served at /stats.
type Snapshot struct {
	Uptime    string         `json:"uptime"`
	Runs      RunMetrics     `json:"runs"`
	Addresses []AddressStats `json:"addresses"`
	Recent    []RunRecord    `json:"recent"`
}
