package pipeline

import "time"

// EventType names a step in a run's lifecycle.
type EventType string

const (
	EventRunStarted      EventType = "run_started"
	EventAttemptStarted  EventType = "attempt_started"
	EventStageSubmitted  EventType = "stage_submitted"
	EventStageGenerating EventType = "stage_generating"
	EventStageCompleted  EventType = "stage_completed"
	EventAttemptFailed   EventType = "attempt_failed"
	EventRunFinished     EventType = "run_finished"
)

// ProgressEvent describes one step of a run. Zero-valued fields do not
// apply to the event type.
type ProgressEvent struct {
	RunID     string        `json:"run_id"`
	Type      EventType     `json:"type"`
	Time      time.Time     `json:"time"`
	Address   string        `json:"address,omitempty"`
	Position  int           `json:"position,omitempty"`
	Attempt   int           `json:"attempt,omitempty"`
	Stage     string        `json:"stage,omitempty"`
	ErrorKind string        `json:"error_kind,omitempty"`
	Message   string        `json:"message,omitempty"`
	Elapsed   time.Duration `json:"elapsed,omitempty"`
	Success   bool          `json:"success,omitempty"`
}

// ProgressReporter receives progress events. Report must not block.
type ProgressReporter interface {
	Report(ProgressEvent)
}

// Reporters fans each event out to every non-nil reporter, in order.
func Reporters(rs ...ProgressReporter) ProgressReporter {
	var live multiReporter
	for _, r := range rs {
		if r != nil {
			live = append(live, r)
		}
	}
	return live
}

type multiReporter []ProgressReporter

func (m multiReporter) Report(ev ProgressEvent) {
	for _, r := range m {
		r.Report(ev)
	}
}
