package pipeline

import "testing"

type reporterFunc func(ProgressEvent)

func (f reporterFunc) Report(ev ProgressEvent) { f(ev) }

func TestReporters_FanOut(t *testing.T) {
	var a, b []EventType
	r := Reporters(
		reporterFunc(func(ev ProgressEvent) { a = append(a, ev.Type) }),
		nil,
		reporterFunc(func(ev ProgressEvent) { b = append(b, ev.Type) }),
	)

	r.Report(ProgressEvent{Type: EventRunStarted})
	r.Report(ProgressEvent{Type: EventRunFinished})

	if len(a) != 2 || len(b) != 2 || a[1] != EventRunFinished || b[0] != EventRunStarted {
		t.Errorf("a=%v b=%v", a, b)
	}
}

func TestReporters_Empty(t *testing.T) {
	Reporters().Report(ProgressEvent{Type: EventRunStarted})
	Reporters(nil).Report(ProgressEvent{Type: EventRunStarted})
}
