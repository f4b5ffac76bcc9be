// Package validation runs the startup checks and prints them as a
// colored summary on the console before the server starts.
package validation

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
)

// StepStatus is the outcome of one check.
type StepStatus int

const (
	StepPassed StepStatus = iota
	StepWarning
	StepFailed
	StepSkipped
)

// String returns the lower-case status name.
func (s StepStatus) String() string {
	switch s {
	case StepPassed:
		return "passed"
	case StepWarning:
		return "warning"
	case StepFailed:
		return "failed"
	case StepSkipped:
		return "skipped"
	default:
		return "unknown"
	}
}

// Step is one completed check.
type Step struct {
	Name    string
	Status  StepStatus
	Message string
	Error   error
	Latency time.Duration
}

// Check runs one startup check. Name and Latency are filled in by the
// Suite.
type Check func(ctx context.Context) Step

// Result summarizes a Suite run. Warnings do not clear Success.
type Result struct {
	Steps    []Step
	Passed   int
	Warnings int
	Failed   int
	Duration time.Duration
	Success  bool
}

type namedCheck struct {
	name  string
	check Check
}

// Suite runs checks in order and prints each as it completes.
type Suite struct {
	title  string
	output io.Writer
	checks []namedCheck
}

// NewSuite returns a suite that prints to stdout.
func NewSuite(title string) *Suite {
	return &Suite{title: title, output: os.Stdout}
}

// WithOutput redirects the printed summary. A nil writer silences it.
func (s *Suite) WithOutput(w io.Writer) *Suite {
	if w == nil {
		w = io.Discard
	}
	s.output = w
	return s
}

// Add appends a check.
func (s *Suite) Add(name string, check Check) *Suite {
	s.checks = append(s.checks, namedCheck{name: name, check: check})
	return s
}

// Run executes every check, even after a failure.
func (s *Suite) Run(ctx context.Context) Result {
	start := time.Now()
	result := Result{Success: true}

	s.printHeader()
	for _, c := range s.checks {
		stepStart := time.Now()
		step := c.check(ctx)
		step.Name = c.name
		step.Latency = time.Since(stepStart)

		switch step.Status {
		case StepPassed:
			result.Passed++
		case StepWarning:
			result.Warnings++
		case StepFailed:
			result.Failed++
			result.Success = false
		}
		result.Steps = append(result.Steps, step)
		s.printStep(step)
	}

	result.Duration = time.Since(start)
	s.printSummary(result)
	return result
}

func (s *Suite) printHeader() {
	fmt.Fprintln(s.output)
	color.New(color.FgCyan, color.Bold).Fprintf(s.output, "━━━ %s ━━━\n", s.title)
	fmt.Fprintln(s.output)
}

func (s *Suite) printStep(step Step) {
	var icon string
	var clr *color.Color

	switch step.Status {
	case StepPassed:
		icon, clr = "✓", color.New(color.FgGreen)
	case StepWarning:
		icon, clr = "!", color.New(color.FgYellow)
	case StepFailed:
		icon, clr = "✗", color.New(color.FgRed)
	default:
		icon, clr = "○", color.New(color.FgHiBlack)
	}

	clr.Fprintf(s.output, "  %s %s", icon, step.Name)
	if step.Message != "" {
		color.New(color.FgHiBlack).Fprintf(s.output, " - %s", step.Message)
	}
	fmt.Fprintln(s.output)

	if step.Error != nil && step.Status != StepPassed {
		clr.Fprintf(s.output, "    └─ %s\n", step.Error)
	}
}

func (s *Suite) printSummary(r Result) {
	fmt.Fprintln(s.output)
	if r.Success {
		ok := color.New(color.FgGreen, color.Bold)
		ok.Fprint(s.output, "━━━ Ready ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d warnings in %v)",
			r.Passed, r.Warnings, r.Duration.Round(time.Millisecond))
		ok.Fprintln(s.output, " ━━━")
	} else {
		bad := color.New(color.FgRed, color.Bold)
		bad.Fprint(s.output, "━━━ Startup checks failed ")
		color.New(color.FgHiBlack).Fprintf(s.output, "(%d passed, %d failed)", r.Passed, r.Failed)
		bad.Fprintln(s.output, " ━━━")
	}
	fmt.Fprintln(s.output)
}

// Errors returns the errors of failed steps.
func (r Result) Errors() []error {
	var errs []error
	for _, step := range r.Steps {
		if step.Status == StepFailed && step.Error != nil {
			errs = append(errs, step.Error)
		}
	}
	return errs
}
