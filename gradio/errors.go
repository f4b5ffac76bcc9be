// Package gradio talks to remote Gradio queue services: it submits jobs to
// /gradio_api/queue/join, follows them on /gradio_api/queue/data and tags
// every failure with the kind the rotation logic acts on.
package gradio

import (
	"errors"
	"fmt"
)

// Kind tells the caller how to react to a failed remote call.
type Kind int

const (
	// KindUnknown is reported for errors that did not come from this package.
	KindUnknown Kind = iota

	// KindResourceExhausted means the remote side is out of quota, GPU or
	// queue capacity for the current source address. Retrying from the
	// same address is pointless.
	KindResourceExhausted

	// KindTransport covers connection faults, timeouts and unreadable
	// protocol responses.
	KindTransport

	// KindLogical means the remote side answered but the answer is not
	// usable: a rejected submission, a failed job or a malformed output.
	KindLogical
)

// String returns a short name used in logs and progress events.
func (k Kind) String() string {
	switch k {
	case KindResourceExhausted:
		return "resource_exhausted"
	case KindTransport:
		return "transport"
	case KindLogical:
		return "logical"
	default:
		return "unknown"
	}
}

// Sentinel errors wrapped by JobError.
var (
	ErrMissingHandle = errors.New("gradio: job handle has no event id")
	ErrEmptyOutput   = errors.New("gradio: completed job returned no usable output")
	ErrQueueFull     = errors.New("gradio: remote queue is full")
	ErrPollTimeout   = errors.New("gradio: no completion within the polling budget")
)

// JobError is the error type returned by Submit and Await.
type JobError struct {
	Kind    Kind
	Service string
	Message string
	Err     error
}

func (e *JobError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s call failed (%s)", e.Service, e.Kind)
}

func (e *JobError) Unwrap() error {
	return e.Err
}

// NewJobError builds a JobError.
func NewJobError(kind Kind, service, message string, err error) *JobError {
	return &JobError{Kind: kind, Service: service, Message: message, Err: err}
}

// KindOf returns the Kind of the first JobError in err's chain, or
// KindUnknown.
func KindOf(err error) Kind {
	var jobErr *JobError
	if errors.As(err, &jobErr) {
		return jobErr.Kind
	}
	return KindUnknown
}

// IsResourceExhausted reports whether err should rotate to the next address.
func IsResourceExhausted(err error) bool {
	return KindOf(err) == KindResourceExhausted
}
