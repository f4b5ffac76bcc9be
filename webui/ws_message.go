package webui

import (
	"time"

	"fluxrelay/pipeline"
)

// WebSocket message types.
const (
	// MessageTypeProgress carries one pipeline.ProgressEvent.
	MessageTypeProgress = "progress"

	// MessageTypeInitial is sent once on connect with recent events.
	MessageTypeInitial = "initial"

	// MessageTypeError reports a server-side problem to clients.
	MessageTypeError = "error"
)

// WSMessage is the envelope for every message sent over /ws.
type WSMessage struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data,omitempty"`
}

// NewWSMessage creates a message stamped with the current time.
func NewWSMessage(msgType string, data any) WSMessage {
	return WSMessage{
		Type:      msgType,
		Timestamp: time.Now(),
		Data:      data,
	}
}

// InitialData is the snapshot a client receives when it connects.
type InitialData struct {
	Addresses  int                      `json:"addresses"`
	ActiveRuns int64                    `json:"active_runs"`
	Recent     []pipeline.ProgressEvent `json:"recent"`
}

// ErrorCodeShuttingDown is sent to every client before the feed closes.
const ErrorCodeShuttingDown = "shutting_down"

// ErrorData describes a server-side error.
type ErrorData struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewProgressMessage wraps a pipeline progress event.
func NewProgressMessage(ev pipeline.ProgressEvent) WSMessage {
	return NewWSMessage(MessageTypeProgress, ev)
}

// NewInitialMessage creates the on-connect snapshot message.
func NewInitialMessage(data InitialData) WSMessage {
	return NewWSMessage(MessageTypeInitial, data)
}

// NewErrorMessage creates an error message.
func NewErrorMessage(code, message string) WSMessage {
	return NewWSMessage(MessageTypeError, ErrorData{Code: code, Message: message})
}
