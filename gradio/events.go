package gradio

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"strings"

	"go.uber.org/zap"

	"fluxrelay/logging"
)

// Message types found in the queue/data stream.
const (
	MsgProcessCompleted  = "process_completed"
	MsgProcessGenerating = "process_generating"
	MsgQueueFull         = "queue_full"
)

const (
	dataPrefix = "data:"

	// maxLineBytes bounds one stream line; completed records can carry
	// inline file payloads.
	maxLineBytes = 8 << 20
)

// RemoteEvent is one decoded record from the queue/data stream.
type RemoteEvent struct {
	EventID string       `json:"event_id"`
	Msg     string       `json:"msg"`
	Success bool         `json:"success"`
	Output  *EventOutput `json:"output,omitempty"`
}

// EventOutput is the payload of a process_completed record.
type EventOutput struct {
	Data  []json.RawMessage `json:"data"`
	Error remoteText        `json:"error"`
}

// remoteText accepts a JSON string, null, or any other value (kept as raw
// JSON text). Gradio versions disagree on the shape of error fields.
type remoteText string

func (t *remoteText) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		*t = remoteText(s)
		return nil
	}
	*t = remoteText(b)
	return nil
}

// EventScanner reads queue/data records one line at a time, so a record is
// available as soon as its line arrives even while the stream stays open.
// Lines that fail to decode are logged and skipped; other lines are ignored.
type EventScanner struct {
	scanner *bufio.Scanner
	logger  *logging.Logger
	event   RemoteEvent
}

// NewEventScanner reads from r. A nil logger discards decode warnings.
func NewEventScanner(r io.Reader, logger *logging.Logger) *EventScanner {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	if logger == nil {
		logger = logging.NewNop()
	}
	return &EventScanner{scanner: scanner, logger: logger}
}

// Next advances to the next decodable record. It returns false at the end
// of the stream or on a read error; check Err afterwards.
func (s *EventScanner) Next() bool {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}

		var ev RemoteEvent
		if err := json.Unmarshal([]byte(strings.TrimSpace(line[len(dataPrefix):])), &ev); err != nil {
			s.logger.Warn("skipping undecodable event line",
				zap.String("line", truncate(line, 200)),
				zap.Error(err))
			continue
		}
		s.event = ev
		return true
	}
	return false
}

// Event returns the record found by the last successful Next.
func (s *EventScanner) Event() RemoteEvent {
	return s.event
}

// Err returns the read error that stopped the scan, if any.
func (s *EventScanner) Err() error {
	return s.scanner.Err()
}
