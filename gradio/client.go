package gradio

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"fluxrelay/core"
	"fluxrelay/logging"
)

const (
	joinPath = "/gradio_api/queue/join"
	dataPath = "/gradio_api/queue/data"

	// maxBodyBytes caps how much of a response is read into memory.
	maxBodyBytes = 8 << 20

	resourceMessageLimit  = 150
	transportMessageLimit = 100
	snippetLimit          = 200
)

// Config holds the queue protocol timing.
type Config struct {
	SubmitTimeout time.Duration

	// PollCycleTimeout is how long one queue/data stream may go without
	// sending a byte before the cycle is retried.
	PollCycleTimeout   time.Duration
	PollMaxWait        time.Duration
	PollInterval       time.Duration
	PollTimeoutBackoff time.Duration
	ProgressInterval   time.Duration
}

// DefaultConfig returns the timing the public spaces are known to tolerate.
func DefaultConfig() Config {
	return Config{
		SubmitTimeout:      90 * time.Second,
		PollCycleTimeout:   30 * time.Second,
		PollMaxWait:        300 * time.Second,
		PollInterval:       2 * time.Second,
		PollTimeoutBackoff: 5 * time.Second,
		ProgressInterval:   5 * time.Second,
	}
}

// ConfigFrom copies the queue timing out of the application config.
func ConfigFrom(cfg *core.Config) Config {
	return Config{
		SubmitTimeout:      cfg.SubmitTimeout,
		PollCycleTimeout:   cfg.PollCycleTimeout,
		PollMaxWait:        cfg.PollMaxWait,
		PollInterval:       cfg.PollInterval,
		PollTimeoutBackoff: cfg.PollTimeoutBackoff,
		ProgressInterval:   cfg.ProgressInterval,
	}
}

// JobHandle identifies a submitted job within its session.
type JobHandle struct {
	EventID string
}

// SubmitRequest is one queue/join call.
type SubmitRequest struct {
	Service       core.ServiceConfig
	Payload       []any
	SessionHash   string
	SourceAddress string
}

// Client submits and follows jobs on Gradio queue services. It keeps no
// per-job state and is safe for concurrent use.
type Client struct {
	cfg    Config
	logger *logging.Logger

	newHTTPClient   func(sourceAddress string, timeout time.Duration) (*http.Client, error)
	newStreamClient func(sourceAddress string, headerTimeout time.Duration) (*http.Client, error)
}

// NewClient creates a Client. A nil logger discards output.
func NewClient(cfg Config, logger *logging.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Client{
		cfg:             cfg,
		logger:          logger,
		newHTTPClient:   core.GetHTTPClient,
		newStreamClient: core.GetStreamingHTTPClient,
	}
}

type joinRequest struct {
	Data        []any  `json:"data"`
	EventData   any    `json:"event_data"`
	FnIndex     int    `json:"fn_index"`
	SessionHash string `json:"session_hash"`
	TriggerID   *int   `json:"trigger_id,omitempty"`
}

type joinResponse struct {
	EventID string     `json:"event_id"`
	Error   remoteText `json:"error"`
}

// Submit enqueues a job on req.Service from req.SourceAddress and returns
// its handle. Every failure is a *JobError.
func (c *Client) Submit(ctx context.Context, req SubmitRequest) (JobHandle, error) {
	svc := req.Service
	log := c.logger.With(
		zap.String("service", svc.Name),
		zap.String("source_address", req.SourceAddress),
	)

	httpClient, err := c.newHTTPClient(req.SourceAddress, c.cfg.SubmitTimeout)
	if err != nil {
		return JobHandle{}, NewJobError(KindTransport, svc.Name, err.Error(), err)
	}
	defer httpClient.CloseIdleConnections()

	payload := req.Payload
	if payload == nil {
		payload = []any{}
	}
	body, err := json.Marshal(joinRequest{
		Data:        payload,
		FnIndex:     svc.FnIndex,
		SessionHash: req.SessionHash,
		TriggerID:   svc.TriggerID,
	})
	if err != nil {
		return JobHandle{}, NewJobError(KindLogical, svc.Name, fmt.Sprintf("failed to encode %s payload: %v", svc.Name, err), err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, serviceURL(svc, joinPath), bytes.NewReader(body))
	if err != nil {
		return JobHandle{}, NewJobError(KindLogical, svc.Name, fmt.Sprintf("failed to build queue/join request: %v", err), err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	log.Debug("submitting job", zap.Int("fn_index", svc.FnIndex))

	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return JobHandle{}, c.submitFault(ctx, svc, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return JobHandle{}, c.submitFault(ctx, svc, err)
	}

	var result joinResponse
	decodeErr := json.Unmarshal(raw, &result)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		text := string(result.Error)
		if decodeErr != nil || text == "" {
			text = fmt.Sprintf("%s: %s", resp.Status, truncate(strings.TrimSpace(string(raw)), snippetLimit))
		}
		return JobHandle{}, rejected(svc, text)
	}

	if decodeErr != nil {
		return JobHandle{}, NewJobError(KindTransport, svc.Name,
			fmt.Sprintf("invalid queue/join response from %s: %v", svc.Name, decodeErr), decodeErr)
	}

	if result.EventID == "" {
		if result.Error != "" {
			return JobHandle{}, rejected(svc, string(result.Error))
		}
		return JobHandle{}, NewJobError(KindLogical, svc.Name, "event_id not received from queue/join", ErrMissingHandle)
	}

	log.Debug("job queued", zap.String("event_id", result.EventID))
	return JobHandle{EventID: result.EventID}, nil
}

// rejected maps an error reported by queue/join.
func rejected(svc core.ServiceConfig, text string) error {
	if Classify(text) == CategoryResourceExhausted {
		return NewJobError(KindResourceExhausted, svc.Name,
			"server resource limit encountered: "+truncate(text, resourceMessageLimit), nil)
	}
	return NewJobError(KindLogical, svc.Name, "error from queue/join: "+text, nil)
}

// submitFault maps a failure to reach queue/join.
func (c *Client) submitFault(ctx context.Context, svc core.ServiceConfig, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewJobError(KindTransport, svc.Name, fmt.Sprintf("request to %s cancelled", svc.Name), ctxErr)
	}
	if isTimeout(err) {
		return NewJobError(KindTransport, svc.Name,
			fmt.Sprintf("connection to %s timed out after %s", svc.BaseURL, formatSeconds(c.cfg.SubmitTimeout)), err)
	}
	return networkFault(svc, "network error calling "+svc.Name, err)
}

// networkFault classifies a transport-level failure by its text.
func networkFault(svc core.ServiceConfig, prefix string, err error) error {
	detail := err.Error()
	if Classify(detail) == CategoryResourceExhausted {
		return NewJobError(KindResourceExhausted, svc.Name,
			prefix+" (resource limit): "+truncate(detail, resourceMessageLimit), err)
	}
	return NewJobError(KindTransport, svc.Name, prefix+": "+truncate(detail, transportMessageLimit), err)
}

func isTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func serviceURL(svc core.ServiceConfig, path string) string {
	return strings.TrimRight(svc.BaseURL, "/") + path
}

func formatSeconds(d time.Duration) string {
	return fmt.Sprintf("%gs", d.Seconds())
}
