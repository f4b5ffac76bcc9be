package gradio

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"fluxrelay/core"
	"fluxrelay/logging"
)

// AwaitRequest follows one submitted job.
type AwaitRequest struct {
	Service       core.ServiceConfig
	SessionHash   string
	Handle        JobHandle
	SourceAddress string

	// MaxWait overrides Config.PollMaxWait when positive.
	MaxWait time.Duration

	// OnProgress is called while the job reports process_generating, at
	// most once per Config.ProgressInterval.
	OnProgress func(elapsed time.Duration)
}

// statusError is a non-2xx answer from queue/data.
type statusError struct {
	status  string
	snippet string
}

func (e *statusError) Error() string {
	if e.snippet == "" {
		return e.status
	}
	return e.status + ": " + e.snippet
}

// idleTimeoutError ends a poll cycle that went quiet. It satisfies
// net.Error so it is handled like any other timeout.
type idleTimeoutError struct {
	after time.Duration
}

func (e *idleTimeoutError) Error() string {
	return "no data from queue/data for " + formatSeconds(e.after)
}

func (e *idleTimeoutError) Timeout() bool   { return true }
func (e *idleTimeoutError) Temporary() bool { return true }

// Await follows the queue/data stream until the job identified by
// req.Handle completes, fails, or the wait budget runs out. On success it
// returns output.data.
//
// Each cycle reads the stream as it arrives. A cycle ends when the server
// closes the stream or when nothing arrives for Config.PollCycleTimeout;
// heartbeats keep a long stream alive.
func (c *Client) Await(ctx context.Context, req AwaitRequest) ([]json.RawMessage, error) {
	svc := req.Service
	if req.Handle.EventID == "" {
		return nil, NewJobError(KindLogical, svc.Name, "cannot poll "+svc.Name+" without an event id", ErrMissingHandle)
	}

	maxWait := req.MaxWait
	if maxWait <= 0 {
		maxWait = c.cfg.PollMaxWait
	}

	w := &jobWatch{
		req: req,
		log: c.logger.With(
			zap.String("service", svc.Name),
			zap.String("event_id", req.Handle.EventID),
			zap.String("source_address", req.SourceAddress),
		),
		progressEvery: c.cfg.ProgressInterval,
		start:         time.Now(),
	}
	w.lastProgress = w.start

	httpClient, err := c.newStreamClient(req.SourceAddress, c.cfg.PollCycleTimeout)
	if err != nil {
		return nil, NewJobError(KindTransport, svc.Name, err.Error(), err)
	}
	defer httpClient.CloseIdleConnections()

	budget, cancel := context.WithTimeout(ctx, maxWait)
	defer cancel()

	dataURL := serviceURL(svc, dataPath) + "?session_hash=" + url.QueryEscape(req.SessionHash)

	for budget.Err() == nil {
		err := c.streamCycle(budget, httpClient, dataURL, w.observe)
		if w.done {
			return w.data, w.err
		}
		if stop := interrupted(ctx, budget, svc, maxWait); stop != nil {
			return nil, stop
		}

		delay := c.cfg.PollInterval
		if err != nil {
			if !isTimeout(err) {
				return nil, networkFault(svc, "error during polling "+svc.Name, err)
			}
			w.log.Warn("polling timed out, retrying",
				zap.Error(err),
				zap.Duration("backoff", c.cfg.PollTimeoutBackoff))
			delay = c.cfg.PollTimeoutBackoff
		}

		if core.Sleep(budget, delay) != nil {
			break
		}
	}

	if stop := interrupted(ctx, budget, svc, maxWait); stop != nil {
		return nil, stop
	}
	return nil, pollTimeout(svc, maxWait)
}

// streamCycle performs one queue/data request and feeds each record to
// observe until observe returns true or the stream ends. The cycle is
// abandoned with an idleTimeoutError once no bytes arrive for
// PollCycleTimeout.
func (c *Client) streamCycle(ctx context.Context, httpClient *http.Client, dataURL string, observe func(RemoteEvent) bool) error {
	cycleCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	idle := newIdleTimer(c.cfg.PollCycleTimeout, cancel)
	defer idle.stop()

	req, err := http.NewRequestWithContext(cycleCtx, http.MethodGet, dataURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := httpClient.Do(req)
	if err != nil {
		return idle.explain(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4*snippetLimit))
		return &statusError{
			status:  resp.Status,
			snippet: truncate(strings.TrimSpace(string(body)), snippetLimit),
		}
	}

	events := NewEventScanner(&activityReader{r: resp.Body, idle: idle}, c.logger)
	for events.Next() {
		if observe(events.Event()) {
			return nil
		}
	}
	return idle.explain(events.Err())
}

// jobWatch holds one job's state across poll cycles.
type jobWatch struct {
	req           AwaitRequest
	log           *logging.Logger
	progressEvery time.Duration
	start         time.Time
	lastProgress  time.Time

	done bool
	data []json.RawMessage
	err  error
}

// observe handles one record and reports whether the job reached a
// terminal state.
func (w *jobWatch) observe(ev RemoteEvent) bool {
	if ev.EventID != w.req.Handle.EventID {
		return false
	}
	svc := w.req.Service

	switch ev.Msg {
	case MsgProcessCompleted:
		w.done = true
		if ev.Success && ev.Output != nil && len(ev.Output.Data) > 0 {
			w.log.Debug("job completed", zap.Duration("elapsed", time.Since(w.start)))
			w.data = ev.Output.Data
		} else {
			w.err = completionFailure(svc, ev)
		}
		return true

	case MsgProcessGenerating:
		if now := time.Now(); now.Sub(w.lastProgress) >= w.progressEvery {
			w.lastProgress = now
			w.log.Debug("job generating", zap.Duration("elapsed", now.Sub(w.start)))
			if w.req.OnProgress != nil {
				w.req.OnProgress(now.Sub(w.start))
			}
		}

	case MsgQueueFull:
		w.done = true
		w.err = NewJobError(KindResourceExhausted, svc.Name,
			fmt.Sprintf("queue for %s is full", svc.Name), ErrQueueFull)
		return true
	}
	return false
}

// idleTimer cancels a cycle when no bytes arrive for d. A non-positive d
// disables it.
type idleTimer struct {
	d     time.Duration
	t     *time.Timer
	fired atomic.Bool
}

func newIdleTimer(d time.Duration, onIdle context.CancelFunc) *idleTimer {
	it := &idleTimer{d: d}
	if d > 0 {
		it.t = time.AfterFunc(d, func() {
			it.fired.Store(true)
			onIdle()
		})
	}
	return it
}

func (it *idleTimer) touch() {
	if it.t != nil && !it.fired.Load() {
		it.t.Reset(it.d)
	}
}

func (it *idleTimer) stop() {
	if it.t != nil {
		it.t.Stop()
	}
}

// explain replaces the cancellation error caused by the timer firing.
func (it *idleTimer) explain(err error) error {
	if err != nil && it.fired.Load() {
		return &idleTimeoutError{after: it.d}
	}
	return err
}

// activityReader restarts the idle timer whenever bytes arrive.
type activityReader struct {
	r    io.Reader
	idle *idleTimer
}

func (a *activityReader) Read(p []byte) (int, error) {
	n, err := a.r.Read(p)
	if n > 0 {
		a.idle.touch()
	}
	return n, err
}

// interrupted reports why polling must stop: the caller cancelled, or the
// wait budget ran out. It returns nil while both are live.
func interrupted(ctx, budget context.Context, svc core.ServiceConfig, maxWait time.Duration) error {
	if err := ctx.Err(); err != nil {
		return cancelled(svc, err)
	}
	if budget.Err() != nil {
		return pollTimeout(svc, maxWait)
	}
	return nil
}

func pollTimeout(svc core.ServiceConfig, maxWait time.Duration) error {
	return NewJobError(KindTransport, svc.Name,
		fmt.Sprintf("polling %s stream timed out after %s", svc.Name, formatSeconds(maxWait)), ErrPollTimeout)
}

func completionFailure(svc core.ServiceConfig, ev RemoteEvent) error {
	text := ""
	if ev.Output != nil {
		text = string(ev.Output.Error)
	}
	if text == "" {
		text = fmt.Sprintf("Unknown error in %s completion.", svc.Name)
	}

	if Classify(text) == CategoryResourceExhausted {
		return NewJobError(KindResourceExhausted, svc.Name,
			fmt.Sprintf("processing %s failed with resource error: %s", svc.Name, text), nil)
	}
	var cause error
	if ev.Success {
		cause = ErrEmptyOutput
	}
	return NewJobError(KindLogical, svc.Name,
		fmt.Sprintf("processing %s failed: %s", svc.Name, text), cause)
}

func cancelled(svc core.ServiceConfig, err error) error {
	return NewJobError(KindTransport, svc.Name, fmt.Sprintf("polling %s cancelled", svc.Name), err)
}
