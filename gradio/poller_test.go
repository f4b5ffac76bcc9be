package gradio

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"fluxrelay/core"
)

// scriptedStream serves queue/data bodies in order, repeating the last one.
func scriptedStream(t *testing.T, bodies ...string) (core.ServiceConfig, *atomic.Int32) {
	t.Helper()
	var calls atomic.Int32
	server := joinServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/gradio_api/queue/data" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("session_hash") != "session" {
			t.Errorf("session_hash = %q", r.URL.Query().Get("session_hash"))
		}
		n := int(calls.Add(1)) - 1
		if n >= len(bodies) {
			n = len(bodies) - 1
		}
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(bodies[n]))
	})
	return testService(server.URL), &calls
}

func awaitRequest(svc core.ServiceConfig) AwaitRequest {
	return AwaitRequest{
		Service:       svc,
		SessionHash:   "session",
		Handle:        JobHandle{EventID: "evt"},
		SourceAddress: core.DefaultRoute,
	}
}

func TestAwait_ReturnsCompletedOutput(t *testing.T) {
	svc, _ := scriptedStream(t,
		`data: {"msg":"estimation","event_id":"evt","rank":1}`,
		`data: {"msg":"process_starts","event_id":"evt"}`,
		`data: {"msg":"process_completed","event_id":"evt","success":true,"output":{"data":[{"url":"/file=out.webp"}]}}`,
	)

	data, err := NewClient(testConfig(), nil).Await(context.Background(), awaitRequest(svc))
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if len(data) != 1 || !strings.Contains(string(data[0]), "out.webp") {
		t.Errorf("data = %s", data)
	}
}

func TestAwait_SkipsMalformedLineAndHonorsCompletion(t *testing.T) {
	svc, calls := scriptedStream(t,
		"data: {broken\n"+
			`data: {"msg":"process_completed","event_id":"evt","success":true,"output":{"data":["ok"]}}`,
	)

	data, err := NewClient(testConfig(), nil).Await(context.Background(), awaitRequest(svc))
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if string(data[0]) != `"ok"` {
		t.Errorf("data = %s", data)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want 1", calls.Load())
	}
}

func TestAwait_IgnoresOtherEventIDs(t *testing.T) {
	svc, _ := scriptedStream(t,
		`data: {"msg":"process_completed","event_id":"someone-else","success":false,"output":{"error":"boom"}}
data: {"msg":"queue_full","event_id":"someone-else"}`,
		`data: {"msg":"process_completed","event_id":"evt","success":true,"output":{"data":["mine"]}}`,
	)

	data, err := NewClient(testConfig(), nil).Await(context.Background(), awaitRequest(svc))
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if string(data[0]) != `"mine"` {
		t.Errorf("data = %s", data)
	}
}

func TestAwait_TerminalFailures(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		wantKind Kind
		wantMsg  string
	}{
		{
			"quota completion",
			`data: {"msg":"process_completed","event_id":"evt","success":false,"output":{"error":"You have exceeded your GPU quota"}}`,
			KindResourceExhausted, "failed with resource error",
		},
		{
			"logical completion",
			`data: {"msg":"process_completed","event_id":"evt","success":false,"output":{"error":"invalid prompt"}}`,
			KindLogical, "processing ImageGenerator failed: invalid prompt",
		},
		{
			"completion without error text",
			`data: {"msg":"process_completed","event_id":"evt","success":false}`,
			KindLogical, "Unknown error in ImageGenerator completion.",
		},
		{
			"success with empty data",
			`data: {"msg":"process_completed","event_id":"evt","success":true,"output":{"data":[]}}`,
			KindLogical, "failed",
		},
		{
			"queue full",
			`data: {"msg":"queue_full","event_id":"evt"}`,
			KindResourceExhausted, "queue for ImageGenerator is full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, _ := scriptedStream(t, tt.body)

			_, err := NewClient(testConfig(), nil).Await(context.Background(), awaitRequest(svc))
			if KindOf(err) != tt.wantKind {
				t.Fatalf("KindOf() = %v, want %v (err: %v)", KindOf(err), tt.wantKind, err)
			}
			if !strings.Contains(err.Error(), tt.wantMsg) {
				t.Errorf("error %q does not contain %q", err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestAwait_ReportsProgress(t *testing.T) {
	svc, _ := scriptedStream(t,
		`data: {"msg":"process_generating","event_id":"evt"}`,
		`data: {"msg":"process_generating","event_id":"evt"}`,
		`data: {"msg":"process_completed","event_id":"evt","success":true,"output":{"data":["done"]}}`,
	)

	var progress int
	req := awaitRequest(svc)
	req.OnProgress = func(time.Duration) { progress++ }

	if _, err := NewClient(testConfig(), nil).Await(context.Background(), req); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if progress != 2 {
		t.Errorf("progress callbacks = %d, want 2", progress)
	}
}

func TestAwait_ThrottlesProgress(t *testing.T) {
	svc, _ := scriptedStream(t,
		`data: {"msg":"process_generating","event_id":"evt"}`,
		`data: {"msg":"process_generating","event_id":"evt"}`,
		`data: {"msg":"process_completed","event_id":"evt","success":true,"output":{"data":["done"]}}`,
	)

	cfg := testConfig()
	cfg.ProgressInterval = time.Hour

	var progress int
	req := awaitRequest(svc)
	req.OnProgress = func(time.Duration) { progress++ }

	if _, err := NewClient(cfg, nil).Await(context.Background(), req); err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if progress != 0 {
		t.Errorf("progress callbacks = %d, want 0", progress)
	}
}

func TestAwait_StatusErrors(t *testing.T) {
	tests := []struct {
		status   int
		wantKind Kind
	}{
		{http.StatusServiceUnavailable, KindTransport},
		{http.StatusTooManyRequests, KindResourceExhausted},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			server := joinServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := NewClient(testConfig(), nil).Await(context.Background(), awaitRequest(testService(server.URL)))
			if KindOf(err) != tt.wantKind {
				t.Errorf("KindOf() = %v, want %v (err: %v)", KindOf(err), tt.wantKind, err)
			}
		})
	}
}

func TestAwait_BudgetExceeded(t *testing.T) {
	svc, _ := scriptedStream(t, `data: {"msg":"estimation","event_id":"evt"}`)

	req := awaitRequest(svc)
	req.MaxWait = 50 * time.Millisecond

	_, err := NewClient(testConfig(), nil).Await(context.Background(), req)
	if KindOf(err) != KindTransport {
		t.Fatalf("KindOf() = %v, want transport (err: %v)", KindOf(err), err)
	}
	if !errors.Is(err, ErrPollTimeout) {
		t.Errorf("errors.Is(err, ErrPollTimeout) = false")
	}
	if !strings.Contains(err.Error(), "polling ImageGenerator stream timed out after 0.05s") {
		t.Errorf("error = %q", err.Error())
	}
}

func TestAwait_RetriesAfterCycleTimeout(t *testing.T) {
	var calls atomic.Int32
	server := joinServer(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
			return
		}
		w.Write([]byte(`data: {"msg":"process_completed","event_id":"evt","success":true,"output":{"data":["late"]}}`))
	})

	cfg := testConfig()
	cfg.PollCycleTimeout = 50 * time.Millisecond

	data, err := NewClient(cfg, nil).Await(context.Background(), awaitRequest(testService(server.URL)))
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if string(data[0]) != `"late"` {
		t.Errorf("data = %s", data)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestAwait_Cancelled(t *testing.T) {
	svc, _ := scriptedStream(t, `data: {"msg":"estimation","event_id":"evt"}`)

	ctx, cancel := context.WithCancel(context.Background())
	cfg := testConfig()
	cfg.PollInterval = time.Second

	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := NewClient(cfg, nil).Await(ctx, awaitRequest(svc))
	if KindOf(err) != KindTransport {
		t.Fatalf("KindOf() = %v, want transport (err: %v)", KindOf(err), err)
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("errors.Is(err, context.Canceled) = false (err: %v)", err)
	}
}

func TestAwait_MissingHandle(t *testing.T) {
	req := awaitRequest(testService("http://127.0.0.1:1"))
	req.Handle = JobHandle{}

	_, err := NewClient(testConfig(), nil).Await(context.Background(), req)
	if !errors.Is(err, ErrMissingHandle) {
		t.Errorf("errors.Is(err, ErrMissingHandle) = false (err: %v)", err)
	}
}

// heartbeatStream writes a heartbeat line every tick for span, then the
// final body, flushing after each write.
func heartbeatStream(w http.ResponseWriter, r *http.Request, tick, span time.Duration, final string) {
	flusher := w.(http.Flusher)
	w.Header().Set("Content-Type", "text/event-stream")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	deadline := time.Now().Add(span)
	for time.Now().Before(deadline) {
		select {
		case <-r.Context().Done():
			return
		case <-time.After(tick):
		}
		w.Write([]byte("data: {\"msg\":\"heartbeat\"}\n\n"))
		flusher.Flush()
	}
	w.Write([]byte(final + "\n\n"))
	flusher.Flush()
}

func TestAwait_HeartbeatsKeepLongStreamAlive(t *testing.T) {
	var calls atomic.Int32
	server := joinServer(t, func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		heartbeatStream(w, r, 100*time.Millisecond, 600*time.Millisecond,
			`data: {"msg":"process_completed","event_id":"evt","success":true,"output":{"data":["slow"]}}`)
	})

	cfg := testConfig()
	cfg.PollCycleTimeout = 300 * time.Millisecond
	cfg.PollMaxWait = 3 * time.Second

	start := time.Now()
	data, err := NewClient(cfg, nil).Await(context.Background(), awaitRequest(testService(server.URL)))
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if string(data[0]) != `"slow"` {
		t.Errorf("data = %s", data)
	}
	if calls.Load() != 1 {
		t.Errorf("calls = %d, want the stream to be read in one cycle", calls.Load())
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Await() took %v", elapsed)
	}
}

func TestAwait_ReturnsWhileStreamStaysOpen(t *testing.T) {
	server := joinServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"msg":"process_completed","event_id":"evt","success":true,"output":{"data":["early"]}}` + "\n\n"))
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	cfg := testConfig()
	cfg.PollCycleTimeout = 3 * time.Second
	cfg.PollMaxWait = 5 * time.Second

	start := time.Now()
	data, err := NewClient(cfg, nil).Await(context.Background(), awaitRequest(testService(server.URL)))
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if string(data[0]) != `"early"` {
		t.Errorf("data = %s", data)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("Await() took %v, want it to return on the completion record", elapsed)
	}
}

func TestAwait_SilentStreamIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := joinServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		if calls.Add(1) == 1 {
			w.Write([]byte(`data: {"msg":"estimation","event_id":"evt"}` + "\n\n"))
			w.(http.Flusher).Flush()
			select {
			case <-r.Context().Done():
			case <-time.After(5 * time.Second):
			}
			return
		}
		w.Write([]byte(`data: {"msg":"process_completed","event_id":"evt","success":true,"output":{"data":["second"]}}`))
	})

	cfg := testConfig()
	cfg.PollCycleTimeout = 100 * time.Millisecond
	cfg.PollMaxWait = 3 * time.Second

	data, err := NewClient(cfg, nil).Await(context.Background(), awaitRequest(testService(server.URL)))
	if err != nil {
		t.Fatalf("Await() error = %v", err)
	}
	if string(data[0]) != `"second"` {
		t.Errorf("data = %s", data)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestAwait_BudgetEndsOpenStream(t *testing.T) {
	server := joinServer(t, func(w http.ResponseWriter, r *http.Request) {
		heartbeatStream(w, r, 20*time.Millisecond, 5*time.Second,
			`data: {"msg":"process_completed","event_id":"evt","success":true,"output":{"data":["never"]}}`)
	})

	req := awaitRequest(testService(server.URL))
	req.MaxWait = 200 * time.Millisecond

	start := time.Now()
	_, err := NewClient(testConfig(), nil).Await(context.Background(), req)
	if !errors.Is(err, ErrPollTimeout) {
		t.Fatalf("errors.Is(err, ErrPollTimeout) = false (err: %v)", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Errorf("Await() took %v, want the budget to cut the stream", elapsed)
	}
}
