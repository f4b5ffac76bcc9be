package webui

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"fluxrelay/pipeline"
)

// Client-facing messages for rejected requests.
const (
	msgInvalidBody  = "درخواست نامعتبر است."
	msgEmptyPrompt  = "لطفاً توصیف تصویر را وارد کنید."
	msgRateLimited  = "تعداد درخواست‌ها بیش از حد مجاز است. لطفاً کمی بعد دوباره تلاش کنید."
	msgShuttingDown = "سرور در حال خاموش شدن است. لطفاً بعداً تلاش کنید."

	maxRequestBody = 64 << 10
)

// Generator runs the image pipeline. *pipeline.Orchestrator implements it.
type Generator interface {
	Run(ctx context.Context, prompt, aspectRatioKey string) pipeline.Result
}

// RunTracker admits runs while the process is serving. *shutdown.Manager
// implements it.
type RunTracker interface {
	Begin() (release func(), ok bool)
	ActiveOperations() int64
}

// GenerateRequest is the body of POST /generate-image.
type GenerateRequest struct {
	Prompt         string `json:"prompt"`
	AspectRatioKey string `json:"aspectRatioKey"`
}

// GenerateResponse is the 200 body of POST /generate-image.
type GenerateResponse struct {
	Success  bool   `json:"success"`
	ImageURL string `json:"imageUrl"`
	Message  string `json:"message"`
}

type messageResponse struct {
	Message string `json:"message"`
}

// handleGenerateImage runs one pipeline per request. The run is detached
// from the request context so a client disconnect does not abort it; it is
// bounded by runTimeout instead.
func (s *Server) handleGenerateImage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		writeJSON(w, http.StatusMethodNotAllowed, messageResponse{Message: http.StatusText(http.StatusMethodNotAllowed)})
		return
	}

	if s.limiter != nil {
		if ok, retryAfter := s.limiter.Allow(getClientIP(r)); !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(retryAfter.Seconds()))))
			writeJSON(w, http.StatusTooManyRequests, messageResponse{Message: msgRateLimited})
			return
		}
	}

	var req GenerateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	if err := dec.Decode(&req); err != nil {
		s.logger.Debug("invalid generate request body", zap.Error(err))
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: msgInvalidBody})
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		writeJSON(w, http.StatusBadRequest, messageResponse{Message: msgEmptyPrompt})
		return
	}

	release := func() {}
	if s.tracker != nil {
		var ok bool
		release, ok = s.tracker.Begin()
		if !ok {
			writeJSON(w, http.StatusServiceUnavailable, messageResponse{Message: msgShuttingDown})
			return
		}
	}
	defer release()

	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.config.RunTimeout)
	defer cancel()

	s.logger.Info("generation requested",
		zap.String("request_id", RequestIDFromContext(r.Context())),
		zap.String("aspect_ratio", req.AspectRatioKey),
		zap.Int("prompt_len", len([]rune(req.Prompt))))

	res := s.generator.Run(ctx, req.Prompt, req.AspectRatioKey)
	if !res.Success {
		writeJSON(w, http.StatusInternalServerError, messageResponse{Message: res.Error})
		return
	}

	writeJSON(w, http.StatusOK, GenerateResponse{
		Success:  true,
		ImageURL: res.ImageURL,
		Message:  res.Message,
	})
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status     string `json:"status"`
	Addresses  int    `json:"addresses"`
	ActiveRuns int64  `json:"active_runs"`
	Clients    int    `json:"ws_clients"`
	Uptime     string `json:"uptime"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:     "ok",
		Addresses:  s.addressCount(),
		ActiveRuns: s.activeRuns(),
		Clients:    s.broadcaster.ClientCount(),
		Uptime:     time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	if s.stats == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, http.StatusOK, s.stats.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
