// Package pipeline runs the translate → render chain for one request and
// rotates through egress addresses when a remote service refuses to serve
// the current one.
package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"fluxrelay/core"
	"fluxrelay/gradio"
	"fluxrelay/logging"
)

// JobRunner submits and follows remote jobs. *gradio.Client implements it.
type JobRunner interface {
	Submit(ctx context.Context, req gradio.SubmitRequest) (gradio.JobHandle, error)
	Await(ctx context.Context, req gradio.AwaitRequest) ([]json.RawMessage, error)
}

// AddressSource hands out the address list for one run. *addrpool.Pool
// implements it.
type AddressSource interface {
	Snapshot() []string
	Contains(addr string) bool
}

// Config configures an Orchestrator.
type Config struct {
	Translator core.ServiceConfig
	Image      core.ServiceConfig

	// MaxRetriesPerAddress is the attempt budget for non-exhaustion
	// failures on one address.
	MaxRetriesPerAddress int
	RetryDelay           time.Duration
}

// ConfigFrom builds a pipeline Config from the application config.
func ConfigFrom(cfg *core.Config) Config {
	return Config{
		Translator:           cfg.Translator,
		Image:                cfg.Image,
		MaxRetriesPerAddress: cfg.MaxRetriesPerAddress,
		RetryDelay:           cfg.RetryDelay,
	}
}

// AttemptContext identifies one try of the whole stage chain.
type AttemptContext struct {
	Address  string
	Egress   string // address actually bound; DefaultRoute when Address is not in the pool
	Position int    // 1-based index of Address in the run's snapshot
	Attempt  int    // 1-based try on Address
	Budget   int
}

// Orchestrator executes runs. It holds no per-run state and is safe for
// concurrent use.
type Orchestrator struct {
	runner   JobRunner
	pool     AddressSource
	cfg      Config
	logger   *logging.Logger
	reporter ProgressReporter

	seed        func() int64
	sessionHash func() (string, error)
}

// New creates an Orchestrator.
func New(runner JobRunner, pool AddressSource, cfg Config, logger *logging.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if cfg.MaxRetriesPerAddress < 1 {
		cfg.MaxRetriesPerAddress = 1
	}
	return &Orchestrator{
		runner:      runner,
		pool:        pool,
		cfg:         cfg,
		logger:      logger,
		seed:        RandomSeed,
		sessionHash: core.GenerateSessionHash,
	}
}

// SetReporter installs a progress reporter. Call before serving requests.
func (o *Orchestrator) SetReporter(r ProgressReporter) {
	o.reporter = r
}

// Stages returns the stage chain for an aspect ratio key.
func (o *Orchestrator) Stages(aspectRatioKey string) []Stage {
	return []Stage{
		TranslateStage(o.cfg.Translator),
		RenderStage(o.cfg.Image, DimensionsFor(aspectRatioKey), o.seed),
	}
}

// run carries per-run identifiers.
type run struct {
	id     string
	logger *logging.Logger
	start  time.Time
}

// Run produces an image URL for prompt. Addresses from the pool are tried
// in order; each is abandoned on the first resource-exhaustion error or
// after MaxRetriesPerAddress other failures. Run always returns a Result.
func (o *Orchestrator) Run(ctx context.Context, prompt, aspectRatioKey string) Result {
	r := &run{id: uuid.NewString(), start: time.Now()}
	r.logger = o.logger.With(zap.String("run_id", r.id))

	stages := o.Stages(aspectRatioKey)
	addrs := o.pool.Snapshot()

	r.logger.Info("run started",
		zap.Int("addresses", len(addrs)),
		zap.String("aspect_ratio", aspectRatioKey),
		zap.String("stages", describeStages(stages)))
	o.report(r, ProgressEvent{Type: EventRunStarted})

	attempts := 0
	for i, addr := range addrs {
		ac := AttemptContext{Address: addr, Egress: o.egressFor(r, addr), Position: i + 1, Budget: o.cfg.MaxRetriesPerAddress}
		r.logger.Info("trying source address",
			zap.String("address", addr),
			zap.Int("remaining", len(addrs)-i-1))

		for ac.Attempt = 1; ac.Attempt <= ac.Budget; ac.Attempt++ {
			if ctx.Err() != nil {
				return o.finish(r, failureResult(), attempts, ctx.Err())
			}
			attempts++

			url, err := o.attempt(ctx, r, ac, stages, prompt)
			if err == nil {
				return o.finish(r, successResult(url), attempts, nil)
			}

			kind := gradio.KindOf(err)
			o.report(r, ProgressEvent{
				Type:      EventAttemptFailed,
				Address:   ac.Address,
				Position:  ac.Position,
				Attempt:   ac.Attempt,
				ErrorKind: kind.String(),
				Message:   err.Error(),
			})

			if gradio.IsResourceExhausted(err) {
				r.logger.Warn("resource limit on address, rotating",
					zap.String("address", addr),
					zap.Error(err))
				break
			}

			r.logger.Warn("attempt failed",
				zap.String("address", addr),
				zap.Int("attempt", ac.Attempt),
				zap.Int("budget", ac.Budget),
				zap.Stringer("kind", kind),
				zap.Error(err))

			if ctx.Err() != nil {
				return o.finish(r, failureResult(), attempts, ctx.Err())
			}
			if ac.Attempt < ac.Budget {
				if err := core.Sleep(ctx, o.cfg.RetryDelay); err != nil {
					return o.finish(r, failureResult(), attempts, err)
				}
			}
		}
	}

	r.logger.Error("all source addresses failed", zap.Int("attempts", attempts))
	return o.finish(r, failureResult(), attempts, nil)
}

// egressFor returns the address to bind for addr. Only addresses the pool
// holds are bound; anything else goes out on the default route.
func (o *Orchestrator) egressFor(r *run, addr string) string {
	if core.IsDefaultRoute(addr) {
		return core.DefaultRoute
	}
	if !o.pool.Contains(addr) {
		r.logger.Warn("address not in pool, using default route", zap.String("address", addr))
		return core.DefaultRoute
	}
	return addr
}

// attempt runs every stage on one address.
func (o *Orchestrator) attempt(ctx context.Context, r *run, ac AttemptContext, stages []Stage, prompt string) (string, error) {
	o.report(r, ProgressEvent{
		Type:     EventAttemptStarted,
		Address:  ac.Address,
		Position: ac.Position,
		Attempt:  ac.Attempt,
	})

	input := prompt
	for _, stage := range stages {
		out, err := o.runStage(ctx, r, ac, stage, input)
		if err != nil {
			return "", err
		}
		input = out
	}
	return input, nil
}

func (o *Orchestrator) runStage(ctx context.Context, r *run, ac AttemptContext, stage Stage, input string) (string, error) {
	svc := stage.Service

	payload, err := stage.BuildPayload(input)
	if err != nil {
		return "", gradio.NewJobError(gradio.KindLogical, svc.Name, "failed to build "+stage.Name+" payload", err)
	}

	hash, err := o.sessionHash()
	if err != nil {
		return "", gradio.NewJobError(gradio.KindLogical, svc.Name, "failed to generate session hash", err)
	}

	handle, err := o.runner.Submit(ctx, gradio.SubmitRequest{
		Service:       svc,
		Payload:       payload,
		SessionHash:   hash,
		SourceAddress: ac.Egress,
	})
	if err != nil {
		return "", err
	}

	stageEvent := func(t EventType) ProgressEvent {
		return ProgressEvent{Type: t, Address: ac.Address, Position: ac.Position, Attempt: ac.Attempt, Stage: stage.Name}
	}
	o.report(r, stageEvent(EventStageSubmitted))

	data, err := o.runner.Await(ctx, gradio.AwaitRequest{
		Service:       svc,
		SessionHash:   hash,
		Handle:        handle,
		SourceAddress: ac.Egress,
		OnProgress: func(elapsed time.Duration) {
			ev := stageEvent(EventStageGenerating)
			ev.Elapsed = elapsed
			o.report(r, ev)
		},
	})
	if err != nil {
		return "", err
	}

	out, err := stage.Extract(data)
	if err != nil {
		return "", err
	}

	r.logger.Debug("stage completed",
		zap.String("stage", stage.Name),
		zap.String("address", ac.Address),
		zap.Int("output_len", len(out)))
	o.report(r, stageEvent(EventStageCompleted))
	return out, nil
}

func (o *Orchestrator) finish(r *run, res Result, attempts int, cause error) Result {
	res.RunID = r.id
	res.Attempts = attempts

	fields := []zap.Field{
		zap.Bool("success", res.Success),
		zap.Int("attempts", attempts),
		zap.Duration("elapsed", time.Since(r.start)),
	}
	if cause != nil {
		fields = append(fields, zap.NamedError("cause", cause))
	}
	if res.Success {
		fields = append(fields, zap.String("image_url", res.ImageURL))
	}
	r.logger.Info("run finished", fields...)

	msg := res.Message
	if !res.Success {
		msg = res.Error
	}
	o.report(r, ProgressEvent{
		Type:    EventRunFinished,
		Success: res.Success,
		Message: msg,
		Elapsed: time.Since(r.start),
	})
	return res
}

func (o *Orchestrator) report(r *run, ev ProgressEvent) {
	if o.reporter == nil {
		return
	}
	ev.RunID = r.id
	if ev.Time.IsZero() {
		ev.Time = time.Now()
	}
	o.reporter.Report(ev)
}
