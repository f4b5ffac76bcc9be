package pipeline

import (
	"encoding/json"
	"fmt"
	"strings"

	"fluxrelay/core"
	"fluxrelay/gradio"
)

// Fixed render parameters.
const (
	RandomizeSeed  = true
	GuidanceScale  = 3.5
	InferenceSteps = 28
)

// Stage is one remote step of a run. Its output string is the next stage's
// input; the last stage's output is the run's result.
type Stage struct {
	Name    string
	Service core.ServiceConfig

	BuildPayload func(input string) ([]any, error)
	Extract      func(data []json.RawMessage) (string, error)
}

// TranslateStage turns the user's prompt into English text.
func TranslateStage(svc core.ServiceConfig) Stage {
	return Stage{
		Name:    "translate",
		Service: svc,
		BuildPayload: func(input string) ([]any, error) {
			payload := make([]any, 0, 1+len(svc.ExtraParams))
			payload = append(payload, input)
			return append(payload, svc.ExtraParams...), nil
		},
		Extract: func(data []json.RawMessage) (string, error) {
			var text string
			if err := decodeFirst(data, &text); err != nil {
				return "", unusableOutput(svc, "failed to get a valid translation", err)
			}
			if strings.TrimSpace(text) == "" {
				return "", unusableOutput(svc, "failed to get a valid translation", nil)
			}
			return text, nil
		},
	}
}

// RenderStage turns text into an image URL. seed is called once per payload.
func RenderStage(svc core.ServiceConfig, dims Dimensions, seed func() int64) Stage {
	if seed == nil {
		seed = RandomSeed
	}
	return Stage{
		Name:    "render",
		Service: svc,
		BuildPayload: func(input string) ([]any, error) {
			return []any{
				input,
				seed(),
				RandomizeSeed,
				dims.Width,
				dims.Height,
				GuidanceScale,
				InferenceSteps,
			}, nil
		},
		Extract: func(data []json.RawMessage) (string, error) {
			var file struct {
				URL string `json:"url"`
			}
			if err := decodeFirst(data, &file); err != nil {
				return "", unusableOutput(svc, "final image URL not received", err)
			}
			if file.URL == "" {
				return "", unusableOutput(svc, "final image URL not received", nil)
			}
			return absoluteURL(svc.BaseURL, file.URL), nil
		},
	}
}

// decodeFirst decodes the first output element into v. Empty output leaves
// v untouched.
func decodeFirst(data []json.RawMessage, v any) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data[0], v)
}

// unusableOutput reports output that cannot feed the next step, keeping the
// decode failure when there is one.
func unusableOutput(svc core.ServiceConfig, msg string, decodeErr error) error {
	if decodeErr == nil {
		return gradio.NewJobError(gradio.KindLogical, svc.Name, msg, gradio.ErrEmptyOutput)
	}
	return gradio.NewJobError(gradio.KindLogical, svc.Name,
		msg+": "+decodeErr.Error(), fmt.Errorf("%w: %w", gradio.ErrEmptyOutput, decodeErr))
}

// absoluteURL prefixes relative file URLs with the service base.
func absoluteURL(base, u string) string {
	if strings.HasPrefix(u, "http") {
		return u
	}
	base = strings.TrimRight(base, "/")
	if !strings.HasPrefix(u, "/") {
		u = "/" + u
	}
	return base + u
}

func describeStages(stages []Stage) string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return fmt.Sprint(names)
}
