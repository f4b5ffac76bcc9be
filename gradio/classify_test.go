package gradio

import (
	"errors"
	"fmt"
	"testing"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		text string
		want Category
	}{
		{"CUDA out of memory", CategoryResourceExhausted},
		{"You have exceeded your GPU quota (60s left)", CategoryResourceExhausted},
		{"No GPU was available", CategoryResourceExhausted},
		{"server at capacity", CategoryResourceExhausted},
		{"Queue Full", CategoryResourceExhausted},
		{"429 Too Many Requests", CategoryResourceExhausted},
		{"Rate limit reached", CategoryResourceExhausted},
		{"heavy load, try later", CategoryResourceExhausted},
		{"failed to download weights", CategoryResourceExhausted}, // "load" over-match
		{"connection reset by peer", CategoryOther},
		{"invalid prompt", CategoryOther},
		{"", CategoryOther},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got := Classify(tt.text)
			if got != tt.want {
				t.Errorf("Classify(%q) = %v, want %v", tt.text, got, tt.want)
			}
			if again := Classify(tt.text); again != got {
				t.Errorf("Classify(%q) not idempotent: %v then %v", tt.text, got, again)
			}
		})
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("abcdef", 3); got != "abc" {
		t.Errorf("truncate() = %q, want abc", got)
	}
	if got := truncate("خطای سرور", 4); got != "خطای" {
		t.Errorf("truncate() = %q, want rune-safe cut", got)
	}
	if got := truncate("ab", 10); got != "ab" {
		t.Errorf("truncate() = %q, want ab", got)
	}
}

func TestKindOf(t *testing.T) {
	base := NewJobError(KindResourceExhausted, "Translator", "quota", nil)
	wrapped := fmt.Errorf("stage translate: %w", base)

	if KindOf(wrapped) != KindResourceExhausted {
		t.Errorf("KindOf(wrapped) = %v", KindOf(wrapped))
	}
	if !IsResourceExhausted(wrapped) {
		t.Error("IsResourceExhausted(wrapped) = false")
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Error("KindOf(plain) should be KindUnknown")
	}
	if KindOf(nil) != KindUnknown {
		t.Error("KindOf(nil) should be KindUnknown")
	}
}

func TestJobError_Unwrap(t *testing.T) {
	err := NewJobError(KindLogical, "ImageGenerator", "", ErrEmptyOutput)
	if !errors.Is(err, ErrEmptyOutput) {
		t.Error("errors.Is(err, ErrEmptyOutput) = false")
	}
	if err.Error() != ErrEmptyOutput.Error() {
		t.Errorf("Error() = %q, want wrapped message", err.Error())
	}
	if KindTransport.String() != "transport" || Kind(99).String() != "unknown" {
		t.Error("unexpected Kind.String() output")
	}
}
