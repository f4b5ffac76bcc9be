package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestParseLogLevelString(t *testing.T) {
	tests := []struct {
		input string
		want  zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"INFO", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{" Warning ", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{"fatal", zapcore.FatalLevel},
		{"DPanic", zapcore.DPanicLevel},
		{"verbose", zapcore.InfoLevel},
		{"", zapcore.InfoLevel},
	}
	for _, tt := range tests {
		if got := ParseLogLevelString(tt.input, zapcore.InfoLevel); got != tt.want {
			t.Errorf("ParseLogLevelString(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestParseLogLevel(t *testing.T) {
	t.Setenv("FLUXRELAY_TEST_LEVEL", "error")
	if got := ParseLogLevel("FLUXRELAY_TEST_LEVEL", zapcore.InfoLevel); got != zapcore.ErrorLevel {
		t.Errorf("ParseLogLevel() = %v, want error", got)
	}

	t.Setenv("FLUXRELAY_TEST_LEVEL", "")
	if got := ParseLogLevel("FLUXRELAY_TEST_LEVEL", zapcore.DebugLevel); got != zapcore.DebugLevel {
		t.Errorf("ParseLogLevel() with empty var = %v, want debug", got)
	}
}

func TestLevelFromEnv(t *testing.T) {
	t.Setenv("FLUXRELAY_TEST_LEVEL", "")
	if got := LevelFromEnv("FLUXRELAY_TEST_LEVEL", true); got != zapcore.DebugLevel {
		t.Errorf("LevelFromEnv(dev) = %v, want debug", got)
	}
	if got := LevelFromEnv("FLUXRELAY_TEST_LEVEL", false); got != zapcore.InfoLevel {
		t.Errorf("LevelFromEnv(prod) = %v, want info", got)
	}

	t.Setenv("FLUXRELAY_TEST_LEVEL", "warning")
	if got := LevelFromEnv("FLUXRELAY_TEST_LEVEL", true); got != zapcore.WarnLevel {
		t.Errorf("LevelFromEnv(warning) = %v, want warn", got)
	}
}
