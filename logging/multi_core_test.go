package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestNewMultiCoreWithWriters_TeesToBoth(t *testing.T) {
	var console, file bytes.Buffer
	core := NewMultiCoreWithWriters(zapcore.InfoLevel, zapcore.AddSync(&console), zapcore.AddSync(&file), false)
	logger := zap.New(core)

	logger.Info("stage finished", zap.String("stage", "translate"))
	_ = logger.Sync()

	for name, buf := range map[string]*bytes.Buffer{"console": &console, "file": &file} {
		var entry map[string]any
		if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry); err != nil {
			t.Fatalf("%s output is not JSON: %v (%q)", name, err, buf.String())
		}
		if entry[FieldMessage] != "stage finished" {
			t.Errorf("%s message = %v", name, entry[FieldMessage])
		}
		if entry[FieldLevel] != "info" {
			t.Errorf("%s level = %v", name, entry[FieldLevel])
		}
		if _, ok := entry[FieldTimestamp]; !ok {
			t.Errorf("%s entry missing timestamp", name)
		}
	}
}

func TestNewMultiCoreWithWriters_DevConsoleIsText(t *testing.T) {
	var console, file bytes.Buffer
	core := NewMultiCoreWithWriters(zapcore.DebugLevel, zapcore.AddSync(&console), zapcore.AddSync(&file), true)
	logger := zap.New(core)

	logger.Debug("polling")
	_ = logger.Sync()

	if strings.HasPrefix(strings.TrimSpace(console.String()), "{") {
		t.Errorf("dev console output should not be JSON: %q", console.String())
	}
	if !strings.HasPrefix(strings.TrimSpace(file.String()), "{") {
		t.Errorf("file output should be JSON: %q", file.String())
	}
}

func TestApplyFileWriterDefaults(t *testing.T) {
	cfg := applyFileWriterDefaults(FileWriterConfig{MaxBackups: 2})
	if cfg.MaxSizeMB != DefaultMaxSizeMB {
		t.Errorf("MaxSizeMB = %d, want %d", cfg.MaxSizeMB, DefaultMaxSizeMB)
	}
	if cfg.MaxBackups != 2 {
		t.Errorf("MaxBackups = %d, want 2", cfg.MaxBackups)
	}
	if cfg.MaxAgeDays != DefaultMaxAgeDays {
		t.Errorf("MaxAgeDays = %d, want %d", cfg.MaxAgeDays, DefaultMaxAgeDays)
	}
}
