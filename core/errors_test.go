package core

import (
	"fmt"
	"strings"
	"testing"
)

func TestConfigError_Error(t *testing.T) {
	err := ErrInvalidValue("PORT", "0 is not a valid port")
	msg := err.Error()
	if !strings.Contains(msg, "Invalid PORT") || !strings.Contains(msg, "Fix PORT") {
		t.Errorf("unexpected message: %q", msg)
	}

	bare := &ConfigError{Message: "just a message"}
	if bare.Error() != "just a message" {
		t.Errorf("Error() without action = %q", bare.Error())
	}
}

func TestIsConfigError_Wrapped(t *testing.T) {
	wrapped := fmt.Errorf("startup: %w", ErrServicesFile("/x.yaml", "no such file"))

	cfgErr, ok := IsConfigError(wrapped)
	if !ok {
		t.Fatal("expected wrapped ConfigError to be detected")
	}
	if cfgErr.Code != ErrCodeServicesFile {
		t.Errorf("Code = %q", cfgErr.Code)
	}
	if GetErrorCode(fmt.Errorf("plain")) != "" {
		t.Error("expected empty code for non-config error")
	}
}

func TestErrInvalidServiceURL(t *testing.T) {
	err := ErrInvalidServiceURL("Translator", "ftp://x", "scheme must be http or https")
	if err.Code != ErrCodeInvalidServiceURL {
		t.Errorf("Code = %q", err.Code)
	}
	if !strings.Contains(err.Message, "Translator") {
		t.Errorf("Message should name the service: %q", err.Message)
	}
}
