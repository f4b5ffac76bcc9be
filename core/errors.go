package core

import (
	"errors"
	"fmt"
)

// ConfigError represents a configuration-related error with actionable instructions.
type ConfigError struct {
	Code    string // Error code for programmatic handling
	Message string // Human-readable error message
	Action  string // Actionable instruction for resolution
}

func (e *ConfigError) Error() string {
	if e.Action != "" {
		return fmt.Sprintf("%s. %s", e.Message, e.Action)
	}
	return e.Message
}

// Error codes for configuration errors
const (
	ErrCodeInvalidValue      = "INVALID_VALUE"
	ErrCodeInvalidServiceURL = "INVALID_SERVICE_URL"
	ErrCodeServicesFile      = "SERVICES_FILE"
)

// ErrInvalidValue returns an error for an environment variable holding an unusable value.
func ErrInvalidValue(varName, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidValue,
		Message: fmt.Sprintf("Invalid %s: %s", varName, reason),
		Action:  fmt.Sprintf("Fix %s in your .env file or environment", varName),
	}
}

// ErrInvalidServiceURL returns an error for a remote service base URL that cannot be used.
func ErrInvalidServiceURL(service, url, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeInvalidServiceURL,
		Message: fmt.Sprintf("Invalid base URL for %s '%s': %s", service, url, reason),
		Action:  "Set the service base URL to an absolute http(s) URL (e.g., https://owner-space.hf.space)",
	}
}

// ErrServicesFile returns an error for a SERVICES_FILE that cannot be read or parsed.
func ErrServicesFile(path, reason string) *ConfigError {
	return &ConfigError{
		Code:    ErrCodeServicesFile,
		Message: fmt.Sprintf("Cannot load services file %s: %s", path, reason),
		Action:  "Check SERVICES_FILE points to a readable YAML file with translator/image sections",
	}
}

// IsConfigError checks if an error is (or wraps) a ConfigError and returns it if so
func IsConfigError(err error) (*ConfigError, bool) {
	var configErr *ConfigError
	if errors.As(err, &configErr) {
		return configErr, true
	}
	return nil, false
}

// GetErrorCode extracts the error code from an error if it's a ConfigError
func GetErrorCode(err error) string {
	if configErr, ok := IsConfigError(err); ok {
		return configErr.Code
	}
	return ""
}
