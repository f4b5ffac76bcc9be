package logging

import (
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
)

// LevelFromEnv resolves the minimum log level from envVar. Development
// builds default to debug, everything else to info.
func LevelFromEnv(envVar string, isDevelopment bool) zapcore.Level {
	fallback := zapcore.InfoLevel
	if isDevelopment {
		fallback = zapcore.DebugLevel
	}
	return ParseLogLevel(envVar, fallback)
}

// ParseLogLevel reads a level name from envVarName (e.g. LOG_LEVEL).
// Returns defaultLevel when the variable is empty or not a known level.
func ParseLogLevel(envVarName string, defaultLevel zapcore.Level) zapcore.Level {
	return ParseLogLevelString(os.Getenv(envVarName), defaultLevel)
}

// ParseLogLevelString accepts any name zapcore knows plus "warning",
// case-insensitively.
func ParseLogLevelString(levelStr string, defaultLevel zapcore.Level) zapcore.Level {
	name := strings.ToLower(strings.TrimSpace(levelStr))
	if name == "" {
		return defaultLevel
	}
	if name == "warning" {
		name = "warn"
	}
	level, err := zapcore.ParseLevel(name)
	if err != nil {
		return defaultLevel
	}
	return level
}
