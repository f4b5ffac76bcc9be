package logging

import (
	"os"

	"go.uber.org/zap/zapcore"
)

// NewMultiCore returns a core that tees every entry to stdout and to a
// rotating log file.
//
// The file side is always JSON. The console side is colored and human
// readable in development, JSON otherwise, so container log collectors get
// the same shape as the file.
func NewMultiCore(level zapcore.Level, filePath string, isDev bool) (zapcore.Core, error) {
	if err := ensureLogDir(filePath); err != nil {
		return nil, err
	}
	return NewMultiCoreWithWriters(level, zapcore.Lock(os.Stdout), NewFileWriter(filePath), isDev), nil
}

// NewMultiCoreWithWriters is NewMultiCore with explicit writers, for tests
// and alternative sinks.
func NewMultiCoreWithWriters(level zapcore.Level, consoleWriter, fileWriter zapcore.WriteSyncer, isDev bool) zapcore.Core {
	fileCore := zapcore.NewCore(
		zapcore.NewJSONEncoder(NewEncoderConfig()),
		fileWriter,
		level,
	)

	var consoleEncoder zapcore.Encoder
	if isDev {
		consoleEncoder = zapcore.NewConsoleEncoder(NewConsoleEncoderConfig())
	} else {
		consoleEncoder = zapcore.NewJSONEncoder(NewEncoderConfig())
	}

	consoleCore := zapcore.NewCore(consoleEncoder, consoleWriter, level)

	return zapcore.NewTee(consoleCore, fileCore)
}
