// Package logging builds the zap loggers used for diagnostics. Events meant
// for the caller of gacq go through internal/output instead.
package logging

import (
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type Options struct {
	// Path, when set, appends JSON lines to this file instead of Writer.
	Path    string
	Writer  io.Writer
	Verbose bool
}

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:       "timestamp",
		LevelKey:      "level",
		NameKey:       "logger",
		MessageKey:    "message",
		StacktraceKey: "stacktrace",
		EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
	}
}

// New returns a JSON logger and a cleanup func that syncs and closes any
// file it opened.
func New(opts Options) (*zap.Logger, func(), error) {
	var (
		sink    zapcore.WriteSyncer
		closeFn = func() {}
	)

	switch {
	case opts.Path != "":
		file, err := os.OpenFile(opts.Path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file %s: %w", opts.Path, err)
		}
		sink = zapcore.AddSync(file)
		closeFn = func() { _ = file.Close() }
	case opts.Writer != nil:
		sink = zapcore.AddSync(opts.Writer)
	default:
		sink = zapcore.Lock(os.Stderr)
	}

	level := zapcore.InfoLevel
	if opts.Verbose {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoderConfig()), sink, level)
	logger := zap.New(core)
	return logger, func() {
		_ = logger.Sync()
		closeFn()
	}, nil
}

// Component returns logger scoped with a component field, or a no-op
// logger when logger is nil.
func Component(logger *zap.Logger, name string) *zap.Logger {
	if logger == nil {
		return zap.NewNop()
	}
	return logger.With(zap.String("component", name))
}
