// SPDX-License-Identifier: AGPL-3.0-or-later
// Copyright (c) 2026 tandril contributors
// https://github.com/sarahliz0715/Tandril-sub000

package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// OutputConfig configures the logger output destination.
type OutputConfig struct {
	// Output destination: "stdout", "stderr", or "file" (default "stdout")
	Output string
	// Path is the log file path, used only when Output == "file".
	// Rotation is left to the deployment (logrotate, container runtime).
	Path string
}

// Logger wraps zap.SugaredLogger with named children and a dynamic level.
type Logger struct {
	*zap.SugaredLogger
	base  *zap.Logger
	level zap.AtomicLevel
}

// New creates a new Logger instance writing to stdout.
func New(level, format string) (*Logger, error) {
	return NewWithOutput(level, format, os.Stdout)
}

// NewFromConfig creates a logger from the full output configuration.
func NewFromConfig(level, format string, cfg OutputConfig) (*Logger, error) {
	switch strings.ToLower(cfg.Output) {
	case "file":
		if cfg.Path == "" {
			return nil, fmt.Errorf("logging.path is required when output is 'file'")
		}
		f, err := os.OpenFile(cfg.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		return NewWithOutput(level, format, f)
	case "stderr":
		return NewWithOutput(level, format, os.Stderr)
	default: // "stdout" or empty
		return NewWithOutput(level, format, os.Stdout)
	}
}

// NewWithOutput creates a new Logger instance with custom output.
func NewWithOutput(level, format string, output io.Writer) (*Logger, error) {
	atomicLevel := zap.NewAtomicLevel()
	if err := atomicLevel.UnmarshalText([]byte(level)); err != nil {
		atomicLevel.SetLevel(zapcore.InfoLevel)
	}

	encoderConfig := zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.SecondsDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}

	var encoder zapcore.Encoder
	switch format {
	case "json":
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	case "console", "text":
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	default:
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	}

	core := zapcore.NewCore(
		encoder,
		zapcore.AddSync(output),
		atomicLevel,
	)

	base := zap.New(core,
		zap.AddCaller(),
		zap.AddCallerSkip(1),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)

	return &Logger{
		SugaredLogger: base.Sugar(),
		base:          base,
		level:         atomicLevel,
	}, nil
}

// With returns a logger with additional fields
func (l *Logger) With(args ...interface{}) *Logger {
	return &Logger{
		SugaredLogger: l.SugaredLogger.With(args...),
		base:          l.base,
		level:         l.level,
	}
}

// Named returns a named logger
func (l *Logger) Named(name string) *Logger {
	named := l.base.Named(name)
	return &Logger{
		SugaredLogger: named.Sugar(),
		base:          named,
		level:         l.level,
	}
}

// WithFields returns a logger with structured fields
func (l *Logger) WithFields(fields map[string]interface{}) *Logger {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, k, v)
	}
	return l.With(args...)
}

// SetLevel dynamically changes the log level
func (l *Logger) SetLevel(level string) error {
	return l.level.UnmarshalText([]byte(level))
}

// GetLevel returns the current log level
func (l *Logger) GetLevel() string {
	return l.level.Level().String()
}

// Sync flushes any buffered log entries
func (l *Logger) Sync() error {
	return l.base.Sync()
}

// Base returns the underlying zap.Logger
func (l *Logger) Base() *zap.Logger {
	return l.base
}

// Fatal logs a message at Fatal level and exits
func (l *Logger) Fatal(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Fatalw(msg, keysAndValues...)
}

// Error logs a message at Error level
func (l *Logger) Error(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Errorw(msg, keysAndValues...)
}

// Warn logs a message at Warn level
func (l *Logger) Warn(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Warnw(msg, keysAndValues...)
}

// Info logs a message at Info level
func (l *Logger) Info(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Infow(msg, keysAndValues...)
}

// Debug logs a message at Debug level
func (l *Logger) Debug(msg string, keysAndValues ...interface{}) {
	l.SugaredLogger.Debugw(msg, keysAndValues...)
}

// Nop returns a no-op logger that discards all output
func Nop() *Logger {
	return &Logger{
		SugaredLogger: zap.NewNop().Sugar(),
		base:          zap.NewNop(),
		level:         zap.NewAtomicLevel(),
	}
}
