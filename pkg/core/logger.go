// Package core holds the small set of interfaces shared by every npm-audit package.
package core

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the interface for logging in npm-audit.
// Implement this interface to route messages to a custom backend.
type Logger interface {
	// Debug logs a debug message
	Debug(format string, args ...interface{})

	// Info logs an info message
	Info(format string, args ...interface{})

	// Warn logs a warning message
	Warn(format string, args ...interface{})

	// Error logs an error message
	Error(format string, args ...interface{})
}

// LogLevel represents the logging level.
type LogLevel int

const (
	LogLevelDebug LogLevel = iota
	LogLevelInfo
	LogLevelWarn
	LogLevelError
	LogLevelSilent
)

// ParseLogLevel converts a level name to a LogLevel.
func ParseLogLevel(s string) (LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug, nil
	case "", "info":
		return LogLevelInfo, nil
	case "warn", "warning":
		return LogLevelWarn, nil
	case "error":
		return LogLevelError, nil
	case "silent", "off", "none":
		return LogLevelSilent, nil
	default:
		return LogLevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

func (l LogLevel) zerolog() zerolog.Level {
	switch l {
	case LogLevelDebug:
		return zerolog.DebugLevel
	case LogLevelInfo:
		return zerolog.InfoLevel
	case LogLevelWarn:
		return zerolog.WarnLevel
	case LogLevelError:
		return zerolog.ErrorLevel
	default:
		return zerolog.Disabled
	}
}

// ZerologLogger is the default logger. It writes human-readable lines to
// stderr, or JSON lines when constructed with json=true.
type ZerologLogger struct {
	logger zerolog.Logger
}

// NewZerologLogger creates a logger writing to w (stderr when nil).
func NewZerologLogger(w io.Writer, level LogLevel, json bool) *ZerologLogger {
	if !json {
		return NewConsoleLogger(w, level, false)
	}
	return newZerolog(w, level)
}

// NewConsoleLogger creates a human-readable logger, optionally without ANSI
// colours.
func NewConsoleLogger(w io.Writer, level LogLevel, noColor bool) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	return newZerolog(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: noColor}, level)
}

func newZerolog(w io.Writer, level LogLevel) *ZerologLogger {
	if w == nil {
		w = os.Stderr
	}
	return &ZerologLogger{
		logger: zerolog.New(w).Level(level.zerolog()).With().Timestamp().Str("component", "npm-audit").Logger(),
	}
}

// With returns a child logger tagged with key=value.
func (l *ZerologLogger) With(key, value string) *ZerologLogger {
	return &ZerologLogger{logger: l.logger.With().Str(key, value).Logger()}
}

// Debug logs a debug message.
func (l *ZerologLogger) Debug(format string, args ...interface{}) {
	l.logger.Debug().Msgf(format, args...)
}

// Info logs an info message.
func (l *ZerologLogger) Info(format string, args ...interface{}) {
	l.logger.Info().Msgf(format, args...)
}

// Warn logs a warning message.
func (l *ZerologLogger) Warn(format string, args ...interface{}) {
	l.logger.Warn().Msgf(format, args...)
}

// Error logs an error message.
func (l *ZerologLogger) Error(format string, args ...interface{}) {
	l.logger.Error().Msgf(format, args...)
}

// NopLogger is a no-op logger that discards all messages.
type NopLogger struct{}

func (l *NopLogger) Debug(format string, args ...interface{}) {}
func (l *NopLogger) Info(format string, args ...interface{})  {}
func (l *NopLogger) Warn(format string, args ...interface{})  {}
func (l *NopLogger) Error(format string, args ...interface{}) {}

// OrNop returns l, or a NopLogger when l is nil.
func OrNop(l Logger) Logger {
	if l == nil {
		return &NopLogger{}
	}
	return l
}
