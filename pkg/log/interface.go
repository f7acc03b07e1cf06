// Package log provides the structured logging interface used by the
// connectivity estimators.
//
// The Logger interface is slog-compatible so any backend can be plugged in.
// The default backend writes JSON through zerolog; tests use TestLogger to
// capture entries in memory.
//
// Example usage:
//
//	logger := log.GetLoggerWithName("Ridge")
//	logger.Debug("fit completed",
//	    log.OperationKey, log.OperationFit,
//	    log.SamplesKey, 100,
//	    log.FeaturesKey, 10,
//	)
package log

import (
	"context"
)

// Logger defines a structured logging interface compatible with log/slog.
// Fields are alternating key/value pairs.
type Logger interface {
	// Debug logs diagnostic detail, normally disabled.
	Debug(msg string, fields ...any)

	// Info logs general operational information.
	Info(msg string, fields ...any)

	// Warn logs conditions that deserve attention but do not fail the call.
	Warn(msg string, fields ...any)

	// Error logs a failure. If the first field is an error it is attached
	// under ErrAttrKey.
	Error(msg string, fields ...any)

	// With returns a Logger that adds fields to every entry.
	With(fields ...any) Logger

	// Enabled reports whether entries at level would be emitted.
	Enabled(ctx context.Context, level Level) bool
}

// Level represents a logging level, compatible with slog.Level.
type Level int

// Standard logging levels, values are compatible with slog.Level.
const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

// String returns the string representation of the log level.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// LoggerProvider creates loggers; swap it out in tests with
// NewTestLoggerProvider.
type LoggerProvider interface {
	// GetLogger returns the default logger instance.
	GetLogger() Logger

	// GetLoggerWithName returns a logger tagged with a component name.
	GetLoggerWithName(name string) Logger

	// SetLevel sets the minimum level for loggers created by this provider.
	SetLevel(level Level)
}
