// Package slogger exposes package-level logging functions backed by one
// process-wide ApplicationLogger, keeping call sites as terse as the
// standard library's slog while still emitting structured records.
package slogger

import (
	"context"
	"sync"

	"github.com/shini559/Gaming-advisor-sub000/internal/application/common/logging"
)

// Fields mirrors logging.Fields for call-site convenience.
type Fields = logging.Fields

var (
	globalMu     sync.RWMutex              //nolint:gochecknoglobals // process-wide logger
	globalLogger logging.ApplicationLogger //nolint:gochecknoglobals // process-wide logger
)

// getLogger returns the process logger, building the default JSON/stdout
// logger on first use.
func getLogger() logging.ApplicationLogger {
	globalMu.RLock()
	logger := globalLogger
	globalMu.RUnlock()
	if logger != nil {
		return logger
	}

	globalMu.Lock()
	defer globalMu.Unlock()
	if globalLogger == nil {
		logger, err := logging.NewApplicationLogger(logging.Config{
			Level:  "INFO",
			Format: "json",
			Output: "stdout",
		})
		if err != nil {
			panic("failed to initialize default logger: " + err.Error())
		}
		globalLogger = logger
	}
	return globalLogger
}

// SetGlobalLogger replaces the process logger. Call it during startup,
// before goroutines begin logging.
func SetGlobalLogger(logger logging.ApplicationLogger) {
	globalMu.Lock()
	globalLogger = logger
	globalMu.Unlock()
}

// Debug logs a debug message with context.
func Debug(ctx context.Context, msg string, fields Fields) {
	getLogger().Debug(ctx, msg, fields)
}

// Info logs an info message with context.
func Info(ctx context.Context, msg string, fields Fields) {
	getLogger().Info(ctx, msg, fields)
}

// Warn logs a warning message with context.
func Warn(ctx context.Context, msg string, fields Fields) {
	getLogger().Warn(ctx, msg, fields)
}

// Error logs an error message with context.
func Error(ctx context.Context, msg string, fields Fields) {
	getLogger().Error(ctx, msg, fields)
}

// ErrorWithError logs an error message with the causing error attached.
func ErrorWithError(ctx context.Context, err error, msg string, fields Fields) {
	getLogger().ErrorWithError(ctx, err, msg, fields)
}

// The NoCtx variants log against a background context. They exist for
// call sites that have no request or job context, such as construction
// and shutdown paths.

// DebugNoCtx logs a debug message without context.
func DebugNoCtx(msg string, fields Fields) {
	getLogger().Debug(context.Background(), msg, fields)
}

// InfoNoCtx logs an info message without context.
func InfoNoCtx(msg string, fields Fields) {
	getLogger().Info(context.Background(), msg, fields)
}

// WarnNoCtx logs a warning message without context.
func WarnNoCtx(msg string, fields Fields) {
	getLogger().Warn(context.Background(), msg, fields)
}

// ErrorNoCtx logs an error message without context.
func ErrorNoCtx(msg string, fields Fields) {
	getLogger().Error(context.Background(), msg, fields)
}

// ErrorWithErrorNoCtx logs an error with its cause and no context.
func ErrorWithErrorNoCtx(err error, msg string, fields Fields) {
	getLogger().ErrorWithError(context.Background(), err, msg, fields)
}
