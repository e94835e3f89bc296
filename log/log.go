// Package log provides structured logging for airbender. It wraps log/slog
// with per-module child loggers and renders through go-ethereum's terminal
// and JSON handlers.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"

	gethlog "github.com/ethereum/go-ethereum/log"
)

// LevelTrace is go-ethereum's trace level, below slog.LevelDebug.
const LevelTrace = gethlog.LevelTrace

// LevelSilent is above every level a record is logged at.
const LevelSilent = slog.Level(1 << 20)

// Logger wraps slog.Logger with module context.
type Logger struct {
	inner *slog.Logger
}

// defaultLogger is the process-wide logger used by the package-level
// convenience functions.
var defaultLogger *Logger

func init() {
	defaultLogger = New(slog.LevelInfo)
}

// New creates a Logger that writes terminal-formatted records to stderr at
// the given level.
func New(level slog.Level) *Logger {
	return newTerminal(os.Stderr, level)
}

func newTerminal(w io.Writer, level slog.Level) *Logger {
	return NewWithHandler(gethlog.NewTerminalHandlerWithLevel(w, level, false))
}

// NewWithHandler creates a Logger backed by the supplied slog.Handler.
func NewWithHandler(h slog.Handler) *Logger {
	return &Logger{inner: slog.New(h)}
}

// SetDefault replaces the package-level default logger.
func SetDefault(l *Logger) {
	if l != nil {
		defaultLogger = l
	}
}

// Default returns the current package-level default logger.
func Default() *Logger {
	return defaultLogger
}

// Module returns a child logger with an additional "module" attribute. This
// is how subsystems (engine, prover, pipeline, ...) obtain their own
// contextual logger.
func (l *Logger) Module(name string) *Logger {
	return &Logger{inner: l.inner.With("module", name)}
}

// With returns a child logger with additional key-value context.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{inner: l.inner.With(args...)}
}

// Enabled reports whether records at level would be emitted.
func (l *Logger) Enabled(level slog.Level) bool {
	return l.inner.Enabled(context.Background(), level)
}

// Trace logs at go-ethereum's trace level.
func (l *Logger) Trace(msg string, args ...any) { l.inner.Log(context.Background(), LevelTrace, msg, args...) }

// Debug logs at LevelDebug.
func (l *Logger) Debug(msg string, args ...any) { l.inner.Debug(msg, args...) }

// Info logs at LevelInfo.
func (l *Logger) Info(msg string, args ...any) { l.inner.Info(msg, args...) }

// Warn logs at LevelWarn.
func (l *Logger) Warn(msg string, args ...any) { l.inner.Warn(msg, args...) }

// Error logs at LevelError.
func (l *Logger) Error(msg string, args ...any) { l.inner.Error(msg, args...) }

// Module returns a child of the default logger. Packages call this lazily
// so that Setup can replace the default after they are initialised.
func Module(name string) *Logger { return defaultLogger.Module(name) }

// Debug logs at LevelDebug using the default logger.
func Debug(msg string, args ...any) { defaultLogger.Debug(msg, args...) }

// Info logs at LevelInfo using the default logger.
func Info(msg string, args ...any) { defaultLogger.Info(msg, args...) }

// Warn logs at LevelWarn using the default logger.
func Warn(msg string, args ...any) { defaultLogger.Warn(msg, args...) }

// Error logs at LevelError using the default logger.
func Error(msg string, args ...any) { defaultLogger.Error(msg, args...) }
