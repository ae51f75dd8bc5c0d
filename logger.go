package undolog

import (
	"io"
	"log/slog"
	"math"
	"os"
	"time"
)

// Logger wraps slog.Logger with undolog-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.Level(math.MaxInt)}))
}

// WithPartition adds a partition field to the logger.
func (l *Logger) WithPartition(id int32) *Logger {
	return &Logger{
		Logger: l.Logger.With("partition", id),
	}
}

// WithQuantum adds a quantum token field to the logger.
func (l *Logger) WithQuantum(token int64) *Logger {
	return &Logger{
		Logger: l.Logger.With("quantum", token),
	}
}

// LogCommit logs a committed quantum.
func (l *Logger) LogCommit(token int64, actions int, elapsed time.Duration) {
	l.Debug("quantum committed",
		"quantum", token,
		"actions", actions,
		"elapsed", elapsed,
	)
}

// LogRollback logs a rolled back quantum.
func (l *Logger) LogRollback(token int64, actions int, elapsed time.Duration) {
	l.Info("quantum rolled back",
		"quantum", token,
		"actions", actions,
		"elapsed", elapsed,
	)
}

// LogOutOfMemory logs a failed chunk acquisition.
func (l *Logger) LogOutOfMemory(size int, err error) {
	l.Error("out of memory",
		"size", size,
		"error", err,
	)
}

// LogClose logs partition shutdown.
func (l *Logger) LogClose(reserved int64, err error) {
	if err != nil {
		l.Error("partition closed with errors",
			"reserved_bytes", reserved,
			"error", err,
		)
	} else {
		l.Info("partition closed",
			"reserved_bytes", reserved,
		)
	}
}
