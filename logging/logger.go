// Package logging provides a tiny abstraction over slog so downstream code can
// depend on a minimal interface (Logger) while allowing users to plug any
// structured logger. It also offers ComponentLogger with contextual helpers
// (component, session) and domain helpers for tool and model calls.
package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"
)

// LogLevel is a thin enum for user friendly level configuration decoupled from slog.
type LogLevel int

const (
	// LogLevelDebug is the debug logging level.
	LogLevelDebug LogLevel = iota
	// LogLevelInfo is the informational logging level.
	LogLevelInfo
	// LogLevelWarn is the warning logging level.
	LogLevelWarn
	// LogLevelError is the error logging level.
	LogLevelError
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarn:
		return "WARN"
	case LogLevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a configuration string ("debug", "warn", ...) to a LogLevel.
// Unknown values map to LogLevelInfo.
func ParseLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "warn", "warning":
		return LogLevelWarn
	case "error":
		return LogLevelError
	default:
		return LogLevelInfo
	}
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LogLevelDebug:
		return slog.LevelDebug
	case LogLevelWarn:
		return slog.LevelWarn
	case LogLevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Logger defines the minimal logging interface used across toolmesh.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// SlogAdapter wraps *slog.Logger to implement the Logger interface.
type SlogAdapter struct {
	*slog.Logger
}

// NewSlogAdapter creates a Logger from *slog.Logger.
func NewSlogAdapter(logger *slog.Logger) Logger {
	return &SlogAdapter{Logger: logger}
}

// NewDefaultSlogLogger creates a Logger using slog.Default().
func NewDefaultSlogLogger() Logger {
	return NewSlogAdapter(slog.Default())
}

// Config configures construction of a ComponentLogger.
type Config struct {
	Level     LogLevel
	Format    string // json or text
	Output    io.Writer
	AddSource bool
	Component string
}

// DefaultConfig returns a text, info level configuration writing to stderr.
func DefaultConfig() Config {
	return Config{Level: LogLevelInfo, Format: "text", Output: os.Stderr}
}

// ComponentLogger wraps slog.Logger adding contextual cloning helpers and
// domain convenience methods. With* methods return copies.
type ComponentLogger struct {
	logger *slog.Logger
}

// New builds a ComponentLogger from cfg.
func New(cfg Config) *ComponentLogger {
	if cfg.Output == nil {
		cfg.Output = os.Stderr
	}

	opts := &slog.HandlerOptions{Level: cfg.Level.slogLevel(), AddSource: cfg.AddSource}

	var handler slog.Handler
	if strings.EqualFold(cfg.Format, "json") {
		handler = slog.NewJSONHandler(cfg.Output, opts)
	} else {
		handler = slog.NewTextHandler(cfg.Output, opts)
	}

	l := slog.New(handler)
	if cfg.Component != "" {
		l = l.With(slog.String("component", cfg.Component))
	}

	return &ComponentLogger{logger: l}
}

// Slog exposes the underlying *slog.Logger.
func (l *ComponentLogger) Slog() *slog.Logger { return l.logger }

// With returns a logger carrying the given attributes on every entry.
func (l *ComponentLogger) With(args ...any) *ComponentLogger {
	return &ComponentLogger{logger: l.logger.With(args...)}
}

// WithComponent sets the logical component (tool, agent, coordinator, ...).
func (l *ComponentLogger) WithComponent(c string) *ComponentLogger {
	return l.With(slog.String("component", c))
}

// WithSession attaches a session identifier.
func (l *ComponentLogger) WithSession(sessionID string) *ComponentLogger {
	return l.With(slog.String("session_id", sessionID))
}

// Debug logs at debug level.
func (l *ComponentLogger) Debug(msg string, args ...any) { l.logger.Debug(msg, args...) }

// Info logs at info level.
func (l *ComponentLogger) Info(msg string, args ...any) { l.logger.Info(msg, args...) }

// Warn logs at warn level.
func (l *ComponentLogger) Warn(msg string, args ...any) { l.logger.Warn(msg, args...) }

// Error logs at error level.
func (l *ComponentLogger) Error(msg string, args ...any) { l.logger.Error(msg, args...) }

// NoOpLogger discards all log messages. Useful for testing or when logging is disabled.
type NoOpLogger struct{}

// Debug logs a debug message.
func (NoOpLogger) Debug(string, ...any) {}

// Info logs an informational message.
func (NoOpLogger) Info(string, ...any) {}

// Warn logs a warning message.
func (NoOpLogger) Warn(string, ...any) {}

// Error logs an error message.
func (NoOpLogger) Error(string, ...any) {}

// OrNoOp returns l, or NoOpLogger when l is nil.
func OrNoOp(l Logger) Logger {
	if l == nil {
		return NoOpLogger{}
	}
	return l
}

// LogToolCall records the outcome of one tool execution. outcome is one of
// "completed", "failed" or "timed_out".
func LogToolCall(l Logger, tool, executionID, outcome string, dur time.Duration, err error) {
	args := []any{"tool", tool, "execution_id", executionID, "outcome", outcome, "duration_ms", dur.Milliseconds()}
	if err != nil {
		args = append(args, "error", err.Error())
	}

	switch outcome {
	case "completed":
		l.Info("tool.call.completed", args...)
	case "timed_out":
		l.Warn("tool.call.timed_out", args...)
	default:
		l.Error("tool.call.failed", args...)
	}
}

// LogLLMCall records model call latency and success.
func LogLLMCall(l Logger, model string, dur time.Duration, err error) {
	if err != nil {
		l.Error("llm.call.failed", "model", model, "duration_ms", dur.Milliseconds(), "error", err.Error())
		return
	}
	l.Debug("llm.call.completed", "model", model, "duration_ms", dur.Milliseconds())
}

// Enabled reports whether l would emit records at level. Loggers that are
// not slog backed always report true.
func Enabled(l Logger, level LogLevel) bool {
	switch v := l.(type) {
	case NoOpLogger:
		return false
	case *ComponentLogger:
		return v.logger.Enabled(context.Background(), level.slogLevel())
	case *SlogAdapter:
		return v.Logger.Enabled(context.Background(), level.slogLevel())
	default:
		return true
	}
}
