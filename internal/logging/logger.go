package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

type ctxKey int

const (
	runIDKey ctxKey = iota
	actionTypeKey
)

// Logger wraps slog.Logger to provide context-aware structured logging.
// Run and action-type identifiers stored in the context are attached to every record.
type Logger struct {
	*slog.Logger
}

// New creates a new Logger writing to stdout.
// format can be "json" or "text" (default is json).
func New(level slog.Level, format string) *Logger {
	return NewWithWriter(os.Stdout, level, format)
}

// NewWithWriter creates a Logger writing to w.
func NewWithWriter(w io.Writer, level slog.Level, format string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level <= slog.LevelError,
	}

	switch format {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{Logger: slog.New(handler)}
}

// Nop returns a logger that discards everything. Used by tests and library defaults.
func Nop() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// Default returns the default logger (uses slog.Default).
func Default() *Logger {
	return &Logger{Logger: slog.Default()}
}

// ContextWithRunID stores the run identifier in ctx.
func ContextWithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// ContextWithActionType stores the action type currently being processed in ctx.
func ContextWithActionType(ctx context.Context, actionType string) context.Context {
	return context.WithValue(ctx, actionTypeKey, actionType)
}

// RunIDFromContext returns the run identifier stored in ctx, if any.
func RunIDFromContext(ctx context.Context) string {
	if v, ok := ctx.Value(runIDKey).(string); ok {
		return v
	}
	return ""
}

// WithContext returns a logger that carries the run and action type found in ctx.
func (l *Logger) WithContext(ctx context.Context) *slog.Logger {
	logger := l.Logger
	if runID := RunIDFromContext(ctx); runID != "" {
		logger = logger.With(slog.String(FieldRunID, runID))
	}
	if at, ok := ctx.Value(actionTypeKey).(string); ok && at != "" {
		logger = logger.With(slog.String(FieldActionType, at))
	}
	return logger
}

// InfoContext logs at Info level with context-aware fields.
func (l *Logger) InfoContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).InfoContext(ctx, msg, args...)
}

// WarnContext logs at Warn level with context-aware fields.
func (l *Logger) WarnContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).WarnContext(ctx, msg, args...)
}

// ErrorContext logs at Error level with context-aware fields.
func (l *Logger) ErrorContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).ErrorContext(ctx, msg, args...)
}

// DebugContext logs at Debug level with context-aware fields.
func (l *Logger) DebugContext(ctx context.Context, msg string, args ...any) {
	l.WithContext(ctx).DebugContext(ctx, msg, args...)
}

// With returns a new logger with the given attributes added.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

// ParseLevel converts a string log level to slog.Level.
// Returns slog.LevelInfo for unknown values.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// SetDefault sets the default logger for the application.
func SetDefault(l *Logger) {
	slog.SetDefault(l.Logger)
}
