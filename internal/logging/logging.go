// Package logging wraps github.com/rs/zerolog with the engine's field
// conventions, usable from the scheduler, operators, and the engine
// facade alike.
package logging

import (
	"context"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Logger wraps zerolog.Logger with request/node scoping helpers and the
// slog-shaped key-value call conventions the rest of the engine uses.
type Logger struct {
	zl zerolog.Logger
}

// Config controls the process-wide logger (DAGENGINE_LOG_* env vars).
type Config struct {
	Level  string // "debug", "info", "warn", "error"
	Format string // "json" or "text"
}

// New builds a Logger from Config, defaulting to info/json.
func New(cfg Config) *Logger {
	var w io.Writer = os.Stderr
	if cfg.Format == "text" {
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}
	return &Logger{zl: zerolog.New(w).Level(parseLevel(cfg.Level)).With().Timestamp().Logger()}
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

func withFields(e *zerolog.Event, kvs []any) *zerolog.Event {
	for i := 0; i+1 < len(kvs); i += 2 {
		key, ok := kvs[i].(string)
		if !ok {
			continue
		}
		e = e.Interface(key, kvs[i+1])
	}
	return e
}

// Debug logs at debug level with alternating key/value fields.
func (l *Logger) Debug(msg string, kvs ...any) { withFields(l.zl.Debug(), kvs).Msg(msg) }

// Info logs at info level with alternating key/value fields.
func (l *Logger) Info(msg string, kvs ...any) { withFields(l.zl.Info(), kvs).Msg(msg) }

// Warn logs at warn level with alternating key/value fields.
func (l *Logger) Warn(msg string, kvs ...any) { withFields(l.zl.Warn(), kvs).Msg(msg) }

// Error logs at error level with alternating key/value fields.
func (l *Logger) Error(msg string, kvs ...any) { withFields(l.zl.Error(), kvs).Msg(msg) }

// DebugContext logs at debug level, exactly as Debug does; ctx is
// accepted for call-site symmetry and is not read.
func (l *Logger) DebugContext(ctx context.Context, msg string, kvs ...any) { l.Debug(msg, kvs...) }

// InfoContext logs at info level, exactly as Info does; ctx is accepted
// for call-site symmetry and is not read.
func (l *Logger) InfoContext(ctx context.Context, msg string, kvs ...any) { l.Info(msg, kvs...) }

// WarnContext logs at warn level, exactly as Warn does; ctx is accepted
// for call-site symmetry and is not read.
func (l *Logger) WarnContext(ctx context.Context, msg string, kvs ...any) { l.Warn(msg, kvs...) }

// ErrorContext logs at error level, exactly as Error does; ctx is
// accepted for call-site symmetry and is not read.
func (l *Logger) ErrorContext(ctx context.Context, msg string, kvs ...any) { l.Error(msg, kvs...) }

// With returns a Logger with kvs permanently attached to every
// subsequent log line.
func (l *Logger) With(kvs ...any) *Logger {
	ctx := l.zl.With()
	for i := 0; i+1 < len(kvs); i += 2 {
		key, ok := kvs[i].(string)
		if !ok {
			continue
		}
		ctx = ctx.Interface(key, kvs[i+1])
	}
	return &Logger{zl: ctx.Logger()}
}

// WithRequest returns a logger scoped to a single request.
func (l *Logger) WithRequest(requestID string) *Logger {
	return l.With("request_id", requestID)
}

// WithNode returns a logger scoped to a single DAG node execution.
func (l *Logger) WithNode(nodeID, op string) *Logger {
	return l.With("node_id", nodeID, "op", op)
}

type ctxKey struct{}

// Into stores a Logger on ctx for retrieval by FromContext.
func Into(ctx context.Context, l *Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromContext returns the Logger stored on ctx, or, when none is stored,
// a default Logger that writes error-level lines to stderr.
func FromContext(ctx context.Context) *Logger {
	if l, ok := ctx.Value(ctxKey{}).(*Logger); ok {
		return l
	}
	return &Logger{zl: zerolog.New(os.Stderr).Level(zerolog.ErrorLevel)}
}
