package logger

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// WithContext stores l for commands and the helpers they call.
func WithContext(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, contextKey{}, l)
}

// FromContext returns the stored logger, or slog.Default() when none was stored.
func FromContext(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(contextKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return slog.Default()
}

// With narrows the stored logger with attrs, so every record emitted below
// ctx carries them (the running subcommand, the document being served).
func With(ctx context.Context, attrs ...any) context.Context {
	if len(attrs) == 0 {
		return ctx
	}
	return WithContext(ctx, FromContext(ctx).With(attrs...))
}
