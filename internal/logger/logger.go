// Package logger provides a configured structured logger for the decider service and CLI.
// It wraps "log/slog" so every command logs with the same format (JSON or text),
// level and identity attributes.
package logger

import (
	"io"
	"log/slog"
	"os"

	"github.com/rafaeljc/decider/internal/config"
)

// New creates a *slog.Logger from the app config, writing to os.Stderr.
// Stdout is reserved for command output (decisions, values) so it stays pipeable.
func New(cfg *config.AppConfig) *slog.Logger {
	return NewWithWriter(cfg, os.Stderr)
}

// NewWithWriter creates a *slog.Logger from the app config, writing to w.
func NewWithWriter(cfg *config.AppConfig, w io.Writer) *slog.Logger {
	if cfg == nil {
		panic("logger: config cannot be nil")
	}

	opts := &slog.HandlerOptions{
		Level: ParseLevel(cfg.LogLevel),
		// file:line is useful while debugging but costly in production
		AddSource: cfg.Environment != config.EnvironmentProduction && cfg.LogLevel == "debug",
	}

	var handler slog.Handler
	switch cfg.LogFormat {
	case "text":
		handler = slog.NewTextHandler(w, opts)
	default:
		handler = slog.NewJSONHandler(w, opts)
	}

	return slog.New(handler).With(
		slog.String("service", cfg.Name),
		slog.String("version", cfg.Version),
		slog.String("env", cfg.Environment),
	)
}

// WithComponent tags every record of the returned logger with the emitting component.
func WithComponent(l *slog.Logger, component string) *slog.Logger {
	if l == nil {
		l = slog.Default()
	}
	return l.With(slog.String("component", component))
}

// ParseLevel converts a string to slog.Level. Defaults to INFO.
func ParseLevel(s string) slog.Level {
	var level slog.Level
	// UnmarshalText handles case insensitivity (INFO, info, Info)
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return level
}
