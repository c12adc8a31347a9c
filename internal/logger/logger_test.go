package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rafaeljc/decider/internal/config"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{name: "Should parse debug", input: "debug", want: slog.LevelDebug},
		{name: "Should be case insensitive", input: "WARN", want: slog.LevelWarn},
		{name: "Should parse error", input: "error", want: slog.LevelError},
		{name: "Should fallback to info on empty input", input: "", want: slog.LevelInfo},
		{name: "Should fallback to info on unknown levels", input: "super-critical", want: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, ParseLevel(tt.input))
		})
	}
}

func TestNewWithWriter(t *testing.T) {
	t.Parallel()

	t.Run("Should emit JSON with identity attributes", func(t *testing.T) {
		// Arrange
		var buf bytes.Buffer
		cfg := &config.AppConfig{Name: "decider", Version: "1.2.3", Environment: "production", LogLevel: "info", LogFormat: "json"}

		// Act
		NewWithWriter(cfg, &buf).Info("reloaded", slog.Int("features", 3))

		// Assert
		var record map[string]any
		require.NoError(t, json.Unmarshal(buf.Bytes(), &record))
		assert.Equal(t, "reloaded", record["msg"])
		assert.Equal(t, "decider", record["service"])
		assert.Equal(t, "1.2.3", record["version"])
		assert.Equal(t, "production", record["env"])
		assert.EqualValues(t, 3, record["features"])
		assert.NotContains(t, record, "source")
	})

	t.Run("Should emit text and drop records below the level", func(t *testing.T) {
		// Arrange
		var buf bytes.Buffer
		cfg := &config.AppConfig{Name: "decider", Environment: "development", LogLevel: "warn", LogFormat: "text"}
		log := NewWithWriter(cfg, &buf)

		// Act
		log.Info("hidden")
		log.Warn("Partially loaded Decider")

		// Assert
		out := buf.String()
		assert.NotContains(t, out, "hidden")
		assert.Contains(t, out, "level=WARN")
		assert.Contains(t, out, `msg="Partially loaded Decider"`)
	})

	t.Run("Should panic on a nil config", func(t *testing.T) {
		assert.Panics(t, func() { NewWithWriter(nil, &bytes.Buffer{}) })
	})
}

func TestWithComponent(t *testing.T) {
	t.Parallel()

	// Arrange
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))

	// Act
	WithComponent(base, "reload").Info("swapped")

	// Assert
	assert.Contains(t, buf.String(), "component=reload")
}
