package config

import (
	"fmt"
	"time"
)

// Feature document sources.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// SourceConfig selects where the feature document is loaded from and how
// changes are picked up.
type SourceConfig struct {
	Kind string `envconfig:"KIND" default:"file" validate:"oneof=file postgres"`

	// Path is the feature document on disk (Kind=file).
	Path string `envconfig:"PATH" default:"/etc/decider/features.json"`

	// Document is the decider_configs name to serve (Kind=postgres).
	Document string `envconfig:"DOCUMENT" default:"default"`

	// Watch enables hot reload: fsnotify for files, polling for postgres.
	Watch bool `envconfig:"WATCH" default:"true"`

	// Debounce collapses bursts of filesystem events into one reload.
	Debounce time.Duration `envconfig:"DEBOUNCE" default:"250ms" validate:"min=10ms"`

	// PollInterval is how often postgres is checked for a newer version.
	PollInterval time.Duration `envconfig:"POLL_INTERVAL" default:"30s" validate:"min=1s"`
}

// Validate checks the fields required by the selected source kind.
func (s *SourceConfig) Validate() error {
	switch s.Kind {
	case SourceFile:
		if err := validateNoWhitespace(s.Path, "source path"); err != nil {
			return err
		}
	case SourcePostgres:
		if err := validateNoWhitespace(s.Document, "source document"); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown source kind %q", s.Kind)
	}
	return nil
}
