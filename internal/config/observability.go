package config

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ObservabilityConfig holds configuration for the admin server (metrics, probes)
// started by `decider serve`.
type ObservabilityConfig struct {
	Port string `envconfig:"PORT" default:"9090"`

	// Timeout is the unified safety valve for Read/Write/Idle operations and readiness checks.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s" validate:"min=1s"`

	LivenessPath  string `envconfig:"LIVENESS_PATH" default:"/healthz"`
	ReadinessPath string `envconfig:"READINESS_PATH" default:"/readyz"`
	MetricsPath   string `envconfig:"METRICS_PATH" default:"/metrics"`

	// FeaturesPath lists the loaded features and load failures; empty disables it.
	FeaturesPath string `envconfig:"FEATURES_PATH" default:"/debug/features"`
}

// Validate checks the port and that every enabled route is an absolute,
// distinct path on the admin router.
func (o *ObservabilityConfig) Validate() error {
	errs := []error{validatePort(o.Port, "observability")}

	seen := make(map[string]string, 4)
	for _, r := range []struct{ name, path string }{
		{"liveness", o.LivenessPath},
		{"readiness", o.ReadinessPath},
		{"metrics", o.MetricsPath},
		{"features", o.FeaturesPath},
	} {
		if r.path == "" && r.name == "features" {
			continue
		}
		if !strings.HasPrefix(r.path, "/") {
			errs = append(errs, fmt.Errorf("observability %s path must start with '/', got %q", r.name, r.path))
			continue
		}
		if other, dup := seen[r.path]; dup {
			errs = append(errs, fmt.Errorf("observability %s path %q is already used by %s", r.name, r.path, other))
			continue
		}
		seen[r.path] = r.name
	}

	return errors.Join(errs...)
}
