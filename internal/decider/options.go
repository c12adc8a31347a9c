package decider

import (
	"log/slog"
	"time"
)

// Version is the package version reported with every Outcome.
// It is overridden at link time for release builds.
var Version = "0.0.1-dev"

// Override is an out-of-band assignment for one (feature, identifier) pair.
// Range variants use Variant; dynamic configs use Value when HasValue is set.
type Override struct {
	Variant  string
	Value    any
	HasValue bool
}

// OverrideStore supplies out-of-band overrides.
// Lookup is called on the decision path and must not block on I/O.
type OverrideStore interface {
	Lookup(feature, identifier string) (Override, bool)
}

// Option configures a Decider.
type Option func(*Decider)

// WithLogger sets the logger used for load warnings and diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(d *Decider) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithMetrics sets the sink receiving one Outcome per operation.
func WithMetrics(m MetricsSink) Option {
	return func(d *Decider) {
		if m != nil {
			d.metrics = m
		}
	}
}

// WithOverrides enables the out-of-band override lookup.
func WithOverrides(s OverrideStore) Option {
	return func(d *Decider) {
		d.overrides = s
	}
}

// WithClock replaces time.Now for validity window checks.
func WithClock(now func() time.Time) Option {
	return func(d *Decider) {
		if now != nil {
			d.now = now
		}
	}
}
