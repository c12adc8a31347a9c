package config

import (
	"fmt"
	"strings"
	"time"
)

// OverridesConfig configures out-of-band overrides synced from Redis into memory.
type OverridesConfig struct {
	Enabled      bool          `envconfig:"ENABLED" default:"false"`
	Capacity     int           `envconfig:"CAPACITY" default:"100000" validate:"min=1"`
	TTL          time.Duration `envconfig:"TTL" default:"10m" validate:"gte=0"`
	SyncInterval time.Duration `envconfig:"SYNC_INTERVAL" default:"30s" validate:"min=1s"`

	// KeyPrefix is prepended to the feature name to form the Redis hash key.
	KeyPrefix string `envconfig:"KEY_PREFIX" default:"decider:overrides:"`
}

// Validate checks OverridesConfig fields for correctness.
func (o *OverridesConfig) Validate() error {
	if !o.Enabled {
		return nil
	}
	if err := validateNoWhitespace(o.KeyPrefix, "overrides key prefix"); err != nil {
		return err
	}
	if !strings.HasSuffix(o.KeyPrefix, ":") {
		return fmt.Errorf("overrides key prefix must end with ':', got %q", o.KeyPrefix)
	}
	if o.TTL > 0 && o.TTL < o.SyncInterval {
		return fmt.Errorf("overrides ttl (%s) must not be shorter than sync interval (%s)", o.TTL, o.SyncInterval)
	}
	return nil
}
