package config

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"
)

// RedisConfig locates the Redis instance holding authored overrides. It is
// only required when overrides are enabled and for the override commands.
type RedisConfig struct {
	// URL wins over the individual fields when set. A rediss:// URL implies TLS.
	URL      string `envconfig:"URL"`
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT"`
	Password string `envconfig:"PASSWORD"`
	DB       int    `envconfig:"DB" default:"0" validate:"min=0,max=15"`

	TLSEnabled bool `envconfig:"TLS_ENABLED" default:"false"`

	// The syncer issues one pipelined HGETALL batch per cycle; the pool is
	// mostly idle between cycles.
	PoolSize        int           `envconfig:"POOL_SIZE" default:"10" validate:"min=1"`
	MinIdleConns    int           `envconfig:"MIN_IDLE_CONNS" default:"2" validate:"min=0"`
	DialTimeout     time.Duration `envconfig:"DIAL_TIMEOUT" default:"5s"`
	ReadTimeout     time.Duration `envconfig:"READ_TIMEOUT" default:"10s"`
	WriteTimeout    time.Duration `envconfig:"WRITE_TIMEOUT" default:"3s"`
	PoolTimeout     time.Duration `envconfig:"POOL_TIMEOUT" default:"4s"`
	MaxRetries      int           `envconfig:"MAX_RETRIES" default:"3" validate:"min=0"`
	MinRetryBackoff time.Duration `envconfig:"MIN_RETRY_BACKOFF" default:"8ms"`
	MaxRetryBackoff time.Duration `envconfig:"MAX_RETRY_BACKOFF" default:"512ms"`

	// Startup ping: attempts and the base delay, doubled per attempt.
	PingMaxRetries int           `envconfig:"PING_MAX_RETRIES" default:"5" validate:"min=1"`
	PingBackoff    time.Duration `envconfig:"PING_BACKOFF" default:"2s"`
}

// Address returns host:port for the field-based configuration, or URL.
func (c *RedisConfig) Address() string {
	if c.URL != "" {
		return c.URL
	}
	return net.JoinHostPort(c.Host, c.Port)
}

// UsesTLS reports whether connections are encrypted, either explicitly or
// through a rediss:// URL.
func (c *RedisConfig) UsesTLS() bool {
	return c.TLSEnabled || strings.HasPrefix(c.URL, "rediss://")
}

// Validate reports every problem with the settings at once.
func (c *RedisConfig) Validate(environment string) error {
	var errs []error
	production := environment == EnvironmentProduction

	if c.URL != "" {
		if err := validateRedisURL(c.URL); err != nil {
			errs = append(errs, fmt.Errorf("invalid redis URL: %w", err))
		}
	} else {
		errs = append(errs,
			validateHost(c.Host, "redis"),
			validatePort(c.Port, "redis"),
		)
		if production {
			if c.Password == "" {
				errs = append(errs, errors.New("redis password is required in production environment"))
			} else {
				errs = append(errs, validatePasswordStrength(c.Password, "redis", environment))
			}
		}
	}

	if production && !c.UsesTLS() {
		errs = append(errs, errors.New("redis TLS must be enabled in production environment"))
	}
	if c.MinIdleConns > c.PoolSize {
		errs = append(errs, fmt.Errorf("min_idle_conns (%d) cannot be greater than pool_size (%d)", c.MinIdleConns, c.PoolSize))
	}
	if c.MinRetryBackoff > c.MaxRetryBackoff {
		errs = append(errs, fmt.Errorf("min_retry_backoff (%s) cannot exceed max_retry_backoff (%s)", c.MinRetryBackoff, c.MaxRetryBackoff))
	}

	return errors.Join(errs...)
}

// IsConfigured reports whether enough is set to attempt a connection.
func (c *RedisConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "")
}

// validateRedisURL checks the scheme and the optional /<db> path.
func validateRedisURL(redisURL string) error {
	parsed, err := parseAndValidateURL(redisURL, []string{"redis", "rediss"})
	if err != nil {
		return err
	}

	db := strings.TrimPrefix(parsed.Path, "/")
	if db == "" {
		return nil
	}
	n, err := strconv.Atoi(db)
	if err != nil {
		return fmt.Errorf("database number must be a valid integer: %s", db)
	}
	if n < 0 || n > 15 {
		return fmt.Errorf("database number must be between 0 and 15, got %d", n)
	}
	return nil
}
