package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// DatabaseConfig locates the PostgreSQL document store. It is only required
// for SOURCE_KIND=postgres and for the publish, versions and migrate commands.
type DatabaseConfig struct {
	// URL wins over the individual fields when set.
	URL      string `envconfig:"URL"`
	Host     string `envconfig:"HOST"`
	Port     string `envconfig:"PORT"`
	Name     string `envconfig:"NAME"`
	User     string `envconfig:"USER"`
	Password string `envconfig:"PASSWORD"`
	SSLMode  string `envconfig:"SSL_MODE" default:"prefer" validate:"oneof=disable allow prefer require verify-ca verify-full"`

	// The service only reads the latest version, so a small pool suffices.
	MaxConns        int           `envconfig:"MAX_CONNS" default:"4" validate:"min=1"`
	MinConns        int           `envconfig:"MIN_CONNS" default:"1" validate:"min=0"`
	MaxConnLifetime time.Duration `envconfig:"MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `envconfig:"MAX_CONN_IDLE_TIME" default:"30m"`
	ConnectTimeout  time.Duration `envconfig:"CONNECT_TIMEOUT" default:"5s"`

	// QueryTimeout bounds every document store round trip.
	QueryTimeout time.Duration `envconfig:"QUERY_TIMEOUT" default:"3s" validate:"gt=0"`

	// Schema migrations applied by "decider migrate".
	MigrationsPath  string `envconfig:"MIGRATIONS_PATH" default:"migrations"`
	MigrationsTable string `envconfig:"MIGRATIONS_TABLE" default:"decider_schema_migrations"`
}

// applicationName tags the service's sessions in pg_stat_activity.
const applicationName = "decider"

// sqlIdentifier matches the unquoted names goose may interpolate into its queries.
var sqlIdentifier = regexp.MustCompile(`^[a-z_][a-z0-9_]{0,62}$`)

// ConnectionString returns URL, or a postgres:// URL built from the fields
// with user and password escaped.
func (c *DatabaseConfig) ConnectionString() string {
	if c.URL != "" {
		return c.URL
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.Name,
		RawQuery: url.Values{"sslmode": {c.SSLMode}, "application_name": {applicationName}}.Encode(),
	}
	if c.Password == "" {
		u.User = url.User(c.User)
	}
	return u.String()
}

// Validate reports every problem with the settings at once.
func (c *DatabaseConfig) Validate(environment string) error {
	var errs []error
	production := environment == EnvironmentProduction

	if c.URL != "" {
		errs = append(errs, c.validateURL(production))
	} else {
		errs = append(errs,
			validateHost(c.Host, "database"),
			validatePort(c.Port, "database"),
			validateDatabaseName(c.Name),
			validateNoWhitespace(c.User, "database user"),
		)
		if production {
			if c.Password == "" {
				errs = append(errs, errors.New("database password is required in production environment"))
			} else {
				errs = append(errs, validatePasswordStrength(c.Password, "database", environment))
			}
			if !isSecureSSLMode(c.SSLMode) {
				errs = append(errs, errors.New("database SSL mode must be 'require', 'verify-ca', or 'verify-full' in production environment"))
			}
		}
	}

	if c.MinConns > c.MaxConns {
		errs = append(errs, fmt.Errorf("min_conns (%d) cannot be greater than max_conns (%d)", c.MinConns, c.MaxConns))
	}
	if !sqlIdentifier.MatchString(c.MigrationsTable) {
		errs = append(errs, fmt.Errorf("migrations table %q must be a lowercase SQL identifier", c.MigrationsTable))
	}

	return errors.Join(errs...)
}

func (c *DatabaseConfig) validateURL(production bool) error {
	parsed, err := parseAndValidateURL(c.URL, []string{"postgres", "postgresql"})
	if err != nil {
		return fmt.Errorf("invalid database URL: %w", err)
	}
	if parsed.User == nil || parsed.User.Username() == "" {
		return errors.New("invalid database URL: user is required")
	}
	if strings.TrimPrefix(parsed.Path, "/") == "" {
		return errors.New("invalid database URL: database name is required in the path")
	}
	if production && !isSecureSSLMode(parsed.Query().Get("sslmode")) {
		return errors.New("invalid database URL: sslmode must be 'require', 'verify-ca', or 'verify-full' in production environment")
	}
	return nil
}

// IsConfigured reports whether enough is set to attempt a connection.
func (c *DatabaseConfig) IsConfigured() bool {
	return c.URL != "" || (c.Host != "" && c.Port != "" && c.Name != "" && c.User != "")
}

// validateDatabaseName applies PostgreSQL's 63 byte identifier limit.
func validateDatabaseName(name string) error {
	if err := validateNoWhitespace(name, "database name"); err != nil {
		return err
	}
	if len(name) > 63 {
		return errors.New("database name cannot exceed 63 characters")
	}
	return nil
}
