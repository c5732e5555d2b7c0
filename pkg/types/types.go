package types

import (
	"fmt"
	"time"
)

// Config holds runtime configuration combining flags, environment variables, and defaults
type Config struct {
	// PostgreSQL connection. ConnectionString takes precedence when set;
	// otherwise it is built from the PG* fields (mirroring libpq's own
	// PGHOST/PGPORT/PGUSER/PGPASSWORD/PGDATABASE env vars).
	ConnectionString string
	PGHost           string
	PGPort           int
	PGUser           string
	PGPassword       string
	PGDatabase       string // template database for creating temp DBs

	// Execution
	SearchPath  string        // root path for test/source discovery
	Timeout     time.Duration // per-test timeout
	Parallelism int           // worker process count (1 = sequential)

	// Output
	CoverageFile string // coverage data output path
	Verbose      bool   // enable debug logging
}

// Validate checks that the configuration is internally consistent. When
// ConnectionString is set it takes precedence and the PG* fields go
// unchecked, mirroring libpq's own precedence rules.
func (c *Config) Validate() error {
	if c.ConnectionString == "" {
		if c.PGHost == "" {
			return &ConfigError{
				Field:      "host",
				Message:    "PGHost must be set when no connection string is provided",
				Suggestion: "pass --connection or set PGHOST",
			}
		}
		if c.PGPort < 1 || c.PGPort > 65535 {
			return &ConfigError{
				Field:      "port",
				Value:      c.PGPort,
				Message:    fmt.Sprintf("invalid port number: %d", c.PGPort),
				Suggestion: "Port must be between 1 and 65535.",
			}
		}
		if c.PGDatabase == "" {
			return &ConfigError{
				Field:      "database",
				Message:    "PGDatabase must be set",
				Suggestion: "pass --connection or set PGDATABASE",
			}
		}
	}
	if c.Parallelism < 1 || c.Parallelism > 100 {
		return &ConfigError{
			Field:      "parallel",
			Value:      c.Parallelism,
			Message:    fmt.Sprintf("invalid parallelism: %d", c.Parallelism),
			Suggestion: "Parallelism must be between 1 and 100.",
		}
	}
	if c.Timeout <= 0 {
		return &ConfigError{Field: "timeout", Message: "must be > 0"}
	}
	if c.CoverageFile == "" {
		return &ConfigError{
			Field:      "coverage-file",
			Message:    "coverage output path must be set",
			Suggestion: "pass --coverage-file",
		}
	}
	return nil
}

// ConfigError represents an invalid configuration value.
type ConfigError struct {
	Field      string
	Value      any
	Message    string
	Suggestion string // optional remediation hint shown alongside Message
}

func (e *ConfigError) Error() string {
	msg := fmt.Sprintf("invalid config field %q: %s", e.Field, e.Message)
	if e.Suggestion != "" {
		msg += fmt.Sprintf(" (Suggestion: %s)", e.Suggestion)
	}
	return msg
}

// CoverageSignal represents a single coverage signal emitted via NOTIFY
type CoverageSignal struct {
	SignalID  string    // matches an instrumentation point's SignalID
	Timestamp time.Time // when the signal was received
}

// TempDatabase represents a temporary PostgreSQL database for test isolation
type TempDatabase struct {
	Name             string // e.g., "pgcov_test_41223_20260105_153012_a3f9c2b1"
	CreatedAt        time.Time
	ConnectionString string
}
