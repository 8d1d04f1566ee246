// Package config loads the service configuration from environment variables.
// Defaults are applied for unset values and every setting is validated on
// startup so misconfiguration fails fast.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all service configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Ingest   IngestConfig
	Watch    WatchConfig
	Sweep    SweepConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response. A trigger
	// response is written after the run finishes, so keep it above INGEST_TIMEOUT.
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"11m"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown, including in-flight runs (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout applies to the read-only endpoints (default: 15s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"15s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// IngestConfig holds pipeline settings.
type IngestConfig struct {
	// StoreRoot is the directory holding one subdirectory per container (default: ./data)
	StoreRoot string `env:"INGEST_STORE_ROOT" default:"./data"`

	// Container is the container the watcher and sweep read (default: uploads)
	Container string `env:"INGEST_CONTAINER" default:"uploads"`

	// ProfilesDir holds extra .hcl profile files; empty loads only the built-ins
	ProfilesDir string `env:"INGEST_PROFILES_DIR"`

	// MaxObjectBytes is the largest object the source will read (default: 50MB)
	MaxObjectBytes int64 `env:"INGEST_MAX_OBJECT_BYTES" default:"52428800"`

	// MaxConcurrent is the maximum number of parallel runs (default: 4)
	MaxConcurrent int `env:"INGEST_MAX_CONCURRENT" default:"4"`

	// MaxWaitTime is how long a notification waits for a run slot (default: 30s)
	MaxWaitTime time.Duration `env:"INGEST_MAX_WAIT_TIME" default:"30s"`

	// Timeout is the maximum duration of a single run (default: 10m)
	Timeout time.Duration `env:"INGEST_TIMEOUT" default:"10m"`

	// ReferenceYear pins two-digit year correction; 0 uses the current year
	ReferenceYear int `env:"INGEST_REFERENCE_YEAR" default:"0"`

	// RunLog stores every run in sheetload.runs (default: true)
	RunLog bool `env:"INGEST_RUN_LOG" default:"true"`
}

// WatchConfig holds inbox watcher settings.
type WatchConfig struct {
	// Enabled starts the filesystem watcher (default: false)
	Enabled bool `env:"WATCH_ENABLED" default:"false"`

	// SettleDelay is how long a file must be quiet before it is read (default: 500ms)
	SettleDelay time.Duration `env:"WATCH_SETTLE_DELAY" default:"500ms"`
}

// SweepConfig holds scheduled sweep settings.
type SweepConfig struct {
	// Enabled starts the scheduled sweep (default: false)
	Enabled bool `env:"SWEEP_ENABLED" default:"false"`

	// Schedule is a cron expression or "@every <duration>" (default: @every 5m)
	Schedule string `env:"SWEEP_SCHEDULE" default:"@every 5m"`

	// OnStart runs one sweep at startup (default: true)
	OnStart bool `env:"SWEEP_ON_START" default:"true"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
