// Package config loads application settings from environment variables,
// applies defaults and validates the result so misconfiguration fails at
// startup.
package config

import (
	"net"
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Retry    RetryConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`
	Port int    `env:"SERVER_PORT" default:"8080"`

	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout stays 0 so progress streams are not cut off.
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"0s"`
	IdleTimeout     time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout bounds non-streaming handlers.
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`

	// TrustedProxies lists proxy CIDRs whose X-Real-IP / X-Forwarded-For
	// headers are believed.
	TrustedProxies []string `env:"TRUSTED_PROXIES"`
}

// DatabaseConfig selects the storage backend.
type DatabaseConfig struct {
	// Driver is postgres, sqlite or memory.
	Driver string `env:"DB_DRIVER" default:"postgres"`

	// URL is required for postgres. DB_URL is accepted for compatibility.
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"10"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	SQLitePath string `env:"SQLITE_PATH" default:"carteras.db"`
}

// ImportConfig holds workbook import settings.
type ImportConfig struct {
	// MaxFileSize is the largest accepted upload in bytes (default: 20MB).
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"20971520"`

	MaxConcurrentCommits int           `env:"IMPORT_MAX_CONCURRENT_COMMITS" default:"2"`
	MaxWaitTime          time.Duration `env:"IMPORT_MAX_WAIT_TIME" default:"10s"`

	// SessionTTL is how long an idle staged import is kept in memory.
	SessionTTL    time.Duration `env:"IMPORT_SESSION_TTL" default:"2h"`
	SweepInterval time.Duration `env:"IMPORT_SWEEP_INTERVAL" default:"5m"`

	// Defaults for populations whose sheet header names none.
	DefaultMunicipality string `env:"IMPORT_DEFAULT_MUNICIPALITY"`
	DefaultState        string `env:"IMPORT_DEFAULT_STATE"`
}

// RetryConfig tunes retries of entity lookups on transient store errors.
type RetryConfig struct {
	MaxAttempts int           `env:"RETRY_MAX_ATTEMPTS" default:"3"`
	BaseDelay   time.Duration `env:"RETRY_BASE_DELAY" default:"100ms"`
	MaxDelay    time.Duration `env:"RETRY_MAX_DELAY" default:"2s"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is debug, info, warn or error.
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is text or json.
	Format string `env:"LOG_FORMAT" default:"text"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}
