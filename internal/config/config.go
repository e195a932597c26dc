// Package config provides centralized configuration management for the service.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import "time"

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Fetch    FetchConfig
	Backup   BackupConfig
	Notify   NotifyConfig
	Rate     RateLimitConfig
	Logging  LoggingConfig
	Jobs     JobsConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	// MaxConns is the maximum number of connections in the pool (default: 20)
	MaxConns int `env:"DB_MAX_CONNS" default:"20"`

	// MinConns is the minimum number of connections to keep open (default: 4)
	MinConns int `env:"DB_MIN_CONNS" default:"4"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// ImportConfig holds import engine settings.
type ImportConfig struct {
	// ErrorCeiling is the maximum row-level errors before a run stops intake (default: 50)
	ErrorCeiling int `env:"IMPORT_ERROR_CEILING" default:"50"`

	// StaleAfter is the age at which a lock or progress record is definitely
	// stuck and force-cleared (default: 15m)
	StaleAfter time.Duration `env:"IMPORT_STALE_AFTER" default:"15m"`

	// WarnAfter is the age at which a running import is flagged as probably
	// stuck in health checks (default: 10m)
	WarnAfter time.Duration `env:"IMPORT_WARN_AFTER" default:"10m"`

	// CancelCheckEvery is how many rows between cancellation polls (default: 5)
	CancelCheckEvery int `env:"IMPORT_CANCEL_CHECK_EVERY" default:"5"`

	// PaceEvery is how many created records between pacing pauses (default: 10)
	PaceEvery int `env:"IMPORT_PACE_EVERY" default:"10"`

	// PacePause is the cooperative pause between pacing windows (default: 100ms)
	PacePause time.Duration `env:"IMPORT_PACE_PAUSE" default:"100ms"`

	// ImageDir is the directory downloaded images are written to (default: ./images)
	ImageDir string `env:"IMPORT_IMAGE_DIR" default:"./images"`
}

// FetchConfig holds remote fetch settings for CSV and image downloads.
type FetchConfig struct {
	// Timeout is the per-request timeout for remote fetches (default: 30s)
	Timeout time.Duration `env:"FETCH_TIMEOUT" default:"30s"`

	// MaxRetries is the retry count for transient fetch failures (default: 3)
	MaxRetries int `env:"FETCH_MAX_RETRIES" default:"3"`

	// MaxBodySize is the maximum accepted response body in bytes (default: 50MB)
	MaxBodySize int64 `env:"FETCH_MAX_BODY_SIZE" default:"52428800"`
}

// BackupConfig holds backup retention settings.
type BackupConfig struct {
	// RetentionDays is how long backup snapshots are kept (default: 30)
	RetentionDays int `env:"BACKUP_RETENTION_DAYS" default:"30"`

	// SessionListLimit is the default page size for session listings (default: 20)
	SessionListLimit int `env:"BACKUP_SESSION_LIST_LIMIT" default:"20"`
}

// NotifyConfig holds notification delivery settings.
type NotifyConfig struct {
	// SMTPHost enables SMTP delivery when set; empty means log-only delivery
	SMTPHost string `env:"NOTIFY_SMTP_HOST"`

	// SMTPPort is the SMTP server port (default: 587)
	SMTPPort int `env:"NOTIFY_SMTP_PORT" default:"587"`

	// SMTPUser is the SMTP auth username
	SMTPUser string `env:"NOTIFY_SMTP_USER"`

	// SMTPPassword is the SMTP auth password
	SMTPPassword string `env:"NOTIFY_SMTP_PASSWORD"`

	// From is the sender address (default: imports@localhost)
	From string `env:"NOTIFY_FROM" default:"imports@localhost"`

	// CriticalInterval is the minimum gap between critical-error
	// notifications (default: 1h)
	CriticalInterval time.Duration `env:"NOTIFY_CRITICAL_INTERVAL" default:"1h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// StartLimit is requests per minute for the import-start endpoint (default: 10)
	StartLimit int `env:"RATE_LIMIT_START" default:"10"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: debug, info, warn, error (default: info)
	Level string `env:"LOG_LEVEL" default:"info"`

	// Format is the log format: text or json (default: text)
	Format string `env:"LOG_FORMAT" default:"text"`
}

// JobsConfig holds background maintenance scheduling settings.
type JobsConfig struct {
	// DailyInterval is how often the daily maintenance sweep runs (default: 24h)
	DailyInterval time.Duration `env:"JOBS_DAILY_INTERVAL" default:"24h"`

	// WeeklyInterval is how often the weekly health check runs (default: 168h)
	WeeklyInterval time.Duration `env:"JOBS_WEEKLY_INTERVAL" default:"168h"`

	// ErrorTrendDays is how many days of error trend buckets are retained (default: 30)
	ErrorTrendDays int `env:"JOBS_ERROR_TREND_DAYS" default:"30"`
}

// Addr returns the server listen address in host:port format.
func (c *ServerConfig) Addr() string {
	if c.Host == "" {
		return ":" + itoa(c.Port)
	}
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without importing strconv in this file.
func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	var b [20]byte
	n := len(b)
	neg := i < 0
	if neg {
		i = -i
	}
	for i > 0 {
		n--
		b[n] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		n--
		b[n] = '-'
	}
	return string(b[n:])
}
