// Package config provides centralized configuration management for the application.
// It loads configuration from environment variables with sensible defaults and
// validates all settings on startup to fail fast on misconfiguration.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
// All settings can be configured via environment variables.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Session  SessionConfig
	Storage  StorageConfig
	Sweep    SweepConfig
	Rate     RateLimitConfig
	Security SecurityConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing response (default: 60s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"60s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum duration to wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds the optional PostgreSQL rule store settings.
// When URL is empty, rules are kept in the SQLite database instead.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string
	// Supports both DATABASE_URL and DB_URL env vars for compatibility
	URL string `env:"DATABASE_URL" envAlt:"DB_URL"`

	// MaxConns is the maximum number of connections in the pool (default: 10)
	MaxConns int `env:"DB_MAX_CONNS" default:"10"`

	// MinConns is the minimum number of connections to keep open (default: 1)
	MinConns int `env:"DB_MIN_CONNS" default:"1"`

	// MaxConnLifetime is the maximum lifetime of a connection (default: 1h)
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`

	// MaxConnIdleTime is the maximum idle time before a connection is closed (default: 30m)
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`
}

// SessionConfig holds working-session settings.
type SessionConfig struct {
	// HistoryCapacity is the number of undoable operations kept (default: 15)
	HistoryCapacity int `env:"SESSION_HISTORY_CAPACITY" default:"15"`

	// BulkDeleteThreshold is the removed-row count above which undo data
	// moves to the blob store (default: 50)
	BulkDeleteThreshold int `env:"SESSION_BULK_DELETE_THRESHOLD" default:"50"`

	// CookieName is the cookie binding a browser to its session (default: invoicedesk_session)
	CookieName string `env:"SESSION_COOKIE_NAME" default:"invoicedesk_session"`

	// CookieSecure marks the session cookie Secure (default: false)
	CookieSecure bool `env:"SESSION_COOKIE_SECURE" default:"false"`

	// MaxLoads is the maximum number of parallel dataset loads (default: 5)
	MaxLoads int `env:"SESSION_MAX_LOADS" default:"5"`

	// LoadWait is how long to wait for a load slot (default: 30s)
	LoadWait time.Duration `env:"SESSION_LOAD_WAIT" default:"30s"`

	// MaxUploadSize is the maximum accepted file size in bytes (default: 100MB)
	MaxUploadSize int64 `env:"SESSION_MAX_UPLOAD_SIZE" default:"104857600"`
}

// StorageConfig selects where blobs, snapshots and local rules live.
type StorageConfig struct {
	// BlobBackend is "fs" or "s3" (default: fs)
	BlobBackend string `env:"STORAGE_BLOB_BACKEND" default:"fs"`

	// BlobDir is the blob directory for the fs backend (default: data/blobs)
	BlobDir string `env:"STORAGE_BLOB_DIR" default:"data/blobs"`

	// S3Bucket is the bucket for the s3 backend
	S3Bucket string `env:"STORAGE_S3_BUCKET"`

	// S3Prefix is the key prefix for blobs (default: history/)
	S3Prefix string `env:"STORAGE_S3_PREFIX" default:"history/"`

	// S3Region is the bucket region (default: us-east-1)
	S3Region string `env:"STORAGE_S3_REGION" envAlt:"AWS_REGION" default:"us-east-1"`

	// S3Endpoint overrides the S3 endpoint for compatible services
	S3Endpoint string `env:"STORAGE_S3_ENDPOINT"`

	// SQLitePath is the SQLite database for snapshots and local rules (default: data/invoicedesk.db)
	SQLitePath string `env:"STORAGE_SQLITE_PATH" default:"data/invoicedesk.db"`
}

// SweepConfig holds stale-artifact cleanup settings.
type SweepConfig struct {
	// Retention is how long snapshots and blobs are kept (default: 24h)
	Retention time.Duration `env:"SWEEP_RETENTION" default:"24h"`

	// Interval is how often the sweep runs after startup (default: 1h)
	Interval time.Duration `env:"SWEEP_INTERVAL" default:"1h"`
}

// RateLimitConfig holds rate limiting settings per time window.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the default rate limit per IP (default: 300)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"300"`

	// LoadLimit is requests per minute for the load endpoint (default: 10)
	LoadLimit int `env:"RATE_LIMIT_LOAD" default:"10"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of trusted proxy CIDRs
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects API requests without a valid key (default: false)
	RequireAPIKey bool `env:"REQUIRE_API_KEY" default:"false"`

	// APIKeys is a comma-separated list of accepted keys
	APIKeys []string `env:"API_KEYS"`
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
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// UsePostgres reports whether rules are stored in PostgreSQL.
func (c *DatabaseConfig) UsePostgres() bool {
	return c.URL != ""
}
