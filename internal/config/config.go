// Package config provides centralized configuration management for the
// catalog importer. Settings are read from environment variables with
// defaults and validated on startup so misconfiguration fails fast.
package config

import (
	"strconv"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Storage   StorageConfig
	Redis     RedisConfig
	Import    ImportConfig
	Retention RetentionConfig
	Rate      RateLimitConfig
	Security  SecurityConfig
	Logging   LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading request body (default: 60s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"60s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout bounds graceful shutdown of HTTP and workers (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`

	// RequestTimeout is the middleware timeout for requests (default: 60s)
	RequestTimeout time.Duration `env:"SERVER_REQUEST_TIMEOUT" default:"60s"`
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// URL is the PostgreSQL connection string (required)
	URL string `env:"DATABASE_URL" envAlt:"DB_URL" required:"true"`

	MaxConns        int           `env:"DB_MAX_CONNS" default:"20"`
	MinConns        int           `env:"DB_MIN_CONNS" default:"4"`
	MaxConnLifetime time.Duration `env:"DB_MAX_CONN_LIFETIME" default:"1h"`
	MaxConnIdleTime time.Duration `env:"DB_MAX_CONN_IDLE_TIME" default:"30m"`

	// Migrate applies the embedded schema at startup (default: true)
	Migrate bool `env:"DB_MIGRATE" default:"true"`
}

// StorageConfig holds object storage settings for uploaded catalog files.
// Endpoint is optional and targets MinIO or LocalStack when set.
type StorageConfig struct {
	Endpoint        string `env:"S3_ENDPOINT" envAlt:"AWS_S3_ENDPOINT"`
	Region          string `env:"S3_REGION" envAlt:"AWS_REGION" default:"us-east-1"`
	Bucket          string `env:"S3_BUCKET" default:"catalogs"`
	AccessKeyID     string `env:"S3_ACCESS_KEY_ID" envAlt:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `env:"S3_SECRET_ACCESS_KEY" envAlt:"AWS_SECRET_ACCESS_KEY"`
	UsePathStyle    bool   `env:"S3_USE_PATH_STYLE" default:"true"`
}

// RedisConfig holds settings for the job dispatch queue.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" default:"localhost:6379"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB" default:"0"`

	// QueueKey is the list that pending job ids are pushed onto
	QueueKey string `env:"REDIS_QUEUE_KEY" default:"catalog_import:queue"`
}

// ImportConfig holds catalog processing settings.
type ImportConfig struct {
	// BatchSize is the number of rows committed per transaction (default: 1000)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"1000"`

	// MaxFileSize is the maximum accepted catalog file in bytes (default: 100MB)
	MaxFileSize int64 `env:"IMPORT_MAX_FILE_SIZE" default:"104857600"`

	// Workers is the number of jobs processed concurrently (default: 4)
	Workers int `env:"IMPORT_WORKERS" default:"4"`

	// JobTimeout bounds a single job from claim to completion (default: 30m)
	JobTimeout time.Duration `env:"IMPORT_JOB_TIMEOUT" default:"30m"`

	// FetchTimeout bounds one attempt to read the source file (default: 30s)
	FetchTimeout time.Duration `env:"IMPORT_FETCH_TIMEOUT" default:"30s"`

	// FetchAttempts is the number of tries before a fetch is job-fatal (default: 3)
	FetchAttempts int `env:"IMPORT_FETCH_ATTEMPTS" default:"3"`

	// FetchBackoff is the minimum spacing between fetch attempts (default: 2s)
	FetchBackoff time.Duration `env:"IMPORT_FETCH_BACKOFF" default:"2s"`

	// MaxConcurrentUploads limits simultaneous upload requests (default: 5)
	MaxConcurrentUploads int `env:"IMPORT_MAX_CONCURRENT_UPLOADS" default:"5"`

	// UploadWait is how long an upload waits for a slot before 503 (default: 30s)
	UploadWait time.Duration `env:"IMPORT_UPLOAD_WAIT" default:"30s"`
}

// RetentionConfig holds catalog cleanup settings.
type RetentionConfig struct {
	// Enabled starts the periodic sweep with the server (default: true)
	Enabled bool `env:"RETENTION_ENABLED" default:"true"`

	// MaxAge is how long catalogs are kept after creation (default: 30 days)
	MaxAge time.Duration `env:"RETENTION_MAX_AGE" default:"720h"`

	// CheckInterval is how often the sweep runs (default: 24h)
	CheckInterval time.Duration `env:"RETENTION_CHECK_INTERVAL" default:"24h"`
}

// RateLimitConfig holds per-IP request limits.
type RateLimitConfig struct {
	// Enabled controls whether rate limiting is active (default: true)
	Enabled bool `env:"RATE_LIMIT_ENABLED" default:"true"`

	// RequestsPerMinute is the sustained rate per IP (default: 100)
	RequestsPerMinute int `env:"RATE_LIMIT_REQUESTS_PER_MINUTE" default:"100"`

	// Burst is how many requests an idle client may send at once (default: 20)
	Burst int `env:"RATE_LIMIT_BURST" default:"20"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	// TrustedProxies is a comma-separated list of proxy CIDRs whose
	// X-Real-IP / X-Forwarded-For headers are honoured
	TrustedProxies []string `env:"TRUSTED_PROXIES"`

	// RequireAPIKey rejects /api requests without a valid X-API-Key (default: false)
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
