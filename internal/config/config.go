// Package config provides centralized configuration for the service.
// All settings come from environment variables with defaults applied and
// validated on startup, so misconfiguration fails fast.
package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Import   ImportConfig
	Telegram TelegramConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host is the interface to bind to (default: 0.0.0.0)
	Host string `env:"SERVER_HOST" default:"0.0.0.0"`

	// Port is the port to listen on (default: 8080)
	Port int `env:"SERVER_PORT" default:"8080"`

	// ReadTimeout is the maximum duration for reading a request body (default: 15s)
	ReadTimeout time.Duration `env:"SERVER_READ_TIMEOUT" default:"15s"`

	// WriteTimeout is the maximum duration for writing a response (default: 30s)
	WriteTimeout time.Duration `env:"SERVER_WRITE_TIMEOUT" default:"30s"`

	// IdleTimeout is the keep-alive timeout (default: 60s)
	IdleTimeout time.Duration `env:"SERVER_IDLE_TIMEOUT" default:"60s"`

	// ShutdownTimeout is the maximum wait for graceful shutdown (default: 30s)
	ShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" default:"30s"`
}

// DatabaseConfig holds record store settings.
type DatabaseConfig struct {
	// Driver selects the store backend: "sqlite3" or "pgx" (default: sqlite3)
	Driver string `env:"DB_DRIVER" default:"sqlite3"`

	// DSN is the connection string. For sqlite3 this is a file path
	// (default: data.db); for pgx a postgres:// URL.
	DSN string `env:"DB_DSN" envAlt:"DATABASE_URL" default:"data.db"`
}

// ImportConfig holds ingestion pipeline settings.
type ImportConfig struct {
	// StagingDir is where downloaded archives are written (default: staging)
	StagingDir string `env:"IMPORT_STAGING_DIR" default:"staging"`

	// WorkDir is where archives are extracted (default: extracted_files)
	WorkDir string `env:"IMPORT_WORK_DIR" default:"extracted_files"`

	// ClearWorkDir controls whether WorkDir is emptied before each import
	// so stale files from earlier imports cannot re-enter the store (default: true)
	ClearWorkDir bool `env:"IMPORT_CLEAR_WORK_DIR" default:"true"`

	// ChunkRows is the number of CSV rows parsed per chunk (default: 50000)
	ChunkRows int `env:"IMPORT_CHUNK_ROWS" default:"50000"`

	// BatchSize is the number of records per store insert batch (default: 1000)
	BatchSize int `env:"IMPORT_BATCH_SIZE" default:"1000"`

	// Timeout bounds a single import end to end (default: 30m)
	Timeout time.Duration `env:"IMPORT_TIMEOUT" default:"30m"`

	// MaxDownloadSize caps acquired archives in bytes, 0 for unlimited (default: 0)
	MaxDownloadSize int64 `env:"IMPORT_MAX_DOWNLOAD_SIZE" default:"0"`
}

// TelegramConfig holds chat front-end settings.
type TelegramConfig struct {
	// Token is the bot API token. Empty disables the Telegram front-end.
	Token string `env:"TELEGRAM_BOT_TOKEN"`

	// WebhookMode switches from long polling to webhook delivery via the
	// HTTP server's push endpoint (default: false)
	WebhookMode bool `env:"TELEGRAM_WEBHOOK_MODE" default:"false"`

	// SearchLimit is the maximum rows returned per search reply (default: 10)
	SearchLimit int `env:"TELEGRAM_SEARCH_LIMIT" default:"10"`
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
	return c.Host + ":" + itoa(c.Port)
}

// itoa converts an int to string without pulling strconv into this file.
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
