package config

import "time"

// Config is the root configuration structure for the holds service.
type Config struct {
	// Server contains the HTTP API listener configuration.
	Server ServerConfig `yaml:"server"`

	// Repository selects and configures the content repository backend.
	Repository RepositoryConfig `yaml:"repository"`

	// Bulk contains configuration for the bulk executor, the status archive
	// and status retention.
	Bulk BulkConfig `yaml:"bulk"`

	// Telemetry contains logging and metrics configuration.
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Watch controls hot reloading of this file.
	Watch WatchConfig `yaml:"watch"`
}

// ServerConfig contains configuration for the HTTP API server.
type ServerConfig struct {
	// ListenAddress is the address the API listens on.
	// Default: "127.0.0.1:8080"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading a request.
	// Default: 30s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out a response write.
	// Default: 30s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the keep-alive idle timeout.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxHeaderBytes bounds request header size.
	// Default: 1MB
	MaxHeaderBytes int `yaml:"max_header_bytes"`
}

// RepositoryConfig selects the content repository backend.
type RepositoryConfig struct {
	// Backend is the repository backend.
	// Options: "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// SQLite configures the sqlite backend.
	SQLite SQLiteConfig `yaml:"sqlite"`

	// SeedFile is an optional YAML tree loaded into an empty repository at
	// startup.
	SeedFile string `yaml:"seed_file"`
}

// SQLiteConfig configures the SQLite content repository.
type SQLiteConfig struct {
	// Path is the database file.
	// Default: "data/holds.db"
	Path string `yaml:"path"`

	// MaxOpenConns bounds open connections.
	// Default: 10
	MaxOpenConns int `yaml:"max_open_conns"`

	// MaxIdleConns bounds idle connections.
	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// WALMode enables write-ahead logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`

	// TxRetryMaxElapsed bounds retries of a transaction that keeps hitting
	// a busy database.
	// Default: 10s
	TxRetryMaxElapsed time.Duration `yaml:"tx_retry_max_elapsed"`
}

// BulkConfig configures bulk job execution.
type BulkConfig struct {
	// PageSize is the number of search results fetched per page.
	// Default: 100
	PageSize int `yaml:"page_size"`

	// MaxConcurrentJobs bounds running jobs. 0 means unbounded.
	// Default: 0
	MaxConcurrentJobs int `yaml:"max_concurrent_jobs"`

	// Archive configures where terminal statuses are persisted.
	Archive ArchiveConfig `yaml:"archive"`

	// Retention bounds how many statuses are kept.
	Retention RetentionConfig `yaml:"retention"`
}

// ArchiveConfig configures the bulk status archive.
type ArchiveConfig struct {
	// Backend is the archive backend.
	// Options: "none", "memory", "sqlite"
	// Default: "memory"
	Backend string `yaml:"backend"`

	// Path is the SQLite database file for the sqlite backend.
	// Default: "data/bulk.db"
	Path string `yaml:"path"`

	// BusyTimeout is how long SQLite waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// RetentionConfig configures status retention.
type RetentionConfig struct {
	// MaxAge is how long a terminal status is kept. 0 keeps statuses forever.
	// Default: 24h
	MaxAge time.Duration `yaml:"max_age"`

	// MaxStatuses bounds the number of terminal statuses. 0 means unlimited.
	// Default: 10000
	MaxStatuses int64 `yaml:"max_statuses"`

	// PurgeSchedule is a cron expression. Empty disables scheduled pruning.
	// Default: "*/15 * * * *"
	PurgeSchedule string `yaml:"purge_schedule"`

	// ArchivePath is a directory receiving JSON copies of purged statuses.
	// Empty disables it.
	ArchivePath string `yaml:"archive_path"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	// Logging contains logging configuration.
	Logging LoggingConfig `yaml:"logging"`

	// Metrics contains metrics collection configuration.
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level to emit.
	// Options: "debug", "info", "warn", "error"
	// Default: "info"
	Level string `yaml:"level"`

	// Format controls the log output format.
	// Options: "json", "text", "console"
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// NoColor disables colors for the console format.
	// Default: false
	NoColor bool `yaml:"no_color"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus metrics endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "holds"
	Namespace string `yaml:"namespace"`

	// JobDurationBuckets defines histogram buckets for bulk job duration (seconds).
	// Default: [0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600]
	JobDurationBuckets []float64 `yaml:"job_duration_buckets"`
}

// WatchConfig controls configuration hot reloading.
type WatchConfig struct {
	// Enabled starts a file watcher on the configuration file.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Debounce collapses bursts of file events into one reload.
	// Default: 500ms
	Debounce time.Duration `yaml:"debounce"`
}
