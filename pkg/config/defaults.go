package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8080"
	DefaultReadTimeout     = 30 * time.Second
	DefaultWriteTimeout    = 30 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxHeaderBytes  = 1048576 // 1MB

	// Repository defaults
	DefaultRepositoryBackend       = "memory"
	DefaultSQLitePath              = "data/holds.db"
	DefaultSQLiteMaxOpenConns      = 10
	DefaultSQLiteMaxIdleConns      = 5
	DefaultSQLiteBusyTimeout       = 5 * time.Second
	DefaultSQLiteTxRetryMaxElapsed = 10 * time.Second

	// Bulk defaults
	DefaultBulkPageSize           = 100
	DefaultArchiveBackend         = "memory"
	DefaultArchivePath            = "data/bulk.db"
	DefaultArchiveBusyTimeout     = 5 * time.Second
	DefaultRetentionMaxAge        = 24 * time.Hour
	DefaultRetentionMaxStatuses   = int64(10000)
	DefaultRetentionPurgeSchedule = "*/15 * * * *"

	// Telemetry defaults
	DefaultLoggingLevel     = "info"
	DefaultLoggingFormat    = "json"
	DefaultMetricsPath      = "/metrics"
	DefaultMetricsNamespace = "holds"

	// Watch defaults
	DefaultWatchDebounce = 500 * time.Millisecond
)

// DefaultJobDurationBuckets spans sub-second jobs up to an hour.
var DefaultJobDurationBuckets = []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600}

// NewDefault returns a configuration with every default applied. Boolean
// defaults that are true are only set here, since a zero value read from a
// file is indistinguishable from an explicit false.
func NewDefault() *Config {
	cfg := &Config{}
	cfg.Repository.SQLite.WALMode = true
	cfg.Telemetry.Metrics.Enabled = true
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets defaults for any fields that have zero values.
// It is idempotent.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxHeaderBytes == 0 {
		cfg.Server.MaxHeaderBytes = DefaultMaxHeaderBytes
	}

	// Repository defaults
	if cfg.Repository.Backend == "" {
		cfg.Repository.Backend = DefaultRepositoryBackend
	}
	sqlite := &cfg.Repository.SQLite
	if sqlite.Path == "" {
		sqlite.Path = DefaultSQLitePath
	}
	if sqlite.MaxOpenConns == 0 {
		sqlite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if sqlite.MaxIdleConns == 0 {
		sqlite.MaxIdleConns = DefaultSQLiteMaxIdleConns
	}
	if sqlite.BusyTimeout == 0 {
		sqlite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if sqlite.TxRetryMaxElapsed == 0 {
		sqlite.TxRetryMaxElapsed = DefaultSQLiteTxRetryMaxElapsed
	}

	// Bulk defaults
	if cfg.Bulk.PageSize == 0 {
		cfg.Bulk.PageSize = DefaultBulkPageSize
	}
	if cfg.Bulk.Archive.Backend == "" {
		cfg.Bulk.Archive.Backend = DefaultArchiveBackend
	}
	if cfg.Bulk.Archive.Path == "" {
		cfg.Bulk.Archive.Path = DefaultArchivePath
	}
	if cfg.Bulk.Archive.BusyTimeout == 0 {
		cfg.Bulk.Archive.BusyTimeout = DefaultArchiveBusyTimeout
	}
	if cfg.Bulk.Retention.MaxAge == 0 {
		cfg.Bulk.Retention.MaxAge = DefaultRetentionMaxAge
	}
	if cfg.Bulk.Retention.MaxStatuses == 0 {
		cfg.Bulk.Retention.MaxStatuses = DefaultRetentionMaxStatuses
	}
	if cfg.Bulk.Retention.PurgeSchedule == "" {
		cfg.Bulk.Retention.PurgeSchedule = DefaultRetentionPurgeSchedule
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLoggingLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLoggingFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if len(cfg.Telemetry.Metrics.JobDurationBuckets) == 0 {
		cfg.Telemetry.Metrics.JobDurationBuckets = append([]float64(nil), DefaultJobDurationBuckets...)
	}

	// Watch defaults
	if cfg.Watch.Debounce == 0 {
		cfg.Watch.Debounce = DefaultWatchDebounce
	}
}
