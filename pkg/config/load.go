package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file, applies defaults and
// validates the result. Environment variables are not consulted; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML onto the defaults. Keys absent from data keep their
// default values, so boolean defaults that are true can still be turned off.
func Parse(data []byte) (*Config, error) {
	cfg := NewDefault()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides named HOLDS_SECTION_FIELD (for example
// HOLDS_SERVER_LISTEN_ADDRESS). Environment variables take precedence over
// the file.
//
// An empty path skips the file and starts from the defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = NewDefault()
	} else {
		var err error
		cfg, err = LoadConfig(path)
		if err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies HOLDS_* environment variables. Values that fail
// to parse are ignored.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("HOLDS_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("HOLDS_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("HOLDS_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("HOLDS_SERVER_IDLE_TIMEOUT", &cfg.Server.IdleTimeout)
	envDuration("HOLDS_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Repository overrides
	envString("HOLDS_REPOSITORY_BACKEND", &cfg.Repository.Backend)
	envString("HOLDS_REPOSITORY_SQLITE_PATH", &cfg.Repository.SQLite.Path)
	envDuration("HOLDS_REPOSITORY_SQLITE_BUSY_TIMEOUT", &cfg.Repository.SQLite.BusyTimeout)
	envString("HOLDS_REPOSITORY_SEED_FILE", &cfg.Repository.SeedFile)

	// Bulk overrides
	envInt("HOLDS_BULK_PAGE_SIZE", &cfg.Bulk.PageSize)
	envInt("HOLDS_BULK_MAX_CONCURRENT_JOBS", &cfg.Bulk.MaxConcurrentJobs)
	envString("HOLDS_BULK_ARCHIVE_BACKEND", &cfg.Bulk.Archive.Backend)
	envString("HOLDS_BULK_ARCHIVE_PATH", &cfg.Bulk.Archive.Path)
	envDuration("HOLDS_BULK_RETENTION_MAX_AGE", &cfg.Bulk.Retention.MaxAge)
	if val := os.Getenv("HOLDS_BULK_RETENTION_MAX_STATUSES"); val != "" {
		if i, err := strconv.ParseInt(val, 10, 64); err == nil {
			cfg.Bulk.Retention.MaxStatuses = i
		}
	}
	envString("HOLDS_BULK_RETENTION_PURGE_SCHEDULE", &cfg.Bulk.Retention.PurgeSchedule)
	envString("HOLDS_BULK_RETENTION_ARCHIVE_PATH", &cfg.Bulk.Retention.ArchivePath)

	// Telemetry overrides
	envString("HOLDS_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("HOLDS_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("HOLDS_TELEMETRY_LOGGING_ADD_SOURCE", &cfg.Telemetry.Logging.AddSource)
	envBool("HOLDS_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envString("HOLDS_TELEMETRY_METRICS_PATH", &cfg.Telemetry.Metrics.Path)

	// Watch overrides
	envBool("HOLDS_WATCH_ENABLED", &cfg.Watch.Enabled)
}

func envString(name string, dst *string) {
	if val := os.Getenv(name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}
