package config

import (
	"fmt"
	"net"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "configuration validation failed with %d errors:\n", len(e.Errors))
	for _, err := range e.Errors {
		fmt.Fprintf(&sb, "  - %s\n", err.Error())
	}
	return sb.String()
}

// Validate checks the entire configuration and returns a ValidationError
// collecting every failed rule, or nil.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateRepository(&cfg.Repository)...)
	errs = append(errs, validateBulk(&cfg.Bulk)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if cfg.Watch.Debounce < 0 {
		errs = append(errs, FieldError{Field: "watch.debounce", Message: "debounce cannot be negative"})
	}

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.read_timeout", Message: "read timeout cannot be negative"})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.write_timeout", Message: "write timeout cannot be negative"})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{Field: "server.shutdown_timeout", Message: "shutdown timeout cannot be negative"})
	}

	return errs
}

func validateRepository(cfg *RepositoryConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "repository.sqlite.path",
				Message: "sqlite path is required when backend is 'sqlite'",
			})
		}
		if cfg.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{
				Field:   "repository.sqlite.max_open_conns",
				Message: "max open connections cannot be negative",
			})
		}
		if cfg.SQLite.MaxIdleConns > cfg.SQLite.MaxOpenConns {
			errs = append(errs, FieldError{
				Field:   "repository.sqlite.max_idle_conns",
				Message: "max idle connections cannot exceed max open connections",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "repository.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'memory' or 'sqlite'", cfg.Backend),
		})
	}

	return errs
}

func validateBulk(cfg *BulkConfig) []FieldError {
	var errs []FieldError

	if cfg.PageSize <= 0 {
		errs = append(errs, FieldError{Field: "bulk.page_size", Message: "page size must be positive"})
	}
	if cfg.MaxConcurrentJobs < 0 {
		errs = append(errs, FieldError{Field: "bulk.max_concurrent_jobs", Message: "max concurrent jobs cannot be negative"})
	}

	switch cfg.Archive.Backend {
	case "none", "memory":
	case "sqlite":
		if cfg.Archive.Path == "" {
			errs = append(errs, FieldError{
				Field:   "bulk.archive.path",
				Message: "archive path is required when backend is 'sqlite'",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "bulk.archive.backend",
			Message: fmt.Sprintf("invalid backend %q: must be 'none', 'memory' or 'sqlite'", cfg.Archive.Backend),
		})
	}

	if cfg.Retention.MaxAge < 0 {
		errs = append(errs, FieldError{Field: "bulk.retention.max_age", Message: "max age cannot be negative"})
	}
	if cfg.Retention.MaxStatuses < 0 {
		errs = append(errs, FieldError{Field: "bulk.retention.max_statuses", Message: "max statuses cannot be negative"})
	}
	if cfg.Retention.PurgeSchedule != "" {
		if _, err := cron.ParseStandard(cfg.Retention.PurgeSchedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "bulk.retention.purge_schedule",
				Message: fmt.Sprintf("invalid cron expression %q: %v", cfg.Retention.PurgeSchedule, err),
			})
		}
	}

	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Logging.Level] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[cfg.Logging.Format] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text' or 'console'", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Path == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path is required when metrics are enabled",
			})
		} else if !strings.HasPrefix(cfg.Metrics.Path, "/") {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.path",
				Message: "metrics path must start with /",
			})
		}
	}

	for i := 1; i < len(cfg.Metrics.JobDurationBuckets); i++ {
		if cfg.Metrics.JobDurationBuckets[i] <= cfg.Metrics.JobDurationBuckets[i-1] {
			errs = append(errs, FieldError{
				Field:   "telemetry.metrics.job_duration_buckets",
				Message: "buckets must be strictly increasing",
			})
			break
		}
	}

	return errs
}
