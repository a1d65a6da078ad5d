package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestNewDefault(t *testing.T) {
	cfg := NewDefault()

	assert.Equal(t, DefaultListenAddress, cfg.Server.ListenAddress)
	assert.Equal(t, "memory", cfg.Repository.Backend)
	assert.True(t, cfg.Repository.SQLite.WALMode)
	assert.Equal(t, 100, cfg.Bulk.PageSize)
	assert.Equal(t, "memory", cfg.Bulk.Archive.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Bulk.Retention.MaxAge)
	assert.True(t, cfg.Telemetry.Metrics.Enabled)
	assert.Equal(t, DefaultJobDurationBuckets, cfg.Telemetry.Metrics.JobDurationBuckets)
	assert.Equal(t, DefaultWatchDebounce, cfg.Watch.Debounce)

	require.NoError(t, Validate(cfg))
}

func TestApplyDefaults_Idempotent(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	first := *cfg
	ApplyDefaults(cfg)
	assert.Equal(t, first, *cfg)
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9090"
repository:
  backend: sqlite
  sqlite:
    path: /var/lib/holds/content.db
    wal_mode: false
bulk:
  page_size: 250
  max_concurrent_jobs: 4
  archive:
    backend: sqlite
    path: /var/lib/holds/bulk.db
  retention:
    max_age: 72h
    purge_schedule: "0 * * * *"
telemetry:
  logging:
    level: debug
    format: console
  metrics:
    enabled: false
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:9090", cfg.Server.ListenAddress)
	assert.Equal(t, "sqlite", cfg.Repository.Backend)
	assert.False(t, cfg.Repository.SQLite.WALMode, "explicit false overrides a true default")
	assert.Equal(t, 250, cfg.Bulk.PageSize)
	assert.Equal(t, 4, cfg.Bulk.MaxConcurrentJobs)
	assert.Equal(t, 72*time.Hour, cfg.Bulk.Retention.MaxAge)
	assert.Equal(t, DefaultRetentionMaxStatuses, cfg.Bulk.Retention.MaxStatuses)
	assert.Equal(t, "console", cfg.Telemetry.Logging.Format)
	assert.False(t, cfg.Telemetry.Metrics.Enabled)
	assert.Equal(t, DefaultReadTimeout, cfg.Server.ReadTimeout)
}

func TestLoadConfig_Errors(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "server: [unterminated"))
	assert.Error(t, err)

	_, err = LoadConfig(writeConfig(t, "bulk:\n  page_size: -1\n"))
	var validation ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "bulk.page_size", validation.Errors[0].Field)
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, "bulk:\n  page_size: 50\n")

	t.Setenv("HOLDS_SERVER_LISTEN_ADDRESS", "127.0.0.1:7000")
	t.Setenv("HOLDS_BULK_PAGE_SIZE", "75")
	t.Setenv("HOLDS_BULK_RETENTION_MAX_STATUSES", "12")
	t.Setenv("HOLDS_TELEMETRY_METRICS_ENABLED", "false")
	t.Setenv("HOLDS_BULK_RETENTION_MAX_AGE", "not-a-duration")

	cfg, err := LoadConfigWithEnvOverrides(path)
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Server.ListenAddress)
	assert.Equal(t, 75, cfg.Bulk.PageSize)
	assert.Equal(t, int64(12), cfg.Bulk.Retention.MaxStatuses)
	assert.False(t, cfg.Telemetry.Metrics.Enabled)
	assert.Equal(t, DefaultRetentionMaxAge, cfg.Bulk.Retention.MaxAge, "unparsable values are ignored")
}

func TestLoadConfigWithEnvOverrides_EmptyPath(t *testing.T) {
	t.Setenv("HOLDS_REPOSITORY_BACKEND", "postgres")

	_, err := LoadConfigWithEnvOverrides("")
	var validation ValidationError
	require.ErrorAs(t, err, &validation)
	assert.Equal(t, "repository.backend", validation.Errors[0].Field)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"bad listen address", func(c *Config) { c.Server.ListenAddress = "localhost" }, "server.listen_address"},
		{"negative read timeout", func(c *Config) { c.Server.ReadTimeout = -time.Second }, "server.read_timeout"},
		{"unknown repository backend", func(c *Config) { c.Repository.Backend = "s3" }, "repository.backend"},
		{"idle exceeds open", func(c *Config) {
			c.Repository.Backend = "sqlite"
			c.Repository.SQLite.MaxIdleConns = 20
		}, "repository.sqlite.max_idle_conns"},
		{"unknown archive backend", func(c *Config) { c.Bulk.Archive.Backend = "redis" }, "bulk.archive.backend"},
		{"negative concurrency", func(c *Config) { c.Bulk.MaxConcurrentJobs = -1 }, "bulk.max_concurrent_jobs"},
		{"bad cron", func(c *Config) { c.Bulk.Retention.PurgeSchedule = "whenever" }, "bulk.retention.purge_schedule"},
		{"bad level", func(c *Config) { c.Telemetry.Logging.Level = "verbose" }, "telemetry.logging.level"},
		{"bad format", func(c *Config) { c.Telemetry.Logging.Format = "xml" }, "telemetry.logging.format"},
		{"relative metrics path", func(c *Config) { c.Telemetry.Metrics.Path = "metrics" }, "telemetry.metrics.path"},
		{"unsorted buckets", func(c *Config) { c.Telemetry.Metrics.JobDurationBuckets = []float64{1, 1} }, "telemetry.metrics.job_duration_buckets"},
		{"negative debounce", func(c *Config) { c.Watch.Debounce = -1 }, "watch.debounce"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.modify(cfg)

			err := Validate(cfg)
			var validation ValidationError
			require.ErrorAs(t, err, &validation)
			require.Len(t, validation.Errors, 1)
			assert.Equal(t, tt.field, validation.Errors[0].Field)
		})
	}
}

func TestValidationError_Message(t *testing.T) {
	err := ValidationError{Errors: []FieldError{
		{Field: "a", Message: "bad"},
		{Field: "b", Message: "worse"},
	}}
	assert.Contains(t, err.Error(), "2 errors")
	assert.Contains(t, err.Error(), "a: bad")
}

func TestSingleton(t *testing.T) {
	cfg := NewDefault()
	SetConfig(cfg)
	assert.Same(t, cfg, GetConfig())
	assert.Same(t, cfg, MustGetConfig())

	path := writeConfig(t, "bulk:\n  page_size: 7\n")
	reloaded, err := ReloadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 7, reloaded.Bulk.PageSize)
	assert.Same(t, reloaded, GetConfig())

	_, err = ReloadConfig(writeConfig(t, "bulk:\n  page_size: 0\n  max_concurrent_jobs: -3\n"))
	assert.Error(t, err)
	assert.Same(t, reloaded, GetConfig(), "failed reload keeps the previous configuration")

	SetConfig(nil)
	assert.Panics(t, func() { MustGetConfig() })
}
