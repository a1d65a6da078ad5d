package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcher_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bulk:\n  page_size: 10\n"), 0o644))

	w := NewWatcher(path, 100*time.Millisecond)
	w.reload = func(p string) (*Config, error) { return LoadConfig(p) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 4)
	done := make(chan error, 1)
	go func() { done <- w.Watch(ctx, func(c *Config) { changes <- c }) }()

	// Give the watcher time to register the directory.
	time.Sleep(50 * time.Millisecond)

	// Unrelated files in the directory are ignored.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.yaml"), []byte("x"), 0o644))

	// A burst of writes collapses into one reload.
	for _, size := range []string{"20", "30", "40"} {
		require.NoError(t, os.WriteFile(path, []byte("bulk:\n  page_size: "+size+"\n"), 0o644))
	}

	select {
	case cfg := <-changes:
		assert.Equal(t, 40, cfg.Bulk.PageSize)
	case <-time.After(2 * time.Second):
		t.Fatal("no reload observed")
	}

	select {
	case cfg := <-changes:
		t.Fatalf("unexpected second reload: page_size=%d", cfg.Bulk.PageSize)
	case <-time.After(300 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}

func TestWatcher_InvalidFileKeepsPrevious(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("bulk:\n  page_size: 10\n"), 0o644))

	w := NewWatcher(path, 10*time.Millisecond)
	w.reload = func(p string) (*Config, error) { return LoadConfig(p) }

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	changes := make(chan *Config, 1)
	go func() { _ = w.Watch(ctx, func(c *Config) { changes <- c }) }()
	time.Sleep(50 * time.Millisecond)

	require.NoError(t, os.WriteFile(path, []byte("bulk:\n  page_size: -5\n"), 0o644))

	select {
	case <-changes:
		t.Fatal("invalid configuration must not be applied")
	case <-time.After(200 * time.Millisecond):
	}
}

func TestNewWatcher_DefaultDebounce(t *testing.T) {
	w := NewWatcher("config.yaml", 0)
	assert.Equal(t, DefaultWatchDebounce, w.debounce)
}
