package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{name: "json", config: Config{Level: "info", Format: "json"}},
		{name: "text", config: Config{Level: "debug", Format: "text"}},
		{name: "console", config: Config{Level: "warn", Format: "console"}},
		{name: "defaults", config: Config{}},
		{name: "invalid level", config: Config{Level: "loud", Format: "json"}, wantErr: true},
		{name: "invalid format", config: Config{Level: "info", Format: "xml"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			tt.config.Writer = &buf

			logger, err := New(tt.config)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && logger == nil {
				t.Fatal("expected non-nil logger")
			}
		})
	}
}

func TestLogger_JSONOutput(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("bulk job started", "processed_items", 3)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v: %s", err, buf.String())
	}
	if entry["msg"] != "bulk job started" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["processed_items"] != float64(3) {
		t.Errorf("processed_items = %v", entry["processed_items"])
	}
}

func TestLogger_ConsoleWithoutTerminalHasNoColor(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "console", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	logger.Info("hello")

	if strings.Contains(buf.String(), "\x1b[") {
		t.Errorf("expected no ANSI escapes when writing to a buffer, got %q", buf.String())
	}
	if !strings.Contains(buf.String(), "hello") {
		t.Errorf("expected message in output, got %q", buf.String())
	}
}

func TestLogger_SetLevel(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "text", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}
	derived := logger.With("component", "test")

	derived.Debug("hidden")
	if buf.Len() != 0 {
		t.Fatalf("debug logged at info level: %q", buf.String())
	}

	if err := logger.SetLevel("debug"); err != nil {
		t.Fatal(err)
	}
	if logger.Level() != slog.LevelDebug {
		t.Errorf("Level() = %v, want debug", logger.Level())
	}

	derived.Debug("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("derived logger did not follow level change: %q", buf.String())
	}

	if err := logger.SetLevel("chatty"); err == nil {
		t.Error("expected error for unknown level")
	}
	if logger.Level() != slog.LevelDebug {
		t.Error("unknown level must not change the current level")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"INFO":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", in, err)
		}
		if got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
	if _, err := ParseLevel("trace"); err == nil {
		t.Error("expected error for trace")
	}
}

func TestParseFormat(t *testing.T) {
	tests := map[string]LogFormat{
		"json":    FormatJSON,
		"":        FormatJSON,
		"TEXT":    FormatText,
		"console": FormatConsole,
	}
	for in, want := range tests {
		got, err := ParseFormat(in)
		if err != nil || got != want {
			t.Errorf("ParseFormat(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseFormat("yaml"); err == nil {
		t.Error("expected error for yaml")
	}
}

func TestLogger_ContextFields(t *testing.T) {
	var buf bytes.Buffer
	logger, err := New(Config{Level: "info", Format: "json", Writer: &buf})
	if err != nil {
		t.Fatal(err)
	}

	ctx := WithRequestID(context.Background(), "req-1")
	ctx = WithBulkStatusID(ctx, "job-1")
	ctx = WithHold(ctx, "hold-1")

	logger.InfoContext(ctx, "with context")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatal(err)
	}
	for key, want := range map[string]string{
		"request_id":     "req-1",
		"bulk_status_id": "job-1",
		"hold":           "hold-1",
	} {
		if entry[key] != want {
			t.Errorf("%s = %v, want %s", key, entry[key], want)
		}
	}
}
