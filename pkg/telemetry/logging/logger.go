package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
)

// LogFormat represents the output format for logs.
type LogFormat string

const (
	// FormatJSON outputs logs in JSON format.
	FormatJSON LogFormat = "json"
	// FormatText outputs logs in logfmt-style text.
	FormatText LogFormat = "text"
	// FormatConsole outputs colored, human-readable logs.
	FormatConsole LogFormat = "console"
)

// Config contains configuration for the process logger.
type Config struct {
	// Level is the minimum log level ("debug", "info", "warn", "error")
	Level string

	// Format is the output format ("json", "text", "console")
	Format string

	// AddSource includes file and line number in logs
	AddSource bool

	// NoColor disables colors for the console format. Colors are also
	// disabled when Writer is not a terminal.
	NoColor bool

	// Writer is the output writer (defaults to os.Stderr)
	Writer io.Writer
}

// Logger is the process logger together with its adjustable level.
type Logger struct {
	*slog.Logger
	level *slog.LevelVar
}

// New builds a logger from cfg. Context fields set with WithBulkStatusID,
// WithHold and WithRequestID are added to every record logged with a
// *Context method.
func New(cfg Config) (*Logger, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	format, err := ParseFormat(cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("invalid log format: %w", err)
	}

	writer := cfg.Writer
	if writer == nil {
		writer = os.Stderr
	}

	lv := new(slog.LevelVar)
	lv.Set(level)

	var handler slog.Handler
	switch format {
	case FormatText:
		handler = slog.NewTextHandler(writer, &slog.HandlerOptions{Level: lv, AddSource: cfg.AddSource})
	case FormatConsole:
		handler = tint.NewHandler(writer, &tint.Options{
			Level:      lv,
			AddSource:  cfg.AddSource,
			TimeFormat: "2006-01-02T15:04:05.000Z07:00",
			NoColor:    cfg.NoColor || !isTerminal(writer),
		})
	default:
		handler = slog.NewJSONHandler(writer, &slog.HandlerOptions{Level: lv, AddSource: cfg.AddSource})
	}

	return &Logger{
		Logger: slog.New(&contextHandler{Handler: handler}),
		level:  lv,
	}, nil
}

// SetLevel changes the minimum level of l and of every logger derived from
// it. An unknown level is rejected and the current level kept.
func (l *Logger) SetLevel(level string) error {
	lvl, err := ParseLevel(level)
	if err != nil {
		return err
	}
	l.level.Set(lvl)
	return nil
}

// Level returns the current minimum level.
func (l *Logger) Level() slog.Level {
	return l.level.Level()
}

// ParseLevel parses a log level string into slog.Level.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level: %s", levelStr)
	}
}

// ParseFormat parses a log format string into LogFormat.
func ParseFormat(formatStr string) (LogFormat, error) {
	switch strings.ToLower(formatStr) {
	case "json", "":
		return FormatJSON, nil
	case "text":
		return FormatText, nil
	case "console":
		return FormatConsole, nil
	default:
		return FormatJSON, fmt.Errorf("unknown log format: %s", formatStr)
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isatty.IsTerminal(f.Fd())
}
