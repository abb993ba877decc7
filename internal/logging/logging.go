// Package logging builds the zerolog logger used across torsh. The terminal
// belongs to the TUI, so logs go to a rotating file unless console output is
// requested explicitly.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// ConsolePath selects stderr console output instead of a log file.
const ConsolePath = "-"

// Config holds logger configuration.
type Config struct {
	Level      string
	Path       string // log file, or ConsolePath
	MaxSizeMB  int    // max size in MB before rotation (default: 10)
	MaxBackups int    // max number of old log files to keep (default: 3)
	MaxAgeDays int    // max age in days to keep old files (default: 14)
	Compress   bool
}

// Logger wraps zerolog and owns the rotating file, if any.
type Logger struct {
	zerolog.Logger
	rotator *lumberjack.Logger
}

// New creates a logger. A file that cannot be created falls back to
// discarding output rather than writing over the TUI.
func New(cfg Config) *Logger {
	SetLevel(cfg.Level)

	var output io.Writer = io.Discard
	var rotator *lumberjack.Logger

	path := strings.TrimSpace(cfg.Path)
	switch {
	case path == ConsolePath:
		output = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	case path != "":
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err == nil {
			rotator = &lumberjack.Logger{
				Filename:   path,
				MaxSize:    orDefault(cfg.MaxSizeMB, 10),
				MaxBackups: orDefault(cfg.MaxBackups, 3),
				MaxAge:     orDefault(cfg.MaxAgeDays, 14),
				Compress:   cfg.Compress,
				LocalTime:  true,
			}
			output = rotator
		}
	}

	logger := zerolog.New(output).
		With().
		Timestamp().
		Logger()

	return &Logger{Logger: logger, rotator: rotator}
}

// Close closes the log file if one is open.
func (l *Logger) Close() error {
	if l != nil && l.rotator != nil {
		return l.rotator.Close()
	}
	return nil
}

// WithComponent returns a child logger tagged with a component name.
func WithComponent(l zerolog.Logger, component string) zerolog.Logger {
	return l.With().Str("component", component).Logger()
}

// SetLevel applies level globally; unknown values fall back to info.
func SetLevel(level string) zerolog.Level {
	lvl := ParseLevel(level)
	zerolog.SetGlobalLevel(lvl)
	return lvl
}

// ParseLevel converts a level name to zerolog.Level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	trimmed := strings.ToLower(strings.TrimSpace(level))
	if trimmed == "" {
		return zerolog.InfoLevel
	}
	if trimmed == "warning" {
		trimmed = "warn"
	}
	lvl, err := zerolog.ParseLevel(trimmed)
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
