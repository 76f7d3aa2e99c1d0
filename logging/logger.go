// Package logging builds the structured loggers used across the engine.
//
// Loggers are passed explicitly through the database handle and the executor context; there is no global logger.
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
)

// LogLevel represents logging verbosity
type LogLevel string

const (
	LevelDebug LogLevel = "DEBUG"
	LevelInfo  LogLevel = "INFO"
	LevelWarn  LogLevel = "WARN"
	LevelError LogLevel = "ERROR"
)

const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds logger configuration
type Config struct {
	Level LogLevel
	// Format is "text" (default) or "json".
	Format string
	// Output defaults to stderr.
	Output io.Writer
}

// DefaultConfig logs INFO and above as text to stderr.
func DefaultConfig() Config {
	return Config{Level: LevelInfo, Format: FormatText}
}

// ParseLevel converts a case-insensitive level name.
func ParseLevel(s string) (LogLevel, error) {
	switch level := LogLevel(strings.ToUpper(s)); level {
	case LevelDebug, LevelInfo, LevelWarn, LevelError:
		return level, nil
	}
	return "", fmt.Errorf("unknown log level %q", s)
}

func (l LogLevel) slogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// New builds a logger from the configuration.
func New(config Config) (*slog.Logger, error) {
	writer := config.Output
	if writer == nil {
		writer = os.Stderr
	}
	opts := &slog.HandlerOptions{Level: config.Level.slogLevel()}

	var handler slog.Handler
	switch config.Format {
	case FormatJSON:
		handler = slog.NewJSONHandler(writer, opts)
	case FormatText, "":
		handler = slog.NewTextHandler(writer, opts)
	default:
		return nil, fmt.Errorf("unknown log format %q", config.Format)
	}
	return slog.New(handler), nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

// WithTable adds table context to a logger.
func WithTable(logger *slog.Logger, tableName string) *slog.Logger {
	return logger.With("table", tableName)
}

// WithJoin adds the identity of one join execution, the name prefix shared by all of its partitions.
func WithJoin(logger *slog.Logger, joinID string) *slog.Logger {
	return logger.With("join", joinID)
}
