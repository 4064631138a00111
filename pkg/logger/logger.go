// Package logger provides logging utilities for the requisition sync service.
// It builds the structured JSON logger shared by every command.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// NewLogger creates a new structured logger writing to stdout.
// The level is read from LOG_LEVEL.
func NewLogger() *slog.Logger {
	return NewLoggerWithWriter(os.Stdout, os.Getenv("LOG_LEVEL"))
}

// NewLoggerWithWriter creates a JSON logger on w at the given level name
// and installs it as the process default.
func NewLoggerWithWriter(w io.Writer, levelName string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level:     ParseLevel(levelName),
		AddSource: true,
	}

	logger := slog.New(slog.NewJSONHandler(w, opts))
	slog.SetDefault(logger)

	return logger
}

// ParseLevel maps a level name to slog.Level, defaulting to info.
func ParseLevel(name string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
