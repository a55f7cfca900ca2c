// Package logger provides the structured, levelled logger patternbus writes to,
// built on log/slog.
//
// The bus only needs Info and Warn, so any *slog.Logger can be handed to
// bus.WithLogger. L is the process default and is what a Bus uses when no
// logger is given:
//
//	logger.Info("binding loaded", "pattern", `^order\.`)
//	// → time=... level=INFO msg="binding loaded" pattern=^order\.
//
// In production (APP_ENV=production) records are JSON; everywhere else
// they are human-readable text. LOG_LEVEL picks the threshold.
package logger

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/shashiranjanraj/patternbus/config"
)

var L *slog.Logger

func init() {
	L = New(os.Stdout, config.AppEnv(), config.LogLevel())
	slog.SetDefault(L)
}

// New builds a logger writing to w, formatted for env, at the given level.
func New(w io.Writer, env, level string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}

	var handler slog.Handler
	switch env {
	case "production", "prod":
		handler = slog.NewJSONHandler(w, opts) // structured JSON for log aggregators
	default:
		handler = slog.NewTextHandler(w, opts) // human-readable for dev
	}
	return slog.New(handler)
}

// Setup replaces L (and the slog default) with a logger built by New.
func Setup(w io.Writer, env, level string) *slog.Logger {
	L = New(w, env, level)
	slog.SetDefault(L)
	return L
}

// Use replaces L with a logger on top of h, e.g. a MultiHandler fanning
// out to stdout and MongoDB.
func Use(h slog.Handler) *slog.Logger {
	L = slog.New(h)
	slog.SetDefault(L)
	return L
}

// ParseLevel maps debug|info|warn|error to a slog.Level. Anything else is info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// ─────────────────────────────────────────────
// Short-hand helpers (use base logger)
// ─────────────────────────────────────────────

// Debug logs at DEBUG level.
func Debug(msg string, args ...any) { L.Debug(msg, args...) }

// Info logs at INFO level.
func Info(msg string, args ...any) { L.Info(msg, args...) }

// Warn logs at WARN level.
func Warn(msg string, args ...any) { L.Warn(msg, args...) }

// Error logs at ERROR level.
func Error(msg string, args ...any) { L.Error(msg, args...) }
