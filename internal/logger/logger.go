// Package logger provides the process-wide structured logger.
//
// It is a thin wrapper around log/slog with runtime-adjustable level and
// format. All silt packages log through this package so that embedding
// applications configure output in exactly one place.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

// Config holds logger configuration.
type Config struct {
	Level  string // DEBUG, INFO, WARN, ERROR
	Format string // text, json
	Output string // stdout, stderr, or a file path
}

var (
	mu      sync.RWMutex
	output  io.Writer = os.Stderr
	level             = new(slog.LevelVar)
	format            = "text"
	slogger           = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
)

// Init configures the logger. Output can be "stdout", "stderr", or a file
// path; files are opened in append mode.
func Init(cfg Config) error {
	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "", "stderr":
		w = os.Stderr
	case "stdout":
		w = os.Stdout
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("failed to open log file %q: %w", cfg.Output, err)
		}
		w = f
	}

	InitWithWriter(w, cfg.Level, cfg.Format)
	return nil
}

// InitWithWriter points the logger at an arbitrary writer. Tests use this to
// capture output.
func InitWithWriter(w io.Writer, lvl, outFormat string) {
	mu.Lock()
	defer mu.Unlock()

	output = w
	if lvl != "" {
		level.Set(parseLevel(lvl))
	}
	if outFormat != "" {
		f := strings.ToLower(outFormat)
		if f == "text" || f == "json" {
			format = f
		}
	}
	rebuild()
}

// SetLevel adjusts the minimum level at runtime.
func SetLevel(lvl string) {
	mu.Lock()
	defer mu.Unlock()
	level.Set(parseLevel(lvl))
}

// rebuild recreates the slog handler. Callers must hold mu.
func rebuild() {
	opts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		slogger = slog.New(slog.NewJSONHandler(output, opts))
	} else {
		slogger = slog.New(slog.NewTextHandler(output, opts))
	}
}

func parseLevel(lvl string) slog.Level {
	switch strings.ToUpper(lvl) {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func get() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return slogger
}

// Debug logs at debug level with structured key/value fields.
func Debug(msg string, args ...any) {
	get().Debug(msg, args...)
}

// Info logs at info level with structured key/value fields.
func Info(msg string, args ...any) {
	get().Info(msg, args...)
}

// Warn logs at warn level with structured key/value fields.
func Warn(msg string, args ...any) {
	get().Warn(msg, args...)
}

// Error logs at error level with structured key/value fields.
func Error(msg string, args ...any) {
	get().Error(msg, args...)
}

// With returns a logger with pre-bound fields.
func With(args ...any) *slog.Logger {
	return get().With(args...)
}
