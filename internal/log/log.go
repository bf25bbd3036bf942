// Package log provides categorized structured logging for stagehook.
//
// Every hook invocation is a short-lived process whose stdout and stderr belong to the
// driving harness, so log output goes to a file by default. Until Init is called all
// records are discarded, which keeps tests and library callers quiet.
package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// Category groups log records by subsystem.
type Category string

const (
	CatHook   Category = "hook"
	CatOrch   Category = "orch"
	CatState  Category = "state"
	CatConfig Category = "config"
	CatDB     Category = "db"
	CatUI     Category = "ui"
)

// Options configures the process-wide logger.
type Options struct {
	// Level is one of debug, info, warn, error. Empty means info.
	Level string
	// File is the log file path. Empty disables file output.
	File string
	// Stderr mirrors records to standard error.
	Stderr bool
}

var logger atomic.Pointer[slog.Logger]

func init() {
	logger.Store(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

// Init installs the process-wide logger and returns a function that releases it.
func Init(opts Options) (func() error, error) {
	var writers []io.Writer
	var file *os.File

	if opts.File != "" {
		if err := os.MkdirAll(filepath.Dir(opts.File), 0750); err != nil {
			return nil, fmt.Errorf("creating log directory: %w", err)
		}
		f, err := os.OpenFile(opts.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600) //nolint:gosec // G304: path comes from config
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		file = f
		writers = append(writers, f)
	}
	if opts.Stderr {
		writers = append(writers, os.Stderr)
	}

	var w io.Writer = io.Discard
	switch len(writers) {
	case 0:
	case 1:
		w = writers[0]
	default:
		w = io.MultiWriter(writers...)
	}

	h := slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(opts.Level)})
	logger.Store(slog.New(h).With("pid", os.Getpid()))

	return func() error {
		logger.Store(slog.New(slog.NewTextHandler(io.Discard, nil)))
		if file != nil {
			return file.Close()
		}
		return nil
	}, nil
}

// SetOutput routes records to w at the given level. Intended for tests.
func SetOutput(w io.Writer, level string) {
	logger.Store(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: ParseLevel(level)})))
}

// ParseLevel maps a level name to a slog.Level, defaulting to info.
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

// Debug logs at debug level.
func Debug(cat Category, msg string, args ...any) {
	emit(slog.LevelDebug, cat, msg, args)
}

// Info logs at info level.
func Info(cat Category, msg string, args ...any) {
	emit(slog.LevelInfo, cat, msg, args)
}

// Warn logs at warn level.
func Warn(cat Category, msg string, args ...any) {
	emit(slog.LevelWarn, cat, msg, args)
}

// Error logs at error level.
func Error(cat Category, msg string, args ...any) {
	emit(slog.LevelError, cat, msg, args)
}

// ErrorErr logs err at error level under the "error" key.
func ErrorErr(cat Category, msg string, err error, args ...any) {
	emit(slog.LevelError, cat, msg, append([]any{"error", err}, args...))
}

func emit(level slog.Level, cat Category, msg string, args []any) {
	l := logger.Load()
	l.Log(context.Background(), level, msg, append([]any{"cat", string(cat)}, args...)...)
}
