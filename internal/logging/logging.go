// Package logging provides structured logging for taxietl.
//
// It wraps log/slog so every component logs with the same handler and level:
//
//	logging.Init(slog.LevelInfo, false, os.Stderr)
//	log := logging.Component("remote")
//	log.Info("fetched", "records", n)
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
)

var (
	mu     sync.RWMutex
	logger *slog.Logger
)

// Init installs the process-wide logger. jsonFormat selects the JSON handler;
// otherwise output is human-readable text.
func Init(level slog.Level, jsonFormat bool, w io.Writer) {
	if w == nil {
		w = os.Stderr
	}
	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	var h slog.Handler
	if jsonFormat {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	InitWithHandler(h)
}

// InitWithHandler installs a logger backed by h. Tests use it to capture output.
func InitWithHandler(h slog.Handler) {
	l := slog.New(h)
	mu.Lock()
	logger = l
	mu.Unlock()
	slog.SetDefault(l)
}

// Logger returns the process-wide logger, initializing a text logger at info
// level on first use.
func Logger() *slog.Logger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}
	Init(slog.LevelInfo, false, os.Stderr)
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Component returns a logger tagged with component=name.
func Component(name string) *slog.Logger {
	return Logger().With("component", name)
}

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging: unknown level %q", s)
	}
}
