// Package log provides structured logging built on log/slog.
//
// Handlers write to stderr so stdout stays free for command output and
// the MCP stdio transport. The JSON handler is meant for the server,
// the text handler for interactive use.
package log

import (
	"io"
	"log/slog"
	"os"
)

// Logger is an alias for slog.Logger so callers depend on this package
// instead of importing log/slog directly.
type Logger = slog.Logger

// Config controls handler construction.
type Config struct {
	// Level is the minimum level to emit. Defaults to slog.LevelInfo.
	Level slog.Level

	// JSON selects the JSON handler instead of the text handler.
	JSON bool

	// AddSource annotates records with file and line information.
	AddSource bool
}

// New returns a logger writing to stderr with the given config.
func New(cfg Config) *Logger {
	return NewWithWriter(os.Stderr, cfg)
}

// NewWithWriter returns a logger writing to w with the given config.
func NewWithWriter(w io.Writer, cfg Config) *Logger {
	opts := &slog.HandlerOptions{
		Level:     cfg.Level,
		AddSource: cfg.AddSource,
	}

	var handler slog.Handler
	if cfg.JSON {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler)
}

// NewNop returns a logger that discards all records. Useful in tests.
func NewNop() *Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
