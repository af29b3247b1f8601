// Package logging builds the daemon's slog logger from configuration.
// Library code never uses this: packages take a *slog.Logger through their
// WithLogger options and default to silence.
package logging

import (
	"io"
	"log/slog"
	"strings"
)

// New builds a leveled logger writing to w. level is one of debug, info,
// warn, error (unknown falls back to info); format is text or json.
func New(w io.Writer, level, format string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}
	if strings.EqualFold(format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
