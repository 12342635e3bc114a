package main

import (
	"io"
	"log/slog"
	"strings"

	"github.com/onnwee/autovoice/telemetry"
)

// parseLevel maps LOG_LEVEL values to slog levels. Unknown values fall back to info.
func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "trace":
		return telemetry.LevelTrace, true
	case "debug":
		return slog.LevelDebug, true
	case "info", "":
		return slog.LevelInfo, true
	case "warn", "warning":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	default:
		return slog.LevelInfo, false
	}
}

// newLogger builds the process logger. Each -v lowers the level one step
// below the configured one: debug, then trace.
func newLogger(level, format string, verbosity int, w io.Writer) *slog.Logger {
	lvl, known := parseLevel(level)
	switch {
	case verbosity >= 2:
		lvl = min(lvl, telemetry.LevelTrace)
	case verbosity == 1:
		lvl = min(lvl, slog.LevelDebug)
	}

	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(_ []string, a slog.Attr) slog.Attr {
			if a.Key == slog.LevelKey {
				if l, ok := a.Value.Any().(slog.Level); ok && l <= telemetry.LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	logger := slog.New(handler)
	if !known {
		logger.Warn("unknown LOG_LEVEL, using info", slog.String("value", level))
	}
	return logger
}
