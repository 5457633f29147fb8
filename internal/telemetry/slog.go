package telemetry

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// SetupLogger installs the process-wide slog default. Everything downstream
// logs through slog.Info/Warn/Error without carrying a logger around.
//
// format "json" selects structured output for production; any other value
// renders human-readable text. level accepts debug, info, warn and error
// (case-insensitive) and falls back to info.
func SetupLogger(format, level string) {
	slog.SetDefault(slog.New(newHandler(os.Stdout, format, level)))
	slog.Info("logging configured", "format", normalizeFormat(format), "level", ParseLevel(level).String())
}

// ParseLevel maps a configuration string onto a slog level. Unrecognized
// values resolve to info rather than erroring: a typo in LOG_LEVEL should
// not take the service down.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
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

func newHandler(w io.Writer, format, level string) slog.Handler {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level:     lvl,
		AddSource: lvl == slog.LevelDebug,
	}
	if normalizeFormat(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

func normalizeFormat(format string) string {
	if strings.EqualFold(format, "json") {
		return "json"
	}
	return "text"
}
