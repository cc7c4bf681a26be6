package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
)

// ParseLevel maps "debug", "info", "warn"/"warning" and "error" (case-insensitive)
// to a slog level. Anything else is info.
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

// level backs the default logger installed by SetupLogger so SetLevel can change
// it without rebuilding the handler.
var level = new(slog.LevelVar)

// NewLogger builds a logger writing to w. format "json" selects the JSON handler;
// anything else is text.
func NewLogger(w io.Writer, format, lvl string) *slog.Logger {
	l := ParseLevel(lvl)
	return slog.New(newHandler(w, format, l, l == slog.LevelDebug))
}

func newHandler(w io.Writer, format string, leveler slog.Leveler, addSource bool) slog.Handler {
	opts := &slog.HandlerOptions{
		Level:     leveler,
		AddSource: addSource,
	}
	if strings.ToLower(format) == "json" {
		return slog.NewJSONHandler(w, opts)
	}
	return slog.NewTextHandler(w, opts)
}

// SetupLogger installs a stdout logger as the slog default so package-level
// slog calls and components defaulting to slog.Default() share it.
func SetupLogger(format, lvl string) {
	setupLogger(os.Stdout, format, lvl)
}

func setupLogger(w io.Writer, format, lvl string) {
	level.Set(ParseLevel(lvl))
	slog.SetDefault(slog.New(newHandler(w, format, level, level.Level() == slog.LevelDebug)))
	slog.Info("logger initialised", "format", format, "level", level.Level().String())
}

// SetLevel changes the level of the logger installed by SetupLogger.
func SetLevel(lvl string) {
	next := ParseLevel(lvl)
	if prev := level.Level(); prev != next {
		level.Set(next)
		slog.Log(context.Background(), max(next, slog.LevelInfo), "log level changed",
			"from", prev.String(), "to", next.String())
	}
}
