package logging

import (
	"log/slog"
	"os"
	"sync/atomic"
)

// The operational logger covers daemon infrastructure: gateway lifecycle,
// broker fan-out, plugin loads and reloads. Per-command invocation logging
// lives on the Logger in logger.go.

var (
	opLevel  = new(slog.LevelVar)
	opLogger atomic.Pointer[slog.Logger]
)

func init() {
	opLogger.Store(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: opLevel})))
}

// Op returns the current operational logger.
func Op() *slog.Logger {
	return opLogger.Load()
}

// Setup installs the operational handler once at daemon startup: format is
// "json" (Loki/ELK-friendly) or "text", level one of "debug", "info",
// "warn", "error". Unrecognized levels fall back to info rather than
// failing the boot.
func Setup(format, level string) {
	opLevel.Set(parseLevel(level))

	opts := &slog.HandlerOptions{Level: opLevel}
	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	opLogger.Store(slog.New(handler))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}
