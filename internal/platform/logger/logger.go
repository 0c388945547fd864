package logger

import (
	"log/slog"
	"os"
)

// New returns the process logger. Production emits JSON to stdout; dev keeps
// the human-readable text handler with debug level.
func New(env string) *slog.Logger {
	if env == "dev" {
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelDebug,
		}))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}
