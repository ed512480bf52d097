package config

import (
	"log/slog"
	"os"
)

var logLevels = map[string]slog.Level{
	"debug": slog.LevelDebug,
	"info":  slog.LevelInfo,
	"warn":  slog.LevelWarn,
	"error": slog.LevelError,
}

// NewLogger returns the process-wide slog.Logger. Production emits JSON for
// log shipping; development emits text. LOG_LEVEL picks the minimum level
// (debug, info, warn, error), defaulting to info. Dispatch runs log at info,
// so a production deployment keeps a record of every newsletter send.
func NewLogger() *slog.Logger {
	level, ok := logLevels[os.Getenv("LOG_LEVEL")]
	if !ok {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if os.Getenv("GO_ENV") == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
