package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Logger is the application-wide structured logger instance.
var Logger *slog.Logger

// InitLogger initializes the global logger with the specified level and format.
// level: "debug", "info", "warn", "error" (defaults to "info")
// format: "json" or "text" (defaults to "text")
// instanceID, when set, is attached to every record so logs from several instances can be told apart.
func InitLogger(level, format, instanceID string) {
	Logger = New(os.Stdout, level, format, instanceID)
	slog.SetDefault(Logger)
}

// New builds a logger without touching the global default.
func New(w io.Writer, level, format, instanceID string) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	var handler slog.Handler
	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	handler = NewContextHandler(handler)

	logger := slog.New(handler)
	if instanceID != "" {
		logger = logger.With("instance_id", instanceID)
	}
	return logger
}

func parseLevel(level string) slog.Level {
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
