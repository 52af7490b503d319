// Package logger provides the application-wide slog logger.
package logger

import (
	"log/slog"
	"os"
	"strings"

	"go.uber.org/fx"
)

// Module provides the logger to the fx graph.
var Module = fx.Module("logger",
	fx.Provide(NewLogger),
)

// Scope returns a slog attribute tagging log lines with a component scope.
func Scope(scope string) slog.Attr {
	return slog.String("scope", scope)
}

// Error returns a slog attribute for an error value.
func Error(err error) slog.Attr {
	return slog.Any("error", err)
}

// NewLogger builds the root slog.Logger. Level comes from LOG_LEVEL,
// output format from GO_ENV (JSON in production, text otherwise).
func NewLogger() *slog.Logger {
	level := parseLevel(os.Getenv("LOG_LEVEL"))

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if os.Getenv("GO_ENV") == "production" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
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
