// Package logging builds the process logger.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
)

var redacted = map[string]bool{
	"token":         true,
	"secret":        true,
	"password":      true,
	"authorization": true,
	"app_key":       true,
}

// Redact drops attributes that may carry credentials.
func Redact(_ []string, a slog.Attr) slog.Attr {
	if redacted[strings.ToLower(a.Key)] {
		return slog.Attr{}
	}
	return a
}

// ParseLevel maps a config string to a slog level. Unknown values mean info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
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

// NewHandler returns a JSON handler for "json" and a tint handler otherwise.
func NewHandler(w io.Writer, format, level string) slog.Handler {
	lvl := ParseLevel(level)
	if strings.EqualFold(strings.TrimSpace(format), "json") {
		return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: lvl, ReplaceAttr: Redact})
	}
	noColor := true
	if f, ok := w.(*os.File); ok {
		noColor = !isTerminal(f)
	}
	return tint.NewHandler(w, &tint.Options{
		Level:       lvl,
		TimeFormat:  time.RFC3339,
		ReplaceAttr: Redact,
		NoColor:     noColor,
	})
}

// New builds the service logger and installs it as the slog default.
func New(w io.Writer, format, level, service, env string) *slog.Logger {
	logger := slog.New(NewHandler(w, format, level)).With("service", service, "env", env)
	slog.SetDefault(logger)
	return logger
}

// Err formats an error attribute.
func Err(err error) slog.Attr {
	return tint.Err(err)
}
