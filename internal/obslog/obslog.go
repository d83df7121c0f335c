// Package obslog is clapfilterd's logging seam: a single package-level
// *slog.Logger, configured once at startup from config.Config.LogLevel and
// written to stderr so stdout stays clean for RPC framing in daemon mode.
package obslog

import (
	"log/slog"
	"os"
)

var logger = slog.New(slog.NewTextHandler(os.Stderr, nil))

// Configure replaces the package logger with one at the given level,
// writing text-formatted records to stderr.
func Configure(level string) {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLevel(level),
	}))
}

func parseLevel(level string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(level)); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Logger returns the current package logger.
func Logger() *slog.Logger { return logger }

// Debug logs at debug level with key-value attrs.
func Debug(msg string, args ...any) { logger.Debug(msg, args...) }

// Info logs at info level with key-value attrs.
func Info(msg string, args ...any) { logger.Info(msg, args...) }

// Warn logs at warn level with key-value attrs.
func Warn(msg string, args ...any) { logger.Warn(msg, args...) }

// Error logs at error level with key-value attrs.
func Error(msg string, args ...any) { logger.Error(msg, args...) }
