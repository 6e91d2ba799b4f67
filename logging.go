package remix

import (
	"io"
	"log/slog"
)

var logger = slog.Default()

// SetLogger replaces the package logger. Passing nil silences the
// package.
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
	}
	logger = l
}

// Logger returns the package logger.
func Logger() *slog.Logger {
	return logger
}
