package util

import (
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/lmittmann/tint"
	"github.com/pkg/errors"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, errors.Errorf("Unknown log level %q", level)
}

// NewLogger logs to stderr, or appends to fileName without colors when set.
// The returned closer releases the log file.
func NewLogger(level, fileName string) (*slog.Logger, io.Closer, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}

	if fileName == "" {
		h := tint.NewHandler(os.Stderr, &tint.Options{
			Level:      lvl,
			TimeFormat: time.Kitchen,
		})
		return slog.New(h), nopCloser{}, nil
	}

	logFile, err := os.OpenFile(fileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0666)
	if err != nil {
		return nil, nil, errors.Errorf("Failed to open log file: %s", err)
	}
	h := tint.NewHandler(logFile, &tint.Options{
		Level:      lvl,
		TimeFormat: time.DateTime,
		NoColor:    true,
		AddSource:  true,
	})
	return slog.New(h), logFile, nil
}
