// Package logging builds the process logger: JSON slog records to stdout and,
// when a file is configured, to a size-rotated log file.
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alanyoungcy/hunch/internal/config"
)

// ParseLevel maps a config level name to a slog level. Unknown names are
// info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// New returns a JSON logger at level writing to stdout and, when cfg.File is
// set, to a rotating file. The returned closer releases the file.
func New(cfg config.LogConfig, level string) (*slog.Logger, io.Closer) {
	return newLogger(os.Stdout, cfg, level)
}

func newLogger(stdout io.Writer, cfg config.LogConfig, level string) (*slog.Logger, io.Closer) {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	if cfg.File == "" {
		return slog.New(slog.NewJSONHandler(stdout, opts)), nopCloser{}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0o755); err != nil {
		logger := slog.New(slog.NewJSONHandler(stdout, opts))
		logger.Warn("logging: log file disabled",
			slog.String("file", cfg.File),
			slog.String("error", err.Error()),
		)
		return logger, nopCloser{}
	}

	file := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	}
	w := io.MultiWriter(stdout, file)
	return slog.New(slog.NewJSONHandler(w, opts)), file
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
