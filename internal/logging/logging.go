package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/lmittmann/tint"
	slogmulti "github.com/samber/slog-multi"
)

// Setup configures the global slog logger
// If logOutputDir is non-empty, logs are written to both stderr and a timestamped file in that directory
// The returned func closes the log file, if any.
func Setup(levelStr string, logOutputDir string) (func() error, error) {
	logger, closeLog, err := New(os.Stderr, levelStr, logOutputDir)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return closeLog, nil
}

// New builds a logger writing colored text to w and, when logOutputDir is
// set, JSON lines to a new file in that directory. The returned func closes
// that file; nothing may be logged through the logger afterwards.
func New(w io.Writer, levelStr string, logOutputDir string) (*slog.Logger, func() error, error) {
	level := ParseLevel(levelStr)

	consoleHandler := tint.NewHandler(w, &tint.Options{Level: level})

	if logOutputDir == "" {
		return slog.New(consoleHandler), func() error { return nil }, nil
	}

	logDir := os.ExpandEnv(logOutputDir)

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log output directory: %w", err)
	}

	timestamp := time.Now().Format("20060102_150405")
	logFileName := fmt.Sprintf("penormalize_%s.log", timestamp)
	logFilePath := filepath.Join(logDir, logFileName)

	logFile, err := os.OpenFile(logFilePath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create log file: %w", err)
	}

	fileHandler := slog.NewJSONHandler(logFile, &slog.HandlerOptions{Level: level})

	return slog.New(slogmulti.Fanout(consoleHandler, fileHandler)), logFile.Close, nil
}

// ParseLevel converts a string log level to slog.Level
func ParseLevel(levelStr string) slog.Level {
	switch levelStr {
	case "debug", "trace":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error", "fatal":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
