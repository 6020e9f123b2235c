// Package logging builds the structured zap loggers used by forage components.
//
// Every logger produced here carries a process-wide session_id field so log
// lines from concurrent requests in one process can be correlated.
package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Options controls logger construction.
type Options struct {
	// Level is one of debug, info, warn, error. Unknown values mean info.
	Level string `yaml:"level"`

	// Format is "json" or "console".
	Format string `yaml:"format"`

	// File is an optional log file path. Empty means stderr.
	File string `yaml:"file"`
}

// DefaultOptions returns info-level JSON logging to stderr.
func DefaultOptions() Options {
	return Options{Level: "info", Format: "json"}
}

var (
	// Global session ID for the current process
	sessionID     string
	sessionIDOnce sync.Once
)

// SessionID returns or creates the session ID for this process.
func SessionID() string {
	sessionIDOnce.Do(func() {
		sessionID = uuid.New().String()
	})
	return sessionID
}

func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

func encoder(format string) zapcore.Encoder {
	if format == "console" {
		cfg := zap.NewDevelopmentEncoderConfig()
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(cfg)
	}
	cfg := zap.NewProductionEncoderConfig()
	cfg.TimeKey = "timestamp"
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	return zapcore.NewJSONEncoder(cfg)
}

// New builds a logger from opts.
//
// If the log file cannot be opened, New returns a logger that writes to
// stderr along with the error. Callers can check the error to detect
// fallback mode and log a warning. The returned close function releases the
// log file and is safe to call multiple times.
func New(opts Options) (*zap.Logger, func() error, error) {
	level := zap.NewAtomicLevelAt(parseLevel(opts.Level))
	enc := encoder(opts.Format)

	var (
		sink    zapcore.WriteSyncer = zapcore.Lock(os.Stderr)
		closeFn                     = func() error { return nil }
		openErr error
	)

	if opts.File != "" {
		file, err := openLogFile(opts.File)
		if err != nil {
			openErr = err
		} else {
			var once sync.Once
			sink = zapcore.Lock(file)
			closeFn = func() error {
				var cerr error
				once.Do(func() {
					_ = file.Sync()
					cerr = file.Close()
				})
				return cerr
			}
		}
	}

	logger := zap.New(
		zapcore.NewCore(enc, sink, level),
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	).With(zap.String("session_id", SessionID()))

	if openErr != nil {
		logger.Warn("failed to initialize file logging, falling back to stderr",
			zap.String("path", opts.File), zap.Error(openErr))
	}
	return logger, closeFn, openErr
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	// Append mode: several runs may share one file.
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}
	return file, nil
}

// Component returns base tagged with a component field. A nil base yields a
// no-op logger.
func Component(base *zap.Logger, name string) *zap.Logger {
	if base == nil {
		return zap.NewNop()
	}
	return base.With(zap.String("component", name))
}
