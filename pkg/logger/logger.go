package logger

import (
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Config describes how the application logger should behave.
type Config struct {
	Level       string
	Format      string
	OutputPaths []string
	Rotation    RotationConfig
}

// RotationConfig controls size based rotation of file outputs.
type RotationConfig struct {
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
}

var (
	mu            sync.RWMutex
	defaultLogger *slog.Logger
	closers       []io.Closer
)

// Init configures the global logger. Calling it again replaces the previous
// logger and closes its file outputs.
func Init(cfg Config) error {
	handler, opened, err := buildHandler(cfg)
	if err != nil {
		return err
	}

	mu.Lock()
	previous := closers
	defaultLogger = slog.New(handler)
	closers = opened
	mu.Unlock()

	var closeErr error
	for _, c := range previous {
		closeErr = errors.Join(closeErr, c.Close())
	}
	return closeErr
}

func buildHandler(cfg Config) (slog.Handler, []io.Closer, error) {
	opts := &slog.HandlerOptions{Level: parseLevel(cfg.Level)}

	var (
		writers []io.Writer
		opened  []io.Closer
	)
	for _, out := range cfg.OutputPaths {
		out = strings.TrimSpace(out)
		if out == "" {
			continue
		}
		writer, closer, err := openWriter(out, cfg.Rotation)
		if err != nil {
			for _, c := range opened {
				_ = c.Close()
			}
			return nil, nil, err
		}
		if closer != nil {
			opened = append(opened, closer)
		}
		writers = append(writers, writer)
	}
	if len(writers) == 0 {
		writers = append(writers, os.Stdout)
	}

	var writer io.Writer
	if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = io.MultiWriter(writers...)
	}

	if strings.EqualFold(cfg.Format, "json") {
		return slog.NewJSONHandler(writer, opts), opened, nil
	}
	return slog.NewTextHandler(writer, opts), opened, nil
}

func openWriter(path string, rotation RotationConfig) (io.Writer, io.Closer, error) {
	switch strings.ToLower(path) {
	case "stdout":
		return os.Stdout, nil, nil
	case "stderr":
		return os.Stderr, nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, nil, err
	}
	if rotation.MaxSizeMB <= 0 {
		rotation.MaxSizeMB = 100
	}
	if rotation.MaxBackups <= 0 {
		rotation.MaxBackups = 7
	}
	if rotation.MaxAgeDays <= 0 {
		rotation.MaxAgeDays = 30
	}
	file := &lumberjack.Logger{
		Filename:   path,
		MaxSize:    rotation.MaxSizeMB,
		MaxBackups: rotation.MaxBackups,
		MaxAge:     rotation.MaxAgeDays,
	}
	return file, file, nil
}

func parseLevel(level string) slog.Level {
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

// L returns the structured logger instance, falling back to a text logger on
// stdout when Init has not been called.
func L() *slog.Logger {
	mu.RLock()
	l := defaultLogger
	mu.RUnlock()
	if l != nil {
		return l
	}
	_ = Init(Config{})
	mu.RLock()
	defer mu.RUnlock()
	return defaultLogger
}

// Named returns a child logger tagged with the component name.
func Named(name string) *slog.Logger {
	return L().With(slog.String("component", name))
}

// Sync closes file outputs opened by Init.
func Sync() error {
	mu.Lock()
	opened := closers
	closers = nil
	mu.Unlock()

	var err error
	for _, c := range opened {
		err = errors.Join(err, c.Close())
	}
	return err
}
