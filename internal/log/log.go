// Package log provides the process logger, backed by logrus.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"firestige.xyz/pcapscan/internal/config"
)

type Logger interface {
	Debug(args ...interface{})
	Debugf(format string, args ...interface{})

	Info(args ...interface{})
	Infof(format string, args ...interface{})

	Warn(args ...interface{})
	Warnf(format string, args ...interface{})

	Error(args ...interface{})
	Errorf(format string, args ...interface{})

	WithField(field string, value interface{}) Logger
	WithFields(fields map[string]interface{}) Logger
	WithError(err error) Logger

	IsDebugEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = Discard()
	file   io.Closer
)

// GetLogger returns the process logger. Before Init it discards everything.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init builds the process logger from cfg. Output always goes to stderr so
// that stdout stays free for scan results.
func Init(cfg config.LogConfig) error {
	out, closer, err := outputs(cfg.Outputs, os.Stderr)
	if err != nil {
		return err
	}

	l, err := New(cfg, out)
	if err != nil {
		if closer != nil {
			closer.Close()
		}
		return err
	}

	mu.Lock()
	prev := file
	logger, file = l, closer
	mu.Unlock()
	if prev != nil {
		prev.Close()
	}
	return nil
}

// Close releases the log file, if any, and resets the process logger to
// discard.
func Close() error {
	mu.Lock()
	f := file
	logger, file = Discard(), nil
	mu.Unlock()
	if f == nil {
		return nil
	}
	return f.Close()
}

// New creates a logger writing to out.
func New(cfg config.LogConfig, out io.Writer) (Logger, error) {
	level, err := parseLevel(cfg.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	l := logrus.New()
	l.SetOutput(out)
	l.SetLevel(level)

	switch strings.ToLower(cfg.Format) {
	case "json":
		l.SetFormatter(&logrus.JSONFormatter{TimestampFormat: cfg.TimeFormat})
	case "text", "":
		l.SetFormatter(newFormatter(cfg.Pattern, cfg.TimeFormat))
	default:
		return nil, fmt.Errorf("unsupported log format: %s (must be json or text)", cfg.Format)
	}

	return fromLogrus(l), nil
}

// Discard returns a logger that drops every entry.
func Discard() Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	l.SetLevel(logrus.PanicLevel)
	return fromLogrus(l)
}

// parseLevel converts a config level to a logrus level.
func parseLevel(levelStr string) (logrus.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return logrus.DebugLevel, nil
	case "info", "":
		return logrus.InfoLevel, nil
	case "warn", "warning":
		return logrus.WarnLevel, nil
	case "error":
		return logrus.ErrorLevel, nil
	default:
		return logrus.InfoLevel, fmt.Errorf("unknown level: %s", levelStr)
	}
}
