// Package log implements structured logging on top of logrus.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"firestige.xyz/ntpwire/internal/config"
)

type Logger interface {
	Trace(args ...interface{})
	Tracef(format string, args ...interface{})

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

	IsTraceEnabled() bool
	IsDebugEnabled() bool
}

var (
	mu     sync.RWMutex
	logger Logger = newDefault()
)

// GetLogger returns the process logger. Before Init it logs at info level
// to stderr.
func GetLogger() Logger {
	mu.RLock()
	defer mu.RUnlock()
	return logger
}

// Init replaces the process logger with one built from cfg.
func Init(cfg config.LogConfig) error {
	l, err := New(cfg)
	if err != nil {
		return err
	}
	mu.Lock()
	logger = l
	mu.Unlock()
	return nil
}

// New builds a logger from cfg without installing it.
func New(cfg config.LogConfig) (Logger, error) {
	level, err := logrus.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}

	out := NewMultiWriter()
	if cfg.Outputs.Console.Enabled {
		out.Add(consoleStream(cfg.Outputs.Console.Stream))
	}
	if cfg.Outputs.File.Enabled {
		if cfg.Outputs.File.Path == "" {
			return nil, fmt.Errorf("file output requires 'path' field")
		}
		out.AddFileAppender(cfg.Outputs.File)
	}

	return newLogrusAdapter(out, level, cfg.Pattern, cfg.Time), nil
}

// NewWithWriter builds a logger that writes to w; used by tests and tools
// that capture log output.
func NewWithWriter(w io.Writer, level, pattern string) (Logger, error) {
	lv, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return nil, fmt.Errorf("invalid log level: %w", err)
	}
	return newLogrusAdapter(w, lv, pattern, ""), nil
}

func newDefault() Logger {
	return newLogrusAdapter(os.Stderr, logrus.InfoLevel, "", "")
}

func consoleStream(name string) io.Writer {
	if name == "stdout" {
		return os.Stdout
	}
	return os.Stderr
}

// Close flushes and closes file appenders of the process logger.
func Close() error {
	mu.RLock()
	defer mu.RUnlock()
	if c, ok := logger.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
