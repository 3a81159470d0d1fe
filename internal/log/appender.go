package log

import (
	"errors"
	"io"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"

	"firestige.xyz/ntpwire/internal/config"
)

// MultiWriter fans each log line out to every appender. A failing appender
// does not stop the others.
type MultiWriter struct {
	mu      sync.Mutex
	writers []io.Writer
}

func NewMultiWriter() *MultiWriter {
	return &MultiWriter{writers: make([]io.Writer, 0)}
}

func (m *MultiWriter) Write(p []byte) (n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, w := range m.writers {
		if _, e := w.Write(p); e != nil {
			err = e
		}
	}
	return len(p), err
}

func (m *MultiWriter) Add(writer io.Writer) *MultiWriter {
	m.mu.Lock()
	m.writers = append(m.writers, writer)
	m.mu.Unlock()
	return m
}

// AddFileAppender adds a size-rotated log file.
func (m *MultiWriter) AddFileAppender(opt config.FileOutputConfig) *MultiWriter {
	return m.Add(&lumberjack.Logger{
		Filename:   opt.Path,
		MaxSize:    opt.Rotation.MaxSizeMB,  // megabytes
		MaxBackups: opt.Rotation.MaxBackups, // number of backups
		MaxAge:     opt.Rotation.MaxAgeDays, // days
		Compress:   opt.Rotation.Compress,
	})
}

// Close closes every appender that holds a resource, such as rotated files.
func (m *MultiWriter) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var errs []error
	for _, w := range m.writers {
		if c, ok := w.(io.Closer); ok && !isStdStream(w) {
			errs = append(errs, c.Close())
		}
	}
	return errors.Join(errs...)
}

func (m *MultiWriter) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.writers)
}
