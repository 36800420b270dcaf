package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Logger is a logrus logger that writes to stdout and a rotating log file.
type Logger struct {
	*logrus.Logger
	file *lumberjack.Logger
}

// New creates a Logger writing to dir/fleetwatch.log at the given level.
func New(dir, level string) (*Logger, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create logs folder failed: %w", err)
	}

	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	file := &lumberjack.Logger{
		Filename:   filepath.Join(dir, "fleetwatch.log"),
		MaxSize:    50, // megabytes
		MaxBackups: 5,
		MaxAge:     14, // days
		Compress:   true,
	}

	l := logrus.New()
	l.SetLevel(lvl)
	l.SetOutput(io.MultiWriter(os.Stdout, file))
	l.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	return &Logger{Logger: l, file: file}, nil
}

// NewDiscard returns a Logger that drops everything. Used by tests.
func NewDiscard() *Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return &Logger{Logger: l}
}

// Close flushes and closes the log file, if any.
func (l *Logger) Close() error {
	if l.file == nil {
		return nil
	}
	if err := l.file.Close(); err != nil {
		return fmt.Errorf("close log file failed: %w", err)
	}
	return nil
}
