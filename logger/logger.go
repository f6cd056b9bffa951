package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
)

// Options configures a logger built by New.
type Options struct {
	Level       string
	Directory   string
	Filename    string
	MaxBytes    int64
	BackupCount int
	// Console receives a copy of every entry. Nil means stderr.
	Console io.Writer
}

// New builds a logrus logger writing to the console and, when a directory
// and file name are configured, to a size-rotated log file. The returned
// closer releases the log file and must be called on shutdown.
func New(opts Options) (*logrus.Logger, io.Closer, error) {
	log := logrus.New()
	log.SetLevel(ParseLevel(opts.Level))
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})

	console := opts.Console
	if console == nil {
		console = os.Stderr
	}

	if strings.TrimSpace(opts.Directory) == "" || strings.TrimSpace(opts.Filename) == "" {
		log.SetOutput(console)
		return log, nopCloser{}, nil
	}

	if err := os.MkdirAll(opts.Directory, 0o755); err != nil {
		return nil, nil, fmt.Errorf("create log directory: %w", err)
	}
	sink, err := openRotatingFile(filepath.Join(opts.Directory, opts.Filename), opts.MaxBytes, opts.BackupCount)
	if err != nil {
		return nil, nil, err
	}
	log.SetOutput(io.MultiWriter(console, sink))
	return log, sink, nil
}

// ParseLevel maps a level name to a logrus level, falling back to info.
func ParseLevel(level string) logrus.Level {
	lvl, err := logrus.ParseLevel(strings.TrimSpace(level))
	if err != nil {
		return logrus.InfoLevel
	}
	return lvl
}

// Discard returns a logger that drops everything.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

// OrDiscard returns l, or a discarding logger when l is nil.
func OrDiscard(l logrus.FieldLogger) logrus.FieldLogger {
	if l == nil {
		return Discard()
	}
	return l
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
