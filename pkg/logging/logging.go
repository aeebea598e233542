package logging

import (
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
)

// Logger is the logging interface handed to every component. It is satisfied
// by both *logrus.Logger and *logrus.Entry, so components can derive scoped
// loggers with WithFields without knowing which one they were given.
type Logger interface {
	logrus.FieldLogger
	Writer() *io.PipeWriter
	WriterLevel(level logrus.Level) *io.PipeWriter
}

// Options configures the root logger built by New.
type Options struct {
	// Level is a logrus level name. Empty means info.
	Level string
	// Format is either "text" or "json". Empty means text.
	Format string
	// Output is the primary sink. Nil means os.Stderr.
	Output io.Writer
	// File, if set, receives a copy of every log line.
	File io.Writer
}

// New creates the root logger for one process invocation.
func New(opts Options) (*logrus.Logger, error) {
	log := logrus.New()

	level := logrus.InfoLevel
	if opts.Level != "" {
		var err error
		level, err = logrus.ParseLevel(opts.Level)
		if err != nil {
			return nil, err
		}
	}
	log.SetLevel(level)

	switch strings.ToLower(opts.Format) {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	default:
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.File != nil {
		out = io.MultiWriter(out, opts.File)
	}
	log.SetOutput(out)
	return log, nil
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}
