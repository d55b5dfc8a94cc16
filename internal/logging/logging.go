// File: internal/logging/logging.go
// Author: momentics <momentics@gmail.com>

// Package logging builds the procrun logger and scopes per-command log context.
package logging

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/momentics/hioload-exec/internal/config"
	"github.com/rs/zerolog"
	"golang.org/x/term"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Result is a configured logger and the file it may own.
type Result struct {
	Logger  zerolog.Logger
	LogFile io.WriteCloser
}

// Close closes the log file if one was opened.
func (r *Result) Close() error {
	if r.LogFile != nil {
		return r.LogFile.Close()
	}
	return nil
}

// Setup builds the application logger. With cfg.File set, JSON lines go to a
// lumberjack-rotated file. Otherwise they go to stderr, through a console
// writer when stderr is a terminal.
func Setup(app string, cfg config.LogConfig, stderr *os.File) (*Result, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	if cfg.File != "" {
		lj := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.Rotation.MaxSizeMB,
			MaxBackups: cfg.Rotation.MaxBackups,
			MaxAge:     cfg.Rotation.MaxAgeDays,
			Compress:   cfg.Rotation.Compress,
		}
		return &Result{Logger: newLogger(lj, app, level), LogFile: lj}, nil
	}

	var out io.Writer = stderr
	if term.IsTerminal(int(stderr.Fd())) {
		out = zerolog.ConsoleWriter{Out: stderr, TimeFormat: time.RFC3339}
	}
	return &Result{Logger: newLogger(out, app, level)}, nil
}

// NewWithWriter builds a JSON logger on w, for tests and embedding.
func NewWithWriter(w io.Writer, app string, level zerolog.Level) zerolog.Logger {
	return newLogger(w, app, level)
}

// ParseLevel accepts zerolog level names; empty means info.
func ParseLevel(s string) (zerolog.Level, error) {
	if s == "" {
		return zerolog.InfoLevel, nil
	}
	level, err := zerolog.ParseLevel(s)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("log level %q: %w", s, err)
	}
	return level, nil
}

func newLogger(w io.Writer, app string, level zerolog.Level) zerolog.Logger {
	return zerolog.New(w).Level(level).With().Timestamp().Str("app", app).Logger()
}
