// Package logging builds the component loggers used across regsync.
//
// Components log through plain *log.Logger values with a bracketed prefix
// such as "[daemon] ". A Factory owns the shared output, which is stderr or
// a size-rotated file, and hands out per-component loggers filtered by level.
package logging

import (
	"bytes"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"sync"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Level orders log messages by severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

// String returns the level name as accepted by ParseLevel.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "debug"
	case LevelInfo:
		return "info"
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "unknown"
	}
}

// ParseLevel converts a level name to a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	default:
		return LevelInfo, fmt.Errorf("invalid log level %q: must be one of debug, info, warn, error", s)
	}
}

// Options configures the log output.
type Options struct {
	// Level is the minimum level written.
	Level Level

	// File, when set, sends logs to a rotated file instead of stderr.
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// DefaultOptions returns info-level logging to stderr with rotation
// settings used when a file is configured.
func DefaultOptions() Options {
	return Options{
		Level:      LevelInfo,
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// Factory creates component loggers sharing one output.
type Factory struct {
	level  Level
	out    io.Writer
	closer io.Closer
}

// Open creates a Factory for opts.
func Open(opts Options) (*Factory, error) {
	if opts.Level < LevelDebug || opts.Level > LevelError {
		return nil, fmt.Errorf("invalid log level %d", opts.Level)
	}

	f := &Factory{level: opts.Level, out: os.Stderr}
	if opts.File != "" {
		lj := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   opts.Compress,
		}
		f.out = lj
		f.closer = lj
	}
	return f, nil
}

// NewFactory returns a Factory writing to w, for tests and embedding.
func NewFactory(w io.Writer, level Level) *Factory {
	return &Factory{level: level, out: w}
}

// Close flushes and closes a log file, if one is open.
func (f *Factory) Close() error {
	if f.closer == nil {
		return nil
	}
	return f.closer.Close()
}

// Logger returns the logger for component, prefixed "[component] ".
func (f *Factory) Logger(component string) *Logger {
	return &Logger{
		level: f.level,
		std:   log.New(&levelWriter{out: f.out, min: f.level}, "["+component+"] ", log.LstdFlags|log.Lmsgprefix),
	}
}

// Logger is a level-filtered logger for one component.
type Logger struct {
	level Level
	std   *log.Logger
}

// Std returns the underlying *log.Logger for packages that take one.
// Plain messages count as info; messages starting with "Warning:" or
// "Error" count as warn and error.
func (l *Logger) Std() *log.Logger {
	return l.std
}

func (l *Logger) Debugf(format string, args ...any) {
	if l.level <= LevelDebug {
		l.std.Printf("DEBUG "+format, args...)
	}
}

func (l *Logger) Infof(format string, args ...any) {
	l.std.Printf(format, args...)
}

func (l *Logger) Warnf(format string, args ...any) {
	l.std.Printf("Warning: "+format, args...)
}

func (l *Logger) Errorf(format string, args ...any) {
	l.std.Printf("Error: "+format, args...)
}

// levelWriter drops log lines below min. It classifies each line by the
// marker that follows the prefix.
type levelWriter struct {
	mu  sync.Mutex
	out io.Writer
	min Level
}

func (w *levelWriter) Write(p []byte) (int, error) {
	if lineLevel(p) < w.min {
		return len(p), nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.out.Write(p)
}

func lineLevel(p []byte) Level {
	// With Lmsgprefix the message follows "] ".
	msg := p
	if i := bytes.Index(p, []byte("] ")); i >= 0 {
		msg = p[i+2:]
	}
	switch {
	case bytes.HasPrefix(msg, []byte("DEBUG ")):
		return LevelDebug
	case bytes.HasPrefix(msg, []byte("Error")):
		return LevelError
	case bytes.HasPrefix(msg, []byte("Warning")):
		return LevelWarn
	default:
		return LevelInfo
	}
}
