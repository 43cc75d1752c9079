// Package logging builds the component loggers used across watchrun.
//
// Every component takes a *log.Logger with a bracketed prefix, such as
// "[watch] ". Diagnostic logging is off by default so that the child's
// output owns the terminal; --verbose sends it to stderr and --log-file to a
// size-rotated file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options selects where diagnostic logs go.
type Options struct {
	// Verbose writes logs to stderr
	Verbose bool

	// File writes logs to a rotated file when non-empty
	File string

	// MaxSizeMB is the size at which the file is rotated
	MaxSizeMB int

	// MaxBackups is how many rotated files are kept
	MaxBackups int

	// MaxAgeDays is how long rotated files are kept
	MaxAgeDays int
}

// DefaultOptions returns sensible defaults.
func DefaultOptions() Options {
	return Options{
		MaxSizeMB:  10,
		MaxBackups: 3,
		MaxAgeDays: 28,
	}
}

// Logs is the shared log sink.
type Logs struct {
	w    io.Writer
	file *lumberjack.Logger
}

// Open creates the sink described by opts. Close releases the log file.
func Open(opts Options) *Logs {
	l := &Logs{}

	var writers []io.Writer
	if opts.Verbose {
		writers = append(writers, os.Stderr)
	}
	if opts.File != "" {
		l.file = &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
		}
		writers = append(writers, l.file)
	}

	switch len(writers) {
	case 0:
		l.w = io.Discard
	case 1:
		l.w = writers[0]
	default:
		l.w = io.MultiWriter(writers...)
	}
	return l
}

// Writer returns the underlying writer.
func (l *Logs) Writer() io.Writer {
	return l.w
}

// For returns a logger whose lines are prefixed with "[component] ".
func (l *Logs) For(component string) *log.Logger {
	return log.New(l.w, "["+component+"] ", log.LstdFlags)
}

// Close flushes and closes the log file, if any.
func (l *Logs) Close() error {
	if l.file == nil {
		return nil
	}
	return l.file.Close()
}
