// Package logging points the standard logger at stderr and, optionally, a
// size-rotated log file.
package logging

import (
	"io"
	"log"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Options configures Setup.
type Options struct {
	// File enables file output when non-empty.
	File       string
	MaxSizeMB  int
	MaxBackups int
}

// Setup configures the standard logger. The returned closer flushes and
// closes the log file; it is a no-op without one.
func Setup(opts Options) io.Closer {
	log.SetFlags(log.LstdFlags | log.LUTC)

	if opts.File == "" {
		log.SetOutput(os.Stderr)
		return nopCloser{}
	}

	rotator := &lumberjack.Logger{
		Filename:   opts.File,
		MaxSize:    opts.MaxSizeMB,
		MaxBackups: opts.MaxBackups,
		Compress:   true,
	}
	log.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return rotator
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
