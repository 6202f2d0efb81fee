// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Options controls logger setup.
type Options struct {
	Level      string
	Format     string // json or console
	File       string // optional; rotated with lumberjack
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Service    string
}

// Setup installs the global logger and returns a closer for the log file, if any.
// An unknown level falls back to info.
func Setup(opts Options) io.Closer {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil || opts.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	var out io.Writer = os.Stderr
	if opts.Format == "console" {
		out = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	}

	var closer io.Closer = nopCloser{}
	if opts.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
			MaxAge:     opts.MaxAgeDays,
			Compress:   true,
		}
		out = zerolog.MultiLevelWriter(out, rotator)
		closer = rotator
	}

	logger := zerolog.New(out).With().Timestamp()
	if opts.Service != "" {
		logger = logger.Str("service", opts.Service)
	}
	log.Logger = logger.Logger()

	if err != nil && opts.Level != "" {
		log.Warn().Str("level", opts.Level).Msg("unknown log level, using info")
	}
	return closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
