// Package logging builds the process logger.
//
// One zerolog.Logger is constructed at startup from Config and handed to every
// component; nothing in the module logs through a package-level logger.
//
//	logger, closer, err := logging.New(logging.Config{Level: "info", Format: "json"})
//	defer closer.Close()
//	logger.Info().Str("addr", addr).Msg("gateway listening")
//
// Always terminate log chains with .Msg() or .Send().
package logging

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// Config holds logging configuration.
type Config struct {
	// Level is the minimum log level: trace, debug, info, warn, error, fatal, panic, disabled.
	// Default: info
	Level string

	// Format is the output format: json or console.
	// Default: json
	Format string

	// File, when set, receives a copy of every entry with size-based rotation.
	File string

	// MaxSizeMB is the rotation threshold for File.
	// Default: 100
	MaxSizeMB int

	// MaxBackups is how many rotated files to keep.
	// Default: 7
	MaxBackups int

	// Output is the writer for console/json output.
	// Default: os.Stderr
	Output io.Writer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New builds a logger. The returned closer flushes and closes the log file, if any.
func New(cfg Config) (zerolog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return zerolog.Nop(), nopCloser{}, err
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	if strings.EqualFold(cfg.Format, "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: "15:04:05"}
	}

	var closer io.Closer = nopCloser{}
	if cfg.File != "" {
		rotating := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    orDefault(cfg.MaxSizeMB, 100),
			MaxBackups: orDefault(cfg.MaxBackups, 7),
			LocalTime:  true,
		}
		out = zerolog.MultiLevelWriter(out, rotating)
		closer = rotating
	}

	zerolog.TimeFieldFormat = time.RFC3339

	logger := zerolog.New(out).Level(level).With().Timestamp().Logger()
	return logger, closer, nil
}

// ParseLevel converts a level name; empty means info.
func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	l, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return l, nil
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
