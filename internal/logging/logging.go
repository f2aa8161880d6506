// Package logging builds the process logger. Output always goes to
// stderr because stdout carries the MCP protocol.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Options selects level and format
type Options struct {
	Level  string
	Pretty bool
	// Output defaults to os.Stderr
	Output io.Writer
}

// New returns a zerolog logger with a timestamp and the given level.
// Unknown levels fall back to info.
func New(opts Options) zerolog.Logger {
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	if opts.Pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.Kitchen}
	}

	return zerolog.New(out).
		Level(ParseLevel(opts.Level)).
		With().
		Timestamp().
		Str("service", "pensieve-search").
		Logger()
}

// ParseLevel converts a level name, defaulting to info
func ParseLevel(s string) zerolog.Level {
	level, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return zerolog.InfoLevel
	}
	return level
}
