// Package logging builds the zerolog loggers used by the pqdag binaries.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog"
)

const (
	FormatJSON    = "json"
	FormatConsole = "console"
)

// Options selects level, output format and destination.
// Zero values mean info level, JSON, stderr.
type Options struct {
	Level  string
	Format string
	Writer io.Writer
}

// New returns a logger stamped with time and the given component name.
func New(component string, opts Options) (zerolog.Logger, error) {
	level := zerolog.InfoLevel
	if s := strings.TrimSpace(opts.Level); s != "" {
		l, err := zerolog.ParseLevel(strings.ToLower(s))
		if err != nil {
			return zerolog.Nop(), errors.Wrapf(err, "logging: level %q", opts.Level)
		}
		level = l
	}

	w := opts.Writer
	if w == nil {
		w = os.Stderr
	}
	switch strings.ToLower(opts.Format) {
	case "", FormatJSON:
	case FormatConsole:
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339, NoColor: true}
	default:
		return zerolog.Nop(), errors.Newf("logging: unknown format %q", opts.Format)
	}

	ctx := zerolog.New(w).Level(level).With().Timestamp()
	if component != "" {
		ctx = ctx.Str("component", component)
	}
	return ctx.Logger(), nil
}

// MustNew is New for program start-up; it panics on bad options.
func MustNew(component string, opts Options) zerolog.Logger {
	l, err := New(component, opts)
	if err != nil {
		panic(err)
	}
	return l
}
