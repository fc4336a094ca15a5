package util

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// NewLogger builds a JSON logger on stdout at the given level.
func NewLogger(level string) zerolog.Logger {
	return NewLoggerTo(os.Stdout, level)
}

// NewLoggerTo builds a logger writing to w; "console" prefixed levels
// (e.g. "console:debug") switch to the human readable writer.
func NewLoggerTo(w io.Writer, level string) zerolog.Logger {
	level = strings.ToLower(strings.TrimSpace(level))
	if rest, ok := strings.CutPrefix(level, "console:"); ok {
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: "15:04:05.000"}
		level = rest
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).With().Timestamp().Logger().Level(lvl)
}

// Component returns a child logger tagged with the component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
