package log

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// New builds a console zerolog logger on stdout with the given level string
// (debug, info, warn, error).
func New(level string) *zerolog.Logger {
	return NewWithWriter(level, os.Stdout)
}

// NewWithWriter builds a logger writing to w. Pass a console writer for humans or any
// io.Writer for JSON lines.
func NewWithWriter(level string, w io.Writer) *zerolog.Logger {
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if f, ok := w.(*os.File); ok {
		w = zerolog.ConsoleWriter{Out: f, TimeFormat: time.RFC3339}
	}

	logger := zerolog.New(w).Level(ParseLevel(level)).With().Timestamp().Logger()
	return &logger
}

// ParseLevel maps a level name to a zerolog level. Unknown names mean info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "info", "":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "disabled", "off":
		return zerolog.Disabled
	default:
		return zerolog.InfoLevel
	}
}
