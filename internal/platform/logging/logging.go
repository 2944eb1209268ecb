// Package logging configures structured service loggers.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	// EnvLogLevel selects the minimum level (trace, debug, info, warn, error, disabled).
	EnvLogLevel = "CATMARKET_LOG_LEVEL"
	// EnvLogPretty switches to human-readable console output.
	EnvLogPretty = "CATMARKET_LOG_PRETTY"
)

// New returns a logger tagged with the service name and configured from the
// environment.
func New(service string) zerolog.Logger {
	return NewWithWriter(service, os.Stderr)
}

// NewWithWriter returns a logger writing to out.
func NewWithWriter(service string, out io.Writer) zerolog.Logger {
	if pretty, ok := parseBool(os.Getenv(EnvLogPretty)); ok && pretty {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}
	level, ok := ParseLevel(os.Getenv(EnvLogLevel))
	if !ok {
		level = zerolog.InfoLevel
	}
	return zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("service", strings.TrimSpace(service)).
		Logger()
}

// Nop returns a disabled logger for tests and optional wiring.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

// ParseLevel maps a textual level to a zerolog level.
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}
