// Package logging configures the global zerolog logger shared by every
// pipeline binary.
package logging

import (
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Environment variables read by Init.
const (
	EnvLevel  = "MEDIA_LOG_LEVEL"
	EnvFormat = "MEDIA_LOG_FORMAT"
)

// Init configures the global logger from MEDIA_LOG_LEVEL (debug, info, warn,
// error; default info) and MEDIA_LOG_FORMAT ("console" for human-readable
// output, anything else for JSON lines that CloudWatch can index).
func Init() {
	Setup(os.Stderr, os.Getenv(EnvLevel), os.Getenv(EnvFormat))
}

// Setup configures the global logger to write to w.
func Setup(w io.Writer, level, format string) {
	zerolog.SetGlobalLevel(ParseLevel(level))
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	if strings.EqualFold(format, "console") {
		w = zerolog.ConsoleWriter{Out: w}
	}
	log.Logger = zerolog.New(w).With().Timestamp().Logger()
}

// ParseLevel maps a level name to a zerolog level, defaulting to info.
func ParseLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
