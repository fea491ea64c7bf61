// Package logging configures the process-wide zerolog logger.
package logging

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Setup initializes the global logger. Verbosity 0 logs warnings and above,
// 1 adds info, 2 adds debug and anything higher enables trace.
func Setup(verbosity int) {
	SetupWriter(os.Stderr, verbosity)
}

// SetupWriter is Setup against an arbitrary destination, for tests.
func SetupWriter(w io.Writer, verbosity int) {
	var level zerolog.Level
	switch {
	case verbosity <= 0:
		level = zerolog.WarnLevel
	case verbosity == 1:
		level = zerolog.InfoLevel
	case verbosity == 2:
		level = zerolog.DebugLevel
	default:
		level = zerolog.TraceLevel
	}
	zerolog.SetGlobalLevel(level)

	log.Logger = zerolog.New(zerolog.ConsoleWriter{
		Out:        w,
		TimeFormat: time.Kitchen,
	}).With().Timestamp().Logger()
}
