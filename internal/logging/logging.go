// Package logging initializes the global zerolog logger and provides
// helpers for logging APDU exchanges.
package logging

import (
	"encoding/hex"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// InitLogger initializes the zerolog logger with the specified debug mode and output format.
func InitLogger(debug, human bool) {
	zerolog.TimeFieldFormat = time.RFC3339Nano                 // always initialize base logger with timestamp.
	base := zerolog.New(os.Stdout).With().Timestamp().Logger() // initialize base logger.
	if human {
		log.Logger = base.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339Nano,
		}) // select output format.
	} else {
		log.Logger = base // use JSON logger.
	}
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel) // set debug level.
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel) // set info level.
	}
}

// LogExchange logs one command/response APDU exchange with structured fields.
func LogExchange(channel string, command []byte, response []byte, took time.Duration) {
	log.Info().
		Str("event", "apdu_exchange").
		Str("channel", channel).
		Str("command_hex", hex.EncodeToString(command)).
		Str("response_hex", hex.EncodeToString(response)).
		Str("duration", took.String()).
		Msg("exchanged APDU")
}

// LogFailure logs a failed exchange with structured fields.
func LogFailure(channel string, command []byte, err error) {
	log.Error().
		Str("event", "apdu_failure").
		Str("channel", channel).
		Str("command_hex", hex.EncodeToString(command)).
		Err(err).
		Msg("APDU exchange failed")
}
