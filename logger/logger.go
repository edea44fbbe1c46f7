// Package logger builds the process logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultLogFile is where the REPL logs when no other destination is given,
// so log lines do not interleave with the conversation on stdout.
const DefaultLogFile = "converse.log"

// InitWithOptions builds the process logger. If logFile is empty, logs go to
// stdout, formatted for humans on stderr when pretty is set. The returned
// closer releases the log file and is a no-op otherwise.
// Log level can be configured via LOG_LEVEL environment variable (trace, debug, info, warn, error).
func InitWithOptions(logFile string, pretty bool) (zerolog.Logger, io.Closer, error) {
	if logFile != "" && pretty {
		return zerolog.Nop(), nil, fmt.Errorf("log file and pretty output are mutually exclusive")
	}
	level := parseLogLevel(os.Getenv("LOG_LEVEL"))

	var (
		output io.Writer = os.Stdout
		closer io.Closer = io.NopCloser(nil)
	)
	switch {
	case logFile != "":
		//nolint:gosec // G304: User-specified log file path is intentional
		file, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log file %s: %w", logFile, err)
		}
		output, closer = file, file
	case pretty:
		output = zerolog.ConsoleWriter{Out: os.Stderr}
	}

	log := zerolog.New(output).
		Level(level).
		With().
		Timestamp().
		Logger()

	event := log.Info().Str("level", level.String())
	if logFile != "" {
		event = event.Str("path", logFile)
	} else {
		event = event.Bool("pretty", pretty)
	}
	event.Msg("Logger initialized")
	return log, closer, nil
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
