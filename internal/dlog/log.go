// Package dlog wraps zerolog with the field conventions this repo's
// services use and redacts secret-shaped substrings before they reach
// an output writer.
package dlog

import (
	"io"
	"os"
	"regexp"
	"time"

	"github.com/rs/zerolog"
)

// Logger is the global logger instance.
var Logger zerolog.Logger

// Level represents a logging verbosity.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case InfoLevel:
		level = zerolog.InfoLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}
	output = redactingWriter{w: output}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithComponent returns a child logger tagged with a component name.
func WithComponent(component string) zerolog.Logger {
	return Logger.With().Str("component", component).Logger()
}

// WithWorkerID returns a child logger tagged with a worker id.
func WithWorkerID(workerID string) zerolog.Logger {
	return Logger.With().Str("worker_id", workerID).Logger()
}

// WithRequestID returns a child logger tagged with a request id.
func WithRequestID(requestID string) zerolog.Logger {
	return Logger.With().Str("request_id", requestID).Logger()
}

// WithEntityKey returns a child logger tagged with a (database, key) pair.
// It never carries the entity's plaintext value.
func WithEntityKey(database, key string) zerolog.Logger {
	return Logger.With().Str("database", database).Str("entity_key", key).Logger()
}

func Info(msg string) { Logger.Info().Msg(msg) }

func Debug(msg string) { Logger.Debug().Msg(msg) }

func Warn(msg string) { Logger.Warn().Msg(msg) }

func Error(msg string) { Logger.Error().Msg(msg) }

func Errorf(format string, err error) { Logger.Error().Err(err).Msg(format) }

func Fatal(msg string) { Logger.Fatal().Msg(msg) }

// secretPatterns matches substrings that must never reach a log sink:
// bearer tokens and AuthKey secrets (the dk_ prefix from §3 AuthKey).
var secretPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)bearer\s+[a-zA-Z0-9._\-]+`),
	regexp.MustCompile(`dk_[a-zA-Z0-9]+`),
}

// Redact replaces any known secret-shaped substring in s with a fixed
// placeholder. Used directly by callers that must log a value which may
// embed a token, and internally by the logger's output writer.
func Redact(s string) string {
	for _, re := range secretPatterns {
		s = re.ReplaceAllString(s, "[redacted]")
	}
	return s
}

// redactingWriter scrubs known secret shapes out of every log line before
// it reaches the underlying writer. zerolog writes one line per Write
// call, so line-at-a-time redaction is sufficient here.
type redactingWriter struct {
	w io.Writer
}

func (r redactingWriter) Write(p []byte) (int, error) {
	redacted := Redact(string(p))
	if _, err := r.w.Write([]byte(redacted)); err != nil {
		return 0, err
	}
	return len(p), nil
}
