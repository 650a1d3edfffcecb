package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Flag fields attached to events that need a human to look at them.
// Log pipelines alert on these keys.
const (
	FieldAlert                = "alert"
	FieldSecurityReview       = "security_review"
	FieldManualReconciliation = "manual_reconciliation"
)

// New creates a configured zerolog.Logger.
// level: debug, info, warn, error. pretty: human-readable console output.
func New(level string, pretty bool) zerolog.Logger {
	var w io.Writer = os.Stdout
	if pretty {
		w = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
	}

	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Caller().
		Str("service", "escrow-ledger").
		Logger()
}

// NewWithWriter creates a logger writing to a custom writer (useful for testing).
func NewWithWriter(level string, w io.Writer) zerolog.Logger {
	return zerolog.New(w).
		Level(parseLevel(level)).
		With().
		Timestamp().
		Logger()
}

// Component returns a child logger tagged with the emitting component.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Alert marks an event for paging.
func Alert(e *zerolog.Event) *zerolog.Event {
	return e.Bool(FieldAlert, true)
}

// SecurityReview marks an event for the security review queue.
func SecurityReview(e *zerolog.Event) *zerolog.Event {
	return e.Bool(FieldSecurityReview, true)
}

// ManualReconciliation marks an event that needs an operator to settle funds by hand.
func ManualReconciliation(e *zerolog.Event) *zerolog.Event {
	return e.Bool(FieldManualReconciliation, true)
}

func parseLevel(level string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || level == "" {
		return zerolog.InfoLevel
	}
	return lvl
}
