// Package logging provides structured logging for access decisions.
// It defines a Logger interface and implementations for JSON output
// and no-op logging.
package logging

import (
	"encoding/json"
	"io"
)

// Logger defines the interface for logging access decisions and the
// event families of the PAM and secrets subsystems.
type Logger interface {
	// LogDecision logs a decision entry.
	LogDecision(entry DecisionLogEntry)

	// LogCheckout logs a checkout lifecycle event.
	LogCheckout(entry CheckoutLogEntry)

	// LogRotation logs a credential rotation event.
	LogRotation(entry RotationLogEntry)

	// LogSeal logs a seal lifecycle event.
	LogSeal(entry SealLogEntry)

	// LogAuth logs a login attempt.
	LogAuth(entry AuthLogEntry)
}

// JSONLogger implements Logger with JSON Lines output.
// Each entry is written as a single line of JSON suitable for log aggregation.
type JSONLogger struct {
	writer io.Writer
}

// NewJSONLogger creates a new JSONLogger that writes to the given writer.
func NewJSONLogger(w io.Writer) *JSONLogger {
	return &JSONLogger{writer: w}
}

// LogDecision writes the entry as a single line of JSON.
func (l *JSONLogger) LogDecision(entry DecisionLogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

// LogCheckout writes the checkout entry as a single line of JSON.
func (l *JSONLogger) LogCheckout(entry CheckoutLogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

// LogRotation writes the rotation entry as a single line of JSON.
func (l *JSONLogger) LogRotation(entry RotationLogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

// LogSeal writes the seal entry as a single line of JSON.
func (l *JSONLogger) LogSeal(entry SealLogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

// LogAuth writes the auth entry as a single line of JSON.
func (l *JSONLogger) LogAuth(entry AuthLogEntry) {
	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	l.writer.Write(data)
	l.writer.Write([]byte("\n"))
}

// NopLogger implements Logger but discards all entries.
// Useful for testing or when logging is disabled.
type NopLogger struct{}

// NewNopLogger creates a new NopLogger that discards all entries.
func NewNopLogger() *NopLogger {
	return &NopLogger{}
}

// LogDecision discards the entry.
func (l *NopLogger) LogDecision(entry DecisionLogEntry) {
	// Intentionally empty - discards all entries
}

// LogCheckout discards the checkout entry.
func (l *NopLogger) LogCheckout(entry CheckoutLogEntry) {
	// Intentionally empty - discards all entries
}

// LogRotation discards the rotation entry.
func (l *NopLogger) LogRotation(entry RotationLogEntry) {
	// Intentionally empty - discards all entries
}

// LogSeal discards the seal entry.
func (l *NopLogger) LogSeal(entry SealLogEntry) {
	// Intentionally empty - discards all entries
}

// LogAuth discards the auth entry.
func (l *NopLogger) LogAuth(entry AuthLogEntry) {
	// Intentionally empty - discards all entries
}
