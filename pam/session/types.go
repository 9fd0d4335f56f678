// Package session implements the privileged session recording and
// playback of spec §4.8: a PrivilegedSession is 1:1 with a checkout,
// and its SessionCommand rows form an append-only, strictly-ordered
// command-log recording.
package session

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

const IDLength = 16

// RecordingFormat identifies how SessionCommand rows are structured.
// Video formats are out of scope per spec's Non-goals; command-log is
// the only implemented format.
type RecordingFormat string

const RecordingFormatCommandLog RecordingFormat = "command-log"

// PrivilegedSession is 1:1 with a pam/checkout.Checkout, covering the
// window from active checkout to checkin.
type PrivilegedSession struct {
	ID                         string          `json:"id"`
	CheckoutID                 string          `json:"checkout_id"`
	Protocol                   string          `json:"protocol"` // ssh, rdp, sql, https, ...
	Platform                   string          `json:"platform"`
	StartedAt                  time.Time       `json:"started_at"`
	EndedAt                    time.Time       `json:"ended_at,omitempty"`
	CommandCount               int             `json:"command_count"`
	SuspiciousActivityDetected bool            `json:"suspicious_activity_detected"`
	RecordingFormat            RecordingFormat `json:"recording_format"`
	UpdatedAt                  time.Time       `json:"updated_at"`
}

// IsActive reports whether the session has not yet ended.
func (s *PrivilegedSession) IsActive() bool {
	return s.EndedAt.IsZero()
}

// SessionCommand is one append-only entry in a PrivilegedSession's
// command log. SequenceNumber is strictly increasing per session,
// assigned by Recorder.Append - never by the caller.
type SessionCommand struct {
	SessionID      string    `json:"session_id"`
	SequenceNumber int64     `json:"sequence_number"`
	ExecutedAt     time.Time `json:"executed_at"`
	Command        string    `json:"command"`
	Response       string    `json:"response,omitempty"`
	ExitCode       int       `json:"exit_code"`
	Suspicious     bool      `json:"suspicious"`
	MatchedRule    string    `json:"matched_rule,omitempty"`
}

// NewID generates a new 16-character lowercase hex identifier for
// PrivilegedSession IDs.
func NewID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}
