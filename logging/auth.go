package logging

import (
	"time"

	"github.com/vaultcore/usp/audit"
	"github.com/vaultcore/usp/iso8601"
)

// AuthLogEntry captures all context for a login attempt, the typed
// projection of the "auth.login" audit.Record authn.Engine.Login writes
// for every attempt whether it succeeds, fails, or steps up to MFA.
type AuthLogEntry struct {
	Timestamp string `json:"timestamp"`           // ISO8601 format
	UserID    string `json:"user_id"`             // User attempting to log in
	Success   bool   `json:"success"`             // Whether the attempt resulted in a session
	IPAddress string `json:"ip_address,omitempty"` // Client IP address
	Detail    string `json:"detail,omitempty"`    // "mfa_required", lockout reason, or empty on success
}

// NewAuthLogEntry projects an audit.Record produced by authn.Engine.Login
// into an AuthLogEntry. rec.EventType is expected to be "auth.login".
func NewAuthLogEntry(rec audit.Record) AuthLogEntry {
	return AuthLogEntry{
		Timestamp: iso8601.Format(rec.Timestamp),
		UserID:    rec.UserID,
		Success:   rec.Success,
		IPAddress: rec.IPAddress,
		Detail:    rec.Details,
	}
}
