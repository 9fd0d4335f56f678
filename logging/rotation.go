package logging

import (
	"strings"
	"time"

	"github.com/vaultcore/usp/iso8601"
	"github.com/vaultcore/usp/pam/rotation"
)

// Rotation event type constants, mirroring pam/rotation.Rotator's
// success/failure outcomes.
const (
	RotationEventSucceeded = "rotation.succeeded"
	RotationEventFailed    = "rotation.failed"
	RotationEventReverted  = "rotation.reverted"
)

// RotationLogEntry captures all context for a credential rotation event.
// It is the typed projection of the generic audit.Record a
// pam/rotation.Rotator already writes, for callers that forward a fixed
// schema to CloudWatch or a SIEM rather than the audit trail's free-form
// Details map.
type RotationLogEntry struct {
	Timestamp string `json:"timestamp"`         // ISO8601 format
	Event     string `json:"event"`             // "rotation.succeeded", "rotation.failed", "rotation.reverted"
	AccountID string `json:"account_id"`        // Privileged account rotated
	Trigger   string `json:"trigger"`           // "scheduled", "manual", "on_checkin", "on_expiration"
	Success   bool   `json:"success"`           // Whether the rotation committed
	Detail    string `json:"detail,omitempty"`  // Error detail on failure, empty on success
}

// NewRotationLogEntry creates a RotationLogEntry from the same inputs
// Rotator.audit records on the audit trail. Rotator.revert's detail text
// always mentions "revert" (either the successful revert or the case
// where the revert's own rotate call also failed); Rotator.fail's detail
// is the bare connector error, since nothing was ever reverted.
func NewRotationLogEntry(accountID string, trigger rotation.Trigger, success bool, detail string) RotationLogEntry {
	event := RotationEventSucceeded
	if !success {
		event = RotationEventFailed
		if strings.Contains(detail, "revert") {
			event = RotationEventReverted
		}
	}
	return RotationLogEntry{
		Timestamp: iso8601.Format(time.Now()),
		Event:     event,
		AccountID: accountID,
		Trigger:   string(trigger),
		Success:   success,
		Detail:    detail,
	}
}
