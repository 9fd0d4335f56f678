package logging

import (
	"time"

	"github.com/vaultcore/usp/iso8601"
	"github.com/vaultcore/usp/seal"
)

// Seal event type constants, one per seal.Manager state transition.
const (
	SealEventInitialized = "seal.initialized"
	SealEventUnsealed    = "seal.unsealed"
	SealEventSealed      = "seal.sealed"
	SealEventRekeyed     = "seal.rekeyed"
	SealEventUnsealFailed = "seal.unseal_failed"
)

// SealLogEntry captures all context for a seal lifecycle event: Init,
// Unseal (success or failure), Seal, and Rekey.
type SealLogEntry struct {
	Timestamp string `json:"timestamp"`             // ISO8601 format
	Event     string `json:"event"`                 // "seal.initialized", "seal.unsealed", etc.
	Sealed    bool   `json:"sealed"`                 // Status.Sealed after the event
	Progress  int    `json:"progress"`               // Shares supplied toward threshold (unseal only)
	Threshold int     `json:"threshold"`             // SealConfig.SecretThreshold
	Shares    int     `json:"shares"`                // SealConfig.SecretShares
	Version   int     `json:"version,omitempty"`     // SealConfig.Version, set on rekey
	Detail    string  `json:"detail,omitempty"`       // Error detail on unseal failure
}

// NewSealLogEntry creates a SealLogEntry from a seal.Status snapshot.
func NewSealLogEntry(event string, status seal.Status) SealLogEntry {
	return SealLogEntry{
		Timestamp: iso8601.Format(time.Now()),
		Event:     event,
		Sealed:    status.Sealed,
		Progress:  status.Progress,
		Threshold: status.Threshold,
		Shares:    status.Shares,
	}
}

// NewSealFailureLogEntry creates a SealLogEntry for a failed unseal
// attempt, where no successful Status snapshot is available yet.
func NewSealFailureLogEntry(detail string) SealLogEntry {
	return SealLogEntry{
		Timestamp: iso8601.Format(time.Now()),
		Event:     SealEventUnsealFailed,
		Sealed:    true,
		Detail:    detail,
	}
}
