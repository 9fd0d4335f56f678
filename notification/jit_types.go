// Package notification provides event types for USP's notification
// system. This file contains JIT grant notification event types for
// security alerts when time-bounded elevated access is requested,
// granted, revoked, or expires.
package notification

import (
	"time"

	"github.com/vaultcore/usp/pam/jit"
)

// JitEventType represents the type of JIT grant notification event.
// Events correspond to Grant lifecycle state changes.
type JitEventType string

const (
	// EventJitRequested is emitted when a JIT grant is requested.
	EventJitRequested JitEventType = "jit.requested"
	// EventJitGranted is emitted when a JIT grant becomes active.
	EventJitGranted JitEventType = "jit.granted"
	// EventJitDenied is emitted when a JIT grant's approval is denied.
	EventJitDenied JitEventType = "jit.denied"
	// EventJitRevoked is emitted when a JIT grant is explicitly revoked.
	EventJitRevoked JitEventType = "jit.revoked"
	// EventJitExpired is emitted when a JIT grant expires due to TTL.
	EventJitExpired JitEventType = "jit.expired"
)

// IsValid returns true if the JitEventType is a known value.
func (t JitEventType) IsValid() bool {
	switch t {
	case EventJitRequested, EventJitGranted, EventJitDenied, EventJitRevoked, EventJitExpired:
		return true
	}
	return false
}

// String returns the string representation of the JitEventType.
func (t JitEventType) String() string {
	return string(t)
}

// JitEvent represents a notification event triggered by a JIT grant
// state change. It contains the event type, the grant that triggered
// it, when it occurred, and who triggered the event.
type JitEvent struct {
	// Type is the event type (requested, granted, denied, revoked, expired).
	Type JitEventType

	// Grant is the JIT grant that triggered this notification.
	Grant *jit.Grant

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Actor is who triggered the event:
	//   - requester username for requested
	//   - revoker username for revoked (Grant.RevokedBy)
	//   - "system" for granted/denied/expired
	Actor string
}

// NewJitEvent creates a new JIT grant notification event. The timestamp
// is set to the current time.
func NewJitEvent(eventType JitEventType, g *jit.Grant, actor string) *JitEvent {
	return &JitEvent{
		Type:      eventType,
		Grant:     g,
		Timestamp: time.Now(),
		Actor:     actor,
	}
}
