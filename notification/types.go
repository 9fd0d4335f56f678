// Package notification provides event types and interfaces for USP's
// notification system. It enables pluggable notification delivery on
// pam/checkout lifecycle events such as creation, approval, denial,
// check-in, and expiry.
//
// # Event Types
//
// Events are emitted when a Checkout's state changes:
//   - checkout.created: A new access checkout was requested
//   - checkout.activated: A checkout became active (approved or no approval required)
//   - checkout.denied: A checkout's approval was denied
//   - checkout.checkedIn: The requester checked the credential back in
//   - checkout.expired: An active checkout's window elapsed unattended
//
// # Notification Delivery
//
// The Notifier interface allows pluggable notification backends (SNS,
// webhooks, etc.). MultiNotifier composes multiple backends for fanout
// delivery.
package notification

import (
	"time"

	"github.com/vaultcore/usp/pam/checkout"
)

// EventType represents the type of notification event.
// Events correspond to Checkout lifecycle state changes.
type EventType string

const (
	// EventCheckoutCreated is emitted when a new checkout is requested.
	EventCheckoutCreated EventType = "checkout.created"
	// EventCheckoutActivated is emitted when a checkout becomes active.
	EventCheckoutActivated EventType = "checkout.activated"
	// EventCheckoutDenied is emitted when a checkout's approval is denied.
	EventCheckoutDenied EventType = "checkout.denied"
	// EventCheckoutCheckedIn is emitted when the requester checks a credential back in.
	EventCheckoutCheckedIn EventType = "checkout.checkedIn"
	// EventCheckoutExpired is emitted when an active checkout's window elapses.
	EventCheckoutExpired EventType = "checkout.expired"
)

// IsValid returns true if the EventType is a known value.
func (t EventType) IsValid() bool {
	switch t {
	case EventCheckoutCreated, EventCheckoutActivated, EventCheckoutDenied,
		EventCheckoutCheckedIn, EventCheckoutExpired:
		return true
	}
	return false
}

// String returns the string representation of the EventType.
func (t EventType) String() string {
	return string(t)
}

// Event represents a notification event triggered by a checkout state
// change. It contains the event type, the checkout that triggered it,
// when it occurred, and who triggered the event.
type Event struct {
	// Type is the event type (created, activated, denied, checkedIn, expired).
	Type EventType

	// Checkout is the checkout that triggered this event.
	Checkout *checkout.Checkout

	// Timestamp is when the event occurred.
	Timestamp time.Time

	// Actor is who triggered the event:
	//   - requester username for created/checkedIn
	//   - approver username for activated/denied
	//   - "system" for expired
	Actor string
}

// NewEvent creates a new notification event. The timestamp is set to the
// current time.
func NewEvent(eventType EventType, c *checkout.Checkout, actor string) *Event {
	return &Event{
		Type:      eventType,
		Checkout:  c,
		Timestamp: time.Now(),
		Actor:     actor,
	}
}
