package logging

import (
	"time"

	"github.com/vaultcore/usp/iso8601"
	"github.com/vaultcore/usp/notification"
	"github.com/vaultcore/usp/pam/checkout"
)

// CheckoutLogEntry captures all context for a privileged-access checkout
// lifecycle event. Events include: checkout.created, checkout.activated,
// checkout.denied, checkout.checkedIn, checkout.expired.
type CheckoutLogEntry struct {
	Timestamp   string `json:"timestamp"`              // ISO8601 format
	Event       string `json:"event"`                  // "checkout.created", "checkout.activated", etc.
	CheckoutID  string `json:"checkout_id"`             // Checkout ID
	AccountID   string `json:"account_id"`              // Privileged account checked out
	Requester   string `json:"requester"`               // Who requested access
	Status      string `json:"status"`                  // Current status after event
	Actor       string `json:"actor"`                   // Who triggered event (requester, approver, or "system")
	Reason      string `json:"reason,omitempty"`        // Reason for request (on create)
	Duration    int    `json:"duration_seconds,omitempty"` // Requested duration (on create)
	ApprovalID  string `json:"approval_id,omitempty"`   // Approval that gated this checkout, if any
	CheckinNote string `json:"checkin_note,omitempty"`  // Notes left at check-in
}

// NewCheckoutLogEntry creates a CheckoutLogEntry from a notification
// event. It populates fields based on the event type:
//   - checkout.created: includes reason, duration
//   - checkout.activated: includes approval_id
//   - checkout.checkedIn: includes checkin_note
func NewCheckoutLogEntry(event notification.EventType, c *checkout.Checkout, actor string) CheckoutLogEntry {
	entry := CheckoutLogEntry{
		Timestamp:  iso8601.Format(time.Now()),
		Event:      string(event),
		CheckoutID: c.ID,
		AccountID:  c.AccountID,
		Requester:  c.Requester,
		Status:     string(c.Status),
		Actor:      actor,
	}

	switch event {
	case notification.EventCheckoutCreated:
		entry.Reason = c.Reason
		if c.Duration > 0 {
			entry.Duration = int(c.Duration.Seconds())
		}
	case notification.EventCheckoutActivated:
		entry.ApprovalID = c.ApprovalID
	case notification.EventCheckoutCheckedIn:
		entry.CheckinNote = c.CheckinNotes
	}

	return entry
}
