package logging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vaultcore/usp/notification"
	"github.com/vaultcore/usp/pam/checkout"
)

func TestNewCheckoutLogEntry_Created(t *testing.T) {
	c := &checkout.Checkout{
		ID: "a1b2c3d4e5f67890", AccountID: "acct-1", Requester: "alice",
		Reason: "Need to deploy hotfix", Duration: 2 * time.Hour, Status: checkout.StatusPending,
	}

	entry := NewCheckoutLogEntry(notification.EventCheckoutCreated, c, "alice")

	if entry.Timestamp == "" {
		t.Error("expected non-empty timestamp")
	}
	if entry.Event != "checkout.created" {
		t.Errorf("expected event checkout.created, got %q", entry.Event)
	}
	if entry.CheckoutID != c.ID {
		t.Errorf("expected checkout_id %q, got %q", c.ID, entry.CheckoutID)
	}
	if entry.Reason != c.Reason {
		t.Errorf("expected reason %q, got %q", c.Reason, entry.Reason)
	}
	if entry.Duration != 7200 {
		t.Errorf("expected duration_seconds 7200, got %d", entry.Duration)
	}
	if entry.ApprovalID != "" {
		t.Error("expected empty approval_id for created event")
	}

	if _, err := time.Parse(time.RFC3339, entry.Timestamp); err != nil {
		t.Errorf("timestamp should be RFC3339/ISO8601, got error: %v", err)
	}
}

func TestNewCheckoutLogEntry_Activated(t *testing.T) {
	c := &checkout.Checkout{
		ID: "a1b2c3d4e5f67890", AccountID: "acct-1", Requester: "alice",
		Status: checkout.StatusActive, ApprovalID: "appr-1",
	}

	entry := NewCheckoutLogEntry(notification.EventCheckoutActivated, c, "system")

	if entry.Event != "checkout.activated" {
		t.Errorf("expected event checkout.activated, got %q", entry.Event)
	}
	if entry.ApprovalID != "appr-1" {
		t.Errorf("expected approval_id appr-1, got %q", entry.ApprovalID)
	}
	if entry.Reason != "" {
		t.Error("expected empty reason for activated event")
	}
}

func TestNewCheckoutLogEntry_CheckedIn(t *testing.T) {
	c := &checkout.Checkout{
		ID: "a1b2c3d4e5f67890", AccountID: "acct-1", Requester: "alice",
		Status: checkout.StatusCheckedIn, CheckinNotes: "rotated after use",
	}

	entry := NewCheckoutLogEntry(notification.EventCheckoutCheckedIn, c, "alice")

	if entry.CheckinNote != "rotated after use" {
		t.Errorf("expected checkin_note to be preserved, got %q", entry.CheckinNote)
	}
}

func TestCheckoutLogEntry_JSONOmitsEmptyOptionalFields(t *testing.T) {
	c := &checkout.Checkout{ID: "a1b2c3d4e5f67890", AccountID: "acct-1", Requester: "alice", Status: checkout.StatusExpired}
	entry := NewCheckoutLogEntry(notification.EventCheckoutExpired, c, "system")

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("failed to marshal entry: %v", err)
	}
	jsonStr := string(data)

	for _, field := range []string{`"reason"`, `"duration_seconds"`, `"approval_id"`, `"checkin_note"`} {
		if containsSubstring(jsonStr, field) {
			t.Errorf("JSON should not contain %s when empty, got: %s", field, jsonStr)
		}
	}
	for _, field := range []string{`"timestamp":`, `"event":"checkout.expired"`, `"checkout_id":"a1b2c3d4e5f67890"`, `"status":"expired"`} {
		if !containsSubstring(jsonStr, field) {
			t.Errorf("JSON should contain %s, got: %s", field, jsonStr)
		}
	}
}
