package logging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/vaultcore/usp/pam/rotation"
)

func TestNewRotationLogEntry_Succeeded(t *testing.T) {
	entry := NewRotationLogEntry("acct-1", rotation.TriggerScheduled, true, "")

	if entry.Event != RotationEventSucceeded {
		t.Errorf("expected event %q, got %q", RotationEventSucceeded, entry.Event)
	}
	if !entry.Success {
		t.Error("expected Success true")
	}
	if entry.Detail != "" {
		t.Errorf("expected empty detail on success, got %q", entry.Detail)
	}
	if _, err := time.Parse(time.RFC3339, entry.Timestamp); err != nil {
		t.Errorf("timestamp should be RFC3339/ISO8601, got error: %v", err)
	}
}

func TestNewRotationLogEntry_Failed(t *testing.T) {
	entry := NewRotationLogEntry("acct-1", rotation.TriggerManual, false, "dial tcp: connection refused")

	if entry.Event != RotationEventFailed {
		t.Errorf("expected event %q, got %q", RotationEventFailed, entry.Event)
	}
	if entry.Success {
		t.Error("expected Success false")
	}
	if entry.Detail != "dial tcp: connection refused" {
		t.Errorf("expected detail preserved, got %q", entry.Detail)
	}
}

func TestNewRotationLogEntry_Reverted(t *testing.T) {
	entry := NewRotationLogEntry("acct-1", rotation.TriggerOnCheckin, false,
		"rotation failed, reverted to prior credential: timeout")

	if entry.Event != RotationEventReverted {
		t.Errorf("expected event %q, got %q", RotationEventReverted, entry.Event)
	}
}

func TestNewRotationLogEntry_RevertAlsoFailed(t *testing.T) {
	entry := NewRotationLogEntry("acct-1", rotation.TriggerOnExpire, false,
		"rotation and revert both failed: timeout; revert error: connection refused")

	if entry.Event != RotationEventReverted {
		t.Errorf("expected event %q, got %q", RotationEventReverted, entry.Event)
	}
}

func TestRotationLogEntry_JSONOmitsEmptyDetail(t *testing.T) {
	entry := NewRotationLogEntry("acct-1", rotation.TriggerScheduled, true, "")

	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("failed to marshal entry: %v", err)
	}
	jsonStr := string(data)

	if containsSubstring(jsonStr, `"detail"`) {
		t.Errorf("JSON should not contain detail when empty, got: %s", jsonStr)
	}
	for _, field := range []string{`"account_id":"acct-1"`, `"trigger":"scheduled"`, `"success":true`} {
		if !containsSubstring(jsonStr, field) {
			t.Errorf("JSON should contain %s, got: %s", field, jsonStr)
		}
	}
}
