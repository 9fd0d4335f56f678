package notification

import (
	"context"
	"testing"
	"time"

	"github.com/vaultcore/usp/pam/checkout"
)

func TestNotifyCheckoutStore_Create_FiresCreated(t *testing.T) {
	base := checkout.NewInMemoryStore()
	notifier := &capturingNotifier{}
	store := NewNotifyCheckoutStore(base, notifier)

	c := &checkout.Checkout{
		ID: "c1", AccountID: "acct-1", Requester: "alice",
		Status: checkout.StatusPending, RequestedAt: time.Now(),
	}
	if err := store.Create(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForEvents(t, notifier, 1)
	if notifier.events[0].Type != EventCheckoutCreated {
		t.Errorf("expected EventCheckoutCreated, got %q", notifier.events[0].Type)
	}
	if notifier.events[0].Actor != "alice" {
		t.Errorf("expected actor alice, got %q", notifier.events[0].Actor)
	}
}

func TestNotifyCheckoutStore_Update_FiresOnTransition(t *testing.T) {
	base := checkout.NewInMemoryStore()
	notifier := &capturingNotifier{}
	store := NewNotifyCheckoutStore(base, notifier)

	c := &checkout.Checkout{ID: "c1", AccountID: "acct-1", Requester: "alice", Status: checkout.StatusPending}
	if err := base.Create(context.Background(), c); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	c.Status = checkout.StatusActive
	if err := store.Update(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForEvents(t, notifier, 1)
	if notifier.events[0].Type != EventCheckoutActivated {
		t.Errorf("expected EventCheckoutActivated, got %q", notifier.events[0].Type)
	}
}

func TestNotifyCheckoutStore_Update_NoEventWithoutTransition(t *testing.T) {
	base := checkout.NewInMemoryStore()
	notifier := &capturingNotifier{}
	store := NewNotifyCheckoutStore(base, notifier)

	c := &checkout.Checkout{ID: "c1", AccountID: "acct-1", Requester: "alice", Status: checkout.StatusActive}
	if err := base.Create(context.Background(), c); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	c.SessionID = "sess-1"
	if err := store.Update(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	time.Sleep(20 * time.Millisecond)
	if len(notifier.events) != 0 {
		t.Errorf("expected no event fired without a status transition, got %d", len(notifier.events))
	}
}

func TestNotifyCheckoutStore_Update_CheckedInUsesForcedBy(t *testing.T) {
	base := checkout.NewInMemoryStore()
	notifier := &capturingNotifier{}
	store := NewNotifyCheckoutStore(base, notifier)

	c := &checkout.Checkout{ID: "c1", AccountID: "acct-1", Requester: "alice", Status: checkout.StatusActive}
	if err := base.Create(context.Background(), c); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	c.Status = checkout.StatusCheckedIn
	c.ForcedBy = "admin"
	if err := store.Update(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	waitForEvents(t, notifier, 1)
	if notifier.events[0].Actor != "admin" {
		t.Errorf("expected actor admin, got %q", notifier.events[0].Actor)
	}
}

func TestNotifyCheckoutStore_ReadsPassThrough(t *testing.T) {
	base := checkout.NewInMemoryStore()
	store := NewNotifyCheckoutStore(base, nil)

	c := &checkout.Checkout{ID: "c1", AccountID: "acct-1", Requester: "alice", Status: checkout.StatusPending}
	if err := base.Create(context.Background(), c); err != nil {
		t.Fatalf("seeding store: %v", err)
	}

	got, err := store.Get(context.Background(), "c1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.ID != "c1" {
		t.Errorf("expected checkout c1, got %q", got.ID)
	}
}

func waitForEvents(t *testing.T, n *capturingNotifier, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(n.events) >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d event(s), got %d", want, len(n.events))
}
