package notification

import (
	"context"
	"testing"

	"github.com/vaultcore/usp/pam/jit"
)

func TestJitEventType_IsValid(t *testing.T) {
	valid := []JitEventType{
		EventJitRequested, EventJitGranted, EventJitDenied, EventJitRevoked, EventJitExpired,
	}
	for _, et := range valid {
		if !et.IsValid() {
			t.Errorf("expected %q to be valid", et)
		}
	}
	if JitEventType("jit.bogus").IsValid() {
		t.Error("expected unknown event type to be invalid")
	}
}

func TestNewJitEvent(t *testing.T) {
	g := &jit.Grant{ID: "g1", Requester: "bob", Status: jit.StatusPending}
	event := NewJitEvent(EventJitRequested, g, "bob")

	if event.Type != EventJitRequested {
		t.Errorf("expected type %q, got %q", EventJitRequested, event.Type)
	}
	if event.Grant != g {
		t.Error("expected event to reference the same grant pointer")
	}
	if event.Actor != "bob" {
		t.Errorf("expected actor bob, got %q", event.Actor)
	}
}

type capturingJitNotifier struct {
	events []*JitEvent
}

func (c *capturingJitNotifier) NotifyJit(_ context.Context, event *JitEvent) error {
	c.events = append(c.events, event)
	return nil
}

func TestMultiJitNotifier_FansOutAndFiltersNil(t *testing.T) {
	a := &capturingJitNotifier{}
	b := &capturingJitNotifier{}

	multi := NewMultiJitNotifier(a, nil, b)
	event := NewJitEvent(EventJitGranted, &jit.Grant{ID: "g1"}, "system")

	if err := multi.NotifyJit(context.Background(), event); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("expected both notifiers to receive the event, got a=%d b=%d", len(a.events), len(b.events))
	}
}

func TestNoopJitNotifier(t *testing.T) {
	n := &NoopJitNotifier{}
	if err := n.NotifyJit(context.Background(), NewJitEvent(EventJitGranted, &jit.Grant{}, "x")); err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
}
