package notification

import (
	"context"
	"log"

	"github.com/vaultcore/usp/pam/jit"
)

// NotifyJitStore wraps a jit.Store and fires notifications on grant
// state transitions. It implements the jit.Store interface, delegating
// every operation to the wrapped store and firing the appropriate event
// after successful mutations, mirroring NotifyCheckoutStore's shape for
// the jit domain.
type NotifyJitStore struct {
	store    jit.Store
	notifier JitNotifier
}

// NewNotifyJitStore creates a NotifyJitStore wrapping the given store.
// If notifier is nil, a NoopJitNotifier is used (no notifications fired).
func NewNotifyJitStore(store jit.Store, notifier JitNotifier) *NotifyJitStore {
	if notifier == nil {
		notifier = &NoopJitNotifier{}
	}
	return &NotifyJitStore{store: store, notifier: notifier}
}

// CreateGrant stores a new grant and fires EventJitRequested on success.
func (s *NotifyJitStore) CreateGrant(ctx context.Context, g *jit.Grant) error {
	if err := s.store.CreateGrant(ctx, g); err != nil {
		return err
	}
	go s.notifyGrant(ctx, EventJitRequested, g, g.Requester)
	return nil
}

// GetGrant retrieves a grant by ID. No notification is fired.
func (s *NotifyJitStore) GetGrant(ctx context.Context, id string) (*jit.Grant, error) {
	return s.store.GetGrant(ctx, id)
}

// UpdateGrant modifies an existing grant and fires a notification when
// its status transitions.
func (s *NotifyJitStore) UpdateGrant(ctx context.Context, g *jit.Grant) error {
	old, err := s.store.GetGrant(ctx, g.ID)
	if err != nil {
		return s.store.UpdateGrant(ctx, g)
	}

	if err := s.store.UpdateGrant(ctx, g); err != nil {
		return err
	}

	if old.Status == g.Status {
		return nil
	}

	var eventType JitEventType
	actor := "system"
	switch g.Status {
	case jit.StatusActive:
		eventType = EventJitGranted
	case jit.StatusDenied:
		eventType = EventJitDenied
	case jit.StatusRevoked:
		eventType = EventJitRevoked
		actor = g.RevokedBy
	case jit.StatusExpired:
		eventType = EventJitExpired
	}

	if eventType != "" {
		go s.notifyGrant(ctx, eventType, g, actor)
	}
	return nil
}

// ListGrantsByStatus and ListGrantsByRequester pass straight through. No
// notification is fired for read operations.
func (s *NotifyJitStore) ListGrantsByStatus(ctx context.Context, status jit.Status, limit int) ([]*jit.Grant, error) {
	return s.store.ListGrantsByStatus(ctx, status, limit)
}

func (s *NotifyJitStore) ListGrantsByRequester(ctx context.Context, requester string, limit int) ([]*jit.Grant, error) {
	return s.store.ListGrantsByRequester(ctx, requester, limit)
}

// CreateApproval, GetApproval, and UpdateApproval pass straight through:
// the grant-level granted/denied events fired from UpdateGrant already
// cover the outcome of an approval vote.
func (s *NotifyJitStore) CreateApproval(ctx context.Context, a *jit.Approval) error {
	return s.store.CreateApproval(ctx, a)
}

func (s *NotifyJitStore) GetApproval(ctx context.Context, id string) (*jit.Approval, error) {
	return s.store.GetApproval(ctx, id)
}

func (s *NotifyJitStore) UpdateApproval(ctx context.Context, a *jit.Approval) error {
	return s.store.UpdateApproval(ctx, a)
}

// GetTemplate passes straight through.
func (s *NotifyJitStore) GetTemplate(ctx context.Context, id string) (*jit.Template, error) {
	return s.store.GetTemplate(ctx, id)
}

// notifyGrant sends a notification asynchronously. Errors are logged but
// do not fail the operation.
func (s *NotifyJitStore) notifyGrant(ctx context.Context, eventType JitEventType, g *jit.Grant, actor string) {
	event := NewJitEvent(eventType, g, actor)
	if err := s.notifier.NotifyJit(ctx, event); err != nil {
		log.Printf("notification error (%s): %v", eventType, err)
	}
}
