package notification

import (
	"context"
	"log"

	"github.com/vaultcore/usp/pam/checkout"
)

// NotifyCheckoutStore wraps a checkout.Store and fires notifications on
// state transitions. It implements the checkout.Store interface,
// delegating every operation to the wrapped store and firing the
// appropriate event after successful mutations, the same decorator
// shape the teacher used to add notifications to its request.Store
// without touching request.Manager's constructor or business logic.
type NotifyCheckoutStore struct {
	store    checkout.Store
	notifier Notifier
}

// NewNotifyCheckoutStore creates a NotifyCheckoutStore wrapping the given
// store. If notifier is nil, a NoopNotifier is used (no notifications fired).
func NewNotifyCheckoutStore(store checkout.Store, notifier Notifier) *NotifyCheckoutStore {
	if notifier == nil {
		notifier = &NoopNotifier{}
	}
	return &NotifyCheckoutStore{store: store, notifier: notifier}
}

// Create stores a new checkout and fires EventCheckoutCreated on success.
func (s *NotifyCheckoutStore) Create(ctx context.Context, c *checkout.Checkout) error {
	if err := s.store.Create(ctx, c); err != nil {
		return err
	}
	go s.notify(ctx, EventCheckoutCreated, c, c.Requester)
	return nil
}

// Get retrieves a checkout by ID. No notification is fired.
func (s *NotifyCheckoutStore) Get(ctx context.Context, id string) (*checkout.Checkout, error) {
	return s.store.Get(ctx, id)
}

// Update modifies an existing checkout and fires a notification when its
// status transitions. checkout.Checkout carries no approver field (votes
// live on the separate AccessApproval record), so the actor for
// activated/denied transitions is reported as "system"; Requester or
// ForcedBy is used for checkedIn since both are present on the record.
func (s *NotifyCheckoutStore) Update(ctx context.Context, c *checkout.Checkout) error {
	old, err := s.store.Get(ctx, c.ID)
	if err != nil {
		return s.store.Update(ctx, c)
	}

	if err := s.store.Update(ctx, c); err != nil {
		return err
	}

	if old.Status == c.Status {
		return nil
	}

	var eventType EventType
	actor := "system"
	switch c.Status {
	case checkout.StatusActive:
		eventType = EventCheckoutActivated
	case checkout.StatusDenied:
		eventType = EventCheckoutDenied
	case checkout.StatusCheckedIn:
		eventType = EventCheckoutCheckedIn
		actor = c.Requester
		if c.ForcedBy != "" {
			actor = c.ForcedBy
		}
	case checkout.StatusExpired:
		eventType = EventCheckoutExpired
	}

	if eventType != "" {
		go s.notify(ctx, eventType, c, actor)
	}
	return nil
}

// ListByAccount returns checkouts for an account. No notification is fired.
func (s *NotifyCheckoutStore) ListByAccount(ctx context.Context, accountID string, limit int) ([]*checkout.Checkout, error) {
	return s.store.ListByAccount(ctx, accountID, limit)
}

// ListByStatus returns checkouts with a given status. No notification is fired.
func (s *NotifyCheckoutStore) ListByStatus(ctx context.Context, status checkout.Status, limit int) ([]*checkout.Checkout, error) {
	return s.store.ListByStatus(ctx, status, limit)
}

// ActiveForAccount returns an account's active checkout, if any. No
// notification is fired.
func (s *NotifyCheckoutStore) ActiveForAccount(ctx context.Context, accountID string) (*checkout.Checkout, error) {
	return s.store.ActiveForAccount(ctx, accountID)
}

// CreateApproval, GetApproval, and UpdateApproval pass straight through:
// approval-vote notifications would duplicate the activated/denied events
// already fired from Update once the Checkout itself transitions.
func (s *NotifyCheckoutStore) CreateApproval(ctx context.Context, a *checkout.AccessApproval) error {
	return s.store.CreateApproval(ctx, a)
}

func (s *NotifyCheckoutStore) GetApproval(ctx context.Context, id string) (*checkout.AccessApproval, error) {
	return s.store.GetApproval(ctx, id)
}

func (s *NotifyCheckoutStore) UpdateApproval(ctx context.Context, a *checkout.AccessApproval) error {
	return s.store.UpdateApproval(ctx, a)
}

// notify sends a notification asynchronously. Errors are logged but do
// not fail the operation.
func (s *NotifyCheckoutStore) notify(ctx context.Context, eventType EventType, c *checkout.Checkout, actor string) {
	event := NewEvent(eventType, c, actor)
	if err := s.notifier.Notify(ctx, event); err != nil {
		log.Printf("notification error (%s): %v", eventType, err)
	}
}
