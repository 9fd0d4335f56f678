package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/vaultcore/usp/audit"
	"github.com/vaultcore/usp/pam/rotation"
	"github.com/vaultcore/usp/pam/safe"
)

// ApprovalRequirement says whether a safe requires an access approval
// before a checkout against it may activate, and if so under which
// RoutingMode and approver list.
type ApprovalRequirement struct {
	Required  bool
	Routing   RoutingMode
	Approvers []string
}

// ApprovalPolicy resolves the ApprovalRequirement for a safe, letting
// callers wire in whatever policy source fits (a static config, or
// policy.ApprovalPolicy's rule matching generalized to routing modes).
type ApprovalPolicy interface {
	RequirementFor(safeID string) ApprovalRequirement
}

// NoApprovalRequired is the default ApprovalPolicy: every checkout
// activates immediately.
type NoApprovalRequired struct{}

func (NoApprovalRequired) RequirementFor(safeID string) ApprovalRequirement {
	return ApprovalRequirement{}
}

// Manager drives the checkout state machine of spec §4.8.
type Manager struct {
	Store    Store
	Accounts safe.AccountStore
	Policy   ApprovalPolicy
	Rotator  *rotation.Rotator
	AuditLog *audit.Engine
}

// NewManager builds a Manager. Policy defaults to NoApprovalRequired if
// nil; Rotator may be nil if rotate-on-checkin is never requested.
func NewManager(store Store, accounts safe.AccountStore, policy ApprovalPolicy, rotator *rotation.Rotator, auditLog *audit.Engine) *Manager {
	if policy == nil {
		policy = NoApprovalRequired{}
	}
	return &Manager{Store: store, Accounts: accounts, Policy: policy, Rotator: rotator, AuditLog: auditLog}
}

// Request creates a Checkout against accountID for requester. If the
// account's safe requires approval, the checkout starts pending and an
// AccessApproval is created alongside it; otherwise it activates
// immediately.
func (m *Manager) Request(ctx context.Context, accountID, requester, reason string, duration time.Duration) (*Checkout, error) {
	account, err := m.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("checkout: loading account: %w", err)
	}
	if account.Status == safe.AccountStatusDisabled {
		return nil, fmt.Errorf("checkout: account %s is disabled", accountID)
	}
	if duration <= 0 {
		duration = DefaultMaxDuration
	}

	now := time.Now().UTC()
	c := &Checkout{
		ID: NewID(), AccountID: accountID, SafeID: account.SafeID,
		Requester: requester, Reason: reason, Status: StatusPending,
		Duration: duration, RequestedAt: now, UpdatedAt: now,
	}

	req := m.Policy.RequirementFor(account.SafeID)
	if !req.Required {
		m.activate(c, now)
		if err := m.Store.Create(ctx, c); err != nil {
			return nil, fmt.Errorf("checkout: creating checkout: %w", err)
		}
		m.audit(ctx, "checkout.request", c, true, "auto-activated, no approval required")
		return c, nil
	}

	if err := m.Store.Create(ctx, c); err != nil {
		return nil, fmt.Errorf("checkout: creating checkout: %w", err)
	}
	approval := &AccessApproval{
		ID: NewID(), CheckoutID: c.ID, Routing: req.Routing, Approvers: req.Approvers,
		Status: ApprovalStatusPending, CreatedAt: now, UpdatedAt: now,
	}
	if err := m.Store.CreateApproval(ctx, approval); err != nil {
		return nil, fmt.Errorf("checkout: creating approval: %w", err)
	}
	c.ApprovalID = approval.ID
	if err := m.Store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("checkout: linking approval: %w", err)
	}
	m.audit(ctx, "checkout.request", c, true, "pending approval")
	return c, nil
}

func (m *Manager) activate(c *Checkout, now time.Time) {
	c.Status = StatusActive
	c.CheckedOutAt = now
	c.ExpiresAt = now.Add(c.Duration)
	c.UpdatedAt = now
}

// Vote records one approver's decision on checkoutID's approval. Once
// routing resolves the approval, the checkout activates (on approval)
// or moves to denied (on denial or any single deny vote).
func (m *Manager) Vote(ctx context.Context, checkoutID, approver string, approved bool, comment string) (*Checkout, error) {
	c, err := m.Store.Get(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusPending {
		return nil, fmt.Errorf("checkout: %s is not pending approval (status %q)", checkoutID, c.Status)
	}
	if c.ApprovalID == "" {
		return nil, fmt.Errorf("checkout: %s has no approval to vote on", checkoutID)
	}
	approval, err := m.Store.GetApproval(ctx, c.ApprovalID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	approval.Votes = append(approval.Votes, Vote{Approver: approver, Approved: approved, Comment: comment, VotedAt: now})
	approval.Status = decide(approval.Routing, approval.Approvers, approval.Votes)
	approval.UpdatedAt = now
	if err := m.Store.UpdateApproval(ctx, approval); err != nil {
		return nil, fmt.Errorf("checkout: recording vote: %w", err)
	}

	switch approval.Status {
	case ApprovalStatusApproved:
		m.activate(c, now)
		m.audit(ctx, "checkout.approve", c, true, "")
	case ApprovalStatusDenied:
		c.Status = StatusDenied
		c.UpdatedAt = now
		m.audit(ctx, "checkout.deny", c, true, "")
	default:
		return c, m.Store.Update(ctx, c)
	}
	if err := m.Store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("checkout: updating checkout: %w", err)
	}
	return c, nil
}

// Checkin ends an active checkout, optionally triggering a rotation if
// the checkout was created with RotateOnCheckin (or rotate is forced).
func (m *Manager) Checkin(ctx context.Context, checkoutID, notes string, rotate bool) (*Checkout, error) {
	c, err := m.Store.Get(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if c.Status != StatusActive {
		return nil, fmt.Errorf("checkout: %s is not active (status %q)", checkoutID, c.Status)
	}

	now := time.Now().UTC()
	c.Status = StatusCheckedIn
	c.CheckedInAt = now
	c.CheckinNotes = notes
	c.UpdatedAt = now
	if err := m.Store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("checkout: recording checkin: %w", err)
	}
	m.audit(ctx, "checkout.checkin", c, true, "")

	if (rotate || c.RotateOnCheckin) && m.Rotator != nil {
		if rerr := m.Rotator.Rotate(ctx, c.AccountID, rotation.TriggerOnCheckin); rerr != nil {
			m.audit(ctx, "checkout.checkin.rotate", c, false, rerr.Error())
		}
	}
	return c, nil
}

// ForceCheckin ends an active checkout on behalf of an administrator,
// independent of the requester, recording who forced it and why.
func (m *Manager) ForceCheckin(ctx context.Context, checkoutID, actor, reason string) (*Checkout, error) {
	c, err := m.Store.Get(ctx, checkoutID)
	if err != nil {
		return nil, err
	}
	if c.Status.IsTerminal() {
		return nil, fmt.Errorf("checkout: %s already terminal (status %q)", checkoutID, c.Status)
	}

	now := time.Now().UTC()
	c.Status = StatusCheckedIn
	c.CheckedInAt = now
	c.CheckinNotes = reason
	c.ForcedBy = actor
	c.UpdatedAt = now
	if err := m.Store.Update(ctx, c); err != nil {
		return nil, fmt.Errorf("checkout: recording forced checkin: %w", err)
	}
	m.audit(ctx, "checkout.force_checkin", c, true, fmt.Sprintf("forced by %s: %s", actor, reason))
	return c, nil
}

// ReapExpired scans active checkouts and marks any whose window has
// elapsed as expired, triggering rotation the same way a normal
// checkin would (expired credentials shouldn't remain unrotated).
func (m *Manager) ReapExpired(ctx context.Context, limit int) (int, error) {
	active, err := m.Store.ListByStatus(ctx, StatusActive, limit)
	if err != nil {
		return 0, fmt.Errorf("checkout: listing active checkouts: %w", err)
	}
	now := time.Now().UTC()
	expired := 0
	for _, c := range active {
		if !c.IsExpired(now) {
			continue
		}
		c.Status = StatusExpired
		c.CheckedInAt = now
		c.UpdatedAt = now
		if err := m.Store.Update(ctx, c); err != nil {
			continue
		}
		m.audit(ctx, "checkout.expire", c, true, "")
		if m.Rotator != nil {
			if rerr := m.Rotator.Rotate(ctx, c.AccountID, rotation.TriggerOnExpire); rerr != nil {
				m.audit(ctx, "checkout.expire.rotate", c, false, rerr.Error())
			}
		}
		expired++
	}
	return expired, nil
}

func (m *Manager) audit(ctx context.Context, eventType string, c *Checkout, success bool, detail string) {
	if m.AuditLog == nil {
		return
	}
	_, _ = m.AuditLog.Append(ctx, audit.Record{
		EventType: eventType, Action: string(c.Status), UserID: c.Requester,
		Resource: c.AccountID, Success: success, Details: detail,
	}, false)
}
