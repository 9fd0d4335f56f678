package jit

import (
	"context"
	"fmt"
	"time"

	"github.com/vaultcore/usp/audit"
)

const DefaultMaxDuration = time.Hour

// Manager drives JIT grant requests, approvals, and expiry.
type Manager struct {
	Store    Store
	AuditLog *audit.Engine
}

func NewManager(store Store, auditLog *audit.Engine) *Manager {
	return &Manager{Store: store, AuditLog: auditLog}
}

// Request creates a Grant per spec §4.8's request operation. If
// templateID names a Template with RequiresApproval set, the grant
// starts pending and an Approval is created; otherwise it activates
// immediately (an "immediate policy pass", in spec's words - the
// policy check itself is the authorization layer's concern, not
// Manager's; Manager activates whenever no approval gate applies).
func (m *Manager) Request(ctx context.Context, resourceType, resourceID, requester, accessLevel, justification, templateID string, durationMinutes int) (*Grant, error) {
	duration := time.Duration(durationMinutes) * time.Minute
	if duration <= 0 {
		duration = DefaultMaxDuration
	}

	var tmpl *Template
	if templateID != "" {
		var err error
		tmpl, err = m.Store.GetTemplate(ctx, templateID)
		if err != nil {
			return nil, fmt.Errorf("jit: loading template: %w", err)
		}
		if tmpl.MaxDuration > 0 && duration > tmpl.MaxDuration {
			duration = tmpl.MaxDuration
		}
		if accessLevel == "" {
			accessLevel = tmpl.DefaultAccessLevel
		}
	}

	now := time.Now().UTC()
	g := &Grant{
		ID: NewID(), ResourceType: resourceType, ResourceID: resourceID, Requester: requester,
		AccessLevel: accessLevel, Justification: justification, TemplateID: templateID,
		Status: StatusPending, RequestedAt: now, UpdatedAt: now,
	}
	g.ExpiresAt = now.Add(duration) // tentative; reset to GrantedAt+duration on activation

	if tmpl == nil || !tmpl.RequiresApproval {
		m.activate(g, now, duration)
		if err := m.Store.CreateGrant(ctx, g); err != nil {
			return nil, fmt.Errorf("jit: creating grant: %w", err)
		}
		m.audit(ctx, "pam.jit.request", g, true, "auto-activated, no approval required")
		return g, nil
	}

	if err := m.Store.CreateGrant(ctx, g); err != nil {
		return nil, fmt.Errorf("jit: creating grant: %w", err)
	}
	// Approval.ID mirrors the grant's ID: a Grant has at most one
	// Approval (spec §4.8 describes JIT approval as 1:1 per request),
	// so the grant ID alone is a sufficient lookup key.
	approval := &Approval{
		ID: g.ID, GrantID: g.ID, Approvers: tmpl.Approvers,
		CreatedAt: now, UpdatedAt: now,
	}
	if err := m.Store.CreateApproval(ctx, approval); err != nil {
		return nil, fmt.Errorf("jit: creating approval: %w", err)
	}
	m.audit(ctx, "pam.jit.request", g, true, "pending approval")
	return g, nil
}

func (m *Manager) activate(g *Grant, now time.Time, duration time.Duration) {
	g.Status = StatusActive
	g.GrantedAt = now
	g.ExpiresAt = now.Add(duration)
	g.UpdatedAt = now
}

// Decide records an approve/deny decision on grantID's pending
// approval. approvalID is looked up implicitly from the grant.
func (m *Manager) Decide(ctx context.Context, grantID, approver string, approved bool, reason string) (*Grant, error) {
	g, err := m.Store.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if g.Status != StatusPending {
		return nil, fmt.Errorf("jit: grant %s is not pending approval (status %q)", grantID, g.Status)
	}

	approvals, err := m.pendingApprovalFor(ctx, grantID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	approvals.Approver = approver
	approvals.Approved = approved
	approvals.Decided = true
	approvals.Reason = reason
	approvals.UpdatedAt = now
	if err := m.Store.UpdateApproval(ctx, approvals); err != nil {
		return nil, fmt.Errorf("jit: recording decision: %w", err)
	}

	if approved {
		duration := time.Duration(0)
		if !g.ExpiresAt.IsZero() {
			duration = g.ExpiresAt.Sub(g.RequestedAt)
		}
		if duration <= 0 {
			duration = DefaultMaxDuration
		}
		m.activate(g, now, duration)
		m.audit(ctx, "pam.jit.approve", g, true, "")
	} else {
		g.Status = StatusDenied
		g.UpdatedAt = now
		m.audit(ctx, "pam.jit.deny", g, true, reason)
	}
	if err := m.Store.UpdateGrant(ctx, g); err != nil {
		return nil, fmt.Errorf("jit: updating grant: %w", err)
	}
	return g, nil
}

func (m *Manager) pendingApprovalFor(ctx context.Context, grantID string) (*Approval, error) {
	return m.Store.GetApproval(ctx, grantID)
}

// Revoke explicitly ends a non-terminal grant, per spec §4.8's revoke
// operation.
func (m *Manager) Revoke(ctx context.Context, grantID, revokedBy, reason string) (*Grant, error) {
	g, err := m.Store.GetGrant(ctx, grantID)
	if err != nil {
		return nil, err
	}
	if g.Status.IsTerminal() {
		return nil, fmt.Errorf("jit: grant %s already terminal (status %q)", grantID, g.Status)
	}
	now := time.Now().UTC()
	g.Status = StatusRevoked
	g.RevokedAt = now
	g.RevokedBy = revokedBy
	g.RevokeReason = reason
	g.UpdatedAt = now
	if err := m.Store.UpdateGrant(ctx, g); err != nil {
		return nil, fmt.Errorf("jit: recording revocation: %w", err)
	}
	m.audit(ctx, "pam.jit.revoke", g, true, fmt.Sprintf("revoked by %s: %s", revokedBy, reason))
	return g, nil
}

// IsEntitled reports whether requester currently holds an active,
// unexpired grant for the given resource at or above accessLevel. This
// is the capability the authorization layer honors per spec §4.8;
// callers should still treat ExpiresAt as authoritative at read time
// rather than relying solely on the background sweep.
func (g *Grant) IsEntitled(requester, resourceType, resourceID string, now time.Time) bool {
	return g.Status == StatusActive && g.Requester == requester &&
		g.ResourceType == resourceType && g.ResourceID == resourceID &&
		(g.ExpiresAt.IsZero() || now.Before(g.ExpiresAt))
}

// Sweep transitions every active grant whose window has elapsed to
// expired, per spec §4.8's background sweep (callers run this at least
// once a minute; read-time checks re-validate ExpiresAt independently).
func (m *Manager) Sweep(ctx context.Context, limit int) (int, error) {
	active, err := m.Store.ListGrantsByStatus(ctx, StatusActive, limit)
	if err != nil {
		return 0, fmt.Errorf("jit: listing active grants: %w", err)
	}
	now := time.Now().UTC()
	expired := 0
	for _, g := range active {
		if !g.IsExpired(now) {
			continue
		}
		g.Status = StatusExpired
		g.UpdatedAt = now
		if err := m.Store.UpdateGrant(ctx, g); err != nil {
			continue
		}
		m.audit(ctx, "pam.jit.expire", g, true, "")
		expired++
	}
	return expired, nil
}

func (m *Manager) audit(ctx context.Context, eventType string, g *Grant, success bool, detail string) {
	if m.AuditLog == nil {
		return
	}
	_, _ = m.AuditLog.Append(ctx, audit.Record{
		EventType: eventType, Action: string(g.Status), UserID: g.Requester,
		Resource: g.ResourceType + ":" + g.ResourceID, Success: success, Details: detail,
	}, false)
}
