// Package rotation implements the credential-rotation algorithm of
// spec §4.7: generate a new credential, rotate it on the target system
// through a pam/connector.Connector, verify the new credential, and
// revert on verification failure.
package rotation

import (
	"context"
	"fmt"
	"time"

	"github.com/vaultcore/usp/audit"
	"github.com/vaultcore/usp/pam/connector"
	"github.com/vaultcore/usp/pam/safe"
)

// Trigger identifies why a rotation ran, recorded on the audit entry.
type Trigger string

const (
	TriggerScheduled Trigger = "scheduled"
	TriggerManual    Trigger = "manual"
	TriggerOnCheckin Trigger = "on_checkin"
	TriggerOnExpire  Trigger = "on_expiration"
)

// SecretStore is the subset of encryption/transit functionality rotation
// needs to persist an account's credential at rest. pam/safe stores only
// a TransitKeyName; the caller's SecretStore implementation is expected
// to encrypt under that key (via the transit package) the way
// PrivilegedAccount.TransitKeyName documents.
type SecretStore interface {
	Put(ctx context.Context, accountID, transitKeyName, plaintext string) error
	Get(ctx context.Context, accountID string) (string, error)
}

// Rotator drives the rotation algorithm for one account.
type Rotator struct {
	Accounts safe.AccountStore
	Secrets  SecretStore
	Registry *connector.Registry
	AuditLog *audit.Engine
}

// NewRotator builds a Rotator from its dependencies. AuditLog may be nil
// in tests that don't assert on audit output.
func NewRotator(accounts safe.AccountStore, secrets SecretStore, registry *connector.Registry, auditLog *audit.Engine) *Rotator {
	return &Rotator{Accounts: accounts, Secrets: secrets, Registry: registry, AuditLog: auditLog}
}

// Rotate runs the algorithm of spec §4.7 against accountID: generate,
// rotate on the target, verify, persist on success, revert on failure.
func (r *Rotator) Rotate(ctx context.Context, accountID string, trigger Trigger) error {
	account, err := r.Accounts.GetAccount(ctx, accountID)
	if err != nil {
		return fmt.Errorf("rotation: loading account: %w", err)
	}
	if account.Status == safe.AccountStatusDisabled {
		return fmt.Errorf("rotation: account %s is disabled", accountID)
	}

	conn, err := r.Registry.For(account.Platform)
	if err != nil {
		return fmt.Errorf("rotation: %w", err)
	}

	current, err := r.Secrets.Get(ctx, account.ID)
	if err != nil {
		return fmt.Errorf("rotation: loading current credential: %w", err)
	}

	target := connector.TargetFor(account)

	next, err := generateNext(ctx, conn, target)
	if err != nil {
		return fmt.Errorf("rotation: generating new credential: %w", err)
	}

	account.Status = safe.AccountStatusRotating
	now := time.Now().UTC()
	account.UpdatedAt = now
	if err := r.Accounts.UpdateAccount(ctx, account); err != nil {
		return fmt.Errorf("rotation: marking account rotating: %w", err)
	}

	if err := conn.Rotate(ctx, target, current, next); err != nil {
		return r.fail(ctx, account, trigger, fmt.Errorf("rotation: connector rotate: %w", err))
	}

	if verr := conn.Verify(ctx, target, next); verr != nil {
		return r.revert(ctx, conn, target, account, trigger, current, next, verr)
	}

	if err := r.Secrets.Put(ctx, account.ID, account.TransitKeyName, next); err != nil {
		return r.revert(ctx, conn, target, account, trigger, current, next, err)
	}

	account.Status = safe.AccountStatusActive
	account.LastRotatedAt = now
	account.UpdatedAt = time.Now().UTC()
	if err := r.Accounts.UpdateAccount(ctx, account); err != nil {
		return fmt.Errorf("rotation: recording successful rotation: %w", err)
	}

	r.audit(ctx, account.ID, trigger, true, "")
	return nil
}

// awsIAMGenerator is satisfied by connector.AWSIAMConnector. IAM mints
// key material server-side against a known user, so Generate alone
// can't produce it; generateNext type-asserts for this richer
// interface instead of widening Connector for one platform.
type awsIAMGenerator interface {
	GenerateForUser(ctx context.Context, username string) (string, error)
}

func generateNext(ctx context.Context, conn connector.Connector, target connector.Target) (string, error) {
	if g, ok := conn.(awsIAMGenerator); ok {
		return g.GenerateForUser(ctx, target.Username)
	}
	return conn.Generate(ctx)
}

// revert attempts to restore current as the account's active credential
// after next failed verification or persistence. If the revert's own
// rotate call also fails, the account is left in rotationFailed and an
// alert-class audit entry is emitted, per spec §4.7.
func (r *Rotator) revert(ctx context.Context, conn connector.Connector, target connector.Target, account *safe.PrivilegedAccount, trigger Trigger, current, next string, cause error) error {
	if rerr := conn.Rotate(ctx, target, next, current); rerr != nil {
		account.Status = safe.AccountStatusRotationFailed
		account.UpdatedAt = time.Now().UTC()
		_ = r.Accounts.UpdateAccount(ctx, account)
		r.audit(ctx, account.ID, trigger, false, fmt.Sprintf("rotation and revert both failed: %v; revert error: %v", cause, rerr))
		return fmt.Errorf("rotation: failed and revert also failed: %w (revert: %v)", cause, rerr)
	}

	account.Status = safe.AccountStatusActive
	account.UpdatedAt = time.Now().UTC()
	_ = r.Accounts.UpdateAccount(ctx, account)
	r.audit(ctx, account.ID, trigger, false, fmt.Sprintf("rotation failed, reverted to prior credential: %v", cause))
	return fmt.Errorf("rotation: failed, reverted to prior credential: %w", cause)
}

// fail marks the account rotationFailed when the connector's Rotate
// call itself errors before a new credential was ever live, so there is
// nothing to revert.
func (r *Rotator) fail(ctx context.Context, account *safe.PrivilegedAccount, trigger Trigger, cause error) error {
	account.Status = safe.AccountStatusRotationFailed
	account.UpdatedAt = time.Now().UTC()
	_ = r.Accounts.UpdateAccount(ctx, account)
	r.audit(ctx, account.ID, trigger, false, cause.Error())
	return cause
}

func (r *Rotator) audit(ctx context.Context, accountID string, trigger Trigger, success bool, detail string) {
	if r.AuditLog == nil {
		return
	}
	_, _ = r.AuditLog.Append(ctx, audit.Record{
		EventType: "pam.rotation", Action: string(trigger),
		Resource: accountID, Success: success, Details: detail,
	}, false)
}

// DueAccounts returns every account whose rotation interval has
// elapsed, for the scheduler's periodic sweep.
func (r *Rotator) DueAccounts(ctx context.Context, limit int) ([]*safe.PrivilegedAccount, error) {
	return r.Accounts.ListAccountsDueForRotation(ctx, limit)
}

// RotateDue rotates every account DueAccounts returns, collecting
// per-account errors rather than aborting the sweep on the first
// failure.
func (r *Rotator) RotateDue(ctx context.Context, limit int) map[string]error {
	accounts, err := r.DueAccounts(ctx, limit)
	if err != nil {
		return map[string]error{"": err}
	}
	results := make(map[string]error, len(accounts))
	for _, a := range accounts {
		results[a.ID] = r.Rotate(ctx, a.ID, TriggerScheduled)
	}
	return results
}
