// Package seal implements the two-layer master-key scheme (C2) that
// bootstraps every other cryptographic operation in USP: a Shamir secret
// sharing quorum reconstructs the master key, which is itself verified
// against a KEK-wrapped blob persisted in SealConfig.
package seal

import (
	"context"
	"time"
)

// State is the seal manager's lifecycle state machine: spec §4.1.
type State string

const (
	StateUninitialized State = "uninitialized"
	StateSealed         State = "sealed"
	StateUnsealed       State = "unsealed"
)

// SealConfig is the singleton row persisted across unseal cycles. It is
// created once at Init and replaced wholesale (with an incremented
// Version) by Rekey; it is never otherwise mutated.
type SealConfig struct {
	Version            int
	SecretShares        int
	SecretThreshold     int
	EncryptedMasterKey  []byte // KEK-wrapped master key
	InitializedAt       time.Time
}

// Validate enforces spec §3's SealConfig invariant.
func (c *SealConfig) Validate() error {
	if c.SecretThreshold < 1 || c.SecretThreshold > c.SecretShares || c.SecretShares > 255 {
		return ErrInvalidParameters
	}
	return nil
}

// Status is the externally-visible, key-material-free snapshot of seal
// state returned by Manager.Status.
type Status struct {
	Sealed      bool
	Initialized bool
	Progress    int
	Threshold   int
	Shares      int
}

// ConfigStore persists the single SealConfig row (and its rekey history)
// to durable storage. A DynamoDB-backed implementation is provided in
// dynamodb.go, following the teacher's single-table Store idiom.
type ConfigStore interface {
	// Load returns the current (highest-version) SealConfig, or
	// ErrNotInitialized if none exists yet.
	Load(ctx context.Context) (*SealConfig, error)

	// Save persists config, whether the first Init row or a Rekey's
	// new version. Implementations must reject a second Init (same
	// version already present).
	Save(ctx context.Context, config *SealConfig) error
}

// KEKProvider supplies the key-encryption-key that wraps the master key
// at rest. The default implementation reads a 32-byte operator/env
// secret directly; an HSM-backed implementation may instead call out to
// a provider (e.g. AWS KMS) to wrap/unwrap without ever exposing the KEK
// bytes to the process. This is the Non-goal carve-out from spec §1:
// "an HSM, if configured, is called through a provider interface".
type KEKProvider interface {
	// Wrap encrypts plaintext (the master key) under the KEK.
	Wrap(ctx context.Context, plaintext []byte) ([]byte, error)
	// Unwrap decrypts a blob produced by Wrap.
	Unwrap(ctx context.Context, wrapped []byte) ([]byte, error)
}
