package mfa

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"errors"
	"fmt"
)

// ErrBackupCodeConsumed is returned when a backup code was already used.
var ErrBackupCodeConsumed = errors.New("mfa: backup code already consumed")

// BackupCodeStore persists each user's remaining, hashed backup codes.
// Codes are stored hashed (SHA-256) and removed on successful use, per
// spec §4.6's "backup code (single use, constant-time compared)".
type BackupCodeStore interface {
	// RemainingHashes returns userID's unconsumed backup code hashes.
	RemainingHashes(ctx context.Context, userID string) ([][32]byte, error)
	// Consume removes hash from userID's remaining set. Returns
	// ErrBackupCodeConsumed if hash is not present.
	Consume(ctx context.Context, userID string, hash [32]byte) error
}

// HashBackupCode returns the stored form of a plaintext backup code.
func HashBackupCode(code string) [32]byte {
	return sha256.Sum256([]byte(code))
}

// BackupCodeVerifier implements Verifier using pre-generated, single-use
// recovery codes. Challenge is a no-op (codes are generated at
// enrollment, not per-challenge); challengeID is ignored by Verify.
type BackupCodeVerifier struct {
	store BackupCodeStore
}

// NewBackupCodeVerifier builds a BackupCodeVerifier backed by store.
func NewBackupCodeVerifier(store BackupCodeStore) *BackupCodeVerifier {
	return &BackupCodeVerifier{store: store}
}

// Challenge returns a stateless challenge; the user supplies a backup
// code directly to Verify without a prior round trip.
func (v *BackupCodeVerifier) Challenge(ctx context.Context, userID string) (*MFAChallenge, error) {
	return &MFAChallenge{Method: MethodBackupCode}, nil
}

// Verify checks code against userID's remaining backup codes using a
// constant-time comparison per hash, consuming it on match.
func (v *BackupCodeVerifier) Verify(ctx context.Context, userID string, code string) (bool, error) {
	hash := HashBackupCode(code)
	hashes, err := v.store.RemainingHashes(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("mfa: loading backup codes: %w", err)
	}

	matched := false
	for _, candidate := range hashes {
		if subtle.ConstantTimeCompare(hash[:], candidate[:]) == 1 {
			matched = true
		}
	}
	if !matched {
		return false, nil
	}
	if err := v.store.Consume(ctx, userID, hash); err != nil {
		if errors.Is(err, ErrBackupCodeConsumed) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}
