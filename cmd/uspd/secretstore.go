package main

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vaultcore/usp/crypto"
	"github.com/vaultcore/usp/transit"
)

// transitSecretStore implements rotation.SecretStore over a transit.Engine,
// the way PrivilegedAccount.TransitKeyName documents: every account's
// live credential is envelope-encrypted under its own named transit key
// rather than a single shared one, so rotating or revoking one account's
// key never touches another's ciphertext. The ciphertext itself is kept
// in an in-memory index rather than a dedicated table: transit already
// owns the key material's durability (via its Store), and rotation only
// ever needs the most recent ciphertext for the account it is actively
// rotating, not a historical ledger.
type transitSecretStore struct {
	transit *transit.Engine

	mu      sync.Mutex
	current map[string]storedSecret
}

type storedSecret struct {
	ciphertext string
	keyName    string
}

func newTransitSecretStore(t *transit.Engine) *transitSecretStore {
	return &transitSecretStore{transit: t, current: make(map[string]storedSecret)}
}

func (s *transitSecretStore) Put(ctx context.Context, accountID, transitKeyName, plaintext string) error {
	if _, err := s.transit.Create(ctx, transitKeyName, crypto.KeyTypeAES256GCM, false, false); err != nil && !errors.Is(err, transit.ErrKeyExists) {
		return fmt.Errorf("secretstore: creating transit key %s: %w", transitKeyName, err)
	}
	ciphertext, err := s.transit.Encrypt(ctx, transitKeyName, []byte(plaintext), []byte(accountID))
	if err != nil {
		return fmt.Errorf("secretstore: encrypting credential for %s: %w", accountID, err)
	}

	s.mu.Lock()
	s.current[accountID] = storedSecret{ciphertext: ciphertext, keyName: transitKeyName}
	s.mu.Unlock()
	return nil
}

func (s *transitSecretStore) Get(ctx context.Context, accountID string) (string, error) {
	s.mu.Lock()
	secret, ok := s.current[accountID]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("secretstore: no credential stored for account %s", accountID)
	}

	plaintext, err := s.transit.Decrypt(ctx, secret.keyName, secret.ciphertext, []byte(accountID))
	if err != nil {
		return "", fmt.Errorf("secretstore: decrypting credential for %s: %w", accountID, err)
	}
	return string(plaintext), nil
}
