package seal_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/vaultcore/usp/crypto"
	usperrors "github.com/vaultcore/usp/errors"
	"github.com/vaultcore/usp/seal"
)

// memConfigStore implements seal.ConfigStore in memory for tests.
type memConfigStore struct {
	mu     sync.Mutex
	config *seal.SealConfig
}

func (s *memConfigStore) Load(ctx context.Context) (*seal.SealConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.config == nil {
		return nil, seal.ErrNotInitialized
	}
	clone := *s.config
	return &clone, nil
}

func (s *memConfigStore) Save(ctx context.Context, config *seal.SealConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clone := *config
	s.config = &clone
	return nil
}

func newManager(t *testing.T) *seal.Manager {
	t.Helper()
	kek, err := seal.NewLocalKEKProvider(make([]byte, crypto.KeySize))
	if err != nil {
		t.Fatalf("NewLocalKEKProvider: %v", err)
	}
	m := seal.NewManager(&memConfigStore{}, kek, nil)
	if err := m.Bootstrap(context.Background()); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	return m
}

func TestManagerInitUnsealSeal(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	status := m.Status()
	if status.Initialized || !status.Sealed {
		t.Fatalf("expected uninitialized+sealed status, got %+v", status)
	}

	shares, err := m.Init(ctx, 5, 3)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if len(shares) != 5 {
		t.Fatalf("expected 5 shares, got %d", len(shares))
	}

	if _, err := m.Init(ctx, 5, 3); !errors.Is(err, seal.ErrAlreadyInitialized) {
		t.Fatalf("second Init should fail with ErrAlreadyInitialized, got %v", err)
	}

	for _, s := range shares[:2] {
		status, err = m.Unseal(ctx, "op", s)
		if err != nil {
			t.Fatalf("Unseal: %v", err)
		}
		if !status.Sealed {
			t.Fatalf("expected still sealed after 2/3 shares")
		}
	}

	status, err = m.Unseal(ctx, "op", shares[2])
	if err != nil {
		t.Fatalf("Unseal (final share): %v", err)
	}
	if status.Sealed {
		t.Fatalf("expected unsealed after threshold shares")
	}

	key, err := m.MasterKey()
	if err != nil {
		t.Fatalf("MasterKey: %v", err)
	}
	if len(key) != crypto.KeySize {
		t.Fatalf("expected %d-byte master key, got %d", crypto.KeySize, len(key))
	}

	status = m.Seal()
	if !status.Sealed {
		t.Fatalf("expected sealed after Seal()")
	}

	if _, err := m.MasterKey(); usperrors.GetCode(err) != usperrors.CodeVaultSealed {
		t.Fatalf("MasterKey after Seal(): got code %q, want %q", usperrors.GetCode(err), usperrors.CodeVaultSealed)
	}
}

func TestManagerUnsealRejectsWrongShare(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	if _, err := m.Init(ctx, 3, 2); err != nil {
		t.Fatalf("Init: %v", err)
	}

	bogus := crypto.Share{X: 1, Y: make([]byte, crypto.KeySize)}
	for i := range bogus.Y {
		bogus.Y[i] = 0xAB
	}
	bogus2 := crypto.Share{X: 2, Y: make([]byte, crypto.KeySize)}
	for i := range bogus2.Y {
		bogus2.Y[i] = 0xCD
	}

	if _, err := m.Unseal(ctx, "op", bogus); err != nil {
		t.Fatalf("Unseal (first bogus share, below threshold): %v", err)
	}
	if _, err := m.Unseal(ctx, "op", bogus2); err == nil {
		t.Fatalf("expected verification failure for bogus shares")
	}
}

func TestManagerUnsealBeforeInit(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	_, err := m.Unseal(ctx, "op", crypto.Share{X: 1, Y: make([]byte, crypto.KeySize)})
	if !errors.Is(err, seal.ErrNotInitialized) {
		t.Fatalf("expected ErrNotInitialized, got %v", err)
	}
}

func TestManagerRekeyRequiresUnsealed(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	if _, err := m.Init(ctx, 3, 2); err != nil {
		t.Fatalf("Init: %v", err)
	}
	if _, err := m.Rekey(ctx, 3, 2); !errors.Is(err, seal.ErrNotInitialized) {
		t.Fatalf("Rekey while sealed should fail with ErrNotInitialized, got %v", err)
	}
}

func TestManagerRekeyInvalidatesOldShares(t *testing.T) {
	ctx := context.Background()
	m := newManager(t)

	shares, err := m.Init(ctx, 3, 2)
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	for _, s := range shares[:2] {
		if _, err := m.Unseal(ctx, "op", s); err != nil {
			t.Fatalf("Unseal: %v", err)
		}
	}

	newShares, err := m.Rekey(ctx, 3, 2)
	if err != nil {
		t.Fatalf("Rekey: %v", err)
	}

	status := m.Status()
	if !status.Sealed {
		t.Fatalf("expected sealed immediately after Rekey")
	}

	// Old shares must no longer unseal the node.
	if _, err := m.Unseal(ctx, "op", shares[0]); err == nil {
		if _, err := m.Unseal(ctx, "op", shares[1]); err == nil {
			t.Fatalf("old shares should not reconstruct the post-rekey master key")
		}
	}

	for _, s := range newShares[:2] {
		if _, err := m.Unseal(ctx, "op", s); err != nil {
			t.Fatalf("Unseal with new shares: %v", err)
		}
	}
	if m.Status().Sealed {
		t.Fatalf("expected unsealed after submitting new threshold shares")
	}
}
