package seal

import (
	"context"
	"crypto/subtle"
	"sync"
	"time"

	"github.com/awnumar/memguard"

	"github.com/vaultcore/usp/crypto"
	"github.com/vaultcore/usp/ratelimit"
)

// verificationInfo is the HKDF info string used to derive the key that
// wraps the verification plaintext stored alongside the master key. It
// exists so that Unseal can cheaply confirm a reconstructed key is the
// right one, rather than handing a wrong key to downstream packages.
const verificationInfo = "usp-seal-verification-v1"

var verificationPlaintext = []byte("unsealed")

// Manager owns the seal state machine and the only in-process copy of
// the master key. The key lives in a memguard.LockedBuffer for as long
// as the manager is unsealed: mlock'd against swap, guard-paged against
// overflow, and wiped on Seal or process exit.
type Manager struct {
	store    ConfigStore
	kek      KEKProvider
	limiter  ratelimit.RateLimiter

	mu       sync.Mutex
	state    State
	config   *SealConfig
	key      *memguard.LockedBuffer
	unseal   map[byte]crypto.Share // shares submitted so far this attempt, by x-coordinate
}

// NewManager constructs a Manager backed by store for SealConfig
// persistence and kek for master-key wrapping. limiter throttles invalid
// unseal attempts per spec's brute-force protection requirement; pass
// nil to disable (tests only - production must configure one).
func NewManager(store ConfigStore, kek KEKProvider, limiter ratelimit.RateLimiter) *Manager {
	return &Manager{
		store:   store,
		kek:     kek,
		limiter: limiter,
		state:   StateUninitialized,
		unseal:  make(map[byte]crypto.Share),
	}
}

// Bootstrap loads any existing SealConfig at startup, moving the manager
// to Sealed if one is found or leaving it Uninitialized otherwise. It
// must be called once before any other Manager method.
func (m *Manager) Bootstrap(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cfg, err := m.store.Load(ctx)
	if err != nil {
		if err == ErrNotInitialized {
			m.state = StateUninitialized
			return nil
		}
		return err
	}
	m.config = cfg
	m.state = StateSealed
	return nil
}

// Init generates a new master key, splits it into n shares of which t
// reconstruct it, wraps the key under the KEK, and persists the result.
// It returns the raw shares; the caller (API layer) is responsible for
// displaying them to the operator exactly once and never logging them.
func (m *Manager) Init(ctx context.Context, n, t int) ([]crypto.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateUninitialized {
		return nil, ErrAlreadyInitialized
	}

	masterKey, err := crypto.RandomBytes(crypto.KeySize)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(masterKey)

	shares, err := crypto.Split(masterKey, n, t)
	if err != nil {
		return nil, err
	}

	verifyKey, err := crypto.DeriveKey(masterKey, verificationInfo, crypto.KeySize)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext, err := crypto.Encrypt(verifyKey, verificationPlaintext, nil)
	if err != nil {
		return nil, err
	}
	verification := append(nonce, ciphertext...)

	plaintext := append(append([]byte{}, masterKey...), verification...)
	wrapped, err := m.kek.Wrap(ctx, plaintext)
	if err != nil {
		return nil, err
	}

	cfg := &SealConfig{
		Version:            1,
		SecretShares:       n,
		SecretThreshold:    t,
		EncryptedMasterKey: wrapped,
		InitializedAt:      time.Now().UTC(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, cfg); err != nil {
		return nil, err
	}

	m.config = cfg
	m.state = StateSealed
	return shares, nil
}

// Unseal submits one share toward the current generation's threshold.
// Once enough distinct shares have been submitted, the master key is
// reconstructed, verified, and locked into memory; the manager
// transitions to Unsealed and the accumulated shares are discarded.
func (m *Manager) Unseal(ctx context.Context, operatorKey string, share crypto.Share) (Status, error) {
	if m.limiter != nil {
		allowed, _, err := m.limiter.Allow(ctx, "seal-unseal:"+operatorKey)
		if err != nil {
			return Status{}, err
		}
		if !allowed {
			return Status{}, ErrRateLimited
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state == StateUninitialized {
		return Status{}, ErrNotInitialized
	}
	if m.state == StateUnsealed {
		return Status{}, ErrAlreadyUnsealed
	}
	if share.X == 0 || len(share.Y) != crypto.KeySize {
		return Status{}, ErrInvalidShare
	}

	m.unseal[share.X] = share
	if len(m.unseal) < m.config.SecretThreshold {
		return m.statusLocked(), nil
	}

	shares := make([]crypto.Share, 0, len(m.unseal))
	for _, s := range m.unseal {
		shares = append(shares, s)
	}
	reconstructed, err := crypto.Combine(shares)
	if err != nil {
		m.clearAttempt()
		return Status{}, ErrInvalidShare
	}
	defer memguard.WipeBytes(reconstructed)

	plaintext, err := m.kek.Unwrap(ctx, m.config.EncryptedMasterKey)
	if err != nil {
		m.clearAttempt()
		return Status{}, err
	}
	defer memguard.WipeBytes(plaintext)
	if len(plaintext) < crypto.KeySize {
		m.clearAttempt()
		return Status{}, ErrVerificationFailed
	}
	masterKey := plaintext[:crypto.KeySize]
	verification := plaintext[crypto.KeySize:]

	if !bytesEqual(masterKey, reconstructed) {
		m.clearAttempt()
		return Status{}, ErrVerificationFailed
	}
	if err := m.verify(masterKey, verification); err != nil {
		m.clearAttempt()
		return Status{}, ErrVerificationFailed
	}

	locked := memguard.NewBufferFromBytes(masterKey)
	m.key = locked
	m.state = StateUnsealed
	m.unseal = make(map[byte]crypto.Share)
	return m.statusLocked(), nil
}

func (m *Manager) verify(masterKey, verification []byte) error {
	if len(verification) < crypto.NonceSize {
		return ErrVerificationFailed
	}
	verifyKey, err := crypto.DeriveKey(masterKey, verificationInfo, crypto.KeySize)
	if err != nil {
		return err
	}
	nonce := verification[:crypto.NonceSize]
	ciphertext := verification[crypto.NonceSize:]
	plaintext, err := crypto.Decrypt(verifyKey, nonce, ciphertext, nil)
	if err != nil {
		return ErrVerificationFailed
	}
	if !bytesEqual(plaintext, verificationPlaintext) {
		return ErrVerificationFailed
	}
	return nil
}

// clearAttempt discards any partially-submitted shares after a failed
// reconstruction, so a caller who sent one bad share doesn't poison
// otherwise-good shares already accumulated in m.unseal.
func (m *Manager) clearAttempt() {
	m.unseal = make(map[byte]crypto.Share)
}

// Seal discards the in-memory master key, moving the manager back to
// Sealed. It never touches SealConfig.
func (m *Manager) Seal() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.key != nil {
		m.key.Destroy()
		m.key = nil
	}
	if m.state == StateUnsealed {
		m.state = StateSealed
	}
	return m.statusLocked()
}

// Status reports the current seal state without exposing key material.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.statusLocked()
}

func (m *Manager) statusLocked() Status {
	s := Status{
		Sealed:      m.state != StateUnsealed,
		Initialized: m.state != StateUninitialized,
	}
	if m.config != nil {
		s.Threshold = m.config.SecretThreshold
		s.Shares = m.config.SecretShares
	}
	if m.state == StateSealed {
		s.Progress = len(m.unseal)
	}
	return s
}

// Rekey generates a brand-new master key and share set, re-encrypting it
// under the KEK as SealConfig version+1, and transitions back to Sealed
// so the new shares must be submitted before the node is usable again.
// Per spec §4.1, Rekey requires the manager to currently be Unsealed
// (the existing master key must be live to re-derive anything depending
// on it before rotation).
func (m *Manager) Rekey(ctx context.Context, newShares, newThreshold int) ([]crypto.Share, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateUnsealed {
		return nil, ErrNotInitialized
	}

	masterKey, err := crypto.RandomBytes(crypto.KeySize)
	if err != nil {
		return nil, err
	}
	defer memguard.WipeBytes(masterKey)

	shares, err := crypto.Split(masterKey, newShares, newThreshold)
	if err != nil {
		return nil, err
	}

	verifyKey, err := crypto.DeriveKey(masterKey, verificationInfo, crypto.KeySize)
	if err != nil {
		return nil, err
	}
	nonce, ciphertext, err := crypto.Encrypt(verifyKey, verificationPlaintext, nil)
	if err != nil {
		return nil, err
	}
	verification := append(nonce, ciphertext...)
	plaintext := append(append([]byte{}, masterKey...), verification...)
	wrapped, err := m.kek.Wrap(ctx, plaintext)
	if err != nil {
		return nil, err
	}

	cfg := &SealConfig{
		Version:            m.config.Version + 1,
		SecretShares:       newShares,
		SecretThreshold:    newThreshold,
		EncryptedMasterKey: wrapped,
		InitializedAt:      time.Now().UTC(),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := m.store.Save(ctx, cfg); err != nil {
		return nil, err
	}

	if m.key != nil {
		m.key.Destroy()
		m.key = nil
	}
	m.config = cfg
	m.state = StateSealed
	m.unseal = make(map[byte]crypto.Share)
	return shares, nil
}

// MasterKey returns the live master key bytes for use by packages built
// on top of the seal layer (encryption, kv, transit, audit). Per spec
// §4.1, any invocation while the vault is sealed fails with ErrSealed
// (VaultSealed) rather than returning data.
func (m *Manager) MasterKey() ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateUnsealed || m.key == nil {
		return nil, ErrSealed
	}
	return m.key.Bytes(), nil
}

// bytesEqual performs a constant-time comparison; used for master-key and
// verification-plaintext checks so unseal timing never leaks how many
// leading bytes of a guess were correct.
func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare(a, b) == 1
}
