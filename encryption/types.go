// Package encryption implements the envelope encryption service (C3):
// encrypt/decrypt/rewrap/rotate/generate-data-key operations built
// directly on the unsealed master key, producing the self-describing
// ciphertext envelope spec §6 defines:
// "vault:v{keyVersion}:{nonce}:{tag}:{ciphertext}".
package encryption

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vaultcore/usp/crypto"
	sentinelerrors "github.com/vaultcore/usp/errors"
)

// deriveInfo scopes the per-request encryption key away from every other
// use of the master key (seal verification, audit signing, etc.) via
// HKDF, per spec §5's "single master key, purpose-scoped subkeys" design.
// The context name and key version are both folded into the info string,
// so rotate(name) derives a wholly independent subkey for the new
// version without touching any ciphertext sealed under an older one.
const deriveInfo = "usp-encryption-v1"

// Envelope is the parsed form of a "vault:v{n}:{nonce}:{tag}:{ciphertext}"
// string, per spec §4.2/§6: nonce, tag, and ciphertext are encoded as
// separate fields rather than one GCM-sealed blob, so the wire format is
// unambiguous about where the authentication tag lives. Version is the
// context's key version at encryption time, not a wire-format tag.
type Envelope struct {
	Version    int
	Nonce      []byte
	Tag        []byte
	Ciphertext []byte // excludes the tag
}

// String renders the envelope back to its canonical wire form.
func (e Envelope) String() string {
	return fmt.Sprintf("vault:v%d:%s:%s:%s",
		e.Version,
		base64.RawURLEncoding.EncodeToString(e.Nonce),
		base64.RawURLEncoding.EncodeToString(e.Tag),
		base64.RawURLEncoding.EncodeToString(e.Ciphertext),
	)
}

// ParseEnvelope parses a ciphertext string produced by String.
func ParseEnvelope(s string) (Envelope, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 5 || parts[0] != "vault" {
		return Envelope{}, fmt.Errorf("encryption: malformed envelope")
	}
	if !strings.HasPrefix(parts[1], "v") {
		return Envelope{}, fmt.Errorf("encryption: malformed envelope version")
	}
	version, err := strconv.Atoi(parts[1][1:])
	if err != nil {
		return Envelope{}, fmt.Errorf("encryption: malformed envelope version: %w", err)
	}
	nonce, err := base64.RawURLEncoding.DecodeString(parts[2])
	if err != nil {
		return Envelope{}, fmt.Errorf("encryption: malformed nonce: %w", err)
	}
	tag, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return Envelope{}, fmt.Errorf("encryption: malformed tag: %w", err)
	}
	ciphertext, err := base64.RawURLEncoding.DecodeString(parts[4])
	if err != nil {
		return Envelope{}, fmt.Errorf("encryption: malformed ciphertext: %w", err)
	}
	return Envelope{Version: version, Nonce: nonce, Tag: tag, Ciphertext: ciphertext}, nil
}

// splitTag separates a GCM Seal output's trailing tag from its
// ciphertext, matching crypto.TagSize.
func splitTag(sealed []byte) (ciphertext, tag []byte) {
	n := len(sealed) - crypto.TagSize
	return sealed[:n], sealed[n:]
}

// MasterKeySource abstracts retrieval of the live, purpose-derivable
// master key from the seal layer, so this package never imports seal
// directly and cannot accidentally bypass its Sealed/Unsealed gating.
// It returns VaultSealed (per spec §4.1) instead of data when sealed.
type MasterKeySource interface {
	MasterKey() ([]byte, error)
}

// Service performs envelope encryption for arbitrary named "contexts"
// (e.g. a KV secret path, a PAM account credential); each context gets
// its own derived key, versioned independently via KeyStore, so
// compromising one derived key never exposes ciphertext encrypted under
// another context or an earlier/later version of the same one.
type Service struct {
	keys  MasterKeySource
	store KeyStore
}

// NewService builds an encryption Service backed by keys and a KeyStore
// tracking each context's rotation state.
func NewService(keys MasterKeySource, store KeyStore) *Service {
	return &Service{keys: keys, store: store}
}

func (s *Service) deriveKey(ctxName string, version int) ([]byte, error) {
	master, err := s.keys.MasterKey()
	if err != nil {
		return nil, err
	}
	info := fmt.Sprintf("%s:%s:%d", deriveInfo, ctxName, version)
	return crypto.DeriveKey(master, info, crypto.KeySize)
}

// getOrCreateMeta fetches ctxName's key metadata, lazily creating it at
// version 1 the first time a context is ever encrypted under, per spec
// §4.3's "dedicated key, created lazily" convention. A concurrent first
// write races safely: the loser's CreateKeyMeta fails AlreadyExists and
// falls back to GetKeyMeta.
func (s *Service) getOrCreateMeta(ctx context.Context, ctxName string) (*KeyMeta, error) {
	meta, err := s.store.GetKeyMeta(ctx, ctxName)
	if err == nil {
		return meta, nil
	}
	if sentinelerrors.GetCode(err) != sentinelerrors.CodeNotFound {
		return nil, err
	}
	meta = &KeyMeta{Name: ctxName, LatestVersion: 1, MinDecryptionVersion: 1, CreatedAt: time.Now().UTC()}
	if createErr := s.store.CreateKeyMeta(ctx, meta); createErr != nil {
		if sentinelerrors.GetCode(createErr) == sentinelerrors.CodeAlreadyExists {
			return s.store.GetKeyMeta(ctx, ctxName)
		}
		return nil, createErr
	}
	return meta, nil
}

// Encrypt produces a versioned envelope for plaintext scoped to ctxName
// (e.g. "kv:secret/path" or "audit:details"), with associated data aad
// bound into the GCM tag so envelopes cannot be replayed under a
// different context. The envelope's version is ctxName's current
// LatestVersion; see Rotate.
func (s *Service) Encrypt(ctx context.Context, ctxName string, plaintext, aad []byte) (string, error) {
	meta, err := s.getOrCreateMeta(ctx, ctxName)
	if err != nil {
		return "", err
	}
	return s.encryptAt(ctxName, meta.LatestVersion, plaintext, aad)
}

func (s *Service) encryptAt(ctxName string, version int, plaintext, aad []byte) (string, error) {
	key, err := s.deriveKey(ctxName, version)
	if err != nil {
		return "", err
	}
	nonce, sealed, err := crypto.Encrypt(key, plaintext, aad)
	if err != nil {
		return "", err
	}
	ciphertext, tag := splitTag(sealed)
	env := Envelope{Version: version, Nonce: nonce, Tag: tag, Ciphertext: ciphertext}
	return env.String(), nil
}

// Decrypt reverses Encrypt. ctxName and aad must match what Encrypt was
// given, or decryption fails authentication. Per spec §4.2, an envelope
// whose version has been retired by SetMinDecryptionVersion is rejected
// even though its key material is still technically derivable.
func (s *Service) Decrypt(ctx context.Context, ctxName string, envelope string, aad []byte) ([]byte, error) {
	env, err := ParseEnvelope(envelope)
	if err != nil {
		return nil, err
	}
	meta, err := s.store.GetKeyMeta(ctx, ctxName)
	if err != nil {
		return nil, err
	}
	if env.Version < meta.MinDecryptionVersion {
		return nil, ErrVersionRetired
	}
	key, err := s.deriveKey(ctxName, env.Version)
	if err != nil {
		return nil, err
	}
	sealed := append(append([]byte{}, env.Ciphertext...), env.Tag...)
	return crypto.Decrypt(key, env.Nonce, sealed, aad)
}

// Rotate bumps ctxName's latest key version; ciphertexts already issued
// under earlier versions keep decrypting until SetMinDecryptionVersion
// raises the floor, per spec §4.2/§8 testable property 3.
func (s *Service) Rotate(ctx context.Context, ctxName string) (*KeyMeta, error) {
	meta, err := s.store.GetKeyMeta(ctx, ctxName)
	if err != nil {
		return nil, err
	}
	expected := meta.LatestVersion
	meta.LatestVersion++
	if err := s.store.SaveKeyMeta(ctx, meta, expected); err != nil {
		return nil, err
	}
	return meta, nil
}

// SetMinDecryptionVersion raises the oldest version of ctxName's key
// still usable for Decrypt, retiring older ciphertext without deleting
// it (callers wanting it gone must Rewrap under the latest version and
// discard the old envelope themselves).
func (s *Service) SetMinDecryptionVersion(ctx context.Context, ctxName string, min int) error {
	meta, err := s.store.GetKeyMeta(ctx, ctxName)
	if err != nil {
		return err
	}
	expected := meta.LatestVersion
	meta.MinDecryptionVersion = min
	return s.store.SaveKeyMeta(ctx, meta, expected)
}

// Rewrap re-encrypts an existing envelope under ctxName's current latest
// version without exposing the plaintext to the caller, used when a
// rotation needs a specific stored ciphertext refreshed ahead of a
// minDecryptionVersion bump. Since Decrypt already accepts any version
// still above the floor, Rewrap is simply Decrypt followed by Encrypt;
// it is split out as its own operation so callers (and audit log
// entries) can express rotation fan-out as a single intention distinct
// from an application read/write.
func (s *Service) Rewrap(ctx context.Context, ctxName string, envelope string, aad []byte) (string, error) {
	plaintext, err := s.Decrypt(ctx, ctxName, envelope, aad)
	if err != nil {
		return "", err
	}
	defer zero(plaintext)
	return s.Encrypt(ctx, ctxName, plaintext, aad)
}

// GenerateDataKey produces a fresh random data-encryption key plus its
// envelope-wrapped form, for callers (e.g. transit's per-key DEKs) that
// want to hold the plaintext key briefly in memory while persisting only
// the wrapped form - mirroring the wrapped-DEK hierarchy the transit
// usecase example follows (master key -> KEK -> DEK -> named key).
func (s *Service) GenerateDataKey(ctx context.Context, ctxName string, aad []byte) (plaintext []byte, wrapped string, err error) {
	plaintext, err = crypto.RandomBytes(crypto.KeySize)
	if err != nil {
		return nil, "", err
	}
	wrapped, err = s.Encrypt(ctx, ctxName, plaintext, aad)
	if err != nil {
		return nil, "", err
	}
	return plaintext, wrapped, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
