package transit

import (
	"context"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/vaultcore/usp/crypto"
)

// MasterKeySource abstracts retrieval of the live master key from the
// seal layer, mirroring encryption.MasterKeySource so this package never
// imports seal directly. It returns VaultSealed (per spec §4.1) instead
// of data when the vault is sealed.
type MasterKeySource interface {
	MasterKey() ([]byte, error)
}

// Engine implements the transit operations of spec §4.4 against a Store.
// Key material at rest is wrapped directly under a key derived from the
// master key (scoped by "transit:{name}:{version}"), mirroring
// encryption.Service's derivation scheme without depending on that
// package, since transit keys are addressed by name+version rather than
// an arbitrary caller-supplied context string.
type Engine struct {
	store Store
	keys  MasterKeySource
}

// NewEngine builds a transit Engine.
func NewEngine(store Store, keys MasterKeySource) *Engine {
	return &Engine{store: store, keys: keys}
}

func (e *Engine) wrapKey(name string, version int, material []byte) (string, error) {
	master, err := e.keys.MasterKey()
	if err != nil {
		return "", err
	}
	key, err := crypto.DeriveKey(master, fmt.Sprintf("usp-transit-v1:%s:%d", name, version), crypto.KeySize)
	if err != nil {
		return "", err
	}
	nonce, sealed, err := crypto.Encrypt(key, material, nil)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(nonce) + "." + base64.RawURLEncoding.EncodeToString(sealed), nil
}

func (e *Engine) unwrapKey(name string, version int, wrapped string) ([]byte, error) {
	parts := strings.SplitN(wrapped, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("transit: malformed wrapped key material")
	}
	nonce, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, fmt.Errorf("transit: malformed wrapped key nonce: %w", err)
	}
	sealed, err := base64.RawURLEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, fmt.Errorf("transit: malformed wrapped key ciphertext: %w", err)
	}
	master, err := e.keys.MasterKey()
	if err != nil {
		return nil, err
	}
	key, err := crypto.DeriveKey(master, fmt.Sprintf("usp-transit-v1:%s:%d", name, version), crypto.KeySize)
	if err != nil {
		return nil, err
	}
	return crypto.Decrypt(key, nonce, sealed, nil)
}

// Create generates key material for a new named key and persists version 1.
func (e *Engine) Create(ctx context.Context, name string, keyType crypto.KeyType, derivation, exportable bool) (*Key, error) {
	if _, err := e.store.GetKey(ctx, name); err == nil {
		return nil, ErrKeyExists
	}

	private, public, err := crypto.GenerateKeyMaterial(keyType)
	if err != nil {
		return nil, err
	}
	wrapped, err := e.wrapKey(name, 1, private)
	if err != nil {
		return nil, err
	}

	key := &Key{
		Name: name, Type: keyType, Derivation: derivation, Exportable: exportable,
		LatestVersion: 1, MinDecryptionVersion: 1, CreatedAt: time.Now().UTC(),
	}
	if err := e.store.CreateKey(ctx, key); err != nil {
		return nil, err
	}
	version := &KeyVersion{Name: name, Version: 1, Envelope: wrapped, PublicKey: public, CreatedAt: key.CreatedAt}
	if err := e.store.PutVersion(ctx, version); err != nil {
		return nil, err
	}
	return key, nil
}

// Rotate appends a new version of name's key material; old versions
// still decrypt until MinDecryptionVersion is raised.
func (e *Engine) Rotate(ctx context.Context, name string) (*Key, error) {
	key, err := e.store.GetKey(ctx, name)
	if err != nil {
		return nil, err
	}
	private, public, err := crypto.GenerateKeyMaterial(key.Type)
	if err != nil {
		return nil, err
	}
	newVersion := key.LatestVersion + 1
	wrapped, err := e.wrapKey(name, newVersion, private)
	if err != nil {
		return nil, err
	}

	expected := key.LatestVersion
	key.LatestVersion = newVersion
	if err := e.store.SaveKey(ctx, key, expected); err != nil {
		return nil, err
	}
	version := &KeyVersion{Name: name, Version: newVersion, Envelope: wrapped, PublicKey: public, CreatedAt: time.Now().UTC()}
	if err := e.store.PutVersion(ctx, version); err != nil {
		return nil, err
	}
	return key, nil
}

// SetMinDecryptionVersion raises the oldest version still usable for
// decrypt/verify, retiring older versions without deleting them.
func (e *Engine) SetMinDecryptionVersion(ctx context.Context, name string, min int) error {
	key, err := e.store.GetKey(ctx, name)
	if err != nil {
		return err
	}
	expected := key.LatestVersion
	key.MinDecryptionVersion = min
	return e.store.SaveKey(ctx, key, expected)
}

// Encrypt encrypts plaintext under name's latest version, with context
// fed as AAD.
func (e *Engine) Encrypt(ctx context.Context, name string, plaintext, context []byte) (string, error) {
	key, err := e.store.GetKey(ctx, name)
	if err != nil {
		return "", err
	}
	return e.encryptAt(ctx, key, key.LatestVersion, plaintext, context)
}

func (e *Engine) encryptAt(ctx context.Context, key *Key, version int, plaintext, context []byte) (string, error) {
	material, err := e.versionMaterial(ctx, key.Name, version)
	if err != nil {
		return "", err
	}
	nonce, sealed, err := crypto.Encrypt(material, plaintext, context)
	if err != nil {
		return "", err
	}
	ciphertext, tag := sealed[:len(sealed)-crypto.TagSize], sealed[len(sealed)-crypto.TagSize:]
	return fmt.Sprintf("vault:v%d:%s:%s:%s", version,
		base64.RawURLEncoding.EncodeToString(nonce),
		base64.RawURLEncoding.EncodeToString(tag),
		base64.RawURLEncoding.EncodeToString(ciphertext)), nil
}

func (e *Engine) versionMaterial(ctx context.Context, name string, version int) ([]byte, error) {
	v, err := e.store.GetVersion(ctx, name, version)
	if err != nil {
		return nil, err
	}
	return e.unwrapKey(name, version, v.Envelope)
}

// parsedCiphertext is the common "vault:v{n}:{nonce}:{tag}:{ciphertext}"
// wire format shared by Encrypt, Sign, and HMAC.
type parsedCiphertext struct {
	Version int
	Fields  []string
}

func parseVaultString(s string) (parsedCiphertext, error) {
	parts := strings.Split(s, ":")
	if len(parts) < 3 || parts[0] != "vault" || !strings.HasPrefix(parts[1], "v") {
		return parsedCiphertext{}, fmt.Errorf("transit: malformed ciphertext")
	}
	version, err := strconv.Atoi(parts[1][1:])
	if err != nil {
		return parsedCiphertext{}, fmt.Errorf("transit: malformed version: %w", err)
	}
	return parsedCiphertext{Version: version, Fields: parts[2:]}, nil
}

// Decrypt parses ciphertext, rejects versions older than
// MinDecryptionVersion, and returns the plaintext.
func (e *Engine) Decrypt(ctx context.Context, name string, ciphertext string, context []byte) ([]byte, error) {
	key, err := e.store.GetKey(ctx, name)
	if err != nil {
		return nil, err
	}
	parsed, err := parseVaultString(ciphertext)
	if err != nil {
		return nil, err
	}
	if len(parsed.Fields) != 3 {
		return nil, fmt.Errorf("transit: malformed ciphertext fields")
	}
	if parsed.Version < key.MinDecryptionVersion {
		return nil, ErrVersionTooOld
	}
	nonce, err := base64.RawURLEncoding.DecodeString(parsed.Fields[0])
	if err != nil {
		return nil, fmt.Errorf("transit: malformed nonce: %w", err)
	}
	tag, err := base64.RawURLEncoding.DecodeString(parsed.Fields[1])
	if err != nil {
		return nil, fmt.Errorf("transit: malformed tag: %w", err)
	}
	data, err := base64.RawURLEncoding.DecodeString(parsed.Fields[2])
	if err != nil {
		return nil, fmt.Errorf("transit: malformed ciphertext: %w", err)
	}
	material, err := e.versionMaterial(ctx, name, parsed.Version)
	if err != nil {
		return nil, err
	}
	return crypto.Decrypt(material, nonce, append(data, tag...), context)
}

// Rewrap decrypts ciphertext then re-encrypts it against the latest key
// version, for rotation fan-out.
func (e *Engine) Rewrap(ctx context.Context, name string, ciphertext string, context []byte) (string, error) {
	plaintext, err := e.Decrypt(ctx, name, ciphertext, context)
	if err != nil {
		return "", err
	}
	return e.Encrypt(ctx, name, plaintext, context)
}

// Sign produces "vault:v{version}:{alg}:{base64(sig)}" over input using
// name's latest asymmetric key version.
func (e *Engine) Sign(ctx context.Context, name string, input []byte, alg crypto.HashAlgorithm) (string, error) {
	key, err := e.store.GetKey(ctx, name)
	if err != nil {
		return "", err
	}
	if !key.Type.IsAsymmetric() {
		return "", ErrNotAsymmetric
	}
	material, err := e.versionMaterial(ctx, name, key.LatestVersion)
	if err != nil {
		return "", err
	}
	sig, err := crypto.Sign(key.Type, material, alg, input)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("vault:v%d:%s:%s", key.LatestVersion, alg, base64.RawURLEncoding.EncodeToString(sig)), nil
}

// Verify parses a signature produced by Sign, fetches the named version's
// public key, and checks it against input.
func (e *Engine) Verify(ctx context.Context, name string, input []byte, signature string) (bool, error) {
	parts := strings.Split(signature, ":")
	if len(parts) != 4 || parts[0] != "vault" || !strings.HasPrefix(parts[1], "v") {
		return false, ErrInvalidSignature
	}
	version, err := strconv.Atoi(parts[1][1:])
	if err != nil {
		return false, ErrInvalidSignature
	}
	alg := crypto.HashAlgorithm(parts[2])
	sig, err := base64.RawURLEncoding.DecodeString(parts[3])
	if err != nil {
		return false, ErrInvalidSignature
	}

	key, err := e.store.GetKey(ctx, name)
	if err != nil {
		return false, err
	}
	v, err := e.store.GetVersion(ctx, name, version)
	if err != nil {
		return false, err
	}
	if len(v.PublicKey) == 0 {
		return false, ErrNotAsymmetric
	}
	return crypto.Verify(key.Type, v.PublicKey, alg, input, sig)
}

// HMAC produces "vault:v{version}:{alg}:{base64(hmac)}" over input using
// name's latest symmetric key version.
func (e *Engine) HMAC(ctx context.Context, name string, input []byte, alg crypto.HashAlgorithm) (string, error) {
	key, err := e.store.GetKey(ctx, name)
	if err != nil {
		return "", err
	}
	material, err := e.versionMaterial(ctx, name, key.LatestVersion)
	if err != nil {
		return "", err
	}
	mac := crypto.HMACSHA256(material, input)
	return fmt.Sprintf("vault:v%d:%s:%s", key.LatestVersion, alg, base64.RawURLEncoding.EncodeToString(mac)), nil
}

// GenerateDataKey returns a fresh CSPRNG key and that key envelope-
// encrypted under name's latest version, for client-side envelope
// encryption.
func (e *Engine) GenerateDataKey(ctx context.Context, name string, bits int, context []byte) (plaintext []byte, ciphertext string, err error) {
	if bits != 128 && bits != 256 {
		return nil, "", fmt.Errorf("transit: unsupported data key size %d bits", bits)
	}
	plaintext, err = crypto.RandomBytes(bits / 8)
	if err != nil {
		return nil, "", err
	}
	ciphertext, err = e.Encrypt(ctx, name, plaintext, context)
	if err != nil {
		return nil, "", err
	}
	return plaintext, ciphertext, nil
}

// Export returns the raw private/symmetric key material for every
// version of name, only when the key was created with exportable=true.
// This crosses the same capability boundary as PAM's reveal operation:
// single-use intent, and callers are expected to record an audit entry
// for every call regardless of outcome.
func (e *Engine) Export(ctx context.Context, name string) (map[int][]byte, error) {
	key, err := e.store.GetKey(ctx, name)
	if err != nil {
		return nil, err
	}
	if !key.Exportable {
		return nil, ErrNotExportable
	}
	out := make(map[int][]byte, key.LatestVersion)
	for v := 1; v <= key.LatestVersion; v++ {
		material, err := e.versionMaterial(ctx, name, v)
		if err != nil {
			return nil, err
		}
		out[v] = material
	}
	return out, nil
}

// TrimOldVersions deletes version rows older than keep versions back
// from MinDecryptionVersion, bounding stored version count - supplements
// the distilled spec per SPEC_FULL.md C.5.
func (e *Engine) TrimOldVersions(ctx context.Context, name string, keep int) error {
	key, err := e.store.GetKey(ctx, name)
	if err != nil {
		return err
	}
	cutoff := key.MinDecryptionVersion - keep
	for v := 1; v < cutoff; v++ {
		if err := e.store.DeleteVersion(ctx, name, v); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes a transit key and all of its versions.
func (e *Engine) Delete(ctx context.Context, name string) error {
	return e.store.DeleteKey(ctx, name)
}

// BatchItem is one item of a batch encrypt/decrypt request/response pair.
type BatchItem struct {
	Plaintext  []byte
	Context    []byte
	Ciphertext string
	Err        error
}

// BatchEncrypt encrypts up to MaxBatchSize items under name's latest
// version in a single call, per spec §4.4's batch operation.
func (e *Engine) BatchEncrypt(ctx context.Context, name string, items []BatchItem) ([]BatchItem, error) {
	if len(items) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	key, err := e.store.GetKey(ctx, name)
	if err != nil {
		return nil, err
	}
	out := make([]BatchItem, len(items))
	for i, item := range items {
		ciphertext, err := e.encryptAt(ctx, key, key.LatestVersion, item.Plaintext, item.Context)
		out[i] = BatchItem{Context: item.Context, Ciphertext: ciphertext, Err: err}
	}
	return out, nil
}

// BatchDecrypt decrypts up to MaxBatchSize items, per item errors
// reported individually rather than failing the whole batch.
func (e *Engine) BatchDecrypt(ctx context.Context, name string, items []BatchItem) ([]BatchItem, error) {
	if len(items) > MaxBatchSize {
		return nil, ErrBatchTooLarge
	}
	out := make([]BatchItem, len(items))
	for i, item := range items {
		plaintext, err := e.Decrypt(ctx, name, item.Ciphertext, item.Context)
		out[i] = BatchItem{Plaintext: plaintext, Context: item.Context, Ciphertext: item.Ciphertext, Err: err}
	}
	return out, nil
}
