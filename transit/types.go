// Package transit implements the named/versioned cryptographic key
// engine (C5): create/rotate/encrypt/decrypt/rewrap/sign/verify/hmac/
// generateDataKey/export/delete, per spec §4.4.
package transit

import (
	"context"
	"errors"
	"time"

	"github.com/vaultcore/usp/crypto"
)

// Sentinel errors for Store implementations and engine operations.
var (
	ErrKeyNotFound      = errors.New("transit: key not found")
	ErrKeyExists        = errors.New("transit: key name already exists")
	ErrVersionTooOld    = errors.New("transit: version below minDecryptionVersion")
	ErrNotExportable    = errors.New("transit: key is not exportable")
	ErrNotAsymmetric    = errors.New("transit: operation requires an asymmetric key")
	ErrBatchTooLarge    = errors.New("transit: batch exceeds maximum size")
	ErrInvalidSignature = errors.New("transit: malformed signature")
)

// MaxBatchSize bounds batch encrypt/decrypt operations, per spec §4.4.
const MaxBatchSize = 1000

// Key is the named transit key's metadata row.
type Key struct {
	Name                string
	Type                crypto.KeyType
	Derivation          bool // context-derived per-request keys (supplements base spec; see Open Questions)
	Exportable          bool
	LatestVersion       int
	MinDecryptionVersion int
	CreatedAt           time.Time
}

// KeyVersion is one version of a transit key's material.
type KeyVersion struct {
	Name      string
	Version   int
	Envelope  string // master-key-wrapped private/symmetric key material
	PublicKey []byte // empty for symmetric keys
	CreatedAt time.Time
}

// Store persists Key and KeyVersion rows.
type Store interface {
	GetKey(ctx context.Context, name string) (*Key, error)
	CreateKey(ctx context.Context, key *Key) error
	SaveKey(ctx context.Context, key *Key, expectedLatestVersion int) error
	DeleteKey(ctx context.Context, name string) error

	GetVersion(ctx context.Context, name string, version int) (*KeyVersion, error)
	PutVersion(ctx context.Context, v *KeyVersion) error
	DeleteVersion(ctx context.Context, name string, version int) error
}
