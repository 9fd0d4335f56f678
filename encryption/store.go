package encryption

import (
	"context"
	"time"
)

// KeyMeta tracks one context name's rotation state. Unlike transit, the
// encryption service never persists key material: every version's key is
// re-derived from the live master key on demand, so KeyMeta only needs
// the version counters spec §4.2's rotate/minDecryptionVersion describe.
type KeyMeta struct {
	Name                 string
	LatestVersion        int
	MinDecryptionVersion int
	CreatedAt            time.Time
}

// KeyStore persists KeyMeta rows, one per context name ever encrypted
// under.
type KeyStore interface {
	GetKeyMeta(ctx context.Context, name string) (*KeyMeta, error)
	CreateKeyMeta(ctx context.Context, meta *KeyMeta) error
	SaveKeyMeta(ctx context.Context, meta *KeyMeta, expectedLatestVersion int) error
}
