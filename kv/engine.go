package kv

import (
	"context"
	"errors"
	"time"

	"github.com/vaultcore/usp/encryption"
)

// secretEncryptionContext scopes every KV envelope under its own path,
// so one path's derived key never decrypts another path's ciphertext -
// spec §4.3's "dedicated secret-encryption-key, created lazily" is
// realized here as encryption.Service deriving a fresh subkey per
// context string rather than persisting a distinct transit key.
func secretEncryptionContext(path string) string {
	return "kv:" + path
}

// Engine implements the KV operations of spec §4.3 against a Store and
// an encryption.Service.
type Engine struct {
	store Store
	enc   *encryption.Service
}

// NewEngine builds a KV Engine.
func NewEngine(store Store, enc *encryption.Service) *Engine {
	return &Engine{store: store, enc: enc}
}

// Write creates a new version of path's secret. cas, if non-nil, must
// match the path's current version (or 0, for "must not already exist").
func (e *Engine) Write(ctx context.Context, path string, data map[string]any, cas *int) (*Metadata, error) {
	path, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}

	meta, err := e.store.GetMetadata(ctx, path)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	exists := meta != nil
	if !exists {
		meta = &Metadata{
			Path:        path,
			MaxVersions: DefaultMaxVersions,
			CreatedAt:   time.Now().UTC(),
		}
	}
	if meta.CASRequired && cas == nil {
		return nil, ErrCasRequired
	}
	if cas != nil && *cas != meta.CurrentVersion {
		return nil, ErrCasMismatch
	}

	plaintext, err := encodeData(data)
	if err != nil {
		return nil, err
	}
	envelope, err := e.enc.Encrypt(ctx, secretEncryptionContext(path), plaintext, nil)
	if err != nil {
		return nil, err
	}

	expectedVersion := meta.CurrentVersion
	meta.CurrentVersion++
	if meta.OldestVersion == 0 {
		meta.OldestVersion = 1
	}
	meta.UpdatedAt = time.Now().UTC()

	version := &Version{
		Path:      path,
		Version:   meta.CurrentVersion,
		Envelope:  envelope,
		CreatedAt: meta.UpdatedAt,
	}
	if err := e.store.PutVersion(ctx, version); err != nil {
		return nil, err
	}
	if err := e.store.SaveMetadata(ctx, meta, expectedVersion); err != nil {
		return nil, err
	}

	if err := e.prune(ctx, meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// prune soft-deletes the oldest non-destroyed versions once the
// retained count exceeds meta.MaxVersions.
func (e *Engine) prune(ctx context.Context, meta *Metadata) error {
	versions, err := e.store.ListVersions(ctx, meta.Path)
	if err != nil {
		return err
	}
	live := make([]*Version, 0, len(versions))
	for _, v := range versions {
		if !v.IsDestroyed && !v.IsDeleted {
			live = append(live, v)
		}
	}
	excess := len(live) - meta.MaxVersions
	if excess <= 0 {
		return nil
	}
	// live is returned oldest-first by the store contract (ListVersions).
	for _, v := range live[:excess] {
		now := time.Now().UTC()
		v.IsDeleted = true
		v.DeletedAt = &now
		if err := e.store.PutVersion(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// Read returns the decrypted data for path, or the specific version if
// version is non-nil. It returns (nil, nil) if the path (or the latest
// version, with version==nil) is absent or soft-deleted, matching spec
// §4.3's "returns decrypted map or null".
func (e *Engine) Read(ctx context.Context, path string, version *int) (map[string]any, error) {
	path, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}

	target := 0
	if version != nil {
		target = *version
	} else {
		meta, err := e.store.GetMetadata(ctx, path)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, nil
			}
			return nil, err
		}
		target = meta.CurrentVersion
	}

	v, err := e.store.GetVersion(ctx, path, target)
	if err != nil {
		if errors.Is(err, ErrVersionNotFound) {
			return nil, ErrVersionNotFound
		}
		return nil, err
	}
	if v.IsDestroyed {
		return nil, ErrVersionDestroyed
	}
	if v.IsDeleted {
		return nil, nil
	}

	plaintext, err := e.enc.Decrypt(ctx, secretEncryptionContext(path), v.Envelope, nil)
	if err != nil {
		return nil, err
	}
	return decodeData(plaintext)
}

// Delete soft-deletes the named versions.
func (e *Engine) Delete(ctx context.Context, path string, versions []int) error {
	return e.setDeleted(ctx, path, versions, true)
}

// Undelete reverses Delete, as long as the version is not destroyed.
func (e *Engine) Undelete(ctx context.Context, path string, versions []int) error {
	path, err := NormalizePath(path)
	if err != nil {
		return err
	}
	for _, n := range versions {
		v, err := e.store.GetVersion(ctx, path, n)
		if err != nil {
			return err
		}
		if v.IsDestroyed {
			return ErrVersionDestroyed
		}
		v.IsDeleted = false
		v.DeletedAt = nil
		if err := e.store.PutVersion(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) setDeleted(ctx context.Context, path string, versions []int, deleted bool) error {
	path, err := NormalizePath(path)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, n := range versions {
		v, err := e.store.GetVersion(ctx, path, n)
		if err != nil {
			return err
		}
		v.IsDeleted = deleted
		if deleted {
			v.DeletedAt = &now
		} else {
			v.DeletedAt = nil
		}
		if err := e.store.PutVersion(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// Destroy hard-deletes the named versions: clears ciphertext and marks
// both isDestroyed and isDeleted, per spec §4.3.
func (e *Engine) Destroy(ctx context.Context, path string, versions []int) error {
	path, err := NormalizePath(path)
	if err != nil {
		return err
	}
	now := time.Now().UTC()
	for _, n := range versions {
		v, err := e.store.GetVersion(ctx, path, n)
		if err != nil {
			return err
		}
		v.IsDestroyed = true
		v.IsDeleted = true
		v.DeletedAt = &now
		v.Envelope = ""
		if err := e.store.PutVersion(ctx, v); err != nil {
			return err
		}
	}
	return nil
}

// List returns the immediate child path segments under prefix.
func (e *Engine) List(ctx context.Context, prefix string) ([]string, error) {
	if prefix != "" {
		normalized, err := NormalizePath(prefix)
		if err != nil {
			return nil, err
		}
		prefix = normalized
	}
	return e.store.ListChildren(ctx, prefix)
}

// ListVersions returns version metadata (without decrypting any
// version) for every version of path - supplements the distilled spec
// per SPEC_FULL.md C.4, grounded in KV engines that expose version
// listing distinctly from a data read.
func (e *Engine) ListVersions(ctx context.Context, path string) ([]*Version, error) {
	path, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	return e.store.ListVersions(ctx, path)
}

// Metadata returns path's metadata row without decrypting any version -
// supplements the distilled spec per SPEC_FULL.md C.4.
func (e *Engine) Metadata(ctx context.Context, path string) (*Metadata, error) {
	path, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	return e.store.GetMetadata(ctx, path)
}
