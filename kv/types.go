// Package kv implements the versioned KV secret engine (C4): per-path,
// monotonically versioned, encrypted key-value storage with soft-delete,
// destroy, check-and-set, and max-version pruning, per spec §4.3.
package kv

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/vaultcore/usp/validate"
)

// Sentinel errors for Store implementations and engine operations.
// These support errors.Is() checking for robust error handling.
var (
	// ErrNotFound is returned when a path has no metadata row.
	ErrNotFound = errors.New("kv: secret not found")

	// ErrCasMismatch is returned when a write's cas argument does not
	// match the path's current version.
	ErrCasMismatch = errors.New("kv: cas mismatch")

	// ErrCasRequired is returned when casRequired is set and a write
	// omits cas.
	ErrCasRequired = errors.New("kv: cas required")

	// ErrVersionDestroyed is returned when reading a version flagged
	// isDestroyed.
	ErrVersionDestroyed = errors.New("kv: version destroyed")

	// ErrVersionNotFound is returned when a specific requested version
	// does not exist at all.
	ErrVersionNotFound = errors.New("kv: version not found")

	// ErrConcurrentModification is returned when an update races another
	// writer's update to the same metadata row.
	ErrConcurrentModification = errors.New("kv: concurrent modification detected")

	// ErrInvalidPath is returned by NormalizePath for an empty path.
	ErrInvalidPath = errors.New("kv: invalid path")
)

// DefaultMaxVersions is the default retained-version count before the
// oldest non-destroyed version is soft-deleted on the next write.
const DefaultMaxVersions = 10

// Metadata is the per-path row: spec §3 Secret.
type Metadata struct {
	Path            string
	CurrentVersion  int
	OldestVersion   int
	MaxVersions     int
	CASRequired     bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Version is one SecretVersion row.
type Version struct {
	Path        string
	Version     int
	Envelope    string // encryption.Service envelope string; empty once destroyed
	CreatedAt   time.Time
	DeletedAt   *time.Time
	IsDeleted   bool
	IsDestroyed bool
}

// Store persists Metadata and Version rows. Implementations must be
// safe for concurrent use.
type Store interface {
	GetMetadata(ctx context.Context, path string) (*Metadata, error)
	SaveMetadata(ctx context.Context, meta *Metadata, expectedVersion int) error

	GetVersion(ctx context.Context, path string, version int) (*Version, error)
	PutVersion(ctx context.Context, v *Version) error
	ListVersions(ctx context.Context, path string) ([]*Version, error)

	// ListChildren returns the immediate child path segments under
	// prefix, for the list(prefix) operation.
	ListChildren(ctx context.Context, prefix string) ([]string, error)
}

// NormalizePath strips leading/trailing slashes and collapses duplicate
// interior slashes, per spec §4.3, then rejects anything that fails
// validate.ValidatePath (path traversal sequences, control characters,
// non-ASCII homoglyphs) before it ever reaches a Store implementation.
func NormalizePath(path string) (string, error) {
	segments := strings.Split(path, "/")
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", ErrInvalidPath
	}
	normalized := strings.Join(parts, "/")
	if err := validate.ValidatePath(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}
