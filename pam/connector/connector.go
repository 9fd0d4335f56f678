// Package connector implements the platform-specific half of credential
// rotation: given a target address and the account's current and next
// credential, verify that a credential still authenticates, rotate the
// credential on the target system, or generate a new random credential
// value suitable for that platform. pam/rotation drives these three
// operations through the Connector interface; it never talks to a
// target system directly.
package connector

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/vaultcore/usp/crypto"
	"github.com/vaultcore/usp/pam/safe"
)

// ErrNotImplemented is returned by connectors whose wire protocol is out
// of scope for this module (see pam's Non-goal on bit-specific OS
// integration); the Connector interface and target addressing are real,
// the transport is not.
var ErrNotImplemented = errors.New("connector: not implemented for this platform")

// ErrVerifyFailed indicates the presented credential did not authenticate.
var ErrVerifyFailed = errors.New("connector: credential verification failed")

// Target identifies the system a Connector operates against, resolved
// from a safe.PrivilegedAccount.
type Target struct {
	Address  string
	Username string
}

// Connector manages a privileged account's credential on one target
// system. Implementations are selected by safe.Platform.
type Connector interface {
	// Verify reports whether current still authenticates as target's
	// account. Returns ErrVerifyFailed (possibly wrapped) if not.
	Verify(ctx context.Context, target Target, current string) error

	// Rotate changes the account's credential from current to next on
	// the target system. Rotate must leave the account usable under
	// current if it returns a non-nil error (no partial rotation).
	Rotate(ctx context.Context, target Target, current, next string) error

	// Generate returns a new random credential value appropriate for
	// this platform (e.g. a password meeting the target's complexity
	// rules, or a keypair-derived secret).
	Generate(ctx context.Context) (string, error)
}

// defaultGeneratedCredentialBytes is the amount of CSPRNG output encoded
// into a generated password; base64 expands this by 4/3.
const defaultGeneratedCredentialBytes = 24

// generatePassword returns a random URL-safe base64 string suitable as a
// default credential value for platforms with no further complexity
// constraints. Connectors with stricter rules (character class quotas,
// length caps) post-process or replace this.
func generatePassword() (string, error) {
	b, err := crypto.RandomBytes(defaultGeneratedCredentialBytes)
	if err != nil {
		return "", fmt.Errorf("connector: generating credential: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Registry resolves a safe.Platform to the Connector that manages it.
type Registry struct {
	connectors map[safe.Platform]Connector
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{connectors: make(map[safe.Platform]Connector)}
}

// Register associates a Connector with a platform, overwriting any
// previous registration.
func (r *Registry) Register(platform safe.Platform, c Connector) {
	r.connectors[platform] = c
}

// For returns the Connector registered for platform, or an error if
// none is registered.
func (r *Registry) For(platform safe.Platform) (Connector, error) {
	c, ok := r.connectors[platform]
	if !ok {
		return nil, fmt.Errorf("connector: no connector registered for platform %q", platform)
	}
	return c, nil
}

// TargetFor builds a Target from a PrivilegedAccount's address/username.
func TargetFor(a *safe.PrivilegedAccount) Target {
	return Target{Address: a.Address, Username: a.Username}
}
