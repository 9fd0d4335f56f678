package mfa

import (
	"context"
	"errors"
)

// ErrNotSupported is returned by a provider-delegated Verifier when no
// provider is configured, per spec's Non-goals carve-out: the
// verification interface and challenge bookkeeping are in scope, but
// hardware-OTP vendor SDKs, push delivery, and WebAuthn ceremony
// transport are not.
var ErrNotSupported = errors.New("mfa: method has no configured provider")

// HardwareOTPProvider validates a code generated by a physical hardware
// token (e.g. a YubiKey OTP slot) against the vendor's backend.
type HardwareOTPProvider interface {
	Verify(ctx context.Context, userID, code string) (bool, error)
}

// HardwareOTPVerifier implements Verifier by delegating to a
// HardwareOTPProvider. Challenge is a no-op: hardware tokens generate
// codes without a server-issued challenge.
type HardwareOTPVerifier struct {
	provider HardwareOTPProvider
}

// NewHardwareOTPVerifier builds a HardwareOTPVerifier. provider may be
// nil, in which case both methods return ErrNotSupported.
func NewHardwareOTPVerifier(provider HardwareOTPProvider) *HardwareOTPVerifier {
	return &HardwareOTPVerifier{provider: provider}
}

func (v *HardwareOTPVerifier) Challenge(ctx context.Context, userID string) (*MFAChallenge, error) {
	if v.provider == nil {
		return nil, ErrNotSupported
	}
	return &MFAChallenge{Method: MethodHardwareOTP}, nil
}

func (v *HardwareOTPVerifier) Verify(ctx context.Context, userID string, code string) (bool, error) {
	if v.provider == nil {
		return false, ErrNotSupported
	}
	return v.provider.Verify(ctx, userID, code)
}

// PushProvider requests and polls a mobile-push approval.
type PushProvider interface {
	RequestApproval(ctx context.Context, userID string) (providerChallengeID string, err error)
	CheckApproval(ctx context.Context, providerChallengeID string) (bool, error)
}

// PushVerifier implements Verifier by delegating to a PushProvider. The
// challengeID Verify receives is the provider's own approval-request
// ID, returned from Challenge.
type PushVerifier struct {
	provider PushProvider
}

// NewPushVerifier builds a PushVerifier. provider may be nil, in which
// case both methods return ErrNotSupported.
func NewPushVerifier(provider PushProvider) *PushVerifier {
	return &PushVerifier{provider: provider}
}

func (v *PushVerifier) Challenge(ctx context.Context, userID string) (*MFAChallenge, error) {
	if v.provider == nil {
		return nil, ErrNotSupported
	}
	providerID, err := v.provider.RequestApproval(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &MFAChallenge{ID: providerID, Method: MethodPush}, nil
}

func (v *PushVerifier) Verify(ctx context.Context, challengeID string, _ string) (bool, error) {
	if v.provider == nil {
		return false, ErrNotSupported
	}
	return v.provider.CheckApproval(ctx, challengeID)
}

// WebAuthnProvider verifies a WebAuthn assertion against userID's
// registered credentials. The assertion bytes are opaque to mfa - the
// provider owns the ceremony's ClientDataJSON/AuthenticatorData parsing.
type WebAuthnProvider interface {
	VerifyAssertion(ctx context.Context, userID string, assertion []byte) (bool, error)
}

// WebAuthnVerifier implements Verifier by delegating to a
// WebAuthnProvider. Challenge is a no-op: the WebAuthn ceremony's own
// challenge generation happens client-side via the provider, out of
// scope here.
type WebAuthnVerifier struct {
	provider WebAuthnProvider
}

// NewWebAuthnVerifier builds a WebAuthnVerifier. provider may be nil, in
// which case both methods return ErrNotSupported.
func NewWebAuthnVerifier(provider WebAuthnProvider) *WebAuthnVerifier {
	return &WebAuthnVerifier{provider: provider}
}

func (v *WebAuthnVerifier) Challenge(ctx context.Context, userID string) (*MFAChallenge, error) {
	if v.provider == nil {
		return nil, ErrNotSupported
	}
	return &MFAChallenge{Method: MethodWebAuthn}, nil
}

// Verify treats code as the raw WebAuthn assertion payload.
func (v *WebAuthnVerifier) Verify(ctx context.Context, userID string, code string) (bool, error) {
	if v.provider == nil {
		return false, ErrNotSupported
	}
	return v.provider.VerifyAssertion(ctx, userID, []byte(code))
}
