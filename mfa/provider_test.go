package mfa_test

import (
	"context"
	"testing"

	"github.com/vaultcore/usp/mfa"
)

func TestHardwareOTPVerifierWithoutProviderIsNotSupported(t *testing.T) {
	ctx := context.Background()
	v := mfa.NewHardwareOTPVerifier(nil)
	if _, err := v.Challenge(ctx, "alice"); err != mfa.ErrNotSupported {
		t.Fatalf("Challenge err = %v, want ErrNotSupported", err)
	}
	if _, err := v.Verify(ctx, "alice", "000000"); err != mfa.ErrNotSupported {
		t.Fatalf("Verify err = %v, want ErrNotSupported", err)
	}
}

type fakeHardwareOTPProvider struct{ valid string }

func (f fakeHardwareOTPProvider) Verify(ctx context.Context, userID, code string) (bool, error) {
	return code == f.valid, nil
}

func TestHardwareOTPVerifierDelegates(t *testing.T) {
	ctx := context.Background()
	v := mfa.NewHardwareOTPVerifier(fakeHardwareOTPProvider{valid: "112233"})
	ok, err := v.Verify(ctx, "alice", "112233")
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v; want true, nil", ok, err)
	}
	ok, err = v.Verify(ctx, "alice", "000000")
	if err != nil || ok {
		t.Fatalf("Verify (wrong code) = %v, %v; want false, nil", ok, err)
	}
}

type fakePushProvider struct {
	approved map[string]bool
}

func (f fakePushProvider) RequestApproval(ctx context.Context, userID string) (string, error) {
	return "push-" + userID, nil
}

func (f fakePushProvider) CheckApproval(ctx context.Context, providerChallengeID string) (bool, error) {
	return f.approved[providerChallengeID], nil
}

func TestPushVerifierRoundTrip(t *testing.T) {
	ctx := context.Background()
	v := mfa.NewPushVerifier(fakePushProvider{approved: map[string]bool{"push-alice": true}})
	challenge, err := v.Challenge(ctx, "alice")
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	ok, err := v.Verify(ctx, challenge.ID, "")
	if err != nil || !ok {
		t.Fatalf("Verify = %v, %v; want true, nil", ok, err)
	}
}

func TestWebAuthnVerifierWithoutProviderIsNotSupported(t *testing.T) {
	ctx := context.Background()
	v := mfa.NewWebAuthnVerifier(nil)
	if _, err := v.Challenge(ctx, "alice"); err != mfa.ErrNotSupported {
		t.Fatalf("Challenge err = %v, want ErrNotSupported", err)
	}
}
