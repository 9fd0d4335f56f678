package mfa_test

import (
	"context"
	"errors"
	"testing"

	"github.com/vaultcore/usp/mfa"
)

type fakeEmailSender struct {
	sent map[string]string // address -> body
}

func (f *fakeEmailSender) Send(ctx context.Context, target, subject, body string) error {
	if f.sent == nil {
		f.sent = make(map[string]string)
	}
	f.sent[target] = body
	return nil
}

func TestEmailVerifierRoundTrip(t *testing.T) {
	ctx := context.Background()
	sender := &fakeEmailSender{}
	v := mfa.NewEmailVerifier(sender, map[string]string{"alice": "alice@example.com"})

	challenge, err := v.Challenge(ctx, "alice")
	if err != nil {
		t.Fatalf("Challenge: %v", err)
	}
	body, ok := sender.sent["alice@example.com"]
	if !ok {
		t.Fatalf("expected an email to be sent to alice@example.com")
	}

	// Extract the 6-digit code the verifier embedded in the email body.
	var code string
	for i := 0; i+6 <= len(body); i++ {
		if isAllDigits(body[i : i+6]) {
			code = body[i : i+6]
			break
		}
	}
	if code == "" {
		t.Fatalf("could not find a 6-digit code in email body %q", body)
	}

	ok2, err := v.Verify(ctx, challenge.ID, code)
	if err != nil || !ok2 {
		t.Fatalf("Verify = %v, %v; want true, nil", ok2, err)
	}

	// Single-use: the same challenge cannot be verified twice.
	if _, err := v.Verify(ctx, challenge.ID, code); err == nil {
		t.Fatalf("expected an error verifying a consumed challenge")
	}
}

func TestEmailVerifierUnknownUser(t *testing.T) {
	ctx := context.Background()
	v := mfa.NewEmailVerifier(&fakeEmailSender{}, map[string]string{})
	if _, err := v.Challenge(ctx, "nobody"); !errors.Is(err, mfa.ErrUserNotFound) {
		t.Fatalf("Challenge err = %v, want ErrUserNotFound", err)
	}
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
