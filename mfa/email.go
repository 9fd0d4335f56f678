package mfa

import (
	"context"
	"crypto/subtle"
	"fmt"
	"strings"
	"sync"
	"time"
)

// EmailOTPTTL is the validity window for an email one-time code, per
// spec §4.6 ("SMS/email OTP (numeric, 10-minute TTL, single use)").
const EmailOTPTTL = 10 * time.Minute

// EmailSender delivers an email OTP to target. USP delegates actual mail
// transport to a provider interface rather than a concrete vendor SDK -
// no email-sending library appears anywhere in the example pack, and
// delivery transport is out of scope the same way WebAuthn/push
// transport is (spec's Non-goals).
type EmailSender interface {
	Send(ctx context.Context, target, subject, body string) error
}

type emailChallenge struct {
	code      string
	expiresAt time.Time
}

// EmailVerifier implements Verifier using email-delivered OTPs, mirroring
// SMSVerifier's challenge bookkeeping with a 10-minute TTL instead of
// DefaultChallengeTTL.
type EmailVerifier struct {
	sender     EmailSender
	addresses  map[string]string // userID -> email address
	challenges map[string]*emailChallenge
	mu         sync.RWMutex
}

// NewEmailVerifier builds an EmailVerifier. addresses maps userID to the
// email address OTPs are delivered to.
func NewEmailVerifier(sender EmailSender, addresses map[string]string) *EmailVerifier {
	return &EmailVerifier{sender: sender, addresses: addresses, challenges: make(map[string]*emailChallenge)}
}

// Challenge sends a one-time numeric code to userID's registered address.
func (v *EmailVerifier) Challenge(ctx context.Context, userID string) (*MFAChallenge, error) {
	address, ok := v.addresses[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUserNotFound, userID)
	}
	code, err := generateSecureCode(CodeLength)
	if err != nil {
		return nil, fmt.Errorf("generate code: %w", err)
	}

	challengeID := NewChallengeID()
	expiresAt := time.Now().Add(EmailOTPTTL)
	v.mu.Lock()
	v.challenges[challengeID] = &emailChallenge{code: code, expiresAt: expiresAt}
	v.mu.Unlock()

	body := fmt.Sprintf("Your verification code is %s. It expires in 10 minutes.", code)
	if err := v.sender.Send(ctx, address, "Your verification code", body); err != nil {
		v.mu.Lock()
		delete(v.challenges, challengeID)
		v.mu.Unlock()
		return nil, fmt.Errorf("send email: %w", err)
	}

	return &MFAChallenge{
		ID:        challengeID,
		Method:    MethodEmail,
		Target:    maskEmail(address),
		ExpiresAt: expiresAt,
		CreatedAt: time.Now(),
	}, nil
}

// Verify checks code against the stored, single-use challenge.
func (v *EmailVerifier) Verify(ctx context.Context, challengeID string, code string) (bool, error) {
	v.mu.Lock()
	challenge, exists := v.challenges[challengeID]
	if !exists {
		v.mu.Unlock()
		return false, fmt.Errorf("challenge not found: %s", challengeID)
	}
	if time.Now().After(challenge.expiresAt) {
		delete(v.challenges, challengeID)
		v.mu.Unlock()
		return false, nil
	}
	storedCode := challenge.code
	delete(v.challenges, challengeID)
	v.mu.Unlock()

	return subtle.ConstantTimeCompare([]byte(storedCode), []byte(code)) == 1, nil
}

// maskEmail masks an email address's local part, keeping the domain.
// Example: "alice@example.com" -> "a***@example.com"
func maskEmail(address string) string {
	at := strings.IndexByte(address, '@')
	if at <= 0 {
		return "***"
	}
	return address[:1] + "***" + address[at:]
}
