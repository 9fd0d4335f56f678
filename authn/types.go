// Package authn implements login/refresh/logout/step-up per spec §4.6:
// password verification, risk-scored step-up MFA, JWT access tokens, and
// refresh-token rotation with replay detection. It is grounded on the
// teacher's session package (state machine, ID format), generalized from
// "server credential session" to "authenticated user session".
package authn

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"regexp"
	"time"
)

// Sentinel errors for Store implementations and Engine operations.
var (
	ErrUserNotFound         = errors.New("authn: user not found")
	ErrInvalidCredentials   = errors.New("authn: invalid credentials")
	ErrLockedOut            = errors.New("authn: account locked")
	ErrMFARequired          = errors.New("authn: step-up verification required")
	ErrChallengeNotFound    = errors.New("authn: challenge not found")
	ErrChallengeExpired     = errors.New("authn: challenge expired")
	ErrSessionNotFound      = errors.New("authn: session not found")
	ErrSessionRevoked       = errors.New("authn: session revoked")
	ErrRefreshReplay        = errors.New("authn: refresh token replay detected")
	ErrStepUpNotSatisfied   = errors.New("authn: step-up not satisfied")
	ErrDenied               = errors.New("authn: denied by policy")

	// ErrSessionAlreadyRevoked is returned by RevokeSession for a session
	// already in the revoked state; ErrSessionExpired for one already
	// past ExpiresAt. Both are distinct from a bare "not found" so an
	// admin-facing revoke endpoint can report why nothing changed.
	ErrSessionAlreadyRevoked = errors.New("authn: session already revoked")
	ErrSessionExpired        = errors.New("authn: session already expired")
)

const (
	// SessionIDLength matches the teacher's 16-hex-char (64-bit) session ID format.
	SessionIDLength = 16

	// RefreshTokenBytes is the random byte length of a refresh token
	// before base64url encoding, per spec §4.6 ("random 64 bytes").
	RefreshTokenBytes = 64

	// DefaultAccessTokenTTL is the lifetime of an issued access token.
	DefaultAccessTokenTTL = 15 * time.Minute

	// DefaultRefreshTokenTTL is the lifetime of a refresh token.
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour

	// DefaultChallengeTTL is how long a step-up MFA challenge token is valid.
	DefaultChallengeTTL = 5 * time.Minute

	// DefaultMaxFailedLoginAttempts is the threshold before lockout.
	DefaultMaxFailedLoginAttempts = 5

	// DefaultLockoutDuration is how long an account stays locked after
	// DefaultMaxFailedLoginAttempts consecutive failures.
	DefaultLockoutDuration = 15 * time.Minute

	// DefaultMaxConcurrentSessions bounds simultaneous active sessions
	// per user, per spec §4.6 item 6.
	DefaultMaxConcurrentSessions = 10
)

var sessionIDRegex = regexp.MustCompile(`^[0-9a-f]{16}$`)

// NewSessionID generates a new 16-character lowercase hex session ID,
// matching the teacher's session.NewSessionID format exactly.
func NewSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return "0000000000000000"
	}
	return hex.EncodeToString(b)
}

// ValidateSessionID reports whether id is a well-formed session ID.
func ValidateSessionID(id string) bool {
	return sessionIDRegex.MatchString(id)
}

// User is one authenticatable account.
type User struct {
	ID                  string
	Username            string // normalized (lowercased) at the Store boundary
	PasswordHash        string // bcrypt
	Email               string
	GivenName           string
	FamilyName          string
	Roles               []string
	FailedLoginAttempts int
	LockedUntil         time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// IsLocked reports whether the account is currently locked out.
func (u *User) IsLocked(now time.Time) bool {
	return !u.LockedUntil.IsZero() && now.Before(u.LockedUntil)
}

// UserStore persists User rows and their login-attempt bookkeeping.
type UserStore interface {
	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByID(ctx context.Context, id string) (*User, error)
	// Save updates a User (failedLoginAttempts/lockedUntil changes,
	// password rotation, etc). Implementations use optimistic locking on
	// UpdatedAt, returning ErrConcurrentModification on conflict.
	Save(ctx context.Context, user *User, expectedUpdatedAt time.Time) error
}

// Session is one authenticated-user session, generalized from the
// teacher's ServerSession: instead of tracking a credential-serving
// instance, it tracks an issued access/refresh token pair.
type Session struct {
	ID               string
	UserID           string
	TokenHash        [32]byte // SHA-256 of the issued access token's jti
	RefreshTokenHash [32]byte // SHA-256 of the current refresh token
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
	LastActivity     time.Time
	ExpiresAt        time.Time
	Revoked          bool
	RevokedReason    string
	RevokedBy        string // identity that revoked the session; empty for self-initiated logout
}

// IsActive reports whether the session is neither revoked nor expired as of now.
func (s *Session) IsActive(now time.Time) bool {
	return !s.Revoked && now.Before(s.ExpiresAt)
}

// SessionStore persists Session rows.
type SessionStore interface {
	Create(ctx context.Context, sess *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	GetByRefreshHash(ctx context.Context, hash [32]byte) (*Session, error)
	// Save updates sess with optimistic locking on LastActivity.
	Save(ctx context.Context, sess *Session, expectedLastActivity time.Time) error
	// ListActiveByUser returns non-revoked, non-expired sessions for
	// userID ordered oldest-by-lastActivity first, for the concurrent
	// session cap (spec §4.6 item 6: "revoke oldest-by-lastActivity first").
	ListActiveByUser(ctx context.Context, userID string) ([]*Session, error)
	// RevokeAll marks every session for userID revoked, for refresh
	// replay detection (spec §4.6's "revoke all sessions for the user").
	RevokeAll(ctx context.Context, userID string, reason string) error
}
