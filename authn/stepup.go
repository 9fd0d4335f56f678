package authn

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vaultcore/usp/mfa"
)

// StepUpSession tracks progress toward satisfying an elevated-auth
// requirement keyed to {userId, resourcePath}, per spec §4.6's
// "Step-up" algorithm: "completed only when all required factors are
// validated; downstream operations treat an active step-up as
// satisfying the elevated-auth requirement."
type StepUpSession struct {
	Token            string
	UserID           string
	ResourcePath     string
	RequiredMethods  []mfa.MFAMethod
	CompletedMethods []mfa.MFAMethod
	// ChallengeID is the mfa.Verifier-issued challenge ID for the
	// most recently issued factor, passed back into Verify (it is
	// distinct from Token: one step-up round trip may issue several
	// challenge IDs across its required factors).
	ChallengeID string
	CreatedAt   time.Time
	ExpiresAt   time.Time
}

// IsSatisfied reports whether every required method has been completed.
func (s *StepUpSession) IsSatisfied() bool {
	for _, req := range s.RequiredMethods {
		found := false
		for _, done := range s.CompletedMethods {
			if done == req {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// IsExpired reports whether the session's token has passed its TTL.
func (s *StepUpSession) IsExpired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// StepUpStore persists StepUpSession rows across the challenge/verify
// round trip.
type StepUpStore interface {
	Create(ctx context.Context, sess *StepUpSession) error
	Get(ctx context.Context, token string) (*StepUpSession, error)
	Save(ctx context.Context, sess *StepUpSession) error
}

// InMemoryStepUpStore is the default StepUpStore: step-up sessions are
// short-lived (DefaultChallengeTTL-scale) and local to a single
// instance's in-flight login, the same "map protected by a mutex"
// shape mfa's SMS/email verifiers use for their own challenge state.
type InMemoryStepUpStore struct {
	mu       sync.Mutex
	sessions map[string]*StepUpSession
}

// NewInMemoryStepUpStore builds an empty InMemoryStepUpStore.
func NewInMemoryStepUpStore() *InMemoryStepUpStore {
	return &InMemoryStepUpStore{sessions: make(map[string]*StepUpSession)}
}

func (s *InMemoryStepUpStore) Create(ctx context.Context, sess *StepUpSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}

func (s *InMemoryStepUpStore) Get(ctx context.Context, token string) (*StepUpSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChallengeNotFound, token)
	}
	return sess, nil
}

func (s *InMemoryStepUpStore) Save(ctx context.Context, sess *StepUpSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}
