package session

import (
	"context"
	"errors"
)

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

var (
	ErrSessionNotFound = errors.New("session: not found")
	ErrSessionExists   = errors.New("session: already exists")
)

// Store persists PrivilegedSessions and their command logs.
type Store interface {
	Create(ctx context.Context, s *PrivilegedSession) error
	Get(ctx context.Context, id string) (*PrivilegedSession, error)
	Update(ctx context.Context, s *PrivilegedSession) error
	ListByCheckout(ctx context.Context, checkoutID string, limit int) ([]*PrivilegedSession, error)

	// AppendCommand stores cmd, which must already have its
	// SequenceNumber assigned by Recorder.
	AppendCommand(ctx context.Context, cmd *SessionCommand) error
	// ListCommands returns a session's commands ordered by
	// SequenceNumber ascending.
	ListCommands(ctx context.Context, sessionID string) ([]*SessionCommand, error)
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultQueryLimit
	}
	if limit > MaxQueryLimit {
		return MaxQueryLimit
	}
	return limit
}
