package jit

import (
	"context"
	"errors"
)

const (
	DefaultQueryLimit = 100
	MaxQueryLimit     = 1000
)

var (
	ErrGrantNotFound    = errors.New("jit: grant not found")
	ErrGrantExists      = errors.New("jit: grant already exists")
	ErrApprovalNotFound = errors.New("jit: approval not found")
	ErrTemplateNotFound = errors.New("jit: template not found")
)

// Store persists Grants, Approvals, and Templates.
type Store interface {
	CreateGrant(ctx context.Context, g *Grant) error
	GetGrant(ctx context.Context, id string) (*Grant, error)
	UpdateGrant(ctx context.Context, g *Grant) error
	ListGrantsByStatus(ctx context.Context, status Status, limit int) ([]*Grant, error)
	ListGrantsByRequester(ctx context.Context, requester string, limit int) ([]*Grant, error)

	CreateApproval(ctx context.Context, a *Approval) error
	GetApproval(ctx context.Context, id string) (*Approval, error)
	UpdateApproval(ctx context.Context, a *Approval) error

	GetTemplate(ctx context.Context, id string) (*Template, error)
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
