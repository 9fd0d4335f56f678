package session

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// SuspiciousRule inspects one command and reports whether it matches a
// configured suspicious-activity pattern, naming itself in matched.
type SuspiciousRule interface {
	Name() string
	Match(cmd *SessionCommand) bool
}

// RuleFunc adapts a function to SuspiciousRule.
type RuleFunc struct {
	RuleName string
	Fn       func(cmd *SessionCommand) bool
}

func (r RuleFunc) Name() string                  { return r.RuleName }
func (r RuleFunc) Match(cmd *SessionCommand) bool { return r.Fn(cmd) }

// Recorder assigns strictly increasing per-session sequence numbers
// and persists each SessionCommand, running it through the configured
// SuspiciousRules first.
type Recorder struct {
	Store Store
	Rules []SuspiciousRule

	mu    sync.Mutex
	nextSeq map[string]int64
}

func NewRecorder(store Store, rules ...SuspiciousRule) *Recorder {
	return &Recorder{Store: store, Rules: rules, nextSeq: make(map[string]int64)}
}

// Start opens a new PrivilegedSession for checkoutID.
func (r *Recorder) Start(ctx context.Context, checkoutID, protocol, platform string) (*PrivilegedSession, error) {
	now := time.Now().UTC()
	sess := &PrivilegedSession{
		ID: NewID(), CheckoutID: checkoutID, Protocol: protocol, Platform: platform,
		StartedAt: now, RecordingFormat: RecordingFormatCommandLog, UpdatedAt: now,
	}
	if err := r.Store.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("session: creating session: %w", err)
	}
	return sess, nil
}

// Append records one command against sessionID, assigning the next
// sequence number and evaluating every SuspiciousRule against it. If
// any rule matches, the session's SuspiciousActivityDetected flag is
// set (once set, it is never cleared).
func (r *Recorder) Append(ctx context.Context, sessionID, command, response string, exitCode int) (*SessionCommand, error) {
	r.mu.Lock()
	seq := r.nextSeq[sessionID] + 1
	r.nextSeq[sessionID] = seq
	r.mu.Unlock()

	cmd := &SessionCommand{
		SessionID: sessionID, SequenceNumber: seq, ExecutedAt: time.Now().UTC(),
		Command: command, Response: response, ExitCode: exitCode,
	}
	for _, rule := range r.Rules {
		if rule.Match(cmd) {
			cmd.Suspicious = true
			cmd.MatchedRule = rule.Name()
			break
		}
	}
	if err := r.Store.AppendCommand(ctx, cmd); err != nil {
		return nil, fmt.Errorf("session: appending command: %w", err)
	}

	sess, err := r.Store.Get(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("session: loading session: %w", err)
	}
	sess.CommandCount = int(seq)
	if cmd.Suspicious {
		sess.SuspiciousActivityDetected = true
	}
	sess.UpdatedAt = time.Now().UTC()
	if err := r.Store.Update(ctx, sess); err != nil {
		return nil, fmt.Errorf("session: updating session: %w", err)
	}
	return cmd, nil
}

// End closes a PrivilegedSession.
func (r *Recorder) End(ctx context.Context, sessionID string) error {
	sess, err := r.Store.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.EndedAt = time.Now().UTC()
	sess.UpdatedAt = sess.EndedAt
	return r.Store.Update(ctx, sess)
}
