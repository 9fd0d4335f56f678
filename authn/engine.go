package authn

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/vaultcore/usp/audit"
	"github.com/vaultcore/usp/authn/risk"
	"github.com/vaultcore/usp/mfa"
)

// EngineConfig tunes Engine's thresholds; zero values fall back to the
// package defaults.
type EngineConfig struct {
	AccessTokenTTL         time.Duration
	RefreshTokenTTL        time.Duration
	ChallengeTTL           time.Duration
	MaxFailedLoginAttempts int
	LockoutDuration        time.Duration
	MaxConcurrentSessions  int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.ChallengeTTL == 0 {
		c.ChallengeTTL = DefaultChallengeTTL
	}
	if c.MaxFailedLoginAttempts == 0 {
		c.MaxFailedLoginAttempts = DefaultMaxFailedLoginAttempts
	}
	if c.LockoutDuration == 0 {
		c.LockoutDuration = DefaultLockoutDuration
	}
	if c.MaxConcurrentSessions == 0 {
		c.MaxConcurrentSessions = DefaultMaxConcurrentSessions
	}
	return c
}

// Engine implements login/refresh/logout/step-up per spec §4.6. It
// composes a risk.Assessor, a PolicyEvaluator, an mfa.Verifier, and the
// JWT/session persistence layers the way the teacher's break-glass
// engine composes its own Store/Verifier/notifier dependencies.
type Engine struct {
	users    UserStore
	sessions SessionStore
	stepUps  StepUpStore
	risk     risk.Assessor
	policy   PolicyEvaluator
	mfa      mfa.Verifier
	signer   *JWTSigner
	auditLog *audit.Engine
	cfg      EngineConfig
}

// NewEngine builds an Engine. mfa may be nil if step-up is never
// required by policy; auditLog may be nil in tests that don't assert
// on audit output.
func NewEngine(users UserStore, sessions SessionStore, stepUps StepUpStore, riskAssessor risk.Assessor, policy PolicyEvaluator, verifier mfa.Verifier, signer *JWTSigner, auditLog *audit.Engine, cfg EngineConfig) *Engine {
	if stepUps == nil {
		stepUps = NewInMemoryStepUpStore()
	}
	if policy == nil {
		policy = &DefaultPolicyEvaluator{}
	}
	return &Engine{
		users: users, sessions: sessions, stepUps: stepUps,
		risk: riskAssessor, policy: policy, mfa: verifier,
		signer: signer, auditLog: auditLog, cfg: cfg.withDefaults(),
	}
}

// LoginRequest is the input to Engine.Login.
type LoginRequest struct {
	Username     string
	Password     string
	Resource     string // optional; the resource being accessed, for policy evaluation
	IPAddress    string
	UserAgent    string
	Device       string
	StepUpToken  string // present when completing a previously-issued step-up challenge
	StepUpMethod string
	StepUpCode   string
}

// LoginResult is the successful output of Engine.Login, or a
// MFARequired result carrying the challenge token to complete.
type LoginResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	Session      *Session
	Risk         risk.Assessment

	MFARequired     bool
	StepUpToken     string
	RequiredMethods []MFAMethodName
}

// Login implements spec §4.6's numbered login algorithm.
func (e *Engine) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	now := time.Now().UTC()

	user, err := e.users.GetByUsername(ctx, normalizeUsername(req.Username))
	if err != nil {
		e.audit(ctx, "auth.login", "", req, false, "user not found")
		return nil, ErrInvalidCredentials
	}

	if user.IsLocked(now) {
		e.audit(ctx, "auth.login", user.ID, req, false, "account locked")
		return nil, ErrLockedOut
	}

	if !e.verifyPassword(user.PasswordHash, req.Password) {
		if err := e.recordFailedLogin(ctx, user, now); err != nil {
			return nil, err
		}
		e.audit(ctx, "auth.login", user.ID, req, false, "invalid password")
		return nil, ErrInvalidCredentials
	}

	if user.FailedLoginAttempts != 0 || !user.LockedUntil.IsZero() {
		user.FailedLoginAttempts = 0
		user.LockedUntil = time.Time{}
		if err := e.users.Save(ctx, user, user.UpdatedAt); err != nil && !errors.Is(err, ErrConcurrentModification) {
			return nil, fmt.Errorf("authn: clearing failed-login counter: %w", err)
		}
	}

	assessment, err := e.risk.Assess(ctx, risk.Context{UserID: user.ID, IPAddress: req.IPAddress, Device: req.Device, At: now})
	if err != nil {
		return nil, fmt.Errorf("authn: assessing login risk: %w", err)
	}

	stepUpSatisfied, err := e.consumeStepUp(ctx, user.ID, req)
	if err != nil {
		return nil, err
	}

	decision, err := e.policy.Evaluate(ctx, PolicyRequest{
		UserID: user.ID, Resource: req.Resource, Risk: assessment, StepUpSatisfied: stepUpSatisfied,
	})
	if err != nil {
		return nil, fmt.Errorf("authn: evaluating login policy: %w", err)
	}

	switch decision.Effect {
	case PolicyEffectDeny:
		e.audit(ctx, "auth.login", user.ID, req, false, "denied by policy: "+decision.Reason)
		return nil, ErrDenied
	case PolicyEffectRequireStepUp:
		token, err := e.issueStepUpChallenge(ctx, user.ID, req.Resource, decision.RequiredMethods, now)
		if err != nil {
			return nil, err
		}
		e.audit(ctx, "auth.login", user.ID, req, false, "mfa required: "+decision.Reason)
		return &LoginResult{Risk: assessment, MFARequired: true, StepUpToken: token, RequiredMethods: decision.RequiredMethods}, nil
	}

	result, err := e.issueSession(ctx, user, req, now)
	if err != nil {
		return nil, err
	}
	result.Risk = assessment
	e.audit(ctx, "auth.login", user.ID, req, true, "")
	return result, nil
}

// consumeStepUp validates a presented step-up completion (if any)
// against the MFA verifier, marks the factor complete, and reports
// whether the session's required factors are now all satisfied.
func (e *Engine) consumeStepUp(ctx context.Context, userID string, req LoginRequest) (bool, error) {
	if req.StepUpToken == "" {
		return false, nil
	}
	sess, err := e.stepUps.Get(ctx, req.StepUpToken)
	if err != nil {
		return false, err
	}
	if sess.UserID != userID {
		return false, ErrChallengeNotFound
	}
	if sess.IsExpired(time.Now().UTC()) {
		return false, ErrChallengeExpired
	}
	if req.StepUpMethod != "" && req.StepUpCode != "" {
		if e.mfa == nil {
			return false, ErrStepUpNotSatisfied
		}
		ok, err := e.mfa.Verify(ctx, sess.ChallengeID, req.StepUpCode)
		if err != nil {
			return false, fmt.Errorf("authn: verifying step-up factor: %w", err)
		}
		if ok {
			sess.CompletedMethods = append(sess.CompletedMethods, mfa.MFAMethod(req.StepUpMethod))
			if err := e.stepUps.Save(ctx, sess); err != nil {
				return false, fmt.Errorf("authn: saving step-up progress: %w", err)
			}
		}
	}
	return sess.IsSatisfied(), nil
}

// issueStepUpChallenge creates a new StepUpSession and, when an MFA
// verifier is configured, asks it to issue the first challenge.
func (e *Engine) issueStepUpChallenge(ctx context.Context, userID, resource string, methods []MFAMethodName, now time.Time) (string, error) {
	token := NewSessionID()
	required := make([]mfa.MFAMethod, 0, len(methods))
	for _, m := range methods {
		required = append(required, mfa.MFAMethod(m))
	}
	sess := &StepUpSession{
		Token: token, UserID: userID, ResourcePath: resource,
		RequiredMethods: required, CreatedAt: now, ExpiresAt: now.Add(e.cfg.ChallengeTTL),
	}
	if e.mfa != nil {
		challenge, err := e.mfa.Challenge(ctx, userID)
		if err != nil {
			return "", fmt.Errorf("authn: issuing mfa challenge: %w", err)
		}
		if challenge != nil {
			sess.ChallengeID = challenge.ID
		}
	}
	if err := e.stepUps.Create(ctx, sess); err != nil {
		return "", fmt.Errorf("authn: creating step-up session: %w", err)
	}
	return token, nil
}

// issueSession mints an access/refresh token pair, persists the
// Session row, and enforces the concurrent-session cap.
func (e *Engine) issueSession(ctx context.Context, user *User, req LoginRequest, now time.Time) (*LoginResult, error) {
	accessToken, jti, err := e.signer.Issue(user, e.cfg.AccessTokenTTL, now)
	if err != nil {
		return nil, err
	}
	refreshToken, err := newRefreshToken()
	if err != nil {
		return nil, fmt.Errorf("authn: generating refresh token: %w", err)
	}

	sess := &Session{
		ID:               NewSessionID(),
		UserID:           user.ID,
		TokenHash:        sha256.Sum256([]byte(jti)),
		RefreshTokenHash: sha256.Sum256([]byte(refreshToken)),
		IPAddress:        req.IPAddress,
		UserAgent:        req.UserAgent,
		CreatedAt:        now,
		LastActivity:     now,
		ExpiresAt:        now.Add(e.cfg.RefreshTokenTTL),
	}
	if err := e.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("authn: creating session: %w", err)
	}

	if err := e.enforceSessionCap(ctx, user.ID); err != nil {
		return nil, err
	}

	return &LoginResult{
		AccessToken: accessToken, RefreshToken: refreshToken,
		ExpiresAt: now.Add(e.cfg.AccessTokenTTL), Session: sess,
	}, nil
}

// enforceSessionCap revokes the oldest-by-lastActivity sessions beyond
// MaxConcurrentSessions, per spec §4.6 item 6.
func (e *Engine) enforceSessionCap(ctx context.Context, userID string) error {
	active, err := e.sessions.ListActiveByUser(ctx, userID)
	if err != nil {
		return fmt.Errorf("authn: listing active sessions: %w", err)
	}
	if len(active) <= e.cfg.MaxConcurrentSessions {
		return nil
	}
	excess := len(active) - e.cfg.MaxConcurrentSessions
	for i := 0; i < excess; i++ {
		sess := active[i]
		sess.Revoked = true
		sess.RevokedReason = "concurrent session cap exceeded"
		if err := e.sessions.Save(ctx, sess, sess.LastActivity); err != nil {
			return fmt.Errorf("authn: revoking oldest session: %w", err)
		}
	}
	return nil
}

// RefreshRequest is the input to Engine.Refresh.
type RefreshRequest struct {
	RefreshToken string
	IPAddress    string
	UserAgent    string
	Rotate       bool
}

// Refresh implements spec §4.6's refresh algorithm, including replay
// detection: a refresh token presented after it was already consumed
// (the session it hashes to is revoked) triggers revoke-all.
func (e *Engine) Refresh(ctx context.Context, req RefreshRequest) (*LoginResult, error) {
	hash := sha256.Sum256([]byte(req.RefreshToken))
	sess, err := e.sessions.GetByRefreshHash(ctx, hash)
	if err != nil {
		return nil, ErrSessionNotFound
	}

	now := time.Now().UTC()
	if sess.Revoked {
		if err := e.sessions.RevokeAll(ctx, sess.UserID, "refresh token replay detected"); err != nil {
			return nil, fmt.Errorf("authn: revoking sessions after replay: %w", err)
		}
		e.auditRaw(ctx, "auth.refresh.replay", sess.UserID, req.IPAddress, false, "replayed refresh token")
		return nil, ErrRefreshReplay
	}
	if !sess.IsActive(now) {
		return nil, ErrSessionRevoked
	}

	user, err := e.users.GetByID(ctx, sess.UserID)
	if err != nil {
		return nil, err
	}

	accessToken, jti, err := e.signer.Issue(user, e.cfg.AccessTokenTTL, now)
	if err != nil {
		return nil, err
	}

	expected := sess.LastActivity
	sess.TokenHash = sha256.Sum256([]byte(jti))
	sess.LastActivity = now
	refreshToken := req.RefreshToken

	if req.Rotate {
		refreshToken, err = newRefreshToken()
		if err != nil {
			return nil, fmt.Errorf("authn: generating refresh token: %w", err)
		}
		// The consumed token's session is revoked rather than overwritten,
		// so presenting that token again lands on the replay branch above;
		// the rotated token is carried by a fresh session row.
		consumed := *sess
		consumed.Revoked = true
		consumed.RevokedReason = "refresh token rotated"
		if err := e.sessions.Save(ctx, &consumed, expected); err != nil {
			return nil, fmt.Errorf("authn: revoking consumed session: %w", err)
		}
		sess.ID = NewSessionID()
		sess.RefreshTokenHash = sha256.Sum256([]byte(refreshToken))
		if err := e.sessions.Create(ctx, sess); err != nil {
			return nil, fmt.Errorf("authn: creating rotated session: %w", err)
		}
	} else if err := e.sessions.Save(ctx, sess, expected); err != nil {
		return nil, fmt.Errorf("authn: saving refreshed session: %w", err)
	}

	e.auditRaw(ctx, "auth.refresh", sess.UserID, req.IPAddress, true, "")
	return &LoginResult{
		AccessToken: accessToken, RefreshToken: refreshToken,
		ExpiresAt: now.Add(e.cfg.AccessTokenTTL), Session: sess,
	}, nil
}

// Logout revokes the named session, optionally cascading to every
// other active session the user holds.
func (e *Engine) Logout(ctx context.Context, sessionID string, revokeAll bool) error {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if revokeAll {
		return e.sessions.RevokeAll(ctx, sess.UserID, "logout")
	}
	sess.Revoked = true
	sess.RevokedReason = "logout"
	return e.sessions.Save(ctx, sess, sess.LastActivity)
}

// RevokeSession terminates a single named session on an administrator's
// behalf, distinct from Logout's self-service path: revokedBy identifies
// the operator forcing the revocation and reason is recorded alongside
// it for audit. Valid transitions are active->revoked only; revoking an
// already-revoked or already-expired session reports which, rather than
// silently no-op'ing, so an admin-facing revoke endpoint can explain why
// nothing changed.
func (e *Engine) RevokeSession(ctx context.Context, sessionID, revokedBy, reason string) error {
	sess, err := e.sessions.Get(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.Revoked {
		return ErrSessionAlreadyRevoked
	}
	if !sess.ExpiresAt.After(time.Now().UTC()) {
		return ErrSessionExpired
	}
	sess.Revoked = true
	sess.RevokedReason = reason
	sess.RevokedBy = revokedBy
	if err := e.sessions.Save(ctx, sess, sess.LastActivity); err != nil {
		return fmt.Errorf("authn: saving revoked session: %w", err)
	}
	e.auditRaw(ctx, "auth.session.revoke", sess.UserID, "", true, "revoked by "+revokedBy+": "+reason)
	return nil
}

// verifyPassword constant-time-compares password against hash via bcrypt.
func (e *Engine) verifyPassword(hash, password string) bool {
	if hash == "" {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// HashPassword hashes password with bcrypt at the default cost, for
// account creation and password rotation.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("authn: hashing password: %w", err)
	}
	return string(hash), nil
}

// ErrConcurrentModification mirrors the other Store interfaces'
// optimistic-locking sentinel; UserStore/SessionStore implementations
// return it on a failed conditional update.
var ErrConcurrentModification = errors.New("authn: concurrent modification")

func (e *Engine) recordFailedLogin(ctx context.Context, user *User, now time.Time) error {
	user.FailedLoginAttempts++
	if user.FailedLoginAttempts >= e.cfg.MaxFailedLoginAttempts {
		user.LockedUntil = now.Add(e.cfg.LockoutDuration)
	}
	if err := e.users.Save(ctx, user, user.UpdatedAt); err != nil && !errors.Is(err, ErrConcurrentModification) {
		return fmt.Errorf("authn: recording failed login: %w", err)
	}
	return nil
}

func (e *Engine) audit(ctx context.Context, eventType, userID string, req LoginRequest, success bool, detail string) {
	e.auditRaw(ctx, eventType, userID, req.IPAddress, success, detail)
}

func (e *Engine) auditRaw(ctx context.Context, eventType, userID, ipAddress string, success bool, detail string) {
	if e.auditLog == nil {
		return
	}
	_, _ = e.auditLog.Append(ctx, audit.Record{
		UserID: userID, EventType: eventType, Action: eventType,
		Success: success, IPAddress: ipAddress, Details: detail,
	}, false)
}

func normalizeUsername(username string) string {
	out := make([]byte, 0, len(username))
	for i := 0; i < len(username); i++ {
		c := username[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

func newRefreshToken() (string, error) {
	b := make([]byte, RefreshTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
