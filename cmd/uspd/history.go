package main

import (
	"context"
	"time"

	"github.com/vaultcore/usp/audit"
	"github.com/vaultcore/usp/authn/risk"
)

// auditHistory implements risk.History by reading the "auth.login" trail
// Engine.Login already writes to the audit log for every attempt,
// success or failure (authn/engine.go's audit/auditRaw helpers). This
// needs no separate write path: the audit log is the dedicated
// login-attempt log risk.History's doc comment describes, so recording
// here would just duplicate what Engine.Login already does.
type auditHistory struct {
	log *audit.Engine
}

func newAuditHistory(log *audit.Engine) *auditHistory {
	return &auditHistory{log: log}
}

func (h *auditHistory) RecentLogins(ctx context.Context, userID string, since time.Time) ([]risk.LoginAttempt, error) {
	page, err := h.log.Query(ctx, audit.Filter{
		UserID:    userID,
		EventType: "auth.login",
		Start:     since,
	})
	if err != nil {
		return nil, err
	}
	out := make([]risk.LoginAttempt, 0, len(page.Records))
	for _, rec := range page.Records {
		out = append(out, risk.LoginAttempt{
			IPAddress: rec.IPAddress,
			At:        rec.Timestamp,
		})
	}
	return out, nil
}
