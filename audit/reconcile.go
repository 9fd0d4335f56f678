package audit

import (
	"context"
	"fmt"
	"time"
)

// Activity is one operation reported by a PAM/KV/Transit component,
// independent of whether that component successfully wrote an audit
// record for it.
type Activity struct {
	CorrelationID string
	EventType     string
	Resource      string
	Timestamp     time.Time
}

// ActivitySource lists the operations a component performed in
// [start, end), for comparison against the audit log. Each concrete
// component (kv.Engine, transit.Engine, pam/checkout, ...) supplies a
// thin adapter satisfying this interface from its own operation log or
// Store, rather than audit depending on any of those packages directly.
type ActivitySource interface {
	ListActivity(ctx context.Context, start, end time.Time) ([]Activity, error)
}

// MissingEntry describes one Activity with no corresponding audit Record.
type MissingEntry struct {
	Source        string
	CorrelationID string
	EventType     string
	Resource      string
	Timestamp     time.Time
}

// ReconciliationResult summarizes one ReconcileMissingEntries run,
// generalized from the teacher's UntrackedSessionsResult/ComplianceRate
// shape from CloudTrail-vs-DynamoDB-session reconciliation into
// component-activity-vs-audit-row reconciliation.
type ReconciliationResult struct {
	StartTime       time.Time
	EndTime         time.Time
	TotalActivities int
	Missing         []MissingEntry
}

// ComplianceRate returns the percentage of activities with a matching
// audit record. Returns 100 if there were no activities to check.
func (r *ReconciliationResult) ComplianceRate() float64 {
	if r.TotalActivities == 0 {
		return 100
	}
	return float64(r.TotalActivities-len(r.Missing)) / float64(r.TotalActivities) * 100
}

// ReconcileMissingEntries sweeps every named source's activity in
// [start, end) and flags operations with no matching audit row, keyed
// by correlationId. This is a defense against a future bug bypassing
// the audit hook inside a component, not a security control in itself
// - the audit log it checks against is otherwise the record of record.
func (e *Engine) ReconcileMissingEntries(ctx context.Context, sources map[string]ActivitySource, start, end time.Time) (*ReconciliationResult, error) {
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	result := &ReconciliationResult{StartTime: start, EndTime: end}

	for name, source := range sources {
		activities, err := source.ListActivity(ctx, start, end)
		if err != nil {
			return nil, fmt.Errorf("audit: listing activity for %s: %w", name, err)
		}
		for _, act := range activities {
			result.TotalActivities++
			found, err := e.hasMatchingRecord(ctx, act)
			if err != nil {
				return nil, err
			}
			if !found {
				result.Missing = append(result.Missing, MissingEntry{
					Source: name, CorrelationID: act.CorrelationID,
					EventType: act.EventType, Resource: act.Resource, Timestamp: act.Timestamp,
				})
			}
		}
	}
	return result, nil
}

func (e *Engine) hasMatchingRecord(ctx context.Context, act Activity) (bool, error) {
	page, err := e.store.Query(ctx, Filter{
		CorrelationID: act.CorrelationID,
		EventType:     act.EventType,
		PageSize:      1,
	})
	if err != nil {
		return false, fmt.Errorf("audit: querying for correlationId %s: %w", act.CorrelationID, err)
	}
	return len(page.Records) > 0, nil
}
