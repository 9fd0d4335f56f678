package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/vaultcore/usp/audit"
)

type fakeActivitySource struct {
	activities []audit.Activity
}

func (f fakeActivitySource) ListActivity(ctx context.Context, start, end time.Time) ([]audit.Activity, error) {
	return f.activities, nil
}

func TestReconcileMissingEntriesFlagsUnauditedActivity(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	now := time.Now().UTC()

	if _, err := e.Append(ctx, audit.Record{
		EventType: "secret.write", UserID: "alice", Success: true, CorrelationID: "corr-1",
	}, false); err != nil {
		t.Fatalf("Append: %v", err)
	}

	sources := map[string]audit.ActivitySource{
		"kv": fakeActivitySource{activities: []audit.Activity{
			{CorrelationID: "corr-1", EventType: "secret.write", Resource: "secret/a", Timestamp: now},
			{CorrelationID: "corr-2", EventType: "secret.write", Resource: "secret/b", Timestamp: now},
		}},
	}

	result, err := e.ReconcileMissingEntries(ctx, sources, now.Add(-time.Hour), now.Add(time.Hour))
	if err != nil {
		t.Fatalf("ReconcileMissingEntries: %v", err)
	}
	if result.TotalActivities != 2 {
		t.Fatalf("TotalActivities = %d, want 2", result.TotalActivities)
	}
	if len(result.Missing) != 1 {
		t.Fatalf("expected 1 missing entry, got %d", len(result.Missing))
	}
	if result.Missing[0].CorrelationID != "corr-2" {
		t.Fatalf("expected corr-2 to be missing, got %q", result.Missing[0].CorrelationID)
	}
	if rate := result.ComplianceRate(); rate != 50 {
		t.Fatalf("ComplianceRate = %v, want 50", rate)
	}
}

func TestReconcileMissingEntriesRejectsInvalidRange(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	now := time.Now().UTC()
	if _, err := e.ReconcileMissingEntries(ctx, nil, now, now.Add(-time.Hour)); err != audit.ErrInvalidRange {
		t.Fatalf("expected ErrInvalidRange, got %v", err)
	}
}
