package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vaultcore/usp/encryption"
	"github.com/vaultcore/usp/validate"
)

// maxLoggedFieldLength bounds every free-form Record field sanitized
// through validate.SanitizeForLog before it is chained and persisted -
// generous enough for a human-written Action/Details string, small
// enough to keep a hostile caller from inflating the audit log.
const maxLoggedFieldLength = 4096

// auditEncryptionContext scopes the audit-encryption-key derivation
// away from every other master-key use, per SPEC_FULL.md's "dedicated
// secret-encryption-key and audit-encryption-key from the master key via
// context strings" design.
const auditEncryptionContext = "audit:details"

// sealer is the subset of *encryption.Service that Engine depends on,
// so audit can be exercised in tests without constructing a seal.Manager.
type sealer interface {
	Encrypt(ctx context.Context, ctxName string, plaintext, aad []byte) (string, error)
	Decrypt(ctx context.Context, ctxName string, envelope string, aad []byte) ([]byte, error)
}

// Engine appends and queries the audit log's hash chain.
type Engine struct {
	store Store
	enc   sealer
}

// NewEngine builds an Engine over store. enc may be nil; callers that
// never mark a record sensitive (DetailsSealed) don't need one.
func NewEngine(store Store, enc *encryption.Service) *Engine {
	var s sealer
	if enc != nil {
		s = enc
	}
	return &Engine{store: store, enc: s}
}

// Append records one audit event, per spec §4.5's write path: compute
// the canonical serialization, chain it to the previous record's hash,
// and persist. sensitive, when true, seals details through the
// audit-encryption-key instead of storing it as plaintext.
func (e *Engine) Append(ctx context.Context, event Record, sensitive bool) (*Record, error) {
	rec := event
	rec.ID = uuid.NewString()
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	// Every free-form field is attacker-influenceable (a failed login's
	// username, a PAM command's details) and flows straight into the
	// CSV/JSON export and the hash chain, so sanitize for log/structured-
	// export safety before it is ever chained. Details of a sensitive
	// record is not sanitized: it is sealed as given, the envelope is what
	// gets chained and exported, and RevealDetails returns the original
	// plaintext.
	rec.UserID = validate.SanitizeForLog(rec.UserID, maxLoggedFieldLength)
	rec.EventType = validate.SanitizeForLog(rec.EventType, maxLoggedFieldLength)
	rec.Resource = validate.SanitizeForLog(rec.Resource, maxLoggedFieldLength)
	rec.Action = validate.SanitizeForLog(rec.Action, maxLoggedFieldLength)
	rec.IPAddress = validate.SanitizeForLog(rec.IPAddress, maxLoggedFieldLength)
	rec.CorrelationID = validate.SanitizeForLog(rec.CorrelationID, maxLoggedFieldLength)
	if !sensitive {
		rec.Details = validate.SanitizeForLog(rec.Details, maxLoggedFieldLength)
	}

	if sensitive && rec.Details != "" {
		if e.enc == nil {
			return nil, fmt.Errorf("audit: sensitive record requires an encryption service")
		}
		sealed, err := e.enc.Encrypt(ctx, auditEncryptionContext, []byte(rec.Details), []byte(rec.EventType))
		if err != nil {
			return nil, fmt.Errorf("audit: sealing details: %w", err)
		}
		rec.Details = sealed
		rec.DetailsSealed = true
	}

	prev, err := e.store.LatestHash(ctx)
	if err != nil {
		return nil, fmt.Errorf("audit: reading latest hash: %w", err)
	}
	rec.PreviousHash = prev
	rec.ThisHash = chainHash(&rec)

	if err := e.store.Append(ctx, &rec); err != nil {
		return nil, fmt.Errorf("audit: appending record: %w", err)
	}
	return &rec, nil
}

// RevealDetails decrypts a sealed record's Details for an authorized
// reader. Returns the plaintext unchanged if the record was never sealed.
func (e *Engine) RevealDetails(ctx context.Context, rec *Record) (string, error) {
	if !rec.DetailsSealed {
		return rec.Details, nil
	}
	if e.enc == nil {
		return "", fmt.Errorf("audit: sealed record requires an encryption service")
	}
	plaintext, err := e.enc.Decrypt(ctx, auditEncryptionContext, rec.Details, []byte(rec.EventType))
	if err != nil {
		return "", fmt.Errorf("audit: unsealing details: %w", err)
	}
	return string(plaintext), nil
}

// Query returns a page of records matching filter, per spec §4.5's read
// path (filters on userId/eventType/resource-prefix/action/success/
// ipAddress/correlationId/date range/full-text on details).
func (e *Engine) Query(ctx context.Context, filter Filter) (Page, error) {
	if filter.PageSize > MaxPageSize {
		return Page{}, ErrPageSizeTooLarge
	}
	return e.store.Query(ctx, filter)
}

// Get retrieves a single record by ID.
func (e *Engine) Get(ctx context.Context, id string) (*Record, error) {
	return e.store.Get(ctx, id)
}

// VerifyIntegrity replays every record with Timestamp in [start, end) in
// order, recomputing each thisHash and checking it both against the
// stored value and against the chain link to the prior record, per spec
// §4.5's verifyIntegrity semantics.
func (e *Engine) VerifyIntegrity(ctx context.Context, start, end time.Time) (*ChainVerificationResult, error) {
	if end.Before(start) {
		return nil, ErrInvalidRange
	}
	records, err := e.store.Range(ctx, start, end)
	if err != nil {
		return nil, fmt.Errorf("audit: ranging records: %w", err)
	}

	result := &ChainVerificationResult{StartTime: start, EndTime: end, TotalRecords: len(records)}
	prevHash := zeroHash
	havePrev := false

	for i := range records {
		rec := records[i]
		recomputed := chainHash(&rec)
		if recomputed != rec.ThisHash {
			result.Issues = append(result.Issues, ChainBreak{
				Index: i, RecordID: rec.ID, Type: ChainBreakHashMismatch,
				Message: "stored thisHash does not match the recomputed hash of the record",
			})
		}
		if havePrev && rec.PreviousHash != prevHash {
			result.Issues = append(result.Issues, ChainBreak{
				Index: i, RecordID: rec.ID, Type: ChainBreakLinkMismatch,
				Message: "previousHash does not equal the prior record's thisHash",
			})
		}
		prevHash = rec.ThisHash
		havePrev = true
	}

	return result, nil
}
