package audit_test

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/vaultcore/usp/audit"
	"github.com/vaultcore/usp/crypto"
	"github.com/vaultcore/usp/encryption"
	usperrors "github.com/vaultcore/usp/errors"
)

type memStore struct {
	mu      sync.Mutex
	records []audit.Record
}

func newMemStore() *memStore {
	return &memStore{}
}

func (s *memStore) LatestHash(ctx context.Context) ([32]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		return [32]byte{}, nil
	}
	return s.records[len(s.records)-1].ThisHash, nil
}

func (s *memStore) Append(ctx context.Context, rec *audit.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, *rec)
	return nil
}

func (s *memStore) Get(ctx context.Context, id string) (*audit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.ID == id {
			clone := rec
			return &clone, nil
		}
	}
	return nil, audit.ErrRecordNotFound
}

func (s *memStore) Query(ctx context.Context, filter audit.Filter) (audit.Page, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var matched []audit.Record
	for _, rec := range s.records {
		if filter.UserID != "" && rec.UserID != filter.UserID {
			continue
		}
		if filter.EventType != "" && rec.EventType != filter.EventType {
			continue
		}
		if filter.CorrelationID != "" && rec.CorrelationID != filter.CorrelationID {
			continue
		}
		if filter.Success != nil && rec.Success != *filter.Success {
			continue
		}
		if !filter.Start.IsZero() && rec.Timestamp.Before(filter.Start) {
			continue
		}
		if !filter.End.IsZero() && !rec.Timestamp.Before(filter.End) {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool { return matched[i].Timestamp.Before(matched[j].Timestamp) })
	return audit.Page{Records: matched}, nil
}

func (s *memStore) Range(ctx context.Context, start, end time.Time) ([]audit.Record, error) {
	page, err := s.Query(ctx, audit.Filter{Start: start, End: end})
	return page.Records, err
}

type fixedKeySource struct{ key []byte }

func (f fixedKeySource) MasterKey() ([]byte, error) { return f.key, nil }

// memKeyStore is an in-memory encryption.KeyStore for tests.
type memKeyStore struct {
	mu   sync.Mutex
	rows map[string]encryption.KeyMeta
}

func newMemKeyStore() *memKeyStore {
	return &memKeyStore{rows: make(map[string]encryption.KeyMeta)}
}

func (s *memKeyStore) GetKeyMeta(_ context.Context, name string) (*encryption.KeyMeta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[name]
	if !ok {
		return nil, encryption.ErrKeyNotFound
	}
	return &row, nil
}

func (s *memKeyStore) CreateKeyMeta(_ context.Context, meta *encryption.KeyMeta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.rows[meta.Name]; ok {
		return usperrors.New(usperrors.CodeAlreadyExists, "already exists", nil)
	}
	s.rows[meta.Name] = *meta
	return nil
}

func (s *memKeyStore) SaveKeyMeta(_ context.Context, meta *encryption.KeyMeta, expectedLatestVersion int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[meta.Name]
	if !ok {
		return encryption.ErrKeyNotFound
	}
	if row.LatestVersion != expectedLatestVersion {
		return encryption.ErrConcurrentRotation
	}
	s.rows[meta.Name] = *meta
	return nil
}

func newEngine(t *testing.T) (*audit.Engine, *memStore) {
	t.Helper()
	key, err := crypto.RandomBytes(crypto.KeySize)
	if err != nil {
		t.Fatalf("RandomBytes: %v", err)
	}
	store := newMemStore()
	enc := encryption.NewService(fixedKeySource{key: key}, newMemKeyStore())
	return audit.NewEngine(store, enc), store
}

func TestAppendChainsHashes(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)

	first, err := e.Append(ctx, audit.Record{EventType: "auth.login", UserID: "alice", Success: true}, false)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if first.PreviousHash != ([32]byte{}) {
		t.Fatalf("expected first record's previousHash to be zero")
	}

	second, err := e.Append(ctx, audit.Record{EventType: "secret.write", UserID: "alice", Success: true}, false)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if second.PreviousHash != first.ThisHash {
		t.Fatalf("second record's previousHash should equal first record's thisHash")
	}
}

func TestAppendSealsSensitiveDetails(t *testing.T) {
	ctx := context.Background()
	e, store := newEngine(t)

	rec, err := e.Append(ctx, audit.Record{
		EventType: "pam.reveal", UserID: "bob", Success: true, Details: "plaintext-credential",
	}, true)
	if err != nil {
		t.Fatalf("Append: %v", err)
	}
	if !rec.DetailsSealed {
		t.Fatalf("expected DetailsSealed")
	}
	if rec.Details == "plaintext-credential" {
		t.Fatalf("sensitive details must not be stored in plaintext")
	}

	stored, err := store.Get(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	revealed, err := e.RevealDetails(ctx, stored)
	if err != nil {
		t.Fatalf("RevealDetails: %v", err)
	}
	if revealed != "plaintext-credential" {
		t.Fatalf("RevealDetails = %q, want %q", revealed, "plaintext-credential")
	}
}

func TestVerifyIntegrityPassesOnUntamperedChain(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	start := time.Now().UTC().Add(-time.Hour)

	for i := 0; i < 5; i++ {
		if _, err := e.Append(ctx, audit.Record{EventType: "sys.seal.unseal", UserID: "svc", Success: true}, false); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	result, err := e.VerifyIntegrity(ctx, start, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if result.HasIssues() {
		t.Fatalf("expected no issues, got %+v", result.Issues)
	}
	if result.TotalRecords != 5 {
		t.Fatalf("TotalRecords = %d, want 5", result.TotalRecords)
	}
	if result.PassRate() != 1 {
		t.Fatalf("PassRate = %v, want 1", result.PassRate())
	}
}

func TestVerifyIntegrityDetectsHashTamper(t *testing.T) {
	ctx := context.Background()
	e, store := newEngine(t)
	start := time.Now().UTC().Add(-time.Hour)

	if _, err := e.Append(ctx, audit.Record{EventType: "auth.login", UserID: "alice", Success: true}, false); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if _, err := e.Append(ctx, audit.Record{EventType: "secret.read", UserID: "alice", Success: true}, false); err != nil {
		t.Fatalf("Append: %v", err)
	}

	store.mu.Lock()
	store.records[1].Action = "tampered"
	store.mu.Unlock()

	result, err := e.VerifyIntegrity(ctx, start, time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("VerifyIntegrity: %v", err)
	}
	if !result.HasIssues() {
		t.Fatalf("expected a hash mismatch to be detected")
	}
	found := false
	for _, issue := range result.Issues {
		if issue.Type == audit.ChainBreakHashMismatch {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a ChainBreakHashMismatch issue, got %+v", result.Issues)
	}
}

func TestQueryRejectsOversizedPage(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(t)
	if _, err := e.Query(ctx, audit.Filter{PageSize: audit.MaxPageSize + 1}); err != audit.ErrPageSizeTooLarge {
		t.Fatalf("expected ErrPageSizeTooLarge, got %v", err)
	}
}
