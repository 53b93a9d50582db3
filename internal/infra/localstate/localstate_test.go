package localstate_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/infra/localstate"

	"github.com/shopspring/decimal"
)

func newStore(t *testing.T) *localstate.Store {
	t.Helper()
	s, err := localstate.New(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return s
}

func sampleTransaction(id string) domain.Transaction {
	return domain.Transaction{
		ID:        id,
		Amount:    decimal.NewFromInt(100),
		Type:      domain.TypeExpense,
		Category:  "Food",
		Date:      domain.NewDate(2024, time.January, 1),
		CreatedAt: time.Date(2024, time.January, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestStore_EmptyOnFreshDir(t *testing.T) {
	s := newStore(t)

	list, err := s.Transactions()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d entries", len(list))
	}

	queue, err := s.Pending()
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(queue) != 0 {
		t.Errorf("expected empty queue, got %d entries", len(queue))
	}

	if s.SyncNeeded() {
		t.Error("expected sync flag to default to false")
	}
}

func TestStore_TransactionsRoundTrip(t *testing.T) {
	s := newStore(t)

	list := []domain.Transaction{sampleTransaction("offline_1_abc"), sampleTransaction("server_2_def")}
	if err := s.SaveTransactions(list); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := s.Transactions()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(loaded))
	}
	if loaded[0].ID != "offline_1_abc" || loaded[1].ID != "server_2_def" {
		t.Errorf("order not preserved: %s, %s", loaded[0].ID, loaded[1].ID)
	}
	if !loaded[0].Amount.Equal(decimal.NewFromInt(100)) {
		t.Errorf("amount not preserved: %s", loaded[0].Amount)
	}
}

// Saving a just-loaded list must produce a byte-equivalent persisted value.
func TestStore_SaveLoadIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, err := localstate.New(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.SaveTransactions([]domain.Transaction{sampleTransaction("server_1_a")}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	first, err := os.ReadFile(filepath.Join(dir, "transactions.json"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	loaded, err := s.Transactions()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if err := s.SaveTransactions(loaded); err != nil {
		t.Fatalf("re-save failed: %v", err)
	}
	second, err := os.ReadFile(filepath.Join(dir, "transactions.json"))
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Errorf("save(load()) not idempotent:\nfirst:  %s\nsecond: %s", first, second)
	}
}

func TestStore_PendingRoundTripAndClear(t *testing.T) {
	s := newStore(t)

	queue := []domain.PendingMutation{
		{Action: domain.ActionCreate, Transaction: sampleTransaction("offline_1_a"), QueuedAt: time.Now().UTC()},
		{Action: domain.ActionDelete, Transaction: sampleTransaction("server_2_b"), TargetID: "server_2_b", QueuedAt: time.Now().UTC()},
	}
	if err := s.SavePending(queue); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	loaded, err := s.Pending()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("expected 2 mutations, got %d", len(loaded))
	}
	if loaded[0].Action != domain.ActionCreate || loaded[1].Action != domain.ActionDelete {
		t.Error("enqueue order not preserved")
	}
	if loaded[1].ReplayID() != "server_2_b" {
		t.Errorf("expected targetId 'server_2_b', got '%s'", loaded[1].ReplayID())
	}

	if err := s.ClearPending(); err != nil {
		t.Fatalf("clear failed: %v", err)
	}
	loaded, err = s.Pending()
	if err != nil {
		t.Fatalf("load after clear failed: %v", err)
	}
	if len(loaded) != 0 {
		t.Errorf("expected empty queue after clear, got %d", len(loaded))
	}

	// Clearing an already-empty slot is fine.
	if err := s.ClearPending(); err != nil {
		t.Errorf("expected idempotent clear, got %v", err)
	}
}

func TestStore_SyncFlagRoundTrip(t *testing.T) {
	s := newStore(t)

	if err := s.SetSyncNeeded(true); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if !s.SyncNeeded() {
		t.Error("expected sync flag true")
	}

	if err := s.SetSyncNeeded(false); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if s.SyncNeeded() {
		t.Error("expected sync flag false")
	}
}

// A write into an unwritable directory must fail without touching the
// previously stored value.
func TestStore_FailedWritePreservesOldValue(t *testing.T) {
	dir := t.TempDir()
	s, err := localstate.New(dir)
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}

	if err := s.SaveTransactions([]domain.Transaction{sampleTransaction("server_1_a")}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatalf("chmod failed: %v", err)
	}
	defer os.Chmod(dir, 0o755)

	err = s.SaveTransactions([]domain.Transaction{sampleTransaction("server_2_b")})
	if err == nil {
		t.Skip("running as privileged user, write restriction not enforced")
	}

	os.Chmod(dir, 0o755)
	loaded, loadErr := s.Transactions()
	if loadErr != nil {
		t.Fatalf("load failed: %v", loadErr)
	}
	if len(loaded) != 1 || loaded[0].ID != "server_1_a" {
		t.Error("failed write corrupted the previous value")
	}
}
