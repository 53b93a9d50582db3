package store_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fintrack/fintrack-go/internal/domain"
	"github.com/fintrack/fintrack-go/internal/store"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

func tx(id string) domain.Transaction {
	return domain.Transaction{
		ID:        id,
		Amount:    decimal.NewFromFloat(99.50),
		Type:      domain.TypeExpense,
		Category:  "Transport",
		Date:      domain.NewDate(2024, time.March, 15),
		CreatedAt: time.Date(2024, time.March, 15, 8, 0, 0, 0, time.UTC),
		Synced:    true,
	}
}

func TestFileStore_CreatesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "transactions.json")

	s, err := store.New(path, zap.NewNop())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	list, err := s.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list, got %d entries", len(list))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("expected data file on disk: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("expected empty JSON array, got %s", data)
	}
}

func TestFileStore_SaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.json")
	s, err := store.New(path, zap.NewNop())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := s.Save([]domain.Transaction{tx("server_1_a"), tx("server_2_b")}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	list, err := s.Load()
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(list))
	}
	if list[0].ID != "server_1_a" {
		t.Errorf("order not preserved: got %s first", list[0].ID)
	}
	if !list[0].Amount.Equal(decimal.NewFromFloat(99.50)) {
		t.Errorf("amount not preserved: %s", list[0].Amount)
	}
}

func TestFileStore_MutateIsReadModifyWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.json")
	s, err := store.New(path, zap.NewNop())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if err := s.Save([]domain.Transaction{tx("server_1_a")}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	err = s.Mutate(func(list []domain.Transaction) ([]domain.Transaction, error) {
		return append(list, tx("server_2_b")), nil
	})
	if err != nil {
		t.Fatalf("mutate failed: %v", err)
	}

	list, _ := s.Load()
	if len(list) != 2 {
		t.Fatalf("expected 2 transactions after mutate, got %d", len(list))
	}
}

func TestFileStore_MutateErrorDoesNotPersist(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.json")
	s, err := store.New(path, zap.NewNop())
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if err := s.Save([]domain.Transaction{tx("server_1_a")}); err != nil {
		t.Fatalf("save failed: %v", err)
	}

	boom := errors.New("rejected")
	err = s.Mutate(func(list []domain.Transaction) ([]domain.Transaction, error) {
		return nil, boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected mutation error surfaced, got %v", err)
	}

	list, _ := s.Load()
	if len(list) != 1 {
		t.Errorf("failed mutation must not change the stored list, got %d entries", len(list))
	}
}

func TestFileStore_CorruptFileSurfacesStorageError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transactions.json")
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("setup failed: %v", err)
	}

	s, err := store.New(path, zap.NewNop())
	if err != nil {
		t.Fatalf("expected no error on open, got %v", err)
	}

	_, err = s.Load()
	var storageErr *domain.ErrStorage
	if !errors.As(err, &storageErr) {
		t.Fatalf("expected ErrStorage, got %v", err)
	}
}
