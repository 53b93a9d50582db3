// Package localstate is the agent's local cache: the offline copy of the
// transaction list, the queue of pending mutations, and the sync-needed
// flag, each persisted as its own file so one failed write can never take
// the other slots down with it.
package localstate

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"

	"github.com/fintrack/fintrack-go/internal/domain"
)

const (
	transactionsFile = "transactions.json"
	pendingFile      = "pending.json"
	syncFlagFile     = "sync_needed"
)

// Store persists the three local-state slots under a directory.
// Writes go through a temp file + rename, so a failed write leaves the
// previously stored value intact.
type Store struct {
	dir string
}

// New creates the state directory if needed and returns a Store.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, &domain.ErrStorage{Slot: "state dir", Err: err}
	}
	return &Store{dir: dir}, nil
}

// Transactions loads the cached transaction list. A missing file yields an
// empty list, matching a fresh client.
func (s *Store) Transactions() ([]domain.Transaction, error) {
	var list []domain.Transaction
	if err := s.readJSON(transactionsFile, &list); err != nil {
		return nil, err
	}
	if list == nil {
		list = []domain.Transaction{}
	}
	return list, nil
}

// SaveTransactions persists the transaction list.
func (s *Store) SaveTransactions(list []domain.Transaction) error {
	if list == nil {
		list = []domain.Transaction{}
	}
	return s.writeJSON(transactionsFile, list)
}

// Pending loads the queued mutations in enqueue order.
func (s *Store) Pending() ([]domain.PendingMutation, error) {
	var queue []domain.PendingMutation
	if err := s.readJSON(pendingFile, &queue); err != nil {
		return nil, err
	}
	if queue == nil {
		queue = []domain.PendingMutation{}
	}
	return queue, nil
}

// SavePending persists the mutation queue.
func (s *Store) SavePending(queue []domain.PendingMutation) error {
	if queue == nil {
		queue = []domain.PendingMutation{}
	}
	return s.writeJSON(pendingFile, queue)
}

// ClearPending removes the queue slot entirely.
func (s *Store) ClearPending() error {
	err := os.Remove(filepath.Join(s.dir, pendingFile))
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return &domain.ErrStorage{Slot: pendingFile, Err: err}
	}
	return nil
}

// SyncNeeded reports whether at least one pending mutation awaits replay.
// Any read problem is treated as "no": the worst case is one skipped sync
// tick, and the flag is rewritten on the next mutation.
func (s *Store) SyncNeeded() bool {
	data, err := os.ReadFile(filepath.Join(s.dir, syncFlagFile))
	if err != nil {
		return false
	}
	return string(data) == "true"
}

// SetSyncNeeded persists the sync-needed flag.
func (s *Store) SetSyncNeeded(needed bool) error {
	value := "false"
	if needed {
		value = "true"
	}
	return s.writeRaw(syncFlagFile, []byte(value))
}

func (s *Store) readJSON(name string, v any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &domain.ErrStorage{Slot: name, Err: err}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return &domain.ErrStorage{Slot: name, Err: err}
	}
	return nil
}

func (s *Store) writeJSON(name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return &domain.ErrStorage{Slot: name, Err: err}
	}
	return s.writeRaw(name, data)
}

// writeRaw writes atomically: temp file in the same directory, fsync-free
// rename. An interrupted write leaves the old value in place.
func (s *Store) writeRaw(name string, data []byte) error {
	tmp, err := os.CreateTemp(s.dir, name+".tmp*")
	if err != nil {
		return &domain.ErrStorage{Slot: name, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &domain.ErrStorage{Slot: name, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &domain.ErrStorage{Slot: name, Err: err}
	}
	if err := os.Rename(tmpName, filepath.Join(s.dir, name)); err != nil {
		os.Remove(tmpName)
		return &domain.ErrStorage{Slot: name, Err: err}
	}
	return nil
}
