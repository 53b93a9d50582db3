// Package store persists the server's transaction list as a single
// pretty-printed JSON file, the storage contract the API has always had.
package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/fintrack/fintrack-go/internal/domain"

	"go.uber.org/zap"
)

// FileStore owns the data file. A mutex serializes access; writes are
// atomic (temp file + rename) so a crash mid-write never corrupts the
// previous contents.
type FileStore struct {
	mu     sync.Mutex
	path   string
	logger *zap.Logger
}

// New ensures the data file exists (creating an empty list if needed) and
// returns a FileStore.
func New(path string, logger *zap.Logger) (*FileStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, &domain.ErrStorage{Slot: path, Err: err}
		}
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		if err := writeAtomic(path, []byte("[]")); err != nil {
			return nil, err
		}
		logger.Info("created empty data file", zap.String("path", path))
	} else if err != nil {
		return nil, &domain.ErrStorage{Slot: path, Err: err}
	}
	return &FileStore{path: path, logger: logger}, nil
}

// Load reads the full transaction list.
func (s *FileStore) Load() ([]domain.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save replaces the full transaction list.
func (s *FileStore) Save(list []domain.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(list)
}

// Mutate applies fn to the current list under the store lock and persists
// the result, so read-modify-write sequences cannot interleave.
func (s *FileStore) Mutate(fn func(list []domain.Transaction) ([]domain.Transaction, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	list, err := s.load()
	if err != nil {
		return err
	}
	updated, err := fn(list)
	if err != nil {
		return err
	}
	return s.save(updated)
}

func (s *FileStore) load() ([]domain.Transaction, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, &domain.ErrStorage{Slot: s.path, Err: err}
	}

	var list []domain.Transaction
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, &domain.ErrStorage{Slot: s.path, Err: err}
	}
	if list == nil {
		list = []domain.Transaction{}
	}
	return list, nil
}

func (s *FileStore) save(list []domain.Transaction) error {
	if list == nil {
		list = []domain.Transaction{}
	}
	data, err := json.MarshalIndent(list, "", "  ")
	if err != nil {
		return &domain.ErrStorage{Slot: s.path, Err: err}
	}
	return writeAtomic(s.path, data)
}

func writeAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return &domain.ErrStorage{Slot: path, Err: err}
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return &domain.ErrStorage{Slot: path, Err: err}
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return &domain.ErrStorage{Slot: path, Err: err}
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return &domain.ErrStorage{Slot: path, Err: err}
	}
	return nil
}
