// Package memory provides a thread-safe in-memory implementation of
// storage.ProfileStore. Suitable for testing, demos, and single-process use.
package memory

import (
	"sync"

	"github.com/sanctumkit/sanctum/storage"
)

// Store is a thread-safe in-memory ProfileStore.
type Store struct {
	mu   sync.RWMutex
	data map[string]*storage.ProfileRecord
}

var _ storage.ProfileStore = (*Store)(nil)

// NewStore creates a new empty in-memory Store.
func NewStore() *Store {
	return &Store{data: make(map[string]*storage.ProfileRecord)}
}

func cloneRecord(rec *storage.ProfileRecord) *storage.ProfileRecord {
	if rec == nil {
		return nil
	}
	cp := *rec
	cp.Derivation.Salt = append([]byte(nil), rec.Derivation.Salt...)
	cp.Emergency.Contacts = append([]string(nil), rec.Emergency.Contacts...)
	if rec.Recovery != nil {
		r := *rec.Recovery
		cp.Recovery = &r
	}
	return &cp
}

func (s *Store) Put(rec *storage.ProfileRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[rec.UserID] = cloneRecord(rec)
	return nil
}

func (s *Store) Get(userID string) (*storage.ProfileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.data[userID]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (s *Store) Delete(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[userID]; !ok {
		return storage.ErrNotFound
	}
	delete(s.data, userID)
	return nil
}

func (s *Store) List() ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.data))
	for id := range s.data {
		ids = append(ids, id)
	}
	return ids, nil
}
