// Package bbolt provides a BBolt-backed storage.ProfileStore.
package bbolt

import (
	"encoding/json"
	"fmt"

	"go.etcd.io/bbolt"

	"github.com/sanctumkit/sanctum/storage"
)

var bucketProfiles = []byte("profiles")

// Store implements storage.ProfileStore backed by a BBolt database.
type Store struct {
	db *bbolt.DB
}

var _ storage.ProfileStore = (*Store)(nil)

// NewStore returns a ProfileStore backed by the given BBolt database.
func NewStore(db *bbolt.DB) *Store {
	return &Store{db: db}
}

// NewStoreFromFile opens a BBolt database at the given path.
func NewStoreFromFile(path string, options *bbolt.Options) (*Store, error) {
	db, err := bbolt.Open(path, 0600, options)
	if err != nil {
		return nil, fmt.Errorf("opening bbolt db: %w", err)
	}
	return NewStore(db), nil
}

// Close closes the underlying BBolt database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Put(rec *storage.ProfileRecord) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketProfiles)
		if err != nil {
			return err
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put([]byte(rec.UserID), data)
	})
}

func (s *Store) Get(userID string) (*storage.ProfileRecord, error) {
	var rec storage.ProfileRecord
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		if b == nil {
			return fmt.Errorf("%s: %w", userID, storage.ErrNotFound)
		}
		data := b.Get([]byte(userID))
		if data == nil {
			return fmt.Errorf("%s: %w", userID, storage.ErrNotFound)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (s *Store) Delete(userID string) error {
	return s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		if b == nil || b.Get([]byte(userID)) == nil {
			return fmt.Errorf("%s: %w", userID, storage.ErrNotFound)
		}
		return b.Delete([]byte(userID))
	})
}

func (s *Store) List() ([]string, error) {
	var ids []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketProfiles)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			ids = append(ids, string(k))
			return nil
		})
	})
	return ids, err
}
