package bbolt

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctumkit/sanctum/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "profiles.db")
	s, err := NewStoreFromFile(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func testRecord(userID string) *storage.ProfileRecord {
	return &storage.ProfileRecord{
		UserID:    userID,
		KeyID:     "key-" + userID,
		Version:   2,
		CreatedAt: time.Now().UTC().Truncate(time.Millisecond),
		Derivation: storage.DerivationConfig{
			Hash:       "SHA-256",
			Iterations: 800_000,
			SaltLen:    32,
			KeyLen:     32,
		},
		BiometricEnabled: true,
		Emergency: storage.EmergencyConfig{
			Enabled:        true,
			Contacts:       []string{"contact-1", "contact-2"},
			DelayHours:     48,
			AutoGrantLevel: "critical",
		},
	}
}

func TestStore_RoundTrip(t *testing.T) {
	s := newTestStore(t)

	rec := testRecord("alice")
	require.NoError(t, s.Put(rec))

	got, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	_, err = s.Get("bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Overwrite(t *testing.T) {
	s := newTestStore(t)

	rec := testRecord("alice")
	require.NoError(t, s.Put(rec))

	rec.Version = 3
	rec.Derivation.Iterations = 900_000
	require.NoError(t, s.Put(rec))

	got, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, 900_000, got.Derivation.Iterations)
}

func TestStore_DeleteAndList(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.Put(testRecord("alice")))
	require.NoError(t, s.Put(testRecord("bob")))

	ids, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, ids)

	require.NoError(t, s.Delete("alice"))
	assert.ErrorIs(t, s.Delete("alice"), storage.ErrNotFound)

	ids, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"bob"}, ids)
}

func TestStore_EmptyDatabase(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("anyone")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, ids)
}
