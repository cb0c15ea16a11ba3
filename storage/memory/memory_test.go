package memory

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctumkit/sanctum/storage"
)

func testRecord(userID string) *storage.ProfileRecord {
	return &storage.ProfileRecord{
		UserID:    userID,
		KeyID:     "key-" + userID,
		Version:   1,
		CreatedAt: time.Now().UTC(),
		Derivation: storage.DerivationConfig{
			Hash:       "SHA-256",
			Iterations: 600_000,
			SaltLen:    32,
			KeyLen:     32,
		},
		Emergency: storage.EmergencyConfig{
			Enabled:    true,
			Contacts:   []string{"contact-1"},
			DelayHours: 24,
		},
	}
}

func TestStore_PutGet(t *testing.T) {
	s := NewStore()

	require.NoError(t, s.Put(testRecord("alice")))

	rec, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, "key-alice", rec.KeyID)
	assert.Equal(t, []string{"contact-1"}, rec.Emergency.Contacts)

	_, err = s.Get("bob")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(testRecord("alice")))

	rec, err := s.Get("alice")
	require.NoError(t, err)
	rec.Version = 99
	rec.Emergency.Contacts[0] = "mutated"

	again, err := s.Get("alice")
	require.NoError(t, err)
	assert.Equal(t, 1, again.Version)
	assert.Equal(t, "contact-1", again.Emergency.Contacts[0])
}

func TestStore_Delete(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(testRecord("alice")))

	require.NoError(t, s.Delete("alice"))
	_, err := s.Get("alice")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.ErrorIs(t, s.Delete("alice"), storage.ErrNotFound)
}

func TestStore_List(t *testing.T) {
	s := NewStore()
	require.NoError(t, s.Put(testRecord("alice")))
	require.NoError(t, s.Put(testRecord("bob")))

	ids, err := s.List()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"alice", "bob"}, ids)
}
