package keymgr

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctumkit/sanctum/crisis"
	"github.com/sanctumkit/sanctum/engine"
	"github.com/sanctumkit/sanctum/notify"
	"github.com/sanctumkit/sanctum/storage/memory"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 10, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

type eventRecorder struct {
	mu     sync.Mutex
	events []notify.Event
}

func (r *eventRecorder) Emit(e notify.Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

func (r *eventRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

// testManager builds a manager on a fast-derivation engine with an injected
// clock and a sweep interval long enough that only explicit sweep calls run.
func testManager(t *testing.T, opts ...Option) (*Manager, *fakeClock) {
	t.Helper()
	eng := engine.New(engine.WithIterations(1_000), engine.WithCriticalIterations(2_000))
	require.NoError(t, eng.Initialize(context.Background()))

	clock := newFakeClock()
	opts = append([]Option{
		WithIterations(1_000),
		WithClock(clock.Now),
		WithSweepInterval(time.Hour),
	}, opts...)
	m, err := New(eng, opts...)
	require.NoError(t, err)
	t.Cleanup(m.Dispose)
	return m, clock
}

func TestManager_CreateUserProfile(t *testing.T) {
	m, _ := testManager(t)

	profile, err := m.CreateUserProfile("alice", "Sunrise!2024",
		WithEmergencyAccess("guardian"),
		WithRecoveryHint("first concert"))
	require.NoError(t, err)

	assert.Equal(t, "alice", profile.UserID)
	assert.NotEmpty(t, profile.KeyID)
	assert.Equal(t, 1, profile.Version)
	assert.Equal(t, "SHA-256", profile.Derivation.Hash)
	assert.Equal(t, 1_000, profile.Derivation.Iterations)
	assert.Len(t, profile.Derivation.Salt, crisis.SaltSize)
	assert.True(t, profile.Emergency.Enabled)
	assert.Equal(t, []string{"guardian"}, profile.Emergency.Contacts)
	assert.Equal(t, DefaultEmergencyDelayHours, profile.Emergency.DelayHours)
	require.NotNil(t, profile.Recovery)
	assert.Equal(t, "first concert", profile.Recovery.Hint)
	assert.False(t, profile.BiometricEnabled)

	t.Run("duplicate", func(t *testing.T) {
		_, err := m.CreateUserProfile("alice", "another-password")
		assert.ErrorIs(t, err, crisis.ErrProfileExists)
	})

	t.Run("empty password", func(t *testing.T) {
		_, err := m.CreateUserProfile("bob", "")
		assert.ErrorIs(t, err, crisis.ErrAuthenticationFailed)
	})

	t.Run("custom delay", func(t *testing.T) {
		p, err := m.CreateUserProfile("carol", "pw-carol",
			WithEmergencyAccess(), WithEmergencyDelayHours(48))
		require.NoError(t, err)
		assert.Equal(t, 48, p.Emergency.DelayHours)
	})
}

func TestManager_HappyPath(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.CreateUserProfile("alice", "Sunrise!2024")
	require.NoError(t, err)

	session, err := m.AuthenticateUser("alice", "Sunrise!2024",
		WithEmergencyLevel(crisis.LevelHigh))
	require.NoError(t, err)
	assert.Equal(t, "alice", session.UserID)
	assert.Equal(t, crisis.LevelHigh, session.EmergencyLevel)
	assert.Equal(t, EmergencySessionTTL, session.ExpiresAt.Sub(session.CreatedAt))
	assert.Equal(t, MinAuthIterations, session.Iterations)

	plaintext := []byte("feeling unsafe tonight")
	env, err := m.EncryptWithSession(session.ID, plaintext, crisis.DataCrisisMessage)
	require.NoError(t, err)
	assert.Equal(t, crisis.AlgorithmAES256GCM, env.Algorithm)
	assert.Equal(t, crisis.KeyDerivationPBKDF2, env.KeyDerivation)
	assert.NotEqual(t, plaintext, env.Data)

	got, err := m.DecryptWithSession(session.ID, env, crisis.DataCrisisMessage)
	require.NoError(t, err)
	assert.Equal(t, plaintext, got)

	logs := m.GetUserAccessLogs("alice", 0)
	require.NotEmpty(t, logs)
	ops := map[KeyOperation]bool{}
	for _, entry := range logs {
		assert.True(t, entry.Success)
		ops[entry.Operation] = true
	}
	assert.True(t, ops[OpDerived])
	assert.True(t, ops[OpUsed])
}

func TestManager_AuthenticateUnknownUser(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.AuthenticateUser("nobody", "whatever")
	assert.ErrorIs(t, err, crisis.ErrAuthenticationFailed)

	logs := m.GetUserAccessLogs("nobody", 0)
	require.Len(t, logs, 1)
	assert.False(t, logs[0].Success)
}

// Session envelopes are sealed under a key derived from the engine's session
// key, never under the password. The password's role ends at authentication.
func TestManager_SessionScopedKeys(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.CreateUserProfile("bob", "correct-horse")
	require.NoError(t, err)

	first, err := m.AuthenticateUser("bob", "correct-horse")
	require.NoError(t, err)
	env, err := m.EncryptWithSession(first.ID, []byte("safety plan draft"), crisis.DataSafetyPlan)
	require.NoError(t, err)

	got, err := m.DecryptWithSession(first.ID, env, crisis.DataSafetyPlan)
	require.NoError(t, err)
	assert.Equal(t, []byte("safety plan draft"), got)

	// The session secret is derived from the session key, not the password.
	secret, err := m.engine.SessionPassword(first.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "correct-horse", secret)
	_, err = m.engine.Decrypt(env, "correct-horse", m.sessionContext(first, crisis.DataSafetyPlan))
	assert.ErrorIs(t, err, crisis.ErrDecryptionFailed)

	// A second session under the same credential gets its own key, so the
	// envelope stays scoped to the session that sealed it.
	second, err := m.AuthenticateUser("bob", "correct-horse")
	require.NoError(t, err)
	_, err = m.DecryptWithSession(second.ID, env, crisis.DataSafetyPlan)
	assert.ErrorIs(t, err, crisis.ErrDecryptionFailed)
}

func TestManager_CustomSessionDuration(t *testing.T) {
	m, clock := testManager(t)

	_, err := m.CreateUserProfile("erin", "pw-erin")
	require.NoError(t, err)

	session, err := m.AuthenticateUser("erin", "pw-erin",
		WithSessionDuration(30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, 30*time.Minute, session.ExpiresAt.Sub(session.CreatedAt))

	clock.Advance(31 * time.Minute)
	_, err = m.GetSession(session.ID)
	assert.ErrorIs(t, err, crisis.ErrInvalidSession)
}

func TestManager_AnonymousSession(t *testing.T) {
	m, _ := testManager(t)

	session, err := m.CreateAnonymousSession(crisis.LevelMedium)
	require.NoError(t, err)
	assert.Empty(t, session.UserID)
	assert.True(t, session.Anonymous)
	assert.Contains(t, session.ID, "anon-")
	assert.Equal(t, AnonymousSessionTTL, session.ExpiresAt.Sub(session.CreatedAt))

	env, err := m.EncryptWithSession(session.ID, []byte("just need someone to talk to"), crisis.DataCrisisMessage)
	require.NoError(t, err)
	got, err := m.DecryptWithSession(session.ID, env, crisis.DataCrisisMessage)
	require.NoError(t, err)
	assert.Equal(t, []byte("just need someone to talk to"), got)
}

func TestManager_ProfileStore(t *testing.T) {
	store := memory.NewStore()

	m, _ := testManager(t, WithProfileStore(store))
	profile, err := m.CreateUserProfile("carol", "pw-carol")
	require.NoError(t, err)

	rec, err := store.Get("carol")
	require.NoError(t, err)
	assert.Equal(t, profile.KeyID, rec.KeyID)
	assert.Equal(t, profile.Derivation.Salt, rec.Derivation.Salt)

	// A fresh manager sharing the store resolves the profile on a cache miss.
	m2, _ := testManager(t, WithProfileStore(store))
	session, err := m2.AuthenticateUser("carol", "pw-carol")
	require.NoError(t, err)
	assert.Equal(t, "carol", session.UserID)

	loaded, err := m2.GetProfile("carol")
	require.NoError(t, err)
	assert.Equal(t, profile.KeyID, loaded.KeyID)
}

func TestManager_AccessLogCap(t *testing.T) {
	m, _ := testManager(t, WithAccessLogCap(5))

	for i := 0; i < 8; i++ {
		_, err := m.AuthenticateUser("nobody", "pw")
		require.Error(t, err)
	}
	assert.Equal(t, 5, m.AccessLogLen())
}

func TestManager_KeyAccessEvents(t *testing.T) {
	rec := &eventRecorder{}
	m, _ := testManager(t, WithNotifier(rec))

	_, err := m.CreateUserProfile("alice", "Sunrise!2024")
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count(notify.EventKeyAccessLogged))

	_, err = m.AuthenticateUser("nobody", "pw")
	require.Error(t, err)
	assert.Equal(t, 2, rec.count(notify.EventKeyAccessLogged))
}

func TestManager_Dispose(t *testing.T) {
	m, _ := testManager(t)

	_, err := m.CreateUserProfile("dana", "pw-dana")
	require.NoError(t, err)
	session, err := m.AuthenticateUser("dana", "pw-dana")
	require.NoError(t, err)

	m.Dispose()

	_, err = m.GetSession(session.ID)
	assert.ErrorIs(t, err, crisis.ErrInvalidSession)
	_, err = m.GetProfile("dana")
	assert.ErrorIs(t, err, crisis.ErrAuthenticationFailed)
	_, err = m.engine.SessionPassword(session.ID)
	assert.ErrorIs(t, err, crisis.ErrInvalidSession)

	// Dispose is idempotent.
	m.Dispose()
}

func TestManager_RequiresEngine(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}
