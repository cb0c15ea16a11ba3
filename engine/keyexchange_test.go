package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sanctumkit/sanctum/crisis"
	"github.com/sanctumkit/sanctum/notify"
)

func TestEngine_SessionKeys(t *testing.T) {
	e := testEngine(t)

	require.NoError(t, e.GenerateSessionKey("session-1"))

	pass1, err := e.SessionPassword("session-1")
	require.NoError(t, err)
	assert.NotEmpty(t, pass1)

	// Deterministic for one key, distinct across sessions.
	again, err := e.SessionPassword("session-1")
	require.NoError(t, err)
	assert.Equal(t, pass1, again)

	require.NoError(t, e.GenerateSessionKey("session-2"))
	pass2, err := e.SessionPassword("session-2")
	require.NoError(t, err)
	assert.NotEqual(t, pass1, pass2)

	t.Run("RemoveSessionKey", func(t *testing.T) {
		e.RemoveSessionKey("session-1")
		_, err := e.SessionPassword("session-1")
		assert.ErrorIs(t, err, crisis.ErrInvalidSession)
	})

	t.Run("UnknownSession", func(t *testing.T) {
		_, err := e.SessionPassword("never-created")
		assert.ErrorIs(t, err, crisis.ErrInvalidSession)
	})
}

func TestEngine_ClearSessionKeys(t *testing.T) {
	var cleared []notify.Event
	e := testEngine(t, WithNotifier(notify.Func(func(ev notify.Event) {
		if ev.Name == notify.EventSessionKeysCleared {
			cleared = append(cleared, ev)
		}
	})))

	require.NoError(t, e.GenerateSessionKey("a"))
	require.NoError(t, e.GenerateSessionKey("b"))
	e.ClearSessionKeys()

	_, err := e.SessionPassword("a")
	assert.ErrorIs(t, err, crisis.ErrInvalidSession)

	require.Len(t, cleared, 1)
	assert.Equal(t, "2", cleared[0].Meta["count"])
}

func TestEngine_SessionKeyExchange(t *testing.T) {
	e := testEngine(t)

	require.NoError(t, e.GenerateSessionKey("handoff"))
	originalPass, err := e.SessionPassword("handoff")
	require.NoError(t, err)

	// Responder generates a pair and shares the public half.
	responderKey, err := e.GenerateKeyPair()
	require.NoError(t, err)

	wrapped, err := e.EncryptSessionKey("handoff", &responderKey.PublicKey)
	require.NoError(t, err)
	assert.NotEmpty(t, wrapped)

	// Responder-side engine unwraps and installs the key; deriving the
	// session password yields the same value, so envelopes interoperate.
	responder := testEngine(t)
	require.NoError(t, responder.DecryptSessionKey("handoff", wrapped, responderKey))
	responderPass, err := responder.SessionPassword("handoff")
	require.NoError(t, err)
	assert.Equal(t, originalPass, responderPass)

	t.Run("WrongPrivateKey", func(t *testing.T) {
		otherKey, err := e.GenerateKeyPair()
		require.NoError(t, err)
		err = responder.DecryptSessionKey("handoff", wrapped, otherKey)
		assert.ErrorIs(t, err, crisis.ErrDecryptionFailed)
	})

	t.Run("UnknownSession", func(t *testing.T) {
		_, err := e.EncryptSessionKey("missing", &responderKey.PublicKey)
		assert.ErrorIs(t, err, crisis.ErrInvalidSession)
	})
}

func TestEngine_NewAnonymousContext(t *testing.T) {
	e := testEngine(t)

	cctx := e.NewAnonymousContext(crisis.DataCrisisMessage, crisis.LevelCritical)
	require.NoError(t, cctx.Validate())
	assert.True(t, cctx.Anonymous)
	assert.Empty(t, cctx.UserID)
	assert.NotEmpty(t, cctx.SessionID)

	other := e.NewAnonymousContext(crisis.DataCrisisMessage, crisis.LevelCritical)
	assert.NotEqual(t, cctx.SessionID, other.SessionID)
}
