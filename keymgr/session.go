package keymgr

import (
	"fmt"
	"strconv"

	"github.com/sanctumkit/sanctum/crisis"
	"github.com/sanctumkit/sanctum/internal/util"
	"github.com/sanctumkit/sanctum/notify"
)

// EncryptWithSession encrypts data under the session's key. The session is
// expiry-checked on every use; a session found expired is purged before the
// call is rejected. The encryption secret is derived from the engine's
// session key, so envelopes written here are scoped to this session.
func (m *Manager) EncryptWithSession(sessionID string, data []byte, dataType crisis.DataType) (*crisis.Envelope, error) {
	session, err := m.liveSession(sessionID)
	if err != nil {
		m.appendLog("", sessionID, OpUsed, false, "encrypt on invalid session")
		return nil, err
	}

	password, err := m.engine.SessionPassword(sessionID)
	if err != nil {
		m.appendLog(session.UserID, sessionID, OpUsed, false, "session key unavailable")
		return nil, err
	}

	env, err := m.engine.Encrypt(data, password, m.sessionContext(session, dataType))
	if err != nil {
		m.appendLog(session.UserID, sessionID, OpUsed, false, "encrypt failed")
		return nil, err
	}

	m.appendLog(session.UserID, sessionID, OpUsed, true, "data encrypted")
	return env, nil
}

// DecryptWithSession decrypts an envelope under the session's key. An
// envelope sealed in a different session fails here with the same generic
// error as tampered ciphertext.
func (m *Manager) DecryptWithSession(sessionID string, env *crisis.Envelope, dataType crisis.DataType) ([]byte, error) {
	session, err := m.liveSession(sessionID)
	if err != nil {
		m.appendLog("", sessionID, OpUsed, false, "decrypt on invalid session")
		return nil, err
	}

	password, err := m.engine.SessionPassword(sessionID)
	if err != nil {
		m.appendLog(session.UserID, sessionID, OpUsed, false, "session key unavailable")
		return nil, err
	}

	data, err := m.engine.Decrypt(env, password, m.sessionContext(session, dataType))
	if err != nil {
		m.appendLog(session.UserID, sessionID, OpUsed, false, "decrypt failed")
		return nil, err
	}

	m.appendLog(session.UserID, sessionID, OpUsed, true, "data decrypted")
	return data, nil
}

func (m *Manager) sessionContext(session *SecureSession, dataType crisis.DataType) crisis.Context {
	return crisis.Context{
		DataType:       dataType,
		SessionID:      session.ID,
		UserID:         session.UserID,
		EmergencyLevel: session.EmergencyLevel,
		Anonymous:      session.Anonymous,
	}
}

// GetSession returns a snapshot of a live session. An expired session is
// purged and reported as invalid.
func (m *Manager) GetSession(sessionID string) (*SecureSession, error) {
	session, err := m.liveSession(sessionID)
	if err != nil {
		return nil, err
	}
	return session.clone(), nil
}

// liveSession looks a session up and enforces expiry. Expired sessions are
// removed together with their engine key.
func (m *Manager) liveSession(sessionID string) (*SecureSession, error) {
	m.mu.Lock()
	session, ok := m.sessions[sessionID]
	if ok && session.expired(m.now()) {
		delete(m.sessions, sessionID)
		m.mu.Unlock()
		m.engine.RemoveSessionKey(sessionID)
		return nil, fmt.Errorf("%w: session expired", crisis.ErrInvalidSession)
	}
	m.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("%w: unknown session", crisis.ErrInvalidSession)
	}
	return session, nil
}

// InvalidateSession removes a session and its engine key immediately.
func (m *Manager) InvalidateSession(sessionID string) {
	m.mu.Lock()
	_, ok := m.sessions[sessionID]
	delete(m.sessions, sessionID)
	m.mu.Unlock()

	if ok {
		m.engine.RemoveSessionKey(sessionID)
	}
}

// invalidateUserSessions removes every session belonging to a user and
// returns how many were dropped.
func (m *Manager) invalidateUserSessions(userID string) int {
	m.mu.Lock()
	var dropped []string
	for id, s := range m.sessions {
		if s.UserID == userID && userID != "" {
			dropped = append(dropped, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range dropped {
		m.engine.RemoveSessionKey(id)
	}
	return len(dropped)
}

// ClearExpiredSessions purges every expired session and returns how many were
// dropped.
func (m *Manager) ClearExpiredSessions() int {
	now := m.now()

	m.mu.Lock()
	var dropped []string
	for id, s := range m.sessions {
		if s.expired(now) {
			dropped = append(dropped, id)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, id := range dropped {
		m.engine.RemoveSessionKey(id)
	}
	if len(dropped) > 0 {
		m.emit(notify.EventSessionKeysCleared, map[string]string{
			"count":  strconv.Itoa(len(dropped)),
			"reason": "expired",
		})
	}
	return len(dropped)
}

// ShareSessionData wraps this session's key for a responder's RSA public key
// via the engine's key-exchange path. The caller forwards the wrapped key;
// the responder installs it with the engine's unwrap operation and can then
// decrypt anything sealed in this session.
func (m *Manager) ShareSessionData(sessionID string, recipientPEM []byte) ([]byte, error) {
	session, err := m.liveSession(sessionID)
	if err != nil {
		return nil, err
	}

	pub, err := util.ParsePublicKeyPEM(recipientPEM)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crisis.ErrInvalidContext, err)
	}

	wrapped, err := m.engine.EncryptSessionKey(session.ID, pub)
	if err != nil {
		return nil, err
	}

	m.appendLog(session.UserID, session.ID, OpUsed, true, "session key shared for handoff")
	return wrapped, nil
}
