package engine

import (
	"crypto/rsa"
	"fmt"
	"strconv"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"

	"github.com/sanctumkit/sanctum/crisis"
	"github.com/sanctumkit/sanctum/internal/util"
	"github.com/sanctumkit/sanctum/notify"
)

const sessionPassInfo = "sanctum:session-pass:v1"

// GenerateSessionKey produces a fresh random symmetric key scoped to one
// session ID and caches it in the in-memory session-key table. The key lives
// in a memguard enclave; its raw bytes leave the engine only through the
// key-exchange wrap path.
func (e *Engine) GenerateSessionKey(sessionID string) error {
	if err := e.requireInit(); err != nil {
		return err
	}
	if sessionID == "" {
		return fmt.Errorf("%w: session ID must not be empty", crisis.ErrInvalidSession)
	}

	rawKey, err := util.NewAESKey()
	if err != nil {
		return fmt.Errorf("%w: %v", crisis.ErrEncryptionFailed, err)
	}

	e.skMu.Lock()
	e.sessionKeys[sessionID] = memguard.NewEnclave(rawKey)
	e.skMu.Unlock()
	return nil
}

// SessionPassword derives the ephemeral password for session-scoped
// encryption from the cached session key. The session key itself never
// leaves its enclave.
func (e *Engine) SessionPassword(sessionID string) (string, error) {
	e.skMu.RLock()
	enclave, ok := e.sessionKeys[sessionID]
	e.skMu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%w: no session key for session", crisis.ErrInvalidSession)
	}

	buf, err := enclave.Open()
	if err != nil {
		return "", fmt.Errorf("%w: opening session key enclave: %v", crisis.ErrInvalidSession, err)
	}
	defer buf.Destroy()

	derived, err := util.ExpandKey(buf.Bytes(), []byte(sessionID), []byte(sessionPassInfo))
	if err != nil {
		return "", fmt.Errorf("%w: %v", crisis.ErrEncryptionFailed, err)
	}
	defer util.WipeBytes(derived)

	return util.HexEncode(derived), nil
}

// RemoveSessionKey drops one session's key from the table.
func (e *Engine) RemoveSessionKey(sessionID string) {
	e.skMu.Lock()
	delete(e.sessionKeys, sessionID)
	e.skMu.Unlock()
}

// ClearSessionKeys drops every cached session key.
func (e *Engine) ClearSessionKeys() {
	e.skMu.Lock()
	n := len(e.sessionKeys)
	e.sessionKeys = make(map[string]*memguard.Enclave)
	e.skMu.Unlock()

	e.emit(notify.EventSessionKeysCleared, map[string]string{
		"count": strconv.Itoa(n),
	})
}

// GenerateKeyPair produces an RSA-4096 key pair for handing a session key to
// a second party, such as a human responder.
func (e *Engine) GenerateKeyPair() (*rsa.PrivateKey, error) {
	if err := e.requireInit(); err != nil {
		return nil, err
	}
	key, err := util.GenerateRSAKeyPair()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crisis.ErrEncryptionFailed, err)
	}
	return key, nil
}

// EncryptSessionKey wraps the named session key under a recipient's public
// key so it can cross an untrusted channel.
func (e *Engine) EncryptSessionKey(sessionID string, recipient *rsa.PublicKey) ([]byte, error) {
	if err := e.requireInit(); err != nil {
		return nil, err
	}

	e.skMu.RLock()
	enclave, ok := e.sessionKeys[sessionID]
	e.skMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: no session key for session", crisis.ErrInvalidSession)
	}

	buf, err := enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: opening session key enclave: %v", crisis.ErrInvalidSession, err)
	}
	defer buf.Destroy()

	wrapped, err := util.WrapKeyRSA(recipient, buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", crisis.ErrEncryptionFailed, err)
	}
	return wrapped, nil
}

// DecryptSessionKey unwraps a session key under the recipient's private key
// and installs it in the table under the given session ID.
func (e *Engine) DecryptSessionKey(sessionID string, wrapped []byte, priv *rsa.PrivateKey) error {
	if err := e.requireInit(); err != nil {
		return err
	}

	rawKey, err := util.UnwrapKeyRSA(priv, wrapped)
	if err != nil {
		return crisis.ErrDecryptionFailed
	}
	if len(rawKey) != util.AESKeySize {
		util.WipeBytes(rawKey)
		return crisis.ErrDecryptionFailed
	}

	e.skMu.Lock()
	e.sessionKeys[sessionID] = memguard.NewEnclave(rawKey)
	e.skMu.Unlock()
	return nil
}

// NewAnonymousContext produces a context with a freshly generated anonymous
// identifier and no user identifier, for interactions that must not be
// linkable to the encrypted content.
func (e *Engine) NewAnonymousContext(dataType crisis.DataType, level crisis.EmergencyLevel) crisis.Context {
	return crisis.Context{
		DataType:       dataType,
		SessionID:      "anon-" + uuid.NewString(),
		EmergencyLevel: level,
		Anonymous:      true,
	}
}
