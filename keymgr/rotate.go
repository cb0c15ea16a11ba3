package keymgr

import (
	"fmt"
	"strconv"

	"github.com/sanctumkit/sanctum/crisis"
	"github.com/sanctumkit/sanctum/internal/util"
	"github.com/sanctumkit/sanctum/notify"
)

// RotateUserKey re-keys a user's profile under a new password: fresh salt,
// iteration count raised to at least the current default, version bumped.
// Every session belonging to the user is invalidated; data encrypted under
// old sessions is no longer reachable through the manager.
func (m *Manager) RotateUserKey(userID, currentPassword, newPassword string) error {
	if currentPassword == "" || newPassword == "" {
		m.appendLog(userID, "", OpRotated, false, "rotation rejected")
		return fmt.Errorf("%w: current and new password are required", crisis.ErrAuthenticationFailed)
	}

	m.mu.Lock()
	profile, err := m.lookupProfileLocked(userID)
	if err != nil {
		m.mu.Unlock()
		m.appendLog(userID, "", OpRotated, false, "unknown user")
		return crisis.ErrAuthenticationFailed
	}
	oldSalt := append([]byte(nil), profile.Derivation.Salt...)
	oldIterations := profile.Derivation.Iterations
	m.mu.Unlock()

	// Current-password check is derivation-only; there is no stored
	// verifier to compare against.
	if err := m.deriveAndWipe(currentPassword, oldSalt, oldIterations); err != nil {
		m.appendLog(userID, "", OpRotated, false, "current password derivation failed")
		return crisis.ErrAuthenticationFailed
	}

	newSalt, err := util.RandomBytes(crisis.SaltSize)
	if err != nil {
		return fmt.Errorf("%w: %v", crisis.ErrEncryptionFailed, err)
	}
	newIterations := oldIterations
	if newIterations < m.defaultIterations {
		newIterations = m.defaultIterations
	}
	if err := m.deriveAndWipe(newPassword, newSalt, newIterations); err != nil {
		m.appendLog(userID, "", OpRotated, false, "new key derivation failed")
		return err
	}

	m.mu.Lock()
	profile, err = m.lookupProfileLocked(userID)
	if err != nil {
		m.mu.Unlock()
		return crisis.ErrAuthenticationFailed
	}
	profile.Derivation.Salt = newSalt
	profile.Derivation.Iterations = newIterations
	profile.Version++
	version := profile.Version
	snapshot := profile.clone()
	m.mu.Unlock()

	dropped := m.invalidateUserSessions(userID)

	if err := m.persistProfile(snapshot); err != nil {
		return err
	}

	m.emit(notify.EventKeyRotated, map[string]string{
		"userID":     userID,
		"version":    strconv.Itoa(version),
		"iterations": strconv.Itoa(newIterations),
		"sessions":   strconv.Itoa(dropped),
	})
	m.appendLog(userID, "", OpRotated, true, "key rotated to version "+strconv.Itoa(version))
	m.logger.Info("user key rotated",
		"userID", userID, "version", version, "sessionsInvalidated", dropped)
	return nil
}

// EnableBiometric registers a platform biometric credential for the user.
// Biometric unlock is additive; the password path always remains.
func (m *Manager) EnableBiometric(userID string) error {
	if m.auth == nil || !m.auth.Available() {
		m.appendLog(userID, "", OpBiometricAuth, false, "no platform authenticator")
		return crisis.ErrBiometricUnavailable
	}

	m.mu.Lock()
	if _, err := m.lookupProfileLocked(userID); err != nil {
		m.mu.Unlock()
		m.appendLog(userID, "", OpBiometricAuth, false, "unknown user")
		return crisis.ErrAuthenticationFailed
	}
	m.mu.Unlock()

	credentialID, err := m.auth.Register(userID)
	if err != nil {
		m.appendLog(userID, "", OpBiometricAuth, false, "credential registration failed")
		return fmt.Errorf("%w: %v", crisis.ErrBiometricUnavailable, err)
	}

	m.mu.Lock()
	profile, err := m.lookupProfileLocked(userID)
	if err != nil {
		m.mu.Unlock()
		return crisis.ErrAuthenticationFailed
	}
	profile.BiometricEnabled = true
	profile.BiometricCredentialID = credentialID
	snapshot := profile.clone()
	m.mu.Unlock()

	if err := m.persistProfile(snapshot); err != nil {
		return err
	}

	m.appendLog(userID, "", OpBiometricAuth, true, "biometric credential registered")
	m.logger.Info("biometric enabled", "userID", userID)
	return nil
}
