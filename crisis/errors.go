package crisis

import "errors"

// The closed error taxonomy exposed to callers. Raw primitive errors never
// cross the component boundary; every failure wraps one of these sentinels.
var (
	// ErrCapability indicates the host lacks a required cryptographic
	// primitive. Fatal at engine initialization.
	ErrCapability = errors.New("cryptographic capability unavailable")

	// ErrInvalidEnvelope indicates a structurally malformed envelope,
	// caught before any cryptographic primitive runs.
	ErrInvalidEnvelope = errors.New("invalid envelope")

	// ErrUnsupportedEnvelope indicates an envelope whose algorithm or key
	// derivation identifier is not supported by this engine.
	ErrUnsupportedEnvelope = errors.New("unsupported envelope")

	// ErrInvalidContext indicates an encryption context that violates the
	// closed enums or the anonymity invariant.
	ErrInvalidContext = errors.New("invalid encryption context")

	// ErrInvalidDerivationConfig indicates unsupported key-derivation
	// parameters on a profile.
	ErrInvalidDerivationConfig = errors.New("invalid key derivation configuration")

	// ErrEncryptionFailed indicates the encryption path failed, including a
	// round-trip self-validation mismatch on critical-severity data.
	ErrEncryptionFailed = errors.New("encryption failed")

	// ErrDecryptionFailed covers both wrong password and corrupted or
	// tampered ciphertext. The two are deliberately indistinguishable to
	// prevent oracle attacks.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrAuthenticationFailed covers both unknown user and bad credentials
	// at the interface boundary.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrProfileExists indicates an enrollment attempt for a user that
	// already has a key profile.
	ErrProfileExists = errors.New("user key profile already exists")

	// ErrInvalidSession covers both unknown and expired sessions.
	ErrInvalidSession = errors.New("invalid session")

	// ErrBiometricUnavailable indicates the platform has no verifying
	// authenticator.
	ErrBiometricUnavailable = errors.New("biometric authentication unavailable")

	// ErrEmergencyAccessDisabled indicates the profile has not enabled the
	// emergency-access mechanism.
	ErrEmergencyAccessDisabled = errors.New("emergency access not configured")

	// ErrRequestNotPending indicates an emergency-access request that cannot
	// be cancelled because it is unknown or already granted.
	ErrRequestNotPending = errors.New("emergency access request is not pending")
)
