// Package storage defines the persistence boundary for user key profiles.
// The subsystem itself keeps profiles in memory; a deployment injects a
// ProfileStore so enrollment, rotation, and biometric changes survive a
// process restart. Ciphertext blobs are persisted elsewhere by a different
// collaborator and never pass through this package.
package storage

import (
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when no profile exists for the given user.
	ErrNotFound = errors.New("profile not found")
)

// DerivationConfig is the key-derivation policy snapshot stored with a
// profile. Hash is fixed to SHA-256 in the current envelope format.
type DerivationConfig struct {
	Hash       string `json:"hash"`
	Iterations int    `json:"iterations"`
	SaltLen    int    `json:"salt_len"`
	KeyLen     int    `json:"key_len"`
	Salt       []byte `json:"salt,omitempty"`
}

// EmergencyConfig is the delayed-release policy stored with a profile.
type EmergencyConfig struct {
	Enabled        bool     `json:"enabled"`
	Contacts       []string `json:"contacts,omitempty"`
	DelayHours     int      `json:"delay_hours,omitempty"`
	AutoGrantLevel string   `json:"auto_grant_level,omitempty"`
}

// RecoveryConfig is the optional account-recovery hint stored with a profile.
type RecoveryConfig struct {
	Enabled bool   `json:"enabled"`
	Hint    string `json:"hint,omitempty"`
}

// ProfileRecord is the durable snapshot of one user key profile. It contains
// policy and identifiers only; no key material and no passwords.
type ProfileRecord struct {
	UserID                string           `json:"user_id"`
	KeyID                 string           `json:"key_id"`
	Version               int              `json:"version"`
	CreatedAt             time.Time        `json:"created_at"`
	LastUsedAt            time.Time        `json:"last_used_at"`
	Derivation            DerivationConfig `json:"derivation"`
	Recovery              *RecoveryConfig  `json:"recovery,omitempty"`
	BiometricEnabled      bool             `json:"biometric_enabled"`
	BiometricCredentialID string           `json:"biometric_credential_id,omitempty"`
	Emergency             EmergencyConfig  `json:"emergency"`
}

// ProfileStore persists user key profiles. Implementations must be safe for
// concurrent use.
type ProfileStore interface {
	// Put creates or replaces the record for its user.
	Put(rec *ProfileRecord) error
	// Get retrieves the record for a user, or ErrNotFound.
	Get(userID string) (*ProfileRecord, error)
	// Delete removes the record for a user, or ErrNotFound.
	Delete(userID string) error
	// List returns the user IDs of all stored records.
	List() ([]string, error)
}
