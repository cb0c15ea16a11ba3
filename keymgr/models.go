package keymgr

import (
	"time"

	"github.com/sanctumkit/sanctum/crisis"
	"github.com/sanctumkit/sanctum/storage"
)

// KeyOperation tags an access-log entry with the kind of key activity it
// records.
type KeyOperation string

const (
	OpDerived         KeyOperation = "derived"
	OpUsed            KeyOperation = "used"
	OpRotated         KeyOperation = "rotated"
	OpEmergencyAccess KeyOperation = "emergency-access"
	OpBiometricAuth   KeyOperation = "biometric-auth"
)

// UserKeyProfile is the manager's in-memory view of one enrolled user. It
// holds derivation policy and identifiers only; never a password and never
// derived key material.
type UserKeyProfile struct {
	UserID                string
	KeyID                 string
	Version               int
	CreatedAt             time.Time
	LastUsedAt            time.Time
	Derivation            storage.DerivationConfig
	Recovery              *storage.RecoveryConfig
	BiometricEnabled      bool
	BiometricCredentialID string
	Emergency             storage.EmergencyConfig
}

func (p *UserKeyProfile) clone() *UserKeyProfile {
	if p == nil {
		return nil
	}
	cp := *p
	cp.Derivation.Salt = append([]byte(nil), p.Derivation.Salt...)
	cp.Emergency.Contacts = append([]string(nil), p.Emergency.Contacts...)
	if p.Recovery != nil {
		r := *p.Recovery
		cp.Recovery = &r
	}
	return &cp
}

func (p *UserKeyProfile) toRecord() *storage.ProfileRecord {
	cp := p.clone()
	return &storage.ProfileRecord{
		UserID:                cp.UserID,
		KeyID:                 cp.KeyID,
		Version:               cp.Version,
		CreatedAt:             cp.CreatedAt,
		LastUsedAt:            cp.LastUsedAt,
		Derivation:            cp.Derivation,
		Recovery:              cp.Recovery,
		BiometricEnabled:      cp.BiometricEnabled,
		BiometricCredentialID: cp.BiometricCredentialID,
		Emergency:             cp.Emergency,
	}
}

func profileFromRecord(rec *storage.ProfileRecord) *UserKeyProfile {
	p := &UserKeyProfile{
		UserID:                rec.UserID,
		KeyID:                 rec.KeyID,
		Version:               rec.Version,
		CreatedAt:             rec.CreatedAt,
		LastUsedAt:            rec.LastUsedAt,
		Derivation:            rec.Derivation,
		Recovery:              rec.Recovery,
		BiometricEnabled:      rec.BiometricEnabled,
		BiometricCredentialID: rec.BiometricCredentialID,
		Emergency:             rec.Emergency,
	}
	return p.clone()
}

// SecureSession is one authenticated window of access. The session's key
// lives in the engine's enclave table; the session value itself carries
// policy and timing only.
type SecureSession struct {
	ID             string
	UserID         string
	KeyID          string
	EmergencyLevel crisis.EmergencyLevel
	Anonymous      bool
	CreatedAt      time.Time
	ExpiresAt      time.Time

	// Iterations is the derivation strength applied when the session was
	// authenticated.
	Iterations int
}

func (s *SecureSession) expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

func (s *SecureSession) clone() *SecureSession {
	if s == nil {
		return nil
	}
	cp := *s
	return &cp
}

// RequestStatus is the lifecycle state of an emergency-access request.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusGranted   RequestStatus = "granted"
	StatusCancelled RequestStatus = "cancelled"
)

// EmergencyAccessRequest is one delayed-release request against a user's
// data. A pending request becomes granted when its release time passes.
type EmergencyAccessRequest struct {
	ID          string
	UserID      string
	RequesterID string
	Reason      string
	Level       crisis.EmergencyLevel
	Status      RequestStatus
	RequestedAt time.Time
	ReleaseAt   time.Time
	GrantedAt   time.Time
}

func (r *EmergencyAccessRequest) clone() *EmergencyAccessRequest {
	if r == nil {
		return nil
	}
	cp := *r
	return &cp
}

// AccessLogEntry is one line of the in-memory key-access audit trail. Entries
// carry identifiers and outcomes only, never payloads or secrets.
type AccessLogEntry struct {
	ID        string
	UserID    string
	SessionID string
	Operation KeyOperation
	Success   bool
	Detail    string
	Time      time.Time
}

// Authenticator is the platform biometric verifier. Register enrolls a
// credential for the user and returns its platform identifier.
type Authenticator interface {
	Available() bool
	Register(userID string) (credentialID string, err error)
}
