package util

import (
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

// PBKDF2Params configures PBKDF2-SHA-256 key derivation.
type PBKDF2Params struct {
	Iterations int `json:"iterations"`
	SaltLen    int `json:"salt_len"`
	KeyLen     int `json:"key_len"`
}

// DefaultPBKDF2Params returns the OWASP-recommended baseline:
// 600,000 iterations, 256-bit salt, 256-bit derived key.
func DefaultPBKDF2Params() PBKDF2Params {
	return PBKDF2Params{
		Iterations: 600_000,
		SaltLen:    32,
		KeyLen:     32,
	}
}

// ValidatePBKDF2Params checks that the given parameters meet the minimum
// acceptable thresholds.
func ValidatePBKDF2Params(p PBKDF2Params) error {
	if p.Iterations < 1 {
		return fmt.Errorf("pbkdf2 iterations must be positive, got %d", p.Iterations)
	}
	if p.SaltLen < 16 {
		return fmt.Errorf("pbkdf2 salt length must be at least 16 bytes, got %d", p.SaltLen)
	}
	if p.KeyLen != 32 {
		return fmt.Errorf("pbkdf2 key length must be 32 bytes, got %d", p.KeyLen)
	}
	return nil
}

// DerivePBKDF2Key derives a symmetric key from a password and salt using
// PBKDF2-SHA-256. The password is NFKD-normalized before derivation.
func DerivePBKDF2Key(password string, salt []byte, params PBKDF2Params) ([]byte, error) {
	if err := ValidatePBKDF2Params(params); err != nil {
		return nil, err
	}
	if len(salt) == 0 {
		return nil, fmt.Errorf("pbkdf2 salt must not be empty")
	}
	return pbkdf2.Key([]byte(Normalize(password)), salt, params.Iterations, params.KeyLen, sha256.New), nil
}
