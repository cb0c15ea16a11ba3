package util

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// ExpandKey derives a fresh 256-bit subkey from existing key material using
// HKDF-SHA-256. The info string namespaces each use, so two call sites can
// never produce the same subkey from one secret.
func ExpandKey(secret, salt, info []byte) ([]byte, error) {
	r := hkdf.New(sha256.New, secret, salt, info)
	subkey := make([]byte, AESKeySize)
	if _, err := io.ReadFull(r, subkey); err != nil {
		return nil, fmt.Errorf("expanding subkey: %w", err)
	}
	return subkey, nil
}
