package util

import (
	"encoding/hex"

	"golang.org/x/text/unicode/norm"
)

// Normalize canonicalizes a password with NFKD before derivation, so
// visually identical input typed on different platforms derives the same key.
func Normalize(password string) string {
	return norm.NFKD.String(password)
}

// HexEncode renders derived key material as a lowercase hex string usable as
// an ephemeral password.
func HexEncode(b []byte) string {
	return hex.EncodeToString(b)
}
