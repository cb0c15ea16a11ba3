package crisis

import "fmt"

// Identifiers carried in every envelope. A consumer must treat any other
// value as an unsupported envelope rather than attempting decryption.
const (
	AlgorithmAES256GCM  = "AES-256-GCM"
	KeyDerivationPBKDF2 = "PBKDF2-SHA-256"
)

// Envelope field sizes.
const (
	IVSize   = 12 // 96-bit IV, unique per encryption
	SaltSize = 32 // 256-bit salt, unique per encryption
	TagSize  = 16 // 128-bit authentication tag
)

// Envelope is the immutable output of one encryption call. Byte fields
// serialize as base64 strings under encoding/json.
type Envelope struct {
	Data          []byte `json:"data"`
	IV            []byte `json:"iv"`
	Salt          []byte `json:"salt"`
	Tag           []byte `json:"tag"`
	Algorithm     string `json:"algorithm"`
	KeyDerivation string `json:"keyDerivation"`
	Iterations    int    `json:"iterations"`
	Timestamp     int64  `json:"timestamp"` // epoch milliseconds
}

// Validate checks envelope structure before any cryptographic primitive runs.
// Unknown algorithm or derivation identifiers are reported as unsupported,
// everything else as invalid.
func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: envelope is nil", ErrInvalidEnvelope)
	}
	if e.Algorithm != AlgorithmAES256GCM {
		return fmt.Errorf("%w: algorithm %q", ErrUnsupportedEnvelope, e.Algorithm)
	}
	if e.KeyDerivation != KeyDerivationPBKDF2 {
		return fmt.Errorf("%w: key derivation %q", ErrUnsupportedEnvelope, e.KeyDerivation)
	}
	if len(e.Data) == 0 {
		return fmt.Errorf("%w: missing ciphertext", ErrInvalidEnvelope)
	}
	if len(e.IV) != IVSize {
		return fmt.Errorf("%w: IV must be %d bytes, got %d", ErrInvalidEnvelope, IVSize, len(e.IV))
	}
	if len(e.Salt) != SaltSize {
		return fmt.Errorf("%w: salt must be %d bytes, got %d", ErrInvalidEnvelope, SaltSize, len(e.Salt))
	}
	if len(e.Tag) != TagSize {
		return fmt.Errorf("%w: tag must be %d bytes, got %d", ErrInvalidEnvelope, TagSize, len(e.Tag))
	}
	if e.Iterations < 1 {
		return fmt.Errorf("%w: iteration count must be positive, got %d", ErrInvalidEnvelope, e.Iterations)
	}
	return nil
}
