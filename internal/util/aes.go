package util

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"
)

const (
	AESKeySize   = 32
	GCMNonceSize = 12
	GCMTagSize   = 16
)

// SealAESGCM encrypts plaintext with AES-256-GCM under the given key and IV.
// The ciphertext and the 16-byte authentication tag are returned separately so
// callers can store them as distinct envelope fields.
func SealAESGCM(plainText, rawKey, iv []byte) (cipherText, tag []byte, err error) {
	gcm, err := newGCM(rawKey)
	if err != nil {
		return nil, nil, err
	}
	if len(iv) != GCMNonceSize {
		return nil, nil, fmt.Errorf("invalid IV size: got %d, want %d", len(iv), GCMNonceSize)
	}

	sealed := gcm.Seal(nil, iv, plainText, nil)
	split := len(sealed) - GCMTagSize
	return sealed[:split], sealed[split:], nil
}

// OpenAESGCM decrypts ciphertext||tag with AES-256-GCM under the given key and IV.
func OpenAESGCM(cipherText, tag, rawKey, iv []byte) ([]byte, error) {
	gcm, err := newGCM(rawKey)
	if err != nil {
		return nil, err
	}
	if len(iv) != GCMNonceSize {
		return nil, fmt.Errorf("invalid IV size: got %d, want %d", len(iv), GCMNonceSize)
	}
	if len(tag) != GCMTagSize {
		return nil, fmt.Errorf("invalid tag size: got %d, want %d", len(tag), GCMTagSize)
	}

	sealed := make([]byte, 0, len(cipherText)+len(tag))
	sealed = append(sealed, cipherText...)
	sealed = append(sealed, tag...)

	plainText, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting ciphertext: %w", err)
	}
	return plainText, nil
}

func newGCM(rawKey []byte) (cipher.AEAD, error) {
	if len(rawKey) != AESKeySize {
		return nil, fmt.Errorf("invalid AES key size: got %d, want %d", len(rawKey), AESKeySize)
	}
	block, err := aes.NewCipher(rawKey)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

func NewAESKey() ([]byte, error) {
	return RandomBytes(AESKeySize)
}
