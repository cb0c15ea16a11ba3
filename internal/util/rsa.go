package util

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"fmt"
)

// RSAKeyBits is the modulus size used for key-exchange pairs.
const RSAKeyBits = 4096

// GenerateRSAKeyPair generates a new RSA-4096 key pair for wrapping
// session keys to a second party.
func GenerateRSAKeyPair() (*rsa.PrivateKey, error) {
	key, err := rsa.GenerateKey(rand.Reader, RSAKeyBits)
	if err != nil {
		return nil, fmt.Errorf("generating RSA key pair: %w", err)
	}
	return key, nil
}

// WrapKeyRSA encrypts raw key bytes under the recipient's public key using
// RSA-OAEP with SHA-256.
func WrapKeyRSA(pub *rsa.PublicKey, rawKey []byte) ([]byte, error) {
	wrapped, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, rawKey, nil)
	if err != nil {
		return nil, fmt.Errorf("wrapping key: %w", err)
	}
	return wrapped, nil
}

// UnwrapKeyRSA decrypts key bytes previously produced by WrapKeyRSA.
func UnwrapKeyRSA(priv *rsa.PrivateKey, wrapped []byte) ([]byte, error) {
	rawKey, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, priv, wrapped, nil)
	if err != nil {
		return nil, fmt.Errorf("unwrapping key: %w", err)
	}
	return rawKey, nil
}

// MarshalPublicKeyPEM encodes an RSA public key as a PKIX PEM block.
func MarshalPublicKeyPEM(pub *rsa.PublicKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("marshaling public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

// ParsePublicKeyPEM decodes a PKIX PEM block into an RSA public key.
func ParsePublicKeyPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil || block.Type != "PUBLIC KEY" {
		return nil, fmt.Errorf("failed to decode PEM block containing public key")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPub, nil
}
