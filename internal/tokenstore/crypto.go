// Package tokenstore provides durable, encrypted persistence of provider
// token state: opaque cache blobs and access tokens, keyed by provider
// account id.
package tokenstore

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
)

const (
	// blobVersion is the version byte prefixed to every encrypted blob so
	// the format can change while remaining readable.
	blobVersion = 0x01

	// nonceSize is the AES-GCM nonce size
	nonceSize = 12

	// keySize is the required key size for AES-256
	keySize = 32
)

var (
	// ErrInvalidKeySize is returned when the encryption key is not 32 bytes.
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes")

	// ErrInvalidBlobSize is returned when an encrypted blob is too small.
	ErrInvalidBlobSize = errors.New("encrypted blob is too small")

	// ErrUnsupportedVersion is returned when the blob version is unknown.
	ErrUnsupportedVersion = errors.New("unsupported encrypted blob version")

	// ErrDecryptionFailed is returned when decryption fails (wrong key or
	// corrupted data).
	ErrDecryptionFailed = errors.New("failed to decrypt blob")
)

// Cipher encrypts and decrypts opaque byte blobs.
type Cipher interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// AESCipher is an AES-256-GCM Cipher.
// The encrypted format is: version(1) || nonce(12) || ciphertext(N).
type AESCipher struct {
	gcm cipher.AEAD
}

// NewAESCipher creates a cipher with the given 32-byte key.
func NewAESCipher(key []byte) (*AESCipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("%w: got %d bytes", ErrInvalidKeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create AES cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	return &AESCipher{gcm: gcm}, nil
}

// Encrypt seals the plaintext into a versioned blob.
func (c *AESCipher) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	ciphertext := c.gcm.Seal(nil, nonce, plaintext, nil)

	blob := make([]byte, 1+nonceSize+len(ciphertext))
	blob[0] = blobVersion
	copy(blob[1:1+nonceSize], nonce)
	copy(blob[1+nonceSize:], ciphertext)

	return blob, nil
}

// Decrypt opens a versioned blob.
func (c *AESCipher) Decrypt(blob []byte) ([]byte, error) {
	minSize := 1 + nonceSize + c.gcm.Overhead()
	if len(blob) < minSize {
		return nil, ErrInvalidBlobSize
	}

	if blob[0] != blobVersion {
		return nil, fmt.Errorf("%w: got version %d", ErrUnsupportedVersion, blob[0])
	}

	nonce := blob[1 : 1+nonceSize]
	ciphertext := blob[1+nonceSize:]

	plaintext, err := c.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}

	return plaintext, nil
}
