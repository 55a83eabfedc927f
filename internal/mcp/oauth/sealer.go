package oauth

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
)

// Sealer provides tamper-evident encryption for credential envelopes at rest.
// Uses AES-256-GCM so every stored payload is both confidential and
// authenticated: any bit flip in the envelope fails verification at open time.
//
// Key Management:
//   - The key must be exactly 32 bytes (256 bits)
//   - Rotating the key invalidates all previously sealed envelopes; this is
//     an operational constraint, not a runtime failure mode
//   - Never hardcode keys in source code
type Sealer struct {
	key []byte
}

// NewSealer creates a Sealer from a 32-byte secret.
func NewSealer(key []byte) (*Sealer, error) {
	if len(key) != SealingKeyLength {
		return nil, fmt.Errorf("sealing key must be exactly %d bytes (256 bits), got %d bytes", SealingKeyLength, len(key))
	}
	return &Sealer{key: key}, nil
}

// Seal encrypts and authenticates plaintext.
// Returns base64-encoded: nonce || ciphertext || tag
func (s *Sealer) Seal(plaintext []byte) (string, error) {
	block, err := aes.NewCipher(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("failed to create GCM: %w", err)
	}

	// Nonce must be unique for each seal with the same key
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// Open decrypts an envelope produced by Seal and verifies its authentication
// tag. Any tampering with the stored envelope fails with IntegrityError;
// corrupted data is never returned.
func (s *Sealer) Open(encoded string) ([]byte, error) {
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &IntegrityError{Err: fmt.Errorf("invalid envelope encoding: %w", err)}
	}

	block, err := aes.NewCipher(s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, &IntegrityError{Err: fmt.Errorf("envelope too short")}
	}

	nonce, ciphertext := ciphertext[:nonceSize], ciphertext[nonceSize:]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, &IntegrityError{Err: err}
	}

	return plaintext, nil
}

// GenerateSealingKey generates a secure 32-byte sealing key.
// Call once and store the key persistently; sealed envelopes are unreadable
// without it.
func GenerateSealingKey() ([]byte, error) {
	key := make([]byte, SealingKeyLength)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate sealing key: %w", err)
	}
	return key, nil
}

// SealingKeyFromBase64 converts a base64-encoded key to bytes.
// Useful for loading the key from an environment variable.
func SealingKeyFromBase64(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, fmt.Errorf("sealing key is empty")
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}

	if len(key) != SealingKeyLength {
		return nil, fmt.Errorf("sealing key must be exactly %d bytes, got %d", SealingKeyLength, len(key))
	}

	return key, nil
}

// SealingKeyToBase64 converts a key to base64 for storage in config.
func SealingKeyToBase64(key []byte) string {
	return base64.StdEncoding.EncodeToString(key)
}
