package oauth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// generateSecureToken generates a cryptographically random token of n bytes,
// base64url-encoded without padding.
func generateSecureToken(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// GenerateCodeVerifier generates a random code verifier for PKCE.
// 32 random bytes encode to 43 characters, the RFC 7636 minimum.
func GenerateCodeVerifier() (string, error) {
	return generateSecureToken(32)
}

// GenerateCodeChallenge generates the code challenge from a code verifier
// using the S256 method: BASE64URL(SHA256(ASCII(code_verifier)))
func GenerateCodeChallenge(verifier string) string {
	h := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(h[:])
}

// ValidateCodeChallenge validates that the code verifier matches the code
// challenge using the specified method. Only S256 is accepted.
func ValidateCodeChallenge(verifier, challenge, method string) bool {
	switch method {
	case "S256":
		return GenerateCodeChallenge(verifier) == challenge
	default:
		return false
	}
}
