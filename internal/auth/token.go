// Package auth provides authentication primitives for the EMS API: opaque
// bearer token generation and hashing, password hashing, TOTP enrollment and
// verification, and two-factor recovery codes.
// See internal/middleware/identity.go for the request-time resolution logic
// that uses these primitives.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

const (
	// TokenBytes is the number of random bytes in an opaque token. Encoded as
	// unpadded base64url this yields a 64-character string.
	TokenBytes = 48
)

// GenerateToken creates a new random opaque token suitable for bearer
// credentials, challenge identifiers and one-time email/reset tokens.
func GenerateToken() (string, error) {
	randomBytes := make([]byte, TokenBytes)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// HashToken returns the sha256 hex digest persisted in place of a raw token.
func HashToken(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// IssueToken generates a raw token and its digest.
// Returns: raw token (to show once), digest (to store)
func IssueToken() (raw string, digest string, err error) {
	raw, err = GenerateToken()
	if err != nil {
		return "", "", err
	}
	return raw, HashToken(raw), nil
}

// ExtractBearerToken extracts the token from an Authorization header
// Expected format: "Bearer abc123xyz..."
func ExtractBearerToken(header string) (string, error) {
	if header == "" {
		return "", errors.New("authorization header is empty")
	}

	if len(header) < 7 || !strings.EqualFold(header[:7], "Bearer ") {
		return "", errors.New("authorization header must start with 'Bearer '")
	}

	token := strings.TrimSpace(header[7:])
	if token == "" {
		return "", errors.New("token is empty after Bearer prefix")
	}

	return token, nil
}
