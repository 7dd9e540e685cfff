package credentials

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
)

// Credential prefixes. Every opaque value Heimdall issues carries one of
// these so that leaked credentials are identifiable and malformed input can
// be rejected without a database round trip.
const (
	ClientIDPrefix     = "hmd_ci_"
	ClientSecretPrefix = "hmd_cs_"
	AuthCodePrefix     = "hmd_ac_"
	AccessTokenPrefix  = "hmd_at_"
	RefreshTokenPrefix = "hmd_rt_"
)

const (
	// ClientIDLength is the number of random bytes in a client ID (128 bits).
	ClientIDLength = 16
	// SecretLength is the number of random bytes in secrets, codes and
	// tokens (256 bits).
	SecretLength = 32
)

// Generator generates and validates Heimdall opaque credentials.
type Generator struct{}

// NewGenerator creates a new credential generator.
func NewGenerator() *Generator {
	return &Generator{}
}

// Generate creates a new opaque credential with the given prefix.
// Client IDs use 16 random bytes; everything else uses 32.
func (g *Generator) Generate(prefix string) (string, error) {
	length := SecretLength
	if prefix == ClientIDPrefix {
		length = ClientIDLength
	}

	randomBytes := make([]byte, length)
	if _, err := rand.Read(randomBytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return prefix + base64.RawURLEncoding.EncodeToString(randomBytes), nil
}

// HashToken computes the SHA-256 hex digest of a credential for storage and
// lookup. Plaintext codes and tokens are never persisted.
func HashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}

// ValidateFormat checks that a credential has the expected prefix and a valid
// base64url payload of the expected length. It performs no lookup; callers use
// it to fail fast on structurally malformed input.
func ValidateFormat(token, prefix string) error {
	if !strings.HasPrefix(token, prefix) {
		return fmt.Errorf("credential must start with %q", prefix)
	}

	encoded := strings.TrimPrefix(token, prefix)
	if encoded == "" {
		return fmt.Errorf("credential is too short")
	}

	decoded, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return fmt.Errorf("invalid credential encoding: %w", err)
	}

	want := SecretLength
	if prefix == ClientIDPrefix {
		want = ClientIDLength
	}
	if len(decoded) != want {
		return fmt.Errorf("credential payload must be %d bytes, got %d", want, len(decoded))
	}

	return nil
}

// DisplayPrefix returns a short identifying prefix for display in listings
// (the credential prefix plus the first 8 encoded characters).
func DisplayPrefix(token, prefix string) string {
	if !strings.HasPrefix(token, prefix) {
		return ""
	}

	encoded := strings.TrimPrefix(token, prefix)
	if len(encoded) >= 8 {
		return prefix + encoded[:8]
	}
	return token
}
