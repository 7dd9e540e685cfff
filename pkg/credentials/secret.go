package credentials

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// SecretHashCost is the fixed bcrypt cost factor for client secrets. It is
// not configurable: lowering it weakens every stored secret, raising it
// silently changes validation latency for every token exchange.
const SecretHashCost = 12

// HashSecret hashes a client secret with bcrypt at the fixed cost factor.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is empty")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), SecretHashCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

// VerifySecret compares a presented secret against a stored bcrypt hash.
// The comparison is constant-time with respect to the secret content.
func VerifySecret(hash, secret string) error {
	if hash == "" {
		return errors.New("secret hash is empty")
	}
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(secret))
}
