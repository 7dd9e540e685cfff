package oauth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
)

// PKCE challenge methods per RFC 7636.
const (
	MethodS256  = "S256"
	MethodPlain = "plain"
)

// NormalizeChallengeMethod applies the RFC 7636 default: a challenge without
// a method means plain. Returns false for any other method string.
func NormalizeChallengeMethod(method string) (string, bool) {
	switch method {
	case "":
		return MethodPlain, true
	case MethodS256, MethodPlain:
		return method, true
	}
	return "", false
}

// S256Challenge derives the S256 challenge for a verifier:
// base64url(sha256(verifier)), unpadded.
func S256Challenge(verifier string) string {
	digest := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

// VerifyChallenge checks a verifier against a recorded challenge in constant
// time. An unknown recorded method is a defect caught at issuance; here it
// simply fails.
func VerifyChallenge(challenge, method, verifier string) bool {
	switch method {
	case MethodS256:
		computed := S256Challenge(verifier)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(challenge)) == 1
	case MethodPlain:
		return subtle.ConstantTimeCompare([]byte(verifier), []byte(challenge)) == 1
	}
	return false
}
