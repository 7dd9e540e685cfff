package oauth

import (
	"strings"
	"time"
)

// Fixed lifetimes. Deliberately not client-configurable so the blast radius
// of a leaked credential is bounded platform-wide.
const (
	CodeTTL         = 10 * time.Minute
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// GrantType enumerates the token grants the service supports.
type GrantType string

const (
	GrantAuthorizationCode GrantType = "authorization_code"
	GrantRefreshToken      GrantType = "refresh_token"
	GrantClientCredentials GrantType = "client_credentials"
)

// ParseGrantType validates an external grant_type string at the boundary.
func ParseGrantType(s string) (GrantType, bool) {
	switch GrantType(s) {
	case GrantAuthorizationCode, GrantRefreshToken, GrantClientCredentials:
		return GrantType(s), true
	}
	return "", false
}

// ResponseTypeCode is the only response_type the authorize endpoint accepts.
const ResponseTypeCode = "code"

// AuthorizeRequest carries the parameters of an authorize call after the
// HTTP layer has decoded them.
type AuthorizeRequest struct {
	ClientID            string
	RedirectURI         string
	ResponseType        string
	Scope               string
	CodeChallenge       string
	CodeChallengeMethod string
}

// Scopes splits the space-delimited scope parameter.
func (r AuthorizeRequest) Scopes() []string {
	return strings.Fields(r.Scope)
}

// AuthorizationCode is the stored form of an issued code. Only the SHA-256
// hash of the code is persisted.
type AuthorizationCode struct {
	ID                  int64
	CodeHash            string
	ClientID            string
	UserID              int64
	RedirectURI         string
	Scopes              []string
	CodeChallenge       string
	CodeChallengeMethod string
	CreatedAt           time.Time
	ExpiresAt           time.Time
	Consumed            bool
}

// CodeGrant is what a successful code exchange yields: the identity and
// scope set the code was bound to at issuance.
type CodeGrant struct {
	ClientID string
	UserID   int64
	Scopes   []string
}

// Token is the stored form of an issued token pair. client_credentials
// tokens have no user and no refresh half.
type Token struct {
	ID               int64
	AccessTokenHash  string
	RefreshTokenHash string
	ClientID         string
	UserID           *int64
	Scopes           []string
	CreatedAt        time.Time
	ExpiresAt        time.Time
	RefreshExpiresAt *time.Time
	RevokedAt        *time.Time
}

// TokenResponse is the wire shape of a successful token grant. The plaintext
// tokens appear here once and are never stored.
type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int64  `json:"expires_in"`
	RefreshToken string `json:"refresh_token,omitempty"`
	Scope        string `json:"scope"`
}

// Introspection is the verdict on a presented token. Inactive verdicts carry
// no claims and no reason; expired, revoked and unknown tokens are
// indistinguishable to the caller.
type Introspection struct {
	Active    bool   `json:"active"`
	ClientID  string `json:"client_id,omitempty"`
	UserID    *int64 `json:"user_id,omitempty"`
	Scope     string `json:"scope,omitempty"`
	TokenType string `json:"token_type,omitempty"`
	ExpiresAt int64  `json:"exp,omitempty"`
}
