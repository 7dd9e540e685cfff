package clients

import (
	"time"
)

// ClientStatus represents the lifecycle state of an OAuth client.
type ClientStatus string

const (
	StatusActive    ClientStatus = "active"
	StatusSuspended ClientStatus = "suspended"
)

// ParseClientStatus validates an external status string at the boundary.
func ParseClientStatus(s string) (ClientStatus, bool) {
	switch ClientStatus(s) {
	case StatusActive, StatusSuspended:
		return ClientStatus(s), true
	}
	return "", false
}

// OAuthClient is a registered application.
type OAuthClient struct {
	ID               int64        `json:"id"`
	ClientID         string       `json:"client_id"`
	ClientSecretHash string       `json:"-"` // never exposed
	Name             string       `json:"name"`
	RedirectURIs     []string     `json:"redirect_uris"`
	AllowedScopes    []string     `json:"allowed_scopes"`
	RequirePKCE      bool         `json:"require_pkce"`
	TenantID         *int64       `json:"tenant_id,omitempty"` // nil for platform-level clients
	Status           ClientStatus `json:"status"`
	CreatedAt        time.Time    `json:"created_at"`
	UpdatedAt        time.Time    `json:"updated_at"`
}

// HasRedirectURI reports whether uri exactly matches a registered URI.
// Exact string comparison only; pattern matching would open the registry to
// open-redirect abuse.
func (c *OAuthClient) HasRedirectURI(uri string) bool {
	for _, registered := range c.RedirectURIs {
		if registered == uri {
			return true
		}
	}
	return false
}

// HasScope reports whether scope is in the client's whitelist.
func (c *OAuthClient) HasScope(scope string) bool {
	for _, allowed := range c.AllowedScopes {
		if allowed == scope {
			return true
		}
	}
	return false
}

// HasScopes reports whether every requested scope is whitelisted.
func (c *OAuthClient) HasScopes(scopes []string) bool {
	for _, s := range scopes {
		if !c.HasScope(s) {
			return false
		}
	}
	return true
}

// BelongsToTenant reports whether the client is usable in the given tenant.
// Tenant-less clients are platform-wide.
func (c *OAuthClient) BelongsToTenant(tenantID int64) bool {
	return c.TenantID == nil || *c.TenantID == tenantID
}

// RegisterRequest carries the inputs for client registration.
type RegisterRequest struct {
	Name          string   `json:"name"`
	RedirectURIs  []string `json:"redirect_uris"`
	AllowedScopes []string `json:"allowed_scopes"`
	RequirePKCE   bool     `json:"require_pkce"`
	TenantID      *int64   `json:"tenant_id,omitempty"`
}
