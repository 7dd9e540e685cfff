package clients

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/heimdallid/heimdall/pkg/audit"
	"github.com/heimdallid/heimdall/pkg/cache"
	"github.com/heimdallid/heimdall/pkg/credentials"
	"github.com/heimdallid/heimdall/pkg/observability"
)

// Named errors. These are caller mistakes, distinct from credential
// validation failures which deliberately carry no reason.
var (
	ErrClientNotFound  = errors.New("client not found")
	ErrInvalidName     = errors.New("client name is required")
	ErrNoRedirectURIs  = errors.New("at least one redirect URI is required")
	ErrInvalidRedirect = errors.New("redirect URIs must be absolute http(s) URLs without fragments")
	ErrNoScopes        = errors.New("at least one allowed scope is required")
	ErrInvalidScope    = errors.New("scope values must be non-empty and contain no whitespace")
)

// dummySecretHash is a valid bcrypt hash at the fixed cost factor, compared
// against when the client ID is unknown so that lookup misses take as long
// as wrong secrets.
const dummySecretHash = "$2a$12$R9h/cIPz0gi.URNNX3kh2OPST9/PgBkqquzi.Ss7KIUgO2t0jWMUW"

// Registry owns the OAuth client lifecycle.
type Registry struct {
	store *Store
	cache cache.Cache
	audit audit.Logger
	gen   *credentials.Generator
	log   *observability.Logger
}

// NewRegistry creates a client registry.
func NewRegistry(store *Store, c cache.Cache, auditLogger audit.Logger, log *observability.Logger) *Registry {
	if c == nil {
		c = cache.NewNop()
	}
	if auditLogger == nil {
		auditLogger = audit.NewNopLogger()
	}
	return &Registry{
		store: store,
		cache: c,
		audit: auditLogger,
		gen:   credentials.NewGenerator(),
		log:   log,
	}
}

// Register creates a client and returns it together with the plaintext
// secret. The secret is never retrievable again; only its bcrypt hash is
// stored.
func (r *Registry) Register(ctx context.Context, actorUserID *int64, req RegisterRequest) (*OAuthClient, string, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, "", ErrInvalidName
	}
	if len(req.RedirectURIs) == 0 {
		return nil, "", ErrNoRedirectURIs
	}
	for _, uri := range req.RedirectURIs {
		if err := validateRedirectURI(uri); err != nil {
			return nil, "", fmt.Errorf("%w: %q", ErrInvalidRedirect, uri)
		}
	}
	if len(req.AllowedScopes) == 0 {
		return nil, "", ErrNoScopes
	}
	for _, scope := range req.AllowedScopes {
		if strings.TrimSpace(scope) == "" || strings.ContainsAny(scope, " \t") {
			return nil, "", fmt.Errorf("%w: %q", ErrInvalidScope, scope)
		}
	}

	clientID, err := r.gen.Generate(credentials.ClientIDPrefix)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate client ID: %w", err)
	}
	secret, err := r.gen.Generate(credentials.ClientSecretPrefix)
	if err != nil {
		return nil, "", fmt.Errorf("failed to generate client secret: %w", err)
	}
	secretHash, err := credentials.HashSecret(secret)
	if err != nil {
		return nil, "", fmt.Errorf("failed to hash client secret: %w", err)
	}

	client := &OAuthClient{
		ClientID:         clientID,
		ClientSecretHash: secretHash,
		Name:             req.Name,
		RedirectURIs:     req.RedirectURIs,
		AllowedScopes:    req.AllowedScopes,
		RequirePKCE:      req.RequirePKCE,
		TenantID:         req.TenantID,
		Status:           StatusActive,
	}
	if err := r.store.Create(ctx, client); err != nil {
		return nil, "", err
	}

	r.auditClient(ctx, audit.ActionClientRegister, actorUserID, client, map[string]interface{}{
		"name":         client.Name,
		"require_pkce": client.RequirePKCE,
		"scopes":       client.AllowedScopes,
	})

	return client, secret, nil
}

// GetClient retrieves a client by its public ID, read-through cached.
// Returns (nil, nil) when the client does not exist.
func (r *Registry) GetClient(ctx context.Context, clientID string) (*OAuthClient, error) {
	key := cache.ClientKey(clientID)
	if data, ok, err := r.cache.Get(ctx, key); err == nil && ok {
		var client OAuthClient
		if err := json.Unmarshal(data, &client); err == nil {
			return &client, nil
		}
		// Corrupt entry: drop it and fall through to the store.
		r.cache.Delete(ctx, key)
	}

	client, err := r.store.GetByClientID(ctx, clientID)
	if err != nil || client == nil {
		return client, err
	}

	if data, err := json.Marshal(client); err == nil {
		r.cache.Set(ctx, key, data, cache.DefaultTTL)
	}
	return client, nil
}

// ValidateCredentials checks a client ID/secret pair. It returns (nil, nil)
// on every authentication failure without distinguishing the reason: unknown
// client, wrong secret and suspended client all look identical to a caller.
//
// The secret hash comes from the store, not the cache, so a regeneration is
// effective immediately.
func (r *Registry) ValidateCredentials(ctx context.Context, clientID, secret string) (*OAuthClient, error) {
	// Structural checks avoid a DB round trip and a bcrypt comparison for
	// garbage input.
	if r.ValidateClientIDFormat(clientID) != nil || r.ValidateClientSecretFormat(secret) != nil {
		return nil, nil
	}

	client, err := r.store.GetByClientID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		// Burn a comparison anyway so unknown client IDs cost the same as
		// wrong secrets.
		credentials.VerifySecret(dummySecretHash, secret)
		return nil, nil
	}

	if err := credentials.VerifySecret(client.ClientSecretHash, secret); err != nil {
		return nil, nil
	}
	if client.Status != StatusActive {
		return nil, nil
	}

	return client, nil
}

// ValidateRedirectURI reports whether uri exactly matches one of the
// client's registered URIs.
func (r *Registry) ValidateRedirectURI(ctx context.Context, clientID, uri string) (bool, error) {
	client, err := r.GetClient(ctx, clientID)
	if err != nil {
		return false, err
	}
	if client == nil {
		return false, nil
	}
	return client.HasRedirectURI(uri), nil
}

// RegenerateSecret replaces the client secret and returns the new plaintext,
// shown once. The old secret stops validating immediately.
func (r *Registry) RegenerateSecret(ctx context.Context, actorUserID *int64, clientID string) (string, error) {
	client, err := r.store.GetByClientID(ctx, clientID)
	if err != nil {
		return "", err
	}
	if client == nil {
		return "", ErrClientNotFound
	}

	secret, err := r.gen.Generate(credentials.ClientSecretPrefix)
	if err != nil {
		return "", fmt.Errorf("failed to generate client secret: %w", err)
	}
	secretHash, err := credentials.HashSecret(secret)
	if err != nil {
		return "", fmt.Errorf("failed to hash client secret: %w", err)
	}

	if err := r.store.UpdateSecretHash(ctx, clientID, secretHash); err != nil {
		return "", err
	}
	r.cache.Delete(ctx, cache.ClientKey(clientID))

	r.auditClient(ctx, audit.ActionClientSecretRegenerate, actorUserID, client, nil)
	return secret, nil
}

// Suspend disables a client. Suspended clients fail credential validation
// and cannot be issued codes or tokens.
func (r *Registry) Suspend(ctx context.Context, actorUserID *int64, clientID string) error {
	return r.setStatus(ctx, actorUserID, clientID, StatusSuspended, audit.ActionClientSuspend)
}

// Activate re-enables a suspended client.
func (r *Registry) Activate(ctx context.Context, actorUserID *int64, clientID string) error {
	return r.setStatus(ctx, actorUserID, clientID, StatusActive, audit.ActionClientActivate)
}

func (r *Registry) setStatus(ctx context.Context, actorUserID *int64, clientID string, status ClientStatus, action audit.Action) error {
	client, err := r.store.GetByClientID(ctx, clientID)
	if err != nil {
		return err
	}
	if client == nil {
		return ErrClientNotFound
	}

	if err := r.store.UpdateStatus(ctx, clientID, status); err != nil {
		return err
	}
	r.cache.Delete(ctx, cache.ClientKey(clientID))

	r.auditClient(ctx, action, actorUserID, client, map[string]interface{}{"status": status})
	return nil
}

// Delete removes a client; its codes and tokens cascade away with it.
func (r *Registry) Delete(ctx context.Context, actorUserID *int64, clientID string) error {
	client, err := r.store.GetByClientID(ctx, clientID)
	if err != nil {
		return err
	}
	if client == nil {
		return ErrClientNotFound
	}

	if err := r.store.Delete(ctx, clientID); err != nil {
		return err
	}
	r.cache.Delete(ctx, cache.ClientKey(clientID))

	r.auditClient(ctx, audit.ActionClientDelete, actorUserID, client, nil)
	return nil
}

// ListByTenant returns a tenant's clients.
func (r *Registry) ListByTenant(ctx context.Context, tenantID int64) ([]*OAuthClient, error) {
	return r.store.ListByTenant(ctx, tenantID)
}

// ValidateClientIDFormat checks client ID structure without a lookup.
func (r *Registry) ValidateClientIDFormat(clientID string) error {
	return credentials.ValidateFormat(clientID, credentials.ClientIDPrefix)
}

// ValidateClientSecretFormat checks client secret structure without a lookup.
func (r *Registry) ValidateClientSecretFormat(secret string) error {
	return credentials.ValidateFormat(secret, credentials.ClientSecretPrefix)
}

func (r *Registry) auditClient(ctx context.Context, action audit.Action, actorUserID *int64, client *OAuthClient, details map[string]interface{}) {
	event := audit.NewEvent(action, audit.CategoryClient, audit.StatusSuccess)
	event.ActorUserID = actorUserID
	event.TenantID = client.TenantID
	event.TargetType = audit.TargetClient
	event.TargetID = client.ClientID
	event.Details = details

	if err := r.audit.Log(ctx, event); err != nil && r.log != nil {
		r.log.WithError(err).WithField("action", string(action)).Error("audit write failed")
	}
}

// validateRedirectURI accepts only absolute http(s) URLs without fragments.
// The stored string is still matched exactly at authorize time.
func validateRedirectURI(uri string) error {
	parsed, err := url.Parse(uri)
	if err != nil {
		return err
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	if parsed.Host == "" {
		return fmt.Errorf("missing host")
	}
	if parsed.Fragment != "" {
		return fmt.Errorf("fragment not allowed")
	}
	return nil
}
