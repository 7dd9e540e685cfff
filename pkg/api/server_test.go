package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"

	"github.com/heimdallid/heimdall/pkg/cache"
	"github.com/heimdallid/heimdall/pkg/clients"
	"github.com/heimdallid/heimdall/pkg/oauth"
	"github.com/heimdallid/heimdall/pkg/tenants"
)

const (
	testClientID     = "hmd_ci_dGVzdGNsaWVudDAwMDAwMDA"
	testClientSecret = "hmd_cs_c2VjcmV0c2VjcmV0c2VjcmV0c2VjcmV0c2VjcmV0cw"
	testRedirectURI  = "https://app.example.com/callback"
)

// fakeDirectory stands in for the Postgres-backed client registry. It also
// satisfies oauth.ClientRegistry, so the OAuth engine and HTTP surface see
// the same clients.
type fakeDirectory struct {
	byID    map[string]*clients.OAuthClient
	secrets map[string]string
}

func newFakeDirectory() *fakeDirectory {
	client := &clients.OAuthClient{
		ID:            1,
		ClientID:      testClientID,
		Name:          "Test App",
		RedirectURIs:  []string{testRedirectURI},
		AllowedScopes: []string{"read", "write"},
		Status:        clients.StatusActive,
	}
	return &fakeDirectory{
		byID:    map[string]*clients.OAuthClient{client.ClientID: client},
		secrets: map[string]string{client.ClientID: testClientSecret},
	}
}

func (d *fakeDirectory) GetClient(_ context.Context, clientID string) (*clients.OAuthClient, error) {
	return d.byID[clientID], nil
}

func (d *fakeDirectory) ValidateCredentials(_ context.Context, clientID, secret string) (*clients.OAuthClient, error) {
	client := d.byID[clientID]
	if client == nil || client.Status != clients.StatusActive || d.secrets[clientID] != secret {
		return nil, nil
	}
	return client, nil
}

func (d *fakeDirectory) Register(_ context.Context, _ *int64, req clients.RegisterRequest) (*clients.OAuthClient, string, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, "", clients.ErrInvalidName
	}
	client := &clients.OAuthClient{
		ID:            int64(len(d.byID) + 1),
		ClientID:      "hmd_ci_bmV3Y2xpZW50MDAwMDAwMDA",
		Name:          req.Name,
		RedirectURIs:  req.RedirectURIs,
		AllowedScopes: req.AllowedScopes,
		RequirePKCE:   req.RequirePKCE,
		TenantID:      req.TenantID,
		Status:        clients.StatusActive,
	}
	d.byID[client.ClientID] = client
	return client, "hmd_cs_bmV3c2VjcmV0MDAwMDAwMDAwMDAwMDAwMDAwMDAwMDAwMDA", nil
}

func (d *fakeDirectory) RegenerateSecret(_ context.Context, _ *int64, clientID string) (string, error) {
	if d.byID[clientID] == nil {
		return "", clients.ErrClientNotFound
	}
	return "hmd_cs_cm90YXRlZHNlY3JldDAwMDAwMDAwMDAwMDAwMDAwMDAwMDAw", nil
}

func (d *fakeDirectory) Suspend(_ context.Context, _ *int64, clientID string) error {
	return d.setStatus(clientID, clients.StatusSuspended)
}

func (d *fakeDirectory) Activate(_ context.Context, _ *int64, clientID string) error {
	return d.setStatus(clientID, clients.StatusActive)
}

func (d *fakeDirectory) setStatus(clientID string, status clients.ClientStatus) error {
	client := d.byID[clientID]
	if client == nil {
		return clients.ErrClientNotFound
	}
	client.Status = status
	return nil
}

func (d *fakeDirectory) Delete(_ context.Context, _ *int64, clientID string) error {
	if d.byID[clientID] == nil {
		return clients.ErrClientNotFound
	}
	delete(d.byID, clientID)
	return nil
}

func (d *fakeDirectory) ListByTenant(_ context.Context, tenantID int64) ([]*clients.OAuthClient, error) {
	var list []*clients.OAuthClient
	for _, client := range d.byID {
		if client.TenantID != nil && *client.TenantID == tenantID {
			list = append(list, client)
		}
	}
	return list, nil
}

func setupServerDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	db.SetMaxOpenConns(1)

	_, err = db.Exec(`
		CREATE TABLE tenants (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			name TEXT NOT NULL,
			slug TEXT NOT NULL UNIQUE,
			path TEXT NOT NULL DEFAULT '',
			level INTEGER NOT NULL DEFAULT 0,
			status TEXT NOT NULL DEFAULT 'active',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			archived_at TIMESTAMP
		);
		CREATE TABLE tenant_members (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL,
			user_id INTEGER NOT NULL,
			role TEXT NOT NULL,
			permissions TEXT NOT NULL DEFAULT '[]',
			invited_by INTEGER,
			invited_at TIMESTAMP NOT NULL,
			joined_at TIMESTAMP,
			UNIQUE(tenant_id, user_id)
		);
		CREATE TABLE tenant_permissions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id INTEGER NOT NULL,
			tenant_id INTEGER NOT NULL,
			resource_type TEXT NOT NULL,
			resource_id TEXT NOT NULL DEFAULT '*',
			actions TEXT NOT NULL DEFAULT '',
			granted_by INTEGER,
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP
		);
		CREATE TABLE tenant_policies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			tenant_id INTEGER NOT NULL UNIQUE,
			effect TEXT NOT NULL DEFAULT 'allow',
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL
		);
		CREATE TABLE authorization_codes (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			code_hash TEXT NOT NULL UNIQUE,
			client_id TEXT NOT NULL,
			user_id INTEGER NOT NULL,
			redirect_uri TEXT NOT NULL,
			scopes TEXT NOT NULL DEFAULT '',
			code_challenge TEXT NOT NULL DEFAULT '',
			code_challenge_method TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			consumed BOOLEAN NOT NULL DEFAULT FALSE
		);
		CREATE TABLE oauth_tokens (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			access_token_hash TEXT NOT NULL UNIQUE,
			refresh_token_hash TEXT UNIQUE,
			client_id TEXT NOT NULL,
			user_id INTEGER,
			scopes TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMP NOT NULL,
			expires_at TIMESTAMP NOT NULL,
			refresh_expires_at TIMESTAMP,
			revoked_at TIMESTAMP
		);
	`)
	if err != nil {
		t.Fatalf("failed to create test tables: %v", err)
	}

	t.Cleanup(func() { db.Close() })
	return db
}

func newTestServer(t *testing.T) (*Server, *fakeDirectory, *tenants.Engine) {
	t.Helper()

	db := setupServerDB(t)
	dir := newFakeDirectory()
	tenantsEngine := tenants.NewEngine(db, cache.NewMemoryCache(0, 0), nil, nil)
	oauthEngine := oauth.NewEngine(db, dir, tenantsEngine, nil, nil)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewServer(oauthEngine, dir, tenantsEngine, nil, logger), dir, tenantsEngine
}

func doJSON(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to encode request: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Authenticated-User", "1")

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dest interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), dest); err != nil {
		t.Fatalf("failed to decode response %q: %v", rec.Body.String(), err)
	}
}

func TestRouterUnknownPath(t *testing.T) {
	srv, _, _ := newTestServer(t)
	rec := doJSON(t, srv, http.MethodGet, "/nope", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
