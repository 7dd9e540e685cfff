package clients

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
)

// Store handles OAuth client persistence.
type Store struct {
	db *sql.DB
}

// NewStore creates a new client store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new client.
func (s *Store) Create(ctx context.Context, client *OAuthClient) error {
	query := `
		INSERT INTO oauth_clients (client_id, client_secret_hash, name, redirect_uris, allowed_scopes, require_pkce, tenant_id, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id
	`

	now := time.Now()
	err := s.db.QueryRowContext(ctx, query,
		client.ClientID,
		client.ClientSecretHash,
		client.Name,
		pq.Array(client.RedirectURIs),
		pq.Array(client.AllowedScopes),
		client.RequirePKCE,
		client.TenantID,
		client.Status,
		now,
		now,
	).Scan(&client.ID)
	if err != nil {
		return fmt.Errorf("failed to create client: %w", err)
	}

	client.CreatedAt = now
	client.UpdatedAt = now
	return nil
}

// GetByClientID retrieves a client by its public identifier. Returns
// (nil, nil) when no such client exists.
func (s *Store) GetByClientID(ctx context.Context, clientID string) (*OAuthClient, error) {
	query := `
		SELECT id, client_id, client_secret_hash, name, redirect_uris, allowed_scopes, require_pkce, tenant_id, status, created_at, updated_at
		FROM oauth_clients
		WHERE client_id = $1
	`

	var client OAuthClient
	var tenantID sql.NullInt64
	var redirectURIs, allowedScopes pq.StringArray

	err := s.db.QueryRowContext(ctx, query, clientID).Scan(
		&client.ID,
		&client.ClientID,
		&client.ClientSecretHash,
		&client.Name,
		&redirectURIs,
		&allowedScopes,
		&client.RequirePKCE,
		&tenantID,
		&client.Status,
		&client.CreatedAt,
		&client.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}

	client.RedirectURIs = redirectURIs
	client.AllowedScopes = allowedScopes
	if tenantID.Valid {
		id := tenantID.Int64
		client.TenantID = &id
	}

	return &client, nil
}

// ListByTenant returns all clients owned by a tenant.
func (s *Store) ListByTenant(ctx context.Context, tenantID int64) ([]*OAuthClient, error) {
	query := `
		SELECT id, client_id, client_secret_hash, name, redirect_uris, allowed_scopes, require_pkce, tenant_id, status, created_at, updated_at
		FROM oauth_clients
		WHERE tenant_id = $1
		ORDER BY created_at ASC
	`

	rows, err := s.db.QueryContext(ctx, query, tenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*OAuthClient
	for rows.Next() {
		var client OAuthClient
		var tid sql.NullInt64
		var redirectURIs, allowedScopes pq.StringArray

		err := rows.Scan(
			&client.ID,
			&client.ClientID,
			&client.ClientSecretHash,
			&client.Name,
			&redirectURIs,
			&allowedScopes,
			&client.RequirePKCE,
			&tid,
			&client.Status,
			&client.CreatedAt,
			&client.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}

		client.RedirectURIs = redirectURIs
		client.AllowedScopes = allowedScopes
		if tid.Valid {
			id := tid.Int64
			client.TenantID = &id
		}
		clients = append(clients, &client)
	}

	return clients, rows.Err()
}

// UpdateSecretHash replaces the stored secret hash.
func (s *Store) UpdateSecretHash(ctx context.Context, clientID, secretHash string) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE oauth_clients SET client_secret_hash = $1, updated_at = NOW() WHERE client_id = $2",
		secretHash, clientID,
	)
	if err != nil {
		return fmt.Errorf("failed to update client secret: %w", err)
	}
	return requireOneRow(result, clientID)
}

// UpdateStatus sets the client status.
func (s *Store) UpdateStatus(ctx context.Context, clientID string, status ClientStatus) error {
	result, err := s.db.ExecContext(ctx,
		"UPDATE oauth_clients SET status = $1, updated_at = NOW() WHERE client_id = $2",
		status, clientID,
	)
	if err != nil {
		return fmt.Errorf("failed to update client status: %w", err)
	}
	return requireOneRow(result, clientID)
}

// Delete removes a client. Authorization codes and tokens cascade via
// foreign keys.
func (s *Store) Delete(ctx context.Context, clientID string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM oauth_clients WHERE client_id = $1", clientID)
	if err != nil {
		return fmt.Errorf("failed to delete client: %w", err)
	}
	return requireOneRow(result, clientID)
}

func requireOneRow(result sql.Result, clientID string) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check affected rows: %w", err)
	}
	if affected == 0 {
		return ErrClientNotFound
	}
	return nil
}
