package oauth

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/heimdallid/heimdall/pkg/audit"
	"github.com/heimdallid/heimdall/pkg/clients"
	"github.com/heimdallid/heimdall/pkg/credentials"
)

// Exchange runs the authorization_code grant: authenticates the client,
// consumes the code, and issues a token pair bound to the code's user and
// scope set.
func (e *Engine) Exchange(ctx context.Context, clientID, clientSecret, code, redirectURI, codeVerifier string) (*TokenResponse, error) {
	client, err := e.registry.ValidateCredentials(ctx, clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to validate client credentials: %w", err)
	}
	if client == nil {
		return nil, protocolError(CodeInvalidClient, "client authentication failed")
	}

	grant, err := e.ValidateAndConsumeCode(ctx, code, clientID, redirectURI, codeVerifier)
	if err != nil {
		return nil, err
	}
	if grant == nil {
		return nil, protocolError(CodeInvalidGrant, "authorization code is not valid")
	}

	resp, err := e.issueTokens(ctx, client, &grant.UserID, grant.Scopes, true)
	if err != nil {
		return nil, err
	}

	e.auditOAuth(ctx, audit.ActionTokenIssue, &grant.UserID, client, audit.TargetToken, map[string]interface{}{
		"grant_type": string(GrantAuthorizationCode),
		"scopes":     grant.Scopes,
	})
	return resp, nil
}

// Refresh runs the refresh_token grant. The presented refresh token is
// revoked and a new pair is issued in its place; a refresh token that was
// already rotated, revoked or expired fails with invalid_grant.
func (e *Engine) Refresh(ctx context.Context, clientID, clientSecret, refreshToken string) (*TokenResponse, error) {
	client, err := e.registry.ValidateCredentials(ctx, clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to validate client credentials: %w", err)
	}
	if client == nil {
		return nil, protocolError(CodeInvalidClient, "client authentication failed")
	}
	if credentials.ValidateFormat(refreshToken, credentials.RefreshTokenPrefix) != nil {
		return nil, protocolError(CodeInvalidGrant, "refresh token is not valid")
	}

	// Rotation is the same conditional-update shape as code consumption:
	// exactly one concurrent refresh of the same token wins.
	now := time.Now().UTC()
	var (
		userID sql.NullInt64
		scopes string
	)
	err = e.db.QueryRowContext(ctx, `
		UPDATE oauth_tokens SET revoked_at = $1
		WHERE refresh_token_hash = $2 AND client_id = $3 AND revoked_at IS NULL AND refresh_expires_at > $1
		RETURNING user_id, scopes
	`, now, credentials.HashToken(refreshToken), clientID).Scan(&userID, &scopes)
	if err == sql.ErrNoRows {
		return nil, protocolError(CodeInvalidGrant, "refresh token is not valid")
	}
	if err != nil {
		return nil, fmt.Errorf("failed to rotate refresh token: %w", err)
	}

	var userIDPtr *int64
	if userID.Valid {
		id := userID.Int64
		userIDPtr = &id
	}

	resp, err := e.issueTokens(ctx, client, userIDPtr, strings.Fields(scopes), true)
	if err != nil {
		return nil, err
	}

	e.auditOAuth(ctx, audit.ActionTokenRefresh, userIDPtr, client, audit.TargetToken, map[string]interface{}{
		"grant_type": string(GrantRefreshToken),
	})
	return resp, nil
}

// ClientCredentials runs the machine-to-machine grant. The requested scopes
// must be a subset of the client's whitelist; an empty request grants the
// whole whitelist. No user and no refresh token are involved.
func (e *Engine) ClientCredentials(ctx context.Context, clientID, clientSecret string, scopes []string) (*TokenResponse, error) {
	client, err := e.registry.ValidateCredentials(ctx, clientID, clientSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to validate client credentials: %w", err)
	}
	if client == nil {
		return nil, protocolError(CodeInvalidClient, "client authentication failed")
	}

	if len(scopes) == 0 {
		scopes = client.AllowedScopes
	}
	for _, scope := range scopes {
		if !client.HasScope(scope) {
			return nil, protocolError(CodeInvalidScope, fmt.Sprintf("scope %q is not allowed for this client", scope))
		}
	}

	resp, err := e.issueTokens(ctx, client, nil, scopes, false)
	if err != nil {
		return nil, err
	}

	e.auditOAuth(ctx, audit.ActionTokenIssue, nil, client, audit.TargetToken, map[string]interface{}{
		"grant_type": string(GrantClientCredentials),
		"scopes":     scopes,
	})
	return resp, nil
}

// Introspect returns the verdict on a presented access or refresh token.
// Every rejection is the same uniform {active:false}; only infrastructure
// failures surface as errors.
func (e *Engine) Introspect(ctx context.Context, token string) (*Introspection, error) {
	isAccess := credentials.ValidateFormat(token, credentials.AccessTokenPrefix) == nil
	isRefresh := credentials.ValidateFormat(token, credentials.RefreshTokenPrefix) == nil
	if !isAccess && !isRefresh {
		return &Introspection{Active: false}, nil
	}

	hash := credentials.HashToken(token)
	var (
		clientID         string
		userID           sql.NullInt64
		scopes           string
		expiresAt        time.Time
		refreshExpiresAt sql.NullTime
		revokedAt        sql.NullTime
	)
	err := e.db.QueryRowContext(ctx, `
		SELECT client_id, user_id, scopes, expires_at, refresh_expires_at, revoked_at
		FROM oauth_tokens
		WHERE access_token_hash = $1 OR refresh_token_hash = $1
	`, hash).Scan(&clientID, &userID, &scopes, &expiresAt, &refreshExpiresAt, &revokedAt)
	if err == sql.ErrNoRows {
		return &Introspection{Active: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to introspect token: %w", err)
	}

	if revokedAt.Valid {
		return &Introspection{Active: false}, nil
	}

	now := time.Now().UTC()
	tokenType := "access_token"
	exp := expiresAt
	if isRefresh {
		tokenType = "refresh_token"
		if !refreshExpiresAt.Valid {
			return &Introspection{Active: false}, nil
		}
		exp = refreshExpiresAt.Time
	}
	if !exp.After(now) {
		return &Introspection{Active: false}, nil
	}

	verdict := &Introspection{
		Active:    true,
		ClientID:  clientID,
		Scope:     scopes,
		TokenType: tokenType,
		ExpiresAt: exp.Unix(),
	}
	if userID.Valid {
		id := userID.Int64
		verdict.UserID = &id
	}
	return verdict, nil
}

// Revoke invalidates a token pair by either of its halves. Idempotent per
// RFC 7009: revoking an unknown, expired or already revoked token succeeds
// silently.
func (e *Engine) Revoke(ctx context.Context, token string) error {
	isAccess := credentials.ValidateFormat(token, credentials.AccessTokenPrefix) == nil
	isRefresh := credentials.ValidateFormat(token, credentials.RefreshTokenPrefix) == nil
	if !isAccess && !isRefresh {
		return nil
	}

	now := time.Now().UTC()
	result, err := e.db.ExecContext(ctx, `
		UPDATE oauth_tokens SET revoked_at = $1
		WHERE (access_token_hash = $2 OR refresh_token_hash = $2) AND revoked_at IS NULL
	`, now, credentials.HashToken(token))
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}

	if affected, err := result.RowsAffected(); err == nil && affected > 0 {
		event := audit.NewEvent(audit.ActionTokenRevoke, audit.CategoryOAuth, audit.StatusSuccess)
		event.TargetType = audit.TargetToken
		if err := e.audit.Log(ctx, event); err != nil && e.log != nil {
			e.log.WithError(err).Error("audit write failed")
		}
	}
	return nil
}

// CleanupExpiredTokens removes token rows whose refresh window has lapsed,
// and access-only rows past their expiry. Revoked rows are kept until they
// expire naturally.
func (e *Engine) CleanupExpiredTokens(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	result, err := e.db.ExecContext(ctx, `
		DELETE FROM oauth_tokens
		WHERE (refresh_expires_at IS NOT NULL AND refresh_expires_at < $1)
		   OR (refresh_expires_at IS NULL AND expires_at < $1)
	`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup tokens: %w", err)
	}
	return result.RowsAffected()
}

// issueTokens mints and stores a new token row. Plaintext goes to the
// caller; only hashes are persisted.
func (e *Engine) issueTokens(ctx context.Context, client *clients.OAuthClient, userID *int64, scopes []string, withRefresh bool) (*TokenResponse, error) {
	accessToken, err := e.gen.Generate(credentials.AccessTokenPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to generate access token: %w", err)
	}

	now := time.Now().UTC()
	resp := &TokenResponse{
		AccessToken: accessToken,
		TokenType:   "Bearer",
		ExpiresIn:   int64(AccessTokenTTL.Seconds()),
		Scope:       strings.Join(scopes, " "),
	}

	var refreshHash interface{}
	var refreshExpires interface{}
	if withRefresh {
		refreshToken, err := e.gen.Generate(credentials.RefreshTokenPrefix)
		if err != nil {
			return nil, fmt.Errorf("failed to generate refresh token: %w", err)
		}
		resp.RefreshToken = refreshToken
		refreshHash = credentials.HashToken(refreshToken)
		refreshExpires = now.Add(RefreshTokenTTL)
	}

	_, err = e.db.ExecContext(ctx, `
		INSERT INTO oauth_tokens (access_token_hash, refresh_token_hash, client_id, user_id, scopes, created_at, expires_at, refresh_expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, credentials.HashToken(accessToken), refreshHash, client.ClientID, userID,
		strings.Join(scopes, " "), now, now.Add(AccessTokenTTL), refreshExpires)
	if err != nil {
		return nil, fmt.Errorf("failed to store token: %w", err)
	}

	return resp, nil
}
