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
	"github.com/heimdallid/heimdall/pkg/observability"
)

// ClientRegistry is the slice of the client registry the engine consults.
type ClientRegistry interface {
	GetClient(ctx context.Context, clientID string) (*clients.OAuthClient, error)
	ValidateCredentials(ctx context.Context, clientID, secret string) (*clients.OAuthClient, error)
}

// MembershipChecker gates code issuance for tenant-owned clients. Pending
// invitations and archived tenants do not count as membership.
type MembershipChecker interface {
	IsMember(ctx context.Context, tenantID, userID int64) (bool, error)
}

// Engine issues and consumes authorization codes and the token pairs they
// exchange into. Codes and tokens are stored as SHA-256 hashes; single-use
// consumption is one atomic conditional update, never a read-then-write.
type Engine struct {
	db       *sql.DB
	registry ClientRegistry
	members  MembershipChecker
	gen      *credentials.Generator
	audit    audit.Logger
	log      *observability.Logger
}

// NewEngine creates an OAuth engine. members may be nil when no tenant-owned
// clients exist; issuance for a tenant-owned client then fails closed.
func NewEngine(db *sql.DB, registry ClientRegistry, members MembershipChecker, auditLogger audit.Logger, log *observability.Logger) *Engine {
	if auditLogger == nil {
		auditLogger = audit.NewNopLogger()
	}
	return &Engine{
		db:       db,
		registry: registry,
		members:  members,
		gen:      credentials.NewGenerator(),
		audit:    auditLogger,
		log:      log,
	}
}

// ValidateAuthorizationRequest checks an authorize request against the
// client's registration and returns the client on success. The returned
// *Error carries the wire code; redirect-URI failures must not be redirected
// to, which the HTTP layer decides by the code.
func (e *Engine) ValidateAuthorizationRequest(ctx context.Context, req AuthorizeRequest) (*clients.OAuthClient, error) {
	if e.registry == nil {
		return nil, fmt.Errorf("no client registry configured")
	}

	client, err := e.registry.GetClient(ctx, req.ClientID)
	if err != nil {
		return nil, fmt.Errorf("failed to look up client: %w", err)
	}
	if client == nil {
		return nil, protocolError(CodeInvalidRequest, "unknown client")
	}
	if client.Status != clients.StatusActive {
		return nil, protocolError(CodeUnauthorizedClient, "client is not active")
	}

	if req.ResponseType != ResponseTypeCode {
		return nil, protocolError(CodeUnsupportedResponseType, "response_type must be code")
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		return nil, protocolError(CodeInvalidRedirectURI, "redirect_uri is not registered for this client")
	}

	scopes := req.Scopes()
	if len(scopes) == 0 {
		return nil, protocolError(CodeInvalidScope, "at least one scope is required")
	}
	for _, scope := range scopes {
		if !client.HasScope(scope) {
			return nil, protocolError(CodeInvalidScope, fmt.Sprintf("scope %q is not allowed for this client", scope))
		}
	}

	if client.RequirePKCE && req.CodeChallenge == "" {
		return nil, protocolError(CodePKCERequired, "client requires PKCE")
	}
	if req.CodeChallenge != "" {
		if _, ok := NormalizeChallengeMethod(req.CodeChallengeMethod); !ok {
			return nil, protocolError(CodeInvalidRequest, "code_challenge_method must be S256 or plain")
		}
	}

	return client, nil
}

// GenerateAuthorizationCode validates the request, checks that the user
// belongs to the client's owning tenant, and issues a single-use code bound
// to the exact redirect URI, scope set and PKCE challenge. The plaintext
// code is returned once; only its hash is stored.
func (e *Engine) GenerateAuthorizationCode(ctx context.Context, userID int64, req AuthorizeRequest) (string, error) {
	client, err := e.ValidateAuthorizationRequest(ctx, req)
	if err != nil {
		return "", err
	}

	if client.TenantID != nil {
		if e.members == nil {
			return "", ErrCrossTenant
		}
		member, err := e.members.IsMember(ctx, *client.TenantID, userID)
		if err != nil {
			return "", fmt.Errorf("failed to check tenant membership: %w", err)
		}
		if !member {
			return "", ErrCrossTenant
		}
	}

	method := ""
	if req.CodeChallenge != "" {
		method, _ = NormalizeChallengeMethod(req.CodeChallengeMethod)
	}

	code, err := e.gen.Generate(credentials.AuthCodePrefix)
	if err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}

	now := time.Now().UTC()
	_, err = e.db.ExecContext(ctx, `
		INSERT INTO authorization_codes (code_hash, client_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method, created_at, expires_at, consumed)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, FALSE)
	`, credentials.HashToken(code), client.ClientID, userID, req.RedirectURI,
		strings.Join(req.Scopes(), " "), req.CodeChallenge, method, now, now.Add(CodeTTL))
	if err != nil {
		return "", fmt.Errorf("failed to store authorization code: %w", err)
	}

	e.auditOAuth(ctx, audit.ActionCodeIssue, &userID, client, audit.TargetCode, map[string]interface{}{
		"scopes": req.Scopes(),
		"pkce":   req.CodeChallenge != "",
	})

	return code, nil
}

// ValidateAndConsumeCode atomically consumes a code and returns the grant it
// was bound to, or (nil, nil) on any authorization failure: unknown,
// expired, already consumed, wrong client, wrong redirect URI, or PKCE
// mismatch. The conditional update is the single-use guarantee; under
// concurrent exchanges of the same code exactly one caller gets a row back.
// A failed exchange does not resurrect the code.
func (e *Engine) ValidateAndConsumeCode(ctx context.Context, code, clientID, redirectURI, codeVerifier string) (*CodeGrant, error) {
	if credentials.ValidateFormat(code, credentials.AuthCodePrefix) != nil {
		return nil, nil
	}

	now := time.Now().UTC()
	var (
		boundClientID string
		userID        int64
		boundRedirect string
		scopes        string
		challenge     string
		method        string
	)
	err := e.db.QueryRowContext(ctx, `
		UPDATE authorization_codes SET consumed = TRUE
		WHERE code_hash = $1 AND consumed = FALSE AND expires_at > $2
		RETURNING client_id, user_id, redirect_uri, scopes, code_challenge, code_challenge_method
	`, credentials.HashToken(code), now).Scan(
		&boundClientID, &userID, &boundRedirect, &scopes, &challenge, &method,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume authorization code: %w", err)
	}

	if boundClientID != clientID {
		return nil, nil
	}
	if boundRedirect != redirectURI {
		return nil, nil
	}
	if challenge != "" && !VerifyChallenge(challenge, method, codeVerifier) {
		return nil, nil
	}

	grant := &CodeGrant{
		ClientID: boundClientID,
		UserID:   userID,
		Scopes:   strings.Fields(scopes),
	}

	event := audit.NewEvent(audit.ActionCodeConsume, audit.CategoryOAuth, audit.StatusSuccess)
	event.ActorUserID = &grant.UserID
	event.TargetType = audit.TargetCode
	event.TargetID = clientID
	if err := e.audit.Log(ctx, event); err != nil && e.log != nil {
		e.log.WithError(err).Error("audit write failed")
	}

	return grant, nil
}

// CleanupExpiredCodes removes consumed and expired authorization codes.
// Idempotent; safe to run concurrently with normal traffic.
func (e *Engine) CleanupExpiredCodes(ctx context.Context) (int64, error) {
	now := time.Now().UTC()
	result, err := e.db.ExecContext(ctx,
		`DELETE FROM authorization_codes WHERE consumed = TRUE OR expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup authorization codes: %w", err)
	}
	return result.RowsAffected()
}

func (e *Engine) auditOAuth(ctx context.Context, action audit.Action, actorUserID *int64, client *clients.OAuthClient, targetType audit.TargetType, details map[string]interface{}) {
	event := audit.NewEvent(action, audit.CategoryOAuth, audit.StatusSuccess)
	event.ActorUserID = actorUserID
	event.TenantID = client.TenantID
	event.TargetType = targetType
	event.TargetID = client.ClientID
	event.Details = details

	if err := e.audit.Log(ctx, event); err != nil && e.log != nil {
		e.log.WithError(err).WithField("action", string(action)).Error("audit write failed")
	}
}
