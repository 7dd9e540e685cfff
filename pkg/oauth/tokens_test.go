package oauth

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/heimdallid/heimdall/pkg/credentials"
)

func issueTestCode(t *testing.T, engine *Engine, userID int64, scope string) string {
	t.Helper()
	code, err := engine.GenerateAuthorizationCode(context.Background(), userID, authRequest(scope))
	if err != nil {
		t.Fatalf("GenerateAuthorizationCode() error = %v", err)
	}
	return code
}

func wantOAuthCode(t *testing.T, err error, code string) {
	t.Helper()
	var oauthErr *Error
	if !errors.As(err, &oauthErr) {
		t.Fatalf("error = %v, want *Error with code %q", err, code)
	}
	if oauthErr.Code != code {
		t.Fatalf("error code = %q, want %q", oauthErr.Code, code)
	}
}

func TestExchange(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngineWith(t, testClient(), nil)
	code := issueTestCode(t, engine, 42, "read write")

	resp, err := engine.Exchange(ctx, testClientID, testClientSecret, code, testRedirectURI, "")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	if !strings.HasPrefix(resp.AccessToken, credentials.AccessTokenPrefix) {
		t.Fatalf("access token %q lacks prefix", resp.AccessToken)
	}
	if !strings.HasPrefix(resp.RefreshToken, credentials.RefreshTokenPrefix) {
		t.Fatalf("refresh token %q lacks prefix", resp.RefreshToken)
	}
	if resp.TokenType != "Bearer" {
		t.Fatalf("token type = %q, want Bearer", resp.TokenType)
	}
	if resp.ExpiresIn != int64(AccessTokenTTL.Seconds()) {
		t.Fatalf("expires_in = %d, want %d", resp.ExpiresIn, int64(AccessTokenTTL.Seconds()))
	}
	if resp.Scope != "read write" {
		t.Fatalf("scope = %q, want %q", resp.Scope, "read write")
	}

	verdict, err := engine.Introspect(ctx, resp.AccessToken)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if !verdict.Active {
		t.Fatal("fresh access token must be active")
	}
	if verdict.ClientID != testClientID || verdict.TokenType != "access_token" {
		t.Fatalf("verdict = %+v", verdict)
	}
	if verdict.UserID == nil || *verdict.UserID != 42 {
		t.Fatalf("verdict user = %v, want 42", verdict.UserID)
	}
}

func TestExchangeBadCredentials(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngineWith(t, testClient(), nil)
	code := issueTestCode(t, engine, 42, "read")

	_, err := engine.Exchange(ctx, testClientID, "hmd_cs_d3JvbmdzZWNyZXQwMDAwMDAwMDAwMDAwMDAwMDAwMDAwMDA", code, testRedirectURI, "")
	wantOAuthCode(t, err, CodeInvalidClient)

	// Client authentication failing does not burn the code.
	if _, err := engine.Exchange(ctx, testClientID, testClientSecret, code, testRedirectURI, ""); err != nil {
		t.Fatalf("Exchange() after bad credentials error = %v", err)
	}
}

func TestExchangeInvalidCode(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngineWith(t, testClient(), nil)
	code := issueTestCode(t, engine, 42, "read")

	if _, err := engine.Exchange(ctx, testClientID, testClientSecret, code, testRedirectURI, ""); err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	_, err := engine.Exchange(ctx, testClientID, testClientSecret, code, testRedirectURI, "")
	wantOAuthCode(t, err, CodeInvalidGrant)
}

func TestRefreshRotation(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngineWith(t, testClient(), nil)
	code := issueTestCode(t, engine, 42, "read write")

	first, err := engine.Exchange(ctx, testClientID, testClientSecret, code, testRedirectURI, "")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	second, err := engine.Refresh(ctx, testClientID, testClientSecret, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second.AccessToken == first.AccessToken || second.RefreshToken == first.RefreshToken {
		t.Fatal("refresh must mint a new pair")
	}
	if second.Scope != first.Scope {
		t.Fatalf("scope = %q, want %q", second.Scope, first.Scope)
	}

	// The old refresh token rotated out.
	_, err = engine.Refresh(ctx, testClientID, testClientSecret, first.RefreshToken)
	wantOAuthCode(t, err, CodeInvalidGrant)

	verdict, err := engine.Introspect(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if verdict.Active {
		t.Fatal("rotated refresh token must be inactive")
	}

	verdict, err = engine.Introspect(ctx, second.AccessToken)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if !verdict.Active {
		t.Fatal("new access token must be active")
	}
	if verdict.UserID == nil || *verdict.UserID != 42 {
		t.Fatalf("refreshed token user = %v, want 42", verdict.UserID)
	}
}

func TestRefreshRejections(t *testing.T) {
	ctx := context.Background()
	engine, db := newTestEngineWith(t, testClient(), nil)
	code := issueTestCode(t, engine, 42, "read")

	resp, err := engine.Exchange(ctx, testClientID, testClientSecret, code, testRedirectURI, "")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	t.Run("bad client secret", func(t *testing.T) {
		_, err := engine.Refresh(ctx, testClientID, "hmd_cs_d3JvbmdzZWNyZXQwMDAwMDAwMDAwMDAwMDAwMDAwMDAwMDA", resp.RefreshToken)
		wantOAuthCode(t, err, CodeInvalidClient)
	})

	t.Run("malformed token", func(t *testing.T) {
		_, err := engine.Refresh(ctx, testClientID, testClientSecret, "not-a-refresh-token")
		wantOAuthCode(t, err, CodeInvalidGrant)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := engine.Refresh(ctx, testClientID, testClientSecret, resp.AccessToken)
		wantOAuthCode(t, err, CodeInvalidGrant)
	})

	t.Run("expired refresh window", func(t *testing.T) {
		lapsed := time.Now().UTC().Add(-time.Hour)
		if _, err := db.Exec(`UPDATE oauth_tokens SET refresh_expires_at = $1`, lapsed); err != nil {
			t.Fatalf("failed to backdate token: %v", err)
		}
		_, err := engine.Refresh(ctx, testClientID, testClientSecret, resp.RefreshToken)
		wantOAuthCode(t, err, CodeInvalidGrant)
	})
}

func TestConcurrentRefresh(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngineWith(t, testClient(), nil)
	code := issueTestCode(t, engine, 42, "read")

	resp, err := engine.Exchange(ctx, testClientID, testClientSecret, code, testRedirectURI, "")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	const workers = 4
	results := make(chan error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := engine.Refresh(ctx, testClientID, testClientSecret, resp.RefreshToken)
			results <- err
		}()
	}
	wg.Wait()
	close(results)

	var won int
	for err := range results {
		if err == nil {
			won++
			continue
		}
		var oauthErr *Error
		if !errors.As(err, &oauthErr) || oauthErr.Code != CodeInvalidGrant {
			t.Fatalf("unexpected error = %v", err)
		}
	}
	if won != 1 {
		t.Fatalf("%d refreshes won, want exactly 1", won)
	}
}

func TestClientCredentials(t *testing.T) {
	ctx := context.Background()

	t.Run("explicit subset", func(t *testing.T) {
		engine, _ := newTestEngineWith(t, testClient(), nil)
		resp, err := engine.ClientCredentials(ctx, testClientID, testClientSecret, []string{"read"})
		if err != nil {
			t.Fatalf("ClientCredentials() error = %v", err)
		}
		if resp.Scope != "read" {
			t.Fatalf("scope = %q, want read", resp.Scope)
		}
		if resp.RefreshToken != "" {
			t.Fatal("machine tokens must not carry a refresh token")
		}

		verdict, err := engine.Introspect(ctx, resp.AccessToken)
		if err != nil {
			t.Fatalf("Introspect() error = %v", err)
		}
		if !verdict.Active {
			t.Fatal("machine token must be active")
		}
		if verdict.UserID != nil {
			t.Fatalf("machine token user = %v, want nil", verdict.UserID)
		}
	})

	t.Run("empty request grants whole whitelist", func(t *testing.T) {
		engine, _ := newTestEngineWith(t, testClient(), nil)
		resp, err := engine.ClientCredentials(ctx, testClientID, testClientSecret, nil)
		if err != nil {
			t.Fatalf("ClientCredentials() error = %v", err)
		}
		if resp.Scope != "read write admin" {
			t.Fatalf("scope = %q, want the full whitelist", resp.Scope)
		}
	})

	t.Run("scope outside whitelist", func(t *testing.T) {
		engine, _ := newTestEngineWith(t, testClient(), nil)
		_, err := engine.ClientCredentials(ctx, testClientID, testClientSecret, []string{"read", "delete"})
		wantOAuthCode(t, err, CodeInvalidScope)
	})

	t.Run("bad credentials", func(t *testing.T) {
		engine, _ := newTestEngineWith(t, testClient(), nil)
		_, err := engine.ClientCredentials(ctx, testClientID, "hmd_cs_d3JvbmdzZWNyZXQwMDAwMDAwMDAwMDAwMDAwMDAwMDAwMDA", nil)
		wantOAuthCode(t, err, CodeInvalidClient)
	})
}

func TestIntrospectUniformInactive(t *testing.T) {
	ctx := context.Background()
	engine, db := newTestEngineWith(t, testClient(), nil)
	code := issueTestCode(t, engine, 42, "read")

	resp, err := engine.Exchange(ctx, testClientID, testClientSecret, code, testRedirectURI, "")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	expired := time.Now().UTC().Add(-time.Minute)

	tests := []struct {
		name  string
		setup func(t *testing.T)
		token string
	}{
		{"unknown token", func(t *testing.T) {}, "hmd_at_bm9zdWNodG9rZW4wMDAwMDAwMDAwMDAwMDAwMDAwMDAwMDA"},
		{"garbage", func(t *testing.T) {}, "garbage"},
		{"empty", func(t *testing.T) {}, ""},
		{
			"expired access token",
			func(t *testing.T) {
				if _, err := db.Exec(`UPDATE oauth_tokens SET expires_at = $1`, expired); err != nil {
					t.Fatalf("failed to backdate: %v", err)
				}
			},
			resp.AccessToken,
		},
		{
			"revoked token",
			func(t *testing.T) {
				if err := engine.Revoke(ctx, resp.AccessToken); err != nil {
					t.Fatalf("Revoke() error = %v", err)
				}
			},
			resp.AccessToken,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup(t)
			verdict, err := engine.Introspect(ctx, tt.token)
			if err != nil {
				t.Fatalf("Introspect() error = %v", err)
			}
			if verdict.Active {
				t.Fatal("verdict must be inactive")
			}
			if verdict.ClientID != "" || verdict.Scope != "" || verdict.UserID != nil {
				t.Fatalf("inactive verdict must carry no claims, got %+v", verdict)
			}
		})
	}
}

func TestRevoke(t *testing.T) {
	ctx := context.Background()
	engine, _ := newTestEngineWith(t, testClient(), nil)
	code := issueTestCode(t, engine, 42, "read")

	resp, err := engine.Exchange(ctx, testClientID, testClientSecret, code, testRedirectURI, "")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	// Revoking by the refresh half kills the whole pair.
	if err := engine.Revoke(ctx, resp.RefreshToken); err != nil {
		t.Fatalf("Revoke() error = %v", err)
	}

	for _, token := range []string{resp.AccessToken, resp.RefreshToken} {
		verdict, err := engine.Introspect(ctx, token)
		if err != nil {
			t.Fatalf("Introspect() error = %v", err)
		}
		if verdict.Active {
			t.Fatal("revoked pair must be inactive")
		}
	}

	_, err = engine.Refresh(ctx, testClientID, testClientSecret, resp.RefreshToken)
	wantOAuthCode(t, err, CodeInvalidGrant)

	// Idempotent: unknown and already revoked tokens succeed silently.
	if err := engine.Revoke(ctx, resp.RefreshToken); err != nil {
		t.Fatalf("second Revoke() error = %v", err)
	}
	if err := engine.Revoke(ctx, "hmd_at_bm9zdWNodG9rZW4wMDAwMDAwMDAwMDAwMDAwMDAwMDAwMDA"); err != nil {
		t.Fatalf("Revoke() of unknown token error = %v", err)
	}
	if err := engine.Revoke(ctx, "garbage"); err != nil {
		t.Fatalf("Revoke() of garbage error = %v", err)
	}
}

func TestCleanupExpiredTokens(t *testing.T) {
	ctx := context.Background()
	engine, db := newTestEngineWith(t, testClient(), nil)

	code := issueTestCode(t, engine, 1, "read")
	lapsed, err := engine.Exchange(ctx, testClientID, testClientSecret, code, testRedirectURI, "")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}
	past := time.Now().UTC().Add(-time.Hour)
	if _, err := db.Exec(`UPDATE oauth_tokens SET refresh_expires_at = $1 WHERE refresh_token_hash = $2`,
		past, credentials.HashToken(lapsed.RefreshToken)); err != nil {
		t.Fatalf("failed to backdate token: %v", err)
	}

	machine, err := engine.ClientCredentials(ctx, testClientID, testClientSecret, []string{"read"})
	if err != nil {
		t.Fatalf("ClientCredentials() error = %v", err)
	}
	if _, err := db.Exec(`UPDATE oauth_tokens SET expires_at = $1 WHERE access_token_hash = $2`,
		past, credentials.HashToken(machine.AccessToken)); err != nil {
		t.Fatalf("failed to backdate token: %v", err)
	}

	code = issueTestCode(t, engine, 2, "read")
	live, err := engine.Exchange(ctx, testClientID, testClientSecret, code, testRedirectURI, "")
	if err != nil {
		t.Fatalf("Exchange() error = %v", err)
	}

	removed, err := engine.CleanupExpiredTokens(ctx)
	if err != nil {
		t.Fatalf("CleanupExpiredTokens() error = %v", err)
	}
	if removed != 2 {
		t.Fatalf("removed = %d, want 2", removed)
	}

	verdict, err := engine.Introspect(ctx, live.AccessToken)
	if err != nil {
		t.Fatalf("Introspect() error = %v", err)
	}
	if !verdict.Active {
		t.Fatal("live token must survive cleanup")
	}
}
