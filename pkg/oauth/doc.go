// Package oauth implements the authorization-code and token engine for the
// Heimdall core.
//
// # Overview
//
// The engine covers the server side of three OAuth 2.0 grants:
// authorization_code (with PKCE), refresh_token and client_credentials. An
// authorization code is a short-lived, single-use credential binding a user,
// a client, a redirect URI and a scope set; exchanging it yields an access
// token and a rotating refresh token. The engine also answers introspection
// queries and handles RFC 7009 revocation.
//
// # Security Properties
//
// Codes and tokens are stored as SHA-256 hashes; plaintext crosses the wire
// exactly once, at issuance. Code consumption and refresh rotation are both
// single conditional UPDATE statements, so concurrent redemptions of the same
// credential resolve to exactly one winner. A code that fails any
// post-consumption check (client binding, redirect binding, PKCE) stays
// consumed: a failed exchange never resurrects a code. PKCE verification uses
// constant-time comparison for both the S256 and plain methods. Introspection
// returns the same uniform inactive verdict for unknown, expired and revoked
// tokens alike.
package oauth
