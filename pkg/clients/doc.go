// Package clients provides the OAuth client registry for the Heimdall core.
//
// # Overview
//
// A client is an application registered by a tenant: a confidential client ID
// plus a one-way-hashed secret, an exact-match redirect URI whitelist, a scope
// whitelist and a PKCE requirement flag. The registry owns the full credential
// lifecycle: registration (secret shown once), credential validation,
// regeneration, suspension and deletion.
//
// # Security Properties
//
// Secrets are bcrypt-hashed at a fixed cost factor; validation is
// constant-time with respect to secret content. Redirect URIs match by exact
// string comparison only, no wildcard or subdomain matching. Malformed client
// IDs and secrets are rejected structurally before any database lookup.
// Suspended clients fail validation even with a correct secret.
//
// # Usage
//
//	registry := clients.NewRegistry(db, cache, auditLogger)
//	client, secret, err := registry.Register(ctx, clients.RegisterRequest{
//		Name:          "Billing Portal",
//		RedirectURIs:  []string{"https://billing.example/cb"},
//		AllowedScopes: []string{"openid", "email"},
//		RequirePKCE:   true,
//		TenantID:      &tenantID,
//	})
//	// secret is plaintext, shown exactly once
//
//	client, err = registry.ValidateCredentials(ctx, clientID, presentedSecret)
//	// client == nil means invalid, with no reason disclosed
//
// # Related Packages
//
//   - pkg/credentials: token formats and secret hashing
//   - pkg/oauth: authorization-code and token engines (primary consumers)
package clients
