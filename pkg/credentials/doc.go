// Package credentials provides the credential primitives for the Heimdall core:
// opaque token generation, one-way secret hashing, and tenant slug validation.
//
// # Token Format
//
// Every opaque credential Heimdall issues is a prefixed base64url string:
//
//	hmd_ci_[base64url(16 random bytes)]  - client ID (public)
//	hmd_cs_[base64url(32 random bytes)]  - client secret (shown once)
//	hmd_ac_[base64url(32 random bytes)]  - authorization code
//	hmd_at_[base64url(32 random bytes)]  - access token
//	hmd_rt_[base64url(32 random bytes)]  - refresh token
//
// The prefix makes leaked credentials greppable and lets the registry reject
// malformed input structurally, before any database lookup.
//
// # Storage
//
// Codes and tokens are stored as SHA-256 hex digests for lookup; the plaintext
// is returned to the caller exactly once and never persisted. Client secrets
// additionally get a bcrypt hash at a fixed cost factor, so verifying one is
// deliberately slow and salted.
//
// # Usage
//
//	gen := credentials.NewGenerator()
//	secret, err := gen.Generate(credentials.ClientSecretPrefix)
//	hash, err := credentials.HashSecret(secret)
//	// store hash, display secret once
//
//	if err := credentials.VerifySecret(hash, presented); err != nil {
//		// invalid secret
//	}
//
// # Related Packages
//
//   - pkg/clients: OAuth client registry (consumes secret hashing)
//   - pkg/oauth: code and token issuance (consumes token generation)
//   - pkg/tenants: tenant provisioning (consumes slug validation)
package credentials
