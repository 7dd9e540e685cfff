// Package api is the HTTP protocol surface of the Heimdall core.
//
// # Endpoints
//
// OAuth protocol (form-encoded, RFC 6749 wire shapes):
//
//	GET  /oauth/authorize
//	POST /oauth/token
//	POST /oauth/introspect
//	POST /oauth/revoke
//
// Admin API (JSON, under /api/v1): client registry
// (/clients), tenant hierarchy (/tenants), membership, invitations and
// permissions.
//
// # Authentication
//
// End-user authentication is not this service's job. A fronting gateway
// authenticates the user and forwards the established identity in the
// X-Authenticated-User header; /oauth/authorize refuses requests without it.
// Authorize errors redirect back to the client with error and
// error_description, except when the client is unknown or the redirect_uri
// is not registered: those render a 400 on this origin, never a redirect.
package api
