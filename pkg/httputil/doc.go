// Package httputil carries the HTTP plumbing shared by the API server:
// JSON request decoding, error envelopes, and router middleware.
//
// # Request Parsing
//
//	var req createTenantRequest
//	if !httputil.ParseJSONOrError(w, r, &req) {
//		return // 400 already written
//	}
//	id, err := httputil.ParsePathInt64(r, "id")
//
// # Middleware
//
// Middlewares compose with Chain; the first argument wraps outermost:
//
//	handler := httputil.Chain(
//		httputil.RequestID,
//		httputil.Recovery(logger),
//		httputil.MaxBytes(1<<20),
//	)(router)
//
// RequestID assigns or echoes X-Request-ID, Recovery turns handler panics
// into a logged 500, and MaxBytes bounds request body size.
package httputil
