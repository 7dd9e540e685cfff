package oauth

import "errors"

// Wire-level OAuth error codes. These travel back to the caller in the
// redirect or token response; everything else stays a plain Go error.
const (
	CodeInvalidRequest          = "invalid_request"
	CodeInvalidRedirectURI      = "invalid_redirect_uri"
	CodeInvalidScope            = "invalid_scope"
	CodePKCERequired            = "pkce_required"
	CodeUnsupportedResponseType = "unsupported_response_type"
	CodeAccessDenied            = "access_denied"
	CodeInvalidClient           = "invalid_client"
	CodeInvalidGrant            = "invalid_grant"
	CodeUnauthorizedClient      = "unauthorized_client"
	CodeUnsupportedGrantType    = "unsupported_grant_type"
	CodeServerError             = "server_error"
)

// Error is a protocol-visible OAuth error. Validation failures carry a
// specific code and description; authorization-state failures never reach
// this type, they collapse to nil results instead.
type Error struct {
	Code        string
	Description string
}

func (e *Error) Error() string {
	if e.Description == "" {
		return e.Code
	}
	return e.Code + ": " + e.Description
}

// protocolError builds an *Error.
func protocolError(code, description string) *Error {
	return &Error{Code: code, Description: description}
}

// AsError extracts the protocol error from err, or wraps err as a
// server_error so callers always have a wire code to report.
func AsError(err error) *Error {
	var oauthErr *Error
	if errors.As(err, &oauthErr) {
		return oauthErr
	}
	return &Error{Code: CodeServerError, Description: "internal error"}
}

// ErrCrossTenant rejects code issuance when the user does not belong to the
// client's owning tenant. A caller logic error, not attacker-facing
// ambiguity, so it is named rather than collapsed.
var ErrCrossTenant = errors.New("user does not belong to the client's tenant")
