package api

import (
	"net/http"
	"net/url"
	"time"

	"github.com/heimdallid/heimdall/pkg/oauth"
)

// authorize handles GET /oauth/authorize. On success the user agent is
// redirected back with code and state; protocol errors redirect with error
// and error_description. An unknown client or an unregistered redirect_uri
// never redirects: that would be an open redirector.
func (s *Server) authorize(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := oauth.AuthorizeRequest{
		ClientID:            q.Get("client_id"),
		RedirectURI:         q.Get("redirect_uri"),
		ResponseType:        q.Get("response_type"),
		Scope:               q.Get("scope"),
		CodeChallenge:       q.Get("code_challenge"),
		CodeChallengeMethod: q.Get("code_challenge_method"),
	}
	state := q.Get("state")

	client, err := s.registry.GetClient(r.Context(), req.ClientID)
	if err != nil {
		s.logger.WithError(err).Error("client lookup failed")
		s.countAuthorize("error")
		writeError(w, http.StatusInternalServerError, oauth.CodeServerError, "")
		return
	}
	if client == nil {
		s.countAuthorize("rejected")
		writeError(w, http.StatusBadRequest, oauth.CodeInvalidRequest, "unknown client")
		return
	}
	if !client.HasRedirectURI(req.RedirectURI) {
		s.countAuthorize("rejected")
		writeError(w, http.StatusBadRequest, oauth.CodeInvalidRedirectURI, "redirect_uri is not registered for this client")
		return
	}

	user := actorID(r)
	if user == nil {
		s.countAuthorize("unauthenticated")
		writeError(w, http.StatusUnauthorized, "access_denied", "no authenticated user")
		return
	}

	code, err := s.oauth.GenerateAuthorizationCode(r.Context(), *user, req)
	if err != nil {
		s.countAuthorize("rejected")
		s.redirectError(w, r, req.RedirectURI, state, err)
		return
	}

	s.countAuthorize("issued")
	params := url.Values{"code": {code}}
	if state != "" {
		params.Set("state", state)
	}
	http.Redirect(w, r, req.RedirectURI+"?"+params.Encode(), http.StatusFound)
}

// token handles POST /oauth/token (form-encoded per RFC 6749).
func (s *Server) token(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, oauth.CodeInvalidRequest, "malformed form body")
		return
	}

	grantType, ok := oauth.ParseGrantType(r.PostFormValue("grant_type"))
	if !ok {
		writeError(w, http.StatusBadRequest, oauth.CodeUnsupportedGrantType, "grant_type must be authorization_code, refresh_token or client_credentials")
		return
	}

	clientID, clientSecret := clientCredentialsFrom(r)
	start := time.Now()

	var resp *oauth.TokenResponse
	var err error
	switch grantType {
	case oauth.GrantAuthorizationCode:
		resp, err = s.oauth.Exchange(r.Context(), clientID, clientSecret,
			r.PostFormValue("code"), r.PostFormValue("redirect_uri"), r.PostFormValue("code_verifier"))
	case oauth.GrantRefreshToken:
		resp, err = s.oauth.Refresh(r.Context(), clientID, clientSecret, r.PostFormValue("refresh_token"))
	case oauth.GrantClientCredentials:
		scopes := oauth.AuthorizeRequest{Scope: r.PostFormValue("scope")}.Scopes()
		resp, err = s.oauth.ClientCredentials(r.Context(), clientID, clientSecret, scopes)
	}

	if err != nil {
		s.observeToken(string(grantType), "error", time.Since(start))
		s.writeOAuthError(w, err)
		return
	}

	s.observeToken(string(grantType), "success", time.Since(start))
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, resp)
}

// introspect handles POST /oauth/introspect. The verdict is uniform for
// every kind of invalid token.
func (s *Server) introspect(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, oauth.CodeInvalidRequest, "malformed form body")
		return
	}

	verdict, err := s.oauth.Introspect(r.Context(), r.PostFormValue("token"))
	if err != nil {
		s.logger.WithError(err).Error("introspection failed")
		writeError(w, http.StatusInternalServerError, oauth.CodeServerError, "")
		return
	}

	if s.metrics != nil {
		active := "false"
		if verdict.Active {
			active = "true"
		}
		s.metrics.IntrospectionsTotal.WithLabelValues(active).Inc()
	}
	writeJSON(w, http.StatusOK, verdict)
}

// revoke handles POST /oauth/revoke. Always 200 per RFC 7009.
func (s *Server) revoke(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, oauth.CodeInvalidRequest, "malformed form body")
		return
	}

	if err := s.oauth.Revoke(r.Context(), r.PostFormValue("token")); err != nil {
		s.logger.WithError(err).Error("revocation failed")
		writeError(w, http.StatusInternalServerError, oauth.CodeServerError, "")
		return
	}

	if s.metrics != nil {
		s.metrics.RevocationsTotal.Inc()
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}

// clientCredentialsFrom accepts HTTP Basic or form-body client credentials.
func clientCredentialsFrom(r *http.Request) (string, string) {
	if id, secret, ok := r.BasicAuth(); ok {
		return id, secret
	}
	return r.PostFormValue("client_id"), r.PostFormValue("client_secret")
}

// redirectError sends a protocol error back through the validated redirect
// URI. Infrastructure failures stay on this origin as 500s.
func (s *Server) redirectError(w http.ResponseWriter, r *http.Request, redirectURI, state string, err error) {
	var code, description string
	switch {
	case err == oauth.ErrCrossTenant:
		code, description = oauth.CodeAccessDenied, "user does not belong to the client's tenant"
	default:
		oauthErr := oauth.AsError(err)
		if oauthErr.Code == oauth.CodeServerError {
			s.logger.WithError(err).Error("authorize failed")
			writeError(w, http.StatusInternalServerError, oauth.CodeServerError, "")
			return
		}
		code, description = oauthErr.Code, oauthErr.Description
	}

	params := url.Values{"error": {code}}
	if description != "" {
		params.Set("error_description", description)
	}
	if state != "" {
		params.Set("state", state)
	}
	http.Redirect(w, r, redirectURI+"?"+params.Encode(), http.StatusFound)
}

// writeOAuthError maps a token-endpoint error to its RFC status code.
func (s *Server) writeOAuthError(w http.ResponseWriter, err error) {
	oauthErr := oauth.AsError(err)
	status := http.StatusBadRequest
	switch oauthErr.Code {
	case oauth.CodeInvalidClient:
		status = http.StatusUnauthorized
	case oauth.CodeServerError:
		s.logger.WithError(err).Error("token request failed")
		status = http.StatusInternalServerError
		oauthErr.Description = ""
	}
	writeError(w, status, oauthErr.Code, oauthErr.Description)
}

func (s *Server) countAuthorize(outcome string) {
	if s.metrics != nil {
		s.metrics.AuthorizeRequestsTotal.WithLabelValues(outcome).Inc()
	}
}

func (s *Server) observeToken(grantType, outcome string, d time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveTokenRequest(grantType, outcome, d)
	}
}
