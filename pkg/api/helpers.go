package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/heimdallid/heimdall/pkg/httputil"
)

// errorResponse is the JSON error envelope shared by all endpoints. The
// wire-level field names follow RFC 6749.
type errorResponse struct {
	Error       string `json:"error"`
	Description string `json:"error_description,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, code, description string) {
	writeJSON(w, status, errorResponse{Error: code, Description: description})
}

// pathID parses a numeric path variable. A second return of false means the
// response has already been written.
func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := httputil.ParsePathInt64(r, name)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", name+" must be numeric")
		return 0, false
	}
	return id, true
}

// actorID reads the acting user forwarded by the fronting auth layer.
// End-user authentication is outside this service; the gateway injects the
// identity it established.
func actorID(r *http.Request) *int64 {
	raw := r.Header.Get("X-Authenticated-User")
	if raw == "" {
		return nil
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return nil
	}
	return &id
}
