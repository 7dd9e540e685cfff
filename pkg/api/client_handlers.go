package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/heimdallid/heimdall/pkg/clients"
	"github.com/heimdallid/heimdall/pkg/httputil"
)

func isClientValidationError(err error) bool {
	return errors.Is(err, clients.ErrInvalidName) ||
		errors.Is(err, clients.ErrNoRedirectURIs) ||
		errors.Is(err, clients.ErrInvalidRedirect) ||
		errors.Is(err, clients.ErrNoScopes) ||
		errors.Is(err, clients.ErrInvalidScope)
}

// registerClientResponse carries the plaintext secret exactly once.
type registerClientResponse struct {
	Client       *clients.OAuthClient `json:"client"`
	ClientSecret string               `json:"client_secret"`
}

func (s *Server) registerClient(w http.ResponseWriter, r *http.Request) {
	var req clients.RegisterRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	client, secret, err := s.registry.Register(r.Context(), actorID(r), req)
	if err != nil {
		if isClientValidationError(err) {
			writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
		s.logger.WithError(err).Error("client registration failed")
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}

	writeJSON(w, http.StatusCreated, registerClientResponse{Client: client, ClientSecret: secret})
}

func (s *Server) getClient(w http.ResponseWriter, r *http.Request) {
	client, err := s.registry.GetClient(r.Context(), mux.Vars(r)["client_id"])
	if err != nil {
		s.logger.WithError(err).Error("client lookup failed")
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	if client == nil {
		writeError(w, http.StatusNotFound, "not_found", "no such client")
		return
	}
	writeJSON(w, http.StatusOK, client)
}

func (s *Server) deleteClient(w http.ResponseWriter, r *http.Request) {
	if err := s.registry.Delete(r.Context(), actorID(r), mux.Vars(r)["client_id"]); err != nil {
		if err == clients.ErrClientNotFound {
			writeError(w, http.StatusNotFound, "not_found", "no such client")
			return
		}
		s.logger.WithError(err).Error("client deletion failed")
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) regenerateSecret(w http.ResponseWriter, r *http.Request) {
	secret, err := s.registry.RegenerateSecret(r.Context(), actorID(r), mux.Vars(r)["client_id"])
	if err != nil {
		if err == clients.ErrClientNotFound {
			writeError(w, http.StatusNotFound, "not_found", "no such client")
			return
		}
		s.logger.WithError(err).Error("secret regeneration failed")
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"client_secret": secret})
}

func (s *Server) suspendClient(w http.ResponseWriter, r *http.Request) {
	s.setClientStatus(w, r, s.registry.Suspend)
}

func (s *Server) activateClient(w http.ResponseWriter, r *http.Request) {
	s.setClientStatus(w, r, s.registry.Activate)
}

func (s *Server) setClientStatus(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, actor *int64, clientID string) error) {
	if err := op(r.Context(), actorID(r), mux.Vars(r)["client_id"]); err != nil {
		if err == clients.ErrClientNotFound {
			writeError(w, http.StatusNotFound, "not_found", "no such client")
			return
		}
		s.logger.WithError(err).Error("client status change failed")
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listTenantClients(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	list, err := s.registry.ListByTenant(r.Context(), tenantID)
	if err != nil {
		s.logger.WithError(err).Error("client listing failed")
		writeError(w, http.StatusInternalServerError, "server_error", "")
		return
	}
	writeJSON(w, http.StatusOK, list)
}
