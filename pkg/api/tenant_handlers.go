package api

import (
	"errors"
	"net/http"

	"github.com/heimdallid/heimdall/pkg/credentials"
	"github.com/heimdallid/heimdall/pkg/httputil"
	"github.com/heimdallid/heimdall/pkg/tenants"
)

// tenantStatus maps engine sentinels to HTTP status codes. Unknown errors
// are infrastructure failures.
func tenantStatus(err error) (int, bool) {
	switch {
	case errors.Is(err, tenants.ErrInvalidOverride):
		return http.StatusBadRequest, true
	case errors.Is(err, tenants.ErrTenantNotFound),
		errors.Is(err, tenants.ErrNotMember),
		errors.Is(err, tenants.ErrPermissionNotFound):
		return http.StatusNotFound, true
	case errors.Is(err, tenants.ErrSlugTaken),
		errors.Is(err, tenants.ErrAlreadyMember),
		errors.Is(err, tenants.ErrTenantArchived),
		errors.Is(err, tenants.ErrTenantNotArchived),
		errors.Is(err, tenants.ErrMoveIntoSubtree),
		errors.Is(err, tenants.ErrMemberPending),
		errors.Is(err, tenants.ErrNotPending),
		errors.Is(err, tenants.ErrLastOwner),
		errors.Is(err, tenants.ErrNotOwner):
		return http.StatusConflict, true
	case errors.Is(err, tenants.ErrInvitationExpired):
		return http.StatusGone, true
	}
	return 0, false
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "invalid_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusGone:
		return "expired"
	default:
		return "conflict"
	}
}

func (s *Server) writeTenantError(w http.ResponseWriter, err error, op string) {
	if status, ok := tenantStatus(err); ok {
		writeError(w, status, codeForStatus(status), err.Error())
		return
	}
	s.logger.WithError(err).Error(op + " failed")
	writeError(w, http.StatusInternalServerError, "server_error", "")
}

func (s *Server) createTenant(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name     string `json:"name"`
		Slug     string `json:"slug"`
		OwnerID  int64  `json:"owner_user_id"`
		ParentID *int64 `json:"parent_id,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Name == "" || req.OwnerID == 0 {
		writeError(w, http.StatusBadRequest, "invalid_request", "name and owner_user_id are required")
		return
	}
	if err := credentials.ValidateSlug(req.Slug); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	tenant, err := s.tenants.CreateTenant(r.Context(), req.OwnerID, req.Name, req.Slug, req.ParentID)
	if err != nil {
		s.writeTenantError(w, err, "tenant creation")
		return
	}
	writeJSON(w, http.StatusCreated, tenant)
}

func (s *Server) getTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	tenant, err := s.tenants.Store().GetTenant(r.Context(), tenantID)
	if err != nil {
		s.writeTenantError(w, err, "tenant lookup")
		return
	}
	writeJSON(w, http.StatusOK, tenant)
}

func (s *Server) deleteTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.tenants.DeleteTenant(r.Context(), actorID(r), tenantID); err != nil {
		s.writeTenantError(w, err, "tenant deletion")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) moveTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		NewParentID *int64 `json:"new_parent_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := s.tenants.MoveTenant(r.Context(), actorID(r), tenantID, req.NewParentID); err != nil {
		s.writeTenantError(w, err, "tenant move")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) archiveTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.tenants.ArchiveTenant(r.Context(), actorID(r), tenantID); err != nil {
		s.writeTenantError(w, err, "tenant archive")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) unarchiveTenant(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.tenants.UnarchiveTenant(r.Context(), actorID(r), tenantID); err != nil {
		s.writeTenantError(w, err, "tenant unarchive")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listChildren(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	children, err := s.tenants.Store().ListChildren(r.Context(), tenantID)
	if err != nil {
		s.writeTenantError(w, err, "children listing")
		return
	}
	writeJSON(w, http.StatusOK, children)
}
