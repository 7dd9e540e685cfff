package api

import (
	"context"
	"net/http"

	"github.com/heimdallid/heimdall/pkg/httputil"
	"github.com/heimdallid/heimdall/pkg/tenants"
)

type memberRequest struct {
	UserID      int64                        `json:"user_id"`
	Role        string                       `json:"role"`
	Permissions []tenants.PermissionOverride `json:"permissions,omitempty"`
}

func (s *Server) addMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req memberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := tenants.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	member, err := s.tenants.AddMember(r.Context(), actorID(r), tenantID, req.UserID, role, req.Permissions...)
	if err != nil {
		s.writeTenantError(w, err, "member addition")
		return
	}
	writeJSON(w, http.StatusCreated, member)
}

func (s *Server) listMembers(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	members, err := s.tenants.Store().ListMembers(r.Context(), tenantID)
	if err != nil {
		s.writeTenantError(w, err, "member listing")
		return
	}
	writeJSON(w, http.StatusOK, members)
}

func (s *Server) removeMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	if err := s.tenants.RemoveMember(r.Context(), actorID(r), tenantID, userID); err != nil {
		s.writeTenantError(w, err, "member removal")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) updateMemberRole(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	var req struct {
		Role string `json:"role"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := tenants.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	if err := s.tenants.UpdateMemberRole(r.Context(), actorID(r), tenantID, userID, role); err != nil {
		s.writeTenantError(w, err, "role update")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) transferOwnership(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		FromUserID int64 `json:"from_user_id"`
		ToUserID   int64 `json:"to_user_id"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := s.tenants.TransferOwnership(r.Context(), actorID(r), tenantID, req.FromUserID, req.ToUserID); err != nil {
		s.writeTenantError(w, err, "ownership transfer")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) inviteMember(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req memberRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	role, err := tenants.ParseRole(req.Role)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	invitation, err := s.tenants.InviteMember(r.Context(), actorID(r), tenantID, req.UserID, role, req.Permissions...)
	if err != nil {
		s.writeTenantError(w, err, "invitation")
		return
	}
	writeJSON(w, http.StatusCreated, invitation)
}

func (s *Server) listInvitations(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	invitations, err := s.tenants.Store().ListInvitations(r.Context(), tenantID)
	if err != nil {
		s.writeTenantError(w, err, "invitation listing")
		return
	}
	writeJSON(w, http.StatusOK, invitations)
}

func (s *Server) acceptInvitation(w http.ResponseWriter, r *http.Request) {
	s.resolveInvitation(w, r, s.tenants.AcceptInvitation, "invitation acceptance")
}

func (s *Server) rejectInvitation(w http.ResponseWriter, r *http.Request) {
	s.resolveInvitation(w, r, s.tenants.RejectInvitation, "invitation rejection")
}

func (s *Server) resolveInvitation(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, tenantID, userID int64) error, opName string) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	if err := op(r.Context(), tenantID, userID); err != nil {
		s.writeTenantError(w, err, opName)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) cancelInvitation(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	if err := s.tenants.CancelInvitation(r.Context(), actorID(r), tenantID, userID); err != nil {
		s.writeTenantError(w, err, "invitation cancellation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
