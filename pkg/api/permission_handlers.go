package api

import (
	"context"
	"net/http"
	"time"

	"github.com/heimdallid/heimdall/pkg/httputil"
	"github.com/heimdallid/heimdall/pkg/tenants"
)

type permissionViewFunc func(ctx context.Context, tenantID, userID int64) ([]tenants.Permission, error)

func (s *Server) grantPermission(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		UserID       int64      `json:"user_id"`
		ResourceType string     `json:"resource_type"`
		ResourceID   string     `json:"resource_id,omitempty"`
		Actions      []string   `json:"actions"`
		ExpiresAt    *time.Time `json:"expires_at,omitempty"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	perm := &tenants.Permission{
		UserID:       req.UserID,
		TenantID:     tenantID,
		ResourceType: req.ResourceType,
		ResourceID:   req.ResourceID,
		Actions:      req.Actions,
		ExpiresAt:    req.ExpiresAt,
	}
	if err := s.tenants.GrantPermission(r.Context(), actorID(r), perm); err != nil {
		if status, ok := tenantStatus(err); ok {
			writeError(w, status, codeForStatus(status), err.Error())
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, perm)
}

func (s *Server) revokePermission(w http.ResponseWriter, r *http.Request) {
	if _, ok := pathID(w, r, "id"); !ok {
		return
	}
	permissionID, ok := pathID(w, r, "permission_id")
	if !ok {
		return
	}
	if err := s.tenants.RevokePermission(r.Context(), actorID(r), permissionID); err != nil {
		s.writeTenantError(w, err, "permission revocation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) effectivePermissions(w http.ResponseWriter, r *http.Request) {
	s.permissionView(w, r, s.tenants.GetEffectivePermissions, "effective permissions")
}

func (s *Server) inheritedPermissions(w http.ResponseWriter, r *http.Request) {
	s.permissionView(w, r, s.tenants.GetInheritedPermissions, "inherited permissions")
}

func (s *Server) permissionView(w http.ResponseWriter, r *http.Request, view permissionViewFunc, opName string) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	userID, ok := pathID(w, r, "user_id")
	if !ok {
		return
	}
	perms, err := view(r.Context(), tenantID, userID)
	if err != nil {
		s.writeTenantError(w, err, opName)
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

func (s *Server) checkPermission(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req struct {
		UserID       int64  `json:"user_id"`
		ResourceType string `json:"resource_type"`
		ResourceID   string `json:"resource_id"`
		Action       string `json:"action"`
	}
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.ResourceType == "" || req.Action == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "resource_type and action are required")
		return
	}

	start := time.Now()
	allowed, err := s.tenants.CheckPermission(r.Context(), tenantID, req.UserID, req.ResourceType, req.ResourceID, req.Action)
	if err != nil {
		s.writeTenantError(w, err, "permission check")
		return
	}

	if s.metrics != nil {
		label := "false"
		if allowed {
			label = "true"
		}
		s.metrics.PermissionChecksTotal.WithLabelValues(label).Inc()
		s.metrics.PermissionCheckDuration.Observe(time.Since(start).Seconds())
	}
	writeJSON(w, http.StatusOK, map[string]bool{"allowed": allowed})
}
