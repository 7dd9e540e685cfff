package api

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/heimdallid/heimdall/pkg/clients"
	"github.com/heimdallid/heimdall/pkg/tenants"
)

func createTestTenant(t *testing.T, srv *Server, slug string, owner int64) *tenants.Tenant {
	t.Helper()
	rec := doJSON(t, srv, http.MethodPost, "/api/v1/tenants", map[string]interface{}{
		"name":          "Tenant " + slug,
		"slug":          slug,
		"owner_user_id": owner,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create tenant status = %d (%s)", rec.Code, rec.Body.String())
	}
	var tenant tenants.Tenant
	decodeBody(t, rec, &tenant)
	return &tenant
}

func TestCreateAndGetTenant(t *testing.T) {
	srv, _, _ := newTestServer(t)
	tenant := createTestTenant(t, srv, "acme", 1)

	rec := doJSON(t, srv, http.MethodGet, fmt.Sprintf("/api/v1/tenants/%d", tenant.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}
	var got tenants.Tenant
	decodeBody(t, rec, &got)
	if got.Slug != "acme" || got.Level != 0 {
		t.Fatalf("tenant = %+v", got)
	}

	t.Run("duplicate slug conflicts", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/tenants", map[string]interface{}{
			"name": "Other", "slug": "acme", "owner_user_id": int64(2),
		})
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("bad slug rejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/tenants", map[string]interface{}{
			"name": "Bad", "slug": "Not A Slug", "owner_user_id": int64(2),
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("unknown tenant 404", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodGet, "/api/v1/tenants/9999", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestMemberLifecycleOverHTTP(t *testing.T) {
	srv, _, _ := newTestServer(t)
	tenant := createTestTenant(t, srv, "acme", 1)
	base := fmt.Sprintf("/api/v1/tenants/%d", tenant.ID)

	rec := doJSON(t, srv, http.MethodPost, base+"/members", memberRequest{UserID: 2, Role: "admin"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add member status = %d (%s)", rec.Code, rec.Body.String())
	}

	t.Run("unknown role rejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, base+"/members", memberRequest{UserID: 3, Role: "superuser"})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	t.Run("duplicate member conflicts", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, base+"/members", memberRequest{UserID: 2, Role: "viewer"})
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
	})

	t.Run("last owner removal conflicts", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodDelete, base+"/members/1", nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409 (%s)", rec.Code, rec.Body.String())
		}
	})

	rec = doJSON(t, srv, http.MethodDelete, base+"/members/2", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("remove member status = %d", rec.Code)
	}

	t.Run("removing a non-member 404s", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodDelete, base+"/members/2", nil)
		if rec.Code != http.StatusNotFound {
			t.Fatalf("status = %d, want 404", rec.Code)
		}
	})
}

func TestInvitationLifecycleOverHTTP(t *testing.T) {
	srv, _, _ := newTestServer(t)
	tenant := createTestTenant(t, srv, "acme", 1)
	base := fmt.Sprintf("/api/v1/tenants/%d", tenant.ID)

	rec := doJSON(t, srv, http.MethodPost, base+"/invitations", memberRequest{UserID: 5, Role: "member"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("invite status = %d (%s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, srv, http.MethodGet, base+"/invitations", nil)
	var pending []tenants.TenantMember
	decodeBody(t, rec, &pending)
	if len(pending) != 1 || pending[0].UserID != 5 {
		t.Fatalf("pending = %+v", pending)
	}

	rec = doJSON(t, srv, http.MethodPost, base+"/invitations/5/accept", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("accept status = %d (%s)", rec.Code, rec.Body.String())
	}

	t.Run("accepting twice conflicts", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, base+"/invitations/5/accept", nil)
		if rec.Code != http.StatusConflict {
			t.Fatalf("status = %d, want 409", rec.Code)
		}
	})

	rec = doJSON(t, srv, http.MethodGet, base+"/members", nil)
	var members []tenants.TenantMember
	decodeBody(t, rec, &members)
	if len(members) != 2 {
		t.Fatalf("members = %d, want 2", len(members))
	}
}

func TestPermissionsOverHTTP(t *testing.T) {
	srv, _, _ := newTestServer(t)
	tenant := createTestTenant(t, srv, "acme", 1)
	base := fmt.Sprintf("/api/v1/tenants/%d", tenant.ID)

	rec := doJSON(t, srv, http.MethodPost, base+"/members", memberRequest{UserID: 2, Role: "viewer"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add member status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, base+"/permissions", map[string]interface{}{
		"user_id":       int64(2),
		"resource_type": "repository",
		"resource_id":   "42",
		"actions":       []string{"delete"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("grant status = %d (%s)", rec.Code, rec.Body.String())
	}
	var granted tenants.Permission
	decodeBody(t, rec, &granted)
	if granted.ID == 0 {
		t.Fatal("grant must return the stored permission")
	}

	check := func(action string) bool {
		rec := doJSON(t, srv, http.MethodPost, base+"/check", map[string]interface{}{
			"user_id":       int64(2),
			"resource_type": "repository",
			"resource_id":   "42",
			"action":        action,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("check status = %d (%s)", rec.Code, rec.Body.String())
		}
		var verdict struct {
			Allowed bool `json:"allowed"`
		}
		decodeBody(t, rec, &verdict)
		return verdict.Allowed
	}

	if !check("delete") {
		t.Fatal("explicit grant must allow delete")
	}
	if !check("read") {
		t.Fatal("viewer default must allow read")
	}
	if check("transfer") {
		t.Fatal("unrelated action must be denied")
	}

	rec = doJSON(t, srv, http.MethodDelete, fmt.Sprintf("%s/permissions/%d", base, granted.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("revoke status = %d", rec.Code)
	}
	if check("delete") {
		t.Fatal("revoked grant must no longer allow delete")
	}

	t.Run("grant without actions rejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, base+"/permissions", map[string]interface{}{
			"user_id":       int64(2),
			"resource_type": "repository",
		})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})
}

func TestClientAdminOverHTTP(t *testing.T) {
	srv, _, _ := newTestServer(t)

	rec := doJSON(t, srv, http.MethodPost, "/api/v1/clients", clients.RegisterRequest{
		Name:          "New App",
		RedirectURIs:  []string{"https://new.example.com/cb"},
		AllowedScopes: []string{"read"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d (%s)", rec.Code, rec.Body.String())
	}
	var created registerClientResponse
	decodeBody(t, rec, &created)
	if created.ClientSecret == "" || created.Client == nil {
		t.Fatalf("response = %+v", created)
	}

	t.Run("nameless registration rejected", func(t *testing.T) {
		rec := doJSON(t, srv, http.MethodPost, "/api/v1/clients", clients.RegisterRequest{})
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", rec.Code)
		}
	})

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/clients/"+created.Client.ClientID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodPost, "/api/v1/clients/"+created.Client.ClientID+"/suspend", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("suspend status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodDelete, "/api/v1/clients/"+created.Client.ClientID, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", rec.Code)
	}

	rec = doJSON(t, srv, http.MethodGet, "/api/v1/clients/"+created.Client.ClientID, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("get after delete status = %d", rec.Code)
	}
}
