package tenants

import (
	"context"
	"sync"
	"testing"
)

func TestAddMember(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)

	member, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleMember)
	if err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if member.Pending() {
		t.Error("directly added member should be joined")
	}
	if member.Role != RoleMember {
		t.Errorf("member role = %q, want member", member.Role)
	}

	ok, err := engine.IsMember(ctx, tenant.ID, 200)
	if err != nil {
		t.Fatalf("IsMember failed: %v", err)
	}
	if !ok {
		t.Error("IsMember = false after AddMember")
	}
}

func TestCustomRoleMemberOverrides(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)

	member, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleCustom,
		PermissionOverride{ResourceType: "doc", Actions: []string{"read", "write"}},
		PermissionOverride{ResourceType: "report", ResourceID: "42", Actions: []string{"read"}},
	)
	if err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if len(member.Permissions) != 2 {
		t.Fatalf("member overrides = %v, want two", member.Permissions)
	}
	if member.Permissions[0].ResourceID != Wildcard {
		t.Errorf("override resource id = %q, want wildcard default", member.Permissions[0].ResourceID)
	}

	stored, err := engine.Store().GetMember(ctx, tenant.ID, 200)
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if len(stored.Permissions) != 2 || stored.Permissions[1].ResourceID != "42" {
		t.Fatalf("stored overrides = %v", stored.Permissions)
	}

	// A custom role carries no lattice defaults: the overrides are the
	// entire effective set.
	perms, err := engine.GetEffectivePermissions(ctx, tenant.ID, 200)
	if err != nil {
		t.Fatalf("GetEffectivePermissions failed: %v", err)
	}
	if len(perms) != 2 {
		t.Fatalf("effective permissions = %v, want exactly the overrides", perms)
	}

	allows := func(resourceType, resourceID, action string) bool {
		for _, p := range perms {
			if p.Allows(resourceType, resourceID, action) {
				return true
			}
		}
		return false
	}
	if !allows("doc", "anything", "write") {
		t.Error("override on doc/* write not effective")
	}
	if !allows("report", "42", "read") {
		t.Error("override on report/42 read not effective")
	}
	if allows("report", "43", "read") {
		t.Error("override on report/42 leaked to another resource")
	}
	if allows("doc", "anything", "delete") {
		t.Error("custom role allowed an action no override grants")
	}
}

func TestAddMemberInvalidOverride(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)

	_, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleCustom,
		PermissionOverride{ResourceType: "doc"})
	if err != ErrInvalidOverride {
		t.Errorf("AddMember error = %v, want ErrInvalidOverride", err)
	}
	if ok, _ := engine.IsMember(ctx, tenant.ID, 200); ok {
		t.Error("member persisted despite invalid override")
	}
}

func TestAddMemberDuplicate(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)
	if _, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleMember); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if _, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleViewer); err != ErrAlreadyMember {
		t.Errorf("duplicate AddMember error = %v, want ErrAlreadyMember", err)
	}
}

func TestAddMemberInvalidRole(t *testing.T) {
	engine, _ := newTestEngine(t)

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)
	if _, err := engine.AddMember(context.Background(), int64p(100), tenant.ID, 200, Role("superuser")); err == nil {
		t.Error("AddMember accepted an unknown role")
	}
}

func TestAddMemberArchivedTenant(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)
	if err := engine.ArchiveTenant(ctx, int64p(100), tenant.ID); err != nil {
		t.Fatalf("ArchiveTenant failed: %v", err)
	}
	if _, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleMember); err != ErrTenantArchived {
		t.Errorf("AddMember on archived tenant error = %v, want ErrTenantArchived", err)
	}
}

func TestRemoveMember(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)
	if _, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleViewer); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	if err := engine.RemoveMember(ctx, int64p(100), tenant.ID, 200); err != nil {
		t.Fatalf("RemoveMember failed: %v", err)
	}
	ok, err := engine.IsMember(ctx, tenant.ID, 200)
	if err != nil {
		t.Fatalf("IsMember failed: %v", err)
	}
	if ok {
		t.Error("IsMember = true after removal")
	}

	if err := engine.RemoveMember(ctx, int64p(100), tenant.ID, 200); err != ErrNotMember {
		t.Errorf("second removal error = %v, want ErrNotMember", err)
	}
}

func TestRemoveLastOwner(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)

	if err := engine.RemoveMember(ctx, int64p(100), tenant.ID, 100); err != ErrLastOwner {
		t.Fatalf("removing sole owner error = %v, want ErrLastOwner", err)
	}

	// With a second owner in place the removal goes through.
	if _, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleOwner); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := engine.RemoveMember(ctx, int64p(100), tenant.ID, 100); err != nil {
		t.Fatalf("RemoveMember with two owners failed: %v", err)
	}

	// And the survivor is now the last owner again.
	if err := engine.RemoveMember(ctx, int64p(200), tenant.ID, 200); err != ErrLastOwner {
		t.Errorf("removing surviving owner error = %v, want ErrLastOwner", err)
	}
}

// A pending owner invitation does not count toward the owner quorum.
func TestRemoveLastOwnerPendingOwnerDoesNotCount(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)
	if _, err := engine.InviteMember(ctx, int64p(100), tenant.ID, 200, RoleOwner); err != nil {
		t.Fatalf("InviteMember failed: %v", err)
	}

	if err := engine.RemoveMember(ctx, int64p(100), tenant.ID, 100); err != ErrLastOwner {
		t.Errorf("removing sole joined owner error = %v, want ErrLastOwner", err)
	}
}

func TestUpdateMemberRole(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)
	if _, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleViewer); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	if err := engine.UpdateMemberRole(ctx, int64p(100), tenant.ID, 200, RoleAdmin); err != nil {
		t.Fatalf("UpdateMemberRole failed: %v", err)
	}
	member, err := engine.Store().GetMember(ctx, tenant.ID, 200)
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if member.Role != RoleAdmin {
		t.Errorf("updated role = %q, want admin", member.Role)
	}
}

func TestDemoteLastOwner(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)

	if err := engine.UpdateMemberRole(ctx, int64p(100), tenant.ID, 100, RoleAdmin); err != ErrLastOwner {
		t.Fatalf("demoting sole owner error = %v, want ErrLastOwner", err)
	}

	// Reasserting the owner role on the sole owner is a no-op, not an error.
	if err := engine.UpdateMemberRole(ctx, int64p(100), tenant.ID, 100, RoleOwner); err != nil {
		t.Fatalf("owner to owner update failed: %v", err)
	}

	if _, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleOwner); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if err := engine.UpdateMemberRole(ctx, int64p(100), tenant.ID, 100, RoleMember); err != nil {
		t.Fatalf("demotion with two owners failed: %v", err)
	}
}

func TestTransferOwnership(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)
	if _, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleMember); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	if err := engine.TransferOwnership(ctx, int64p(100), tenant.ID, 100, 200); err != nil {
		t.Fatalf("TransferOwnership failed: %v", err)
	}

	from, err := engine.Store().GetMember(ctx, tenant.ID, 100)
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if from.Role != RoleAdmin {
		t.Errorf("previous owner role = %q, want admin", from.Role)
	}
	to, err := engine.Store().GetMember(ctx, tenant.ID, 200)
	if err != nil {
		t.Fatalf("GetMember failed: %v", err)
	}
	if to.Role != RoleOwner {
		t.Errorf("new owner role = %q, want owner", to.Role)
	}
}

func TestTransferOwnershipGuards(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)
	if _, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleAdmin); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}
	if _, err := engine.InviteMember(ctx, int64p(100), tenant.ID, 300, RoleMember); err != nil {
		t.Fatalf("InviteMember failed: %v", err)
	}

	tests := []struct {
		name     string
		from     int64
		to       int64
		expected error
	}{
		{"from non-owner", 200, 100, ErrNotOwner},
		{"from non-member", 999, 200, ErrNotMember},
		{"to non-member", 100, 999, ErrNotMember},
		{"to pending invitee", 100, 300, ErrMemberPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := engine.TransferOwnership(ctx, int64p(tt.from), tenant.ID, tt.from, tt.to); err != tt.expected {
				t.Errorf("TransferOwnership(%d -> %d) error = %v, want %v", tt.from, tt.to, err, tt.expected)
			}
		})
	}
}

// Two concurrent removals of the two remaining owners must not both pass
// the owner count: the tenant row lock serializes them, so exactly one
// succeeds and at least one owner survives.
func TestConcurrentOwnerRemoval(t *testing.T) {
	engine, _ := newTestEngine(t)
	ctx := context.Background()

	tenant := mustCreateTenant(t, engine, 100, "Acme", "acme", nil)
	if _, err := engine.AddMember(ctx, int64p(100), tenant.ID, 200, RoleOwner); err != nil {
		t.Fatalf("AddMember failed: %v", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, 2)
	for _, userID := range []int64{100, 200} {
		wg.Add(1)
		go func(userID int64) {
			defer wg.Done()
			errs <- engine.RemoveMember(ctx, nil, tenant.ID, userID)
		}(userID)
	}
	wg.Wait()
	close(errs)

	removed, rejected := 0, 0
	for err := range errs {
		switch err {
		case nil:
			removed++
		case ErrLastOwner:
			rejected++
		default:
			t.Fatalf("unexpected removal error: %v", err)
		}
	}
	if removed != 1 || rejected != 1 {
		t.Errorf("removed = %d rejected = %d, want exactly one of each", removed, rejected)
	}

	owners := 0
	members, err := engine.Store().ListMembers(ctx, tenant.ID)
	if err != nil {
		t.Fatalf("ListMembers failed: %v", err)
	}
	for _, m := range members {
		if m.Role == RoleOwner {
			owners++
		}
	}
	if owners != 1 {
		t.Errorf("surviving owners = %d, want 1", owners)
	}
}
