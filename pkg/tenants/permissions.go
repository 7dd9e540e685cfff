package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/heimdallid/heimdall/pkg/audit"
	"github.com/heimdallid/heimdall/pkg/cache"
)

// GrantPermission records an explicit grant for a user in a tenant.
func (e *Engine) GrantPermission(ctx context.Context, actorUserID *int64, perm *Permission) error {
	if perm.ResourceType == "" {
		return fmt.Errorf("resource type is required")
	}
	if perm.ResourceID == "" {
		perm.ResourceID = Wildcard
	}
	if len(perm.Actions) == 0 {
		return fmt.Errorf("at least one action is required")
	}

	tenant, err := e.store.GetTenant(ctx, perm.TenantID)
	if err != nil {
		return err
	}
	if tenant.IsArchived() {
		return ErrTenantArchived
	}

	now := time.Now().UTC()
	perm.GrantedBy = actorUserID
	err = e.db.QueryRowContext(ctx, `
		INSERT INTO tenant_permissions (user_id, tenant_id, resource_type, resource_id, actions, granted_by, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`, perm.UserID, perm.TenantID, perm.ResourceType, perm.ResourceID,
		strings.Join(perm.Actions, " "), perm.GrantedBy, now, perm.ExpiresAt,
	).Scan(&perm.ID)
	if err != nil {
		return fmt.Errorf("failed to grant permission: %w", err)
	}
	perm.CreatedAt = now

	e.cacheDelete(ctx, cache.EffectivePermissionsKey(perm.TenantID, perm.UserID))
	e.propagatePermissions(ctx, tenant, perm.UserID)

	e.auditEvent(ctx, audit.ActionPermissionGrant, actorUserID, perm.TenantID, audit.TargetPermission, fmt.Sprintf("%d", perm.ID), map[string]interface{}{
		"user_id":       perm.UserID,
		"resource_type": perm.ResourceType,
		"resource_id":   perm.ResourceID,
		"actions":       perm.Actions,
	})

	return nil
}

// RevokePermission deletes an explicit grant by ID.
func (e *Engine) RevokePermission(ctx context.Context, actorUserID *int64, permissionID int64) error {
	query := `SELECT ` + permissionColumns + ` FROM tenant_permissions WHERE id = $1`
	perm, err := scanPermission(e.db.QueryRowContext(ctx, query, permissionID))
	if err == sql.ErrNoRows {
		return ErrPermissionNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to get permission: %w", err)
	}

	if _, err := e.db.ExecContext(ctx,
		`DELETE FROM tenant_permissions WHERE id = $1`, permissionID); err != nil {
		return fmt.Errorf("failed to revoke permission: %w", err)
	}

	e.cacheDelete(ctx, cache.EffectivePermissionsKey(perm.TenantID, perm.UserID))
	if tenant, terr := e.store.GetTenant(ctx, perm.TenantID); terr == nil {
		e.propagatePermissions(ctx, tenant, perm.UserID)
	}

	e.auditEvent(ctx, audit.ActionPermissionRevoke, actorUserID, perm.TenantID, audit.TargetPermission, fmt.Sprintf("%d", perm.ID), map[string]interface{}{
		"user_id":       perm.UserID,
		"resource_type": perm.ResourceType,
		"resource_id":   perm.ResourceID,
	})

	return nil
}

// GetEffectivePermissions returns the user's permission set within one
// tenant: role defaults plus unexpired explicit grants. Archived tenants
// and deny policies yield an empty set. Read-through cached.
func (e *Engine) GetEffectivePermissions(ctx context.Context, tenantID, userID int64) ([]Permission, error) {
	key := cache.EffectivePermissionsKey(tenantID, userID)
	if data, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		var perms []Permission
		if err := unmarshalCached(data, &perms); err == nil {
			return perms, nil
		}
		e.cache.Delete(ctx, key)
	}

	perms, err := e.computeEffectivePermissions(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}

	e.cacheSet(ctx, key, perms)
	return perms, nil
}

func (e *Engine) computeEffectivePermissions(ctx context.Context, tenantID, userID int64) ([]Permission, error) {
	tenant, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	return e.effectiveForTenant(ctx, tenant, userID)
}

// effectiveForTenant computes role defaults plus unexpired grants for one
// tenant node, honoring its policy. Deny by default: anything ambiguous
// yields no grants.
func (e *Engine) effectiveForTenant(ctx context.Context, tenant *Tenant, userID int64) ([]Permission, error) {
	if tenant.IsArchived() {
		return []Permission{}, nil
	}
	policy, err := e.store.GetPolicy(ctx, tenant.ID)
	if err != nil {
		return nil, err
	}
	if policy != nil && policy.Effect == EffectDeny {
		return []Permission{}, nil
	}

	now := time.Now().UTC()
	perms := []Permission{}

	member, err := e.store.GetMember(ctx, tenant.ID, userID)
	if err != nil && err != ErrNotMember {
		return nil, err
	}
	if member != nil && !member.Pending() {
		for _, def := range DefaultRolePermissions(member.Role) {
			def.UserID = userID
			def.TenantID = tenant.ID
			perms = append(perms, def)
		}
		// Member-level overrides. For custom roles these are the whole
		// grant set; for lattice roles they extend the defaults.
		for _, o := range member.Permissions {
			perms = append(perms, Permission{
				UserID:       userID,
				TenantID:     tenant.ID,
				ResourceType: o.ResourceType,
				ResourceID:   o.ResourceID,
				Actions:      o.Actions,
			})
		}
	}

	explicit, err := e.store.ListPermissions(ctx, tenant.ID, userID)
	if err != nil {
		return nil, err
	}
	for _, perm := range explicit {
		if perm.Expired(now) {
			continue
		}
		perms = append(perms, *perm)
	}

	return perms, nil
}

// GetInheritedPermissions walks the tenant's ancestors root-to-leaf and
// merges their effective permission sets for the user, nearer ancestors
// overriding farther ones on the same resource. The tenant's own grants are
// not included; callers combine with GetEffectivePermissions.
func (e *Engine) GetInheritedPermissions(ctx context.Context, tenantID, userID int64) ([]Permission, error) {
	key := cache.InheritedPermissionsKey(tenantID, userID)
	if data, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		var perms []Permission
		if err := unmarshalCached(data, &perms); err == nil {
			return perms, nil
		}
		e.cache.Delete(ctx, key)
	}

	tenant, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	merged := make(map[string]Permission)
	order := []string{}
	for _, ancestorID := range tenant.Path[:len(tenant.Path)-1] {
		ancestor, err := e.store.GetTenant(ctx, ancestorID)
		if err != nil {
			return nil, fmt.Errorf("broken ancestor chain at %d: %w", ancestorID, err)
		}
		perms, err := e.effectiveForTenant(ctx, ancestor, userID)
		if err != nil {
			return nil, err
		}
		for _, perm := range perms {
			if _, seen := merged[perm.Key()]; !seen {
				order = append(order, perm.Key())
			}
			merged[perm.Key()] = perm
		}
	}

	inherited := make([]Permission, 0, len(merged))
	for _, k := range order {
		inherited = append(inherited, merged[k])
	}

	e.cacheSet(ctx, key, inherited)
	return inherited, nil
}

// CheckPermission reports whether the user may perform an action on a
// resource within a tenant, considering the tenant's own grants first and
// then inherited ones.
func (e *Engine) CheckPermission(ctx context.Context, tenantID, userID int64, resourceType, resourceID, action string) (bool, error) {
	effective, err := e.GetEffectivePermissions(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	for i := range effective {
		if effective[i].Allows(resourceType, resourceID, action) {
			return true, nil
		}
	}

	inherited, err := e.GetInheritedPermissions(ctx, tenantID, userID)
	if err != nil {
		return false, err
	}
	for i := range inherited {
		if inherited[i].Allows(resourceType, resourceID, action) {
			return true, nil
		}
	}

	return false, nil
}

// propagatePermissions invalidates the user's cached inheritance views for
// the tenant and every descendant. Skipping this after a membership or
// grant change on an ancestor is exactly the stale-allow bug this engine
// exists to prevent.
func (e *Engine) propagatePermissions(ctx context.Context, tenant *Tenant, userID int64) {
	subtree, err := e.store.ListSubtree(ctx, tenant)
	if err != nil {
		if e.log != nil {
			e.log.WithError(err).WithField("tenant_id", tenant.ID).Warn("failed to enumerate subtree for cache invalidation")
		}
		// Fall back to prefix invalidation on the node itself.
		e.cache.DeletePrefix(ctx, cache.TenantPermissionsPrefix(tenant.ID))
		return
	}
	for _, node := range subtree {
		e.cacheDelete(ctx, cache.InheritedPermissionsKey(node.ID, userID))
	}
}

func (e *Engine) cacheSet(ctx context.Context, key string, value interface{}) {
	data, err := json.Marshal(value)
	if err != nil {
		return
	}
	if err := e.cache.Set(ctx, key, data, 0); err != nil && e.log != nil {
		e.log.WithError(err).WithField("key", key).Debug("cache write failed")
	}
}

func unmarshalCached(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
