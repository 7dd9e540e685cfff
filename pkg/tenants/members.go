package tenants

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/heimdallid/heimdall/pkg/audit"
	"github.com/heimdallid/heimdall/pkg/cache"
)

// normalizeOverrides validates member-level grants and defaults the
// resource ID to the wildcard, mirroring GrantPermission.
func normalizeOverrides(overrides []PermissionOverride) ([]PermissionOverride, error) {
	for i := range overrides {
		if overrides[i].ResourceType == "" || len(overrides[i].Actions) == 0 {
			return nil, ErrInvalidOverride
		}
		if overrides[i].ResourceID == "" {
			overrides[i].ResourceID = Wildcard
		}
	}
	return overrides, nil
}

// AddMember adds a user directly to a tenant with joined_at set now.
// Overrides are member-level grants; a custom role relies on them entirely.
func (e *Engine) AddMember(ctx context.Context, actorUserID *int64, tenantID, userID int64, role Role, overrides ...PermissionOverride) (*TenantMember, error) {
	if _, err := ParseRole(string(role)); err != nil {
		return nil, err
	}
	overrides, err := normalizeOverrides(overrides)
	if err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := lockTenant(ctx, tx, tenantID, now); err != nil {
		return nil, err
	}
	tenant, err := getTenantTx(ctx, tx, tenantID)
	if err != nil {
		return nil, err
	}
	if tenant.IsArchived() {
		return nil, ErrTenantArchived
	}

	encoded, err := marshalOverrides(overrides)
	if err != nil {
		return nil, err
	}
	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO tenant_members (tenant_id, user_id, role, permissions, invited_by, invited_at, joined_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, tenantID, userID, string(role), encoded, actorUserID, now, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to add member: %w", err)
	}

	e.invalidateMemberTx(ctx, tx, tenant, userID)

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit member addition: %w", err)
	}

	member := &TenantMember{
		ID:          id,
		TenantID:    tenantID,
		UserID:      userID,
		Role:        role,
		Permissions: overrides,
		InvitedBy:   actorUserID,
		InvitedAt:   now,
		JoinedAt:    &now,
	}

	e.auditEvent(ctx, audit.ActionMemberAdd, actorUserID, tenantID, audit.TargetMember, fmt.Sprintf("%d", userID), map[string]interface{}{
		"role": string(role),
	})

	return member, nil
}

// RemoveMember removes a user from a tenant. Removing the last joined owner
// is rejected with ErrLastOwner; the tenant row is locked first so two
// concurrent removals cannot both pass the owner count.
func (e *Engine) RemoveMember(ctx context.Context, actorUserID *int64, tenantID, userID int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := lockTenant(ctx, tx, tenantID, now); err != nil {
		return err
	}
	tenant, err := getTenantTx(ctx, tx, tenantID)
	if err != nil {
		return err
	}

	member, err := getMemberTx(ctx, tx, tenantID, userID)
	if err != nil {
		return err
	}
	if member.Role == RoleOwner && !member.Pending() {
		owners, err := countOwnersTx(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	); err != nil {
		return fmt.Errorf("failed to remove member: %w", err)
	}

	e.invalidateMemberTx(ctx, tx, tenant, userID)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit member removal: %w", err)
	}

	e.auditEvent(ctx, audit.ActionMemberRemove, actorUserID, tenantID, audit.TargetMember, fmt.Sprintf("%d", userID), map[string]interface{}{
		"role": string(member.Role),
	})

	return nil
}

// UpdateMemberRole changes a member's role. Demoting the last joined owner
// is rejected with ErrLastOwner.
func (e *Engine) UpdateMemberRole(ctx context.Context, actorUserID *int64, tenantID, userID int64, newRole Role) error {
	if _, err := ParseRole(string(newRole)); err != nil {
		return err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := lockTenant(ctx, tx, tenantID, now); err != nil {
		return err
	}
	tenant, err := getTenantTx(ctx, tx, tenantID)
	if err != nil {
		return err
	}

	member, err := getMemberTx(ctx, tx, tenantID, userID)
	if err != nil {
		return err
	}
	if member.Role == RoleOwner && newRole != RoleOwner && !member.Pending() {
		owners, err := countOwnersTx(ctx, tx, tenantID)
		if err != nil {
			return err
		}
		if owners <= 1 {
			return ErrLastOwner
		}
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tenant_members SET role = $1 WHERE tenant_id = $2 AND user_id = $3`,
		string(newRole), tenantID, userID,
	); err != nil {
		return fmt.Errorf("failed to update member role: %w", err)
	}

	e.invalidateMemberTx(ctx, tx, tenant, userID)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit role change: %w", err)
	}

	e.auditEvent(ctx, audit.ActionMemberRoleChange, actorUserID, tenantID, audit.TargetMember, fmt.Sprintf("%d", userID), map[string]interface{}{
		"old_role": string(member.Role),
		"new_role": string(newRole),
	})

	return nil
}

// TransferOwnership atomically promotes the target to owner and demotes the
// source to admin. The tenant is never observable without an owner.
func (e *Engine) TransferOwnership(ctx context.Context, actorUserID *int64, tenantID, fromUserID, toUserID int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if err := lockTenant(ctx, tx, tenantID, now); err != nil {
		return err
	}
	tenant, err := getTenantTx(ctx, tx, tenantID)
	if err != nil {
		return err
	}

	from, err := getMemberTx(ctx, tx, tenantID, fromUserID)
	if err != nil {
		return err
	}
	if from.Role != RoleOwner || from.Pending() {
		return ErrNotOwner
	}

	to, err := getMemberTx(ctx, tx, tenantID, toUserID)
	if err != nil {
		return err
	}
	if to.Pending() {
		return ErrMemberPending
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tenant_members SET role = $1 WHERE tenant_id = $2 AND user_id = $3`,
		string(RoleOwner), tenantID, toUserID,
	); err != nil {
		return fmt.Errorf("failed to promote new owner: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tenant_members SET role = $1 WHERE tenant_id = $2 AND user_id = $3`,
		string(RoleAdmin), tenantID, fromUserID,
	); err != nil {
		return fmt.Errorf("failed to demote previous owner: %w", err)
	}

	e.invalidateMemberTx(ctx, tx, tenant, fromUserID)
	e.invalidateMemberTx(ctx, tx, tenant, toUserID)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ownership transfer: %w", err)
	}

	e.auditEvent(ctx, audit.ActionOwnershipTransfer, actorUserID, tenantID, audit.TargetMember, fmt.Sprintf("%d", toUserID), map[string]interface{}{
		"from_user": fromUserID,
		"to_user":   toUserID,
	})

	return nil
}

// invalidateMemberTx deletes every cached view a membership change can
// affect: the member row, the member's effective permissions at the tenant,
// and the member's inherited views across the tenant's subtree. The subtree
// is read through the open transaction so no second connection is needed.
func (e *Engine) invalidateMemberTx(ctx context.Context, tx *sql.Tx, tenant *Tenant, userID int64) {
	e.cacheDelete(ctx,
		cache.MemberKey(tenant.ID, userID),
		cache.EffectivePermissionsKey(tenant.ID, userID),
	)

	subtree, err := listSubtreeTx(ctx, tx, tenant)
	if err != nil {
		if e.log != nil {
			e.log.WithError(err).WithField("tenant_id", tenant.ID).Warn("failed to enumerate subtree for cache invalidation")
		}
		e.cache.DeletePrefix(ctx, cache.TenantPermissionsPrefix(tenant.ID))
		return
	}
	for _, node := range subtree {
		e.cacheDelete(ctx, cache.InheritedPermissionsKey(node.ID, userID))
	}
}

func getMemberTx(ctx context.Context, tx *sql.Tx, tenantID, userID int64) (*TenantMember, error) {
	query := `SELECT ` + memberColumns + ` FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`
	member, err := scanMember(tx.QueryRowContext(ctx, query, tenantID, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

func countOwnersTx(ctx context.Context, tx *sql.Tx, tenantID int64) (int, error) {
	var count int
	err := tx.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM tenant_members
		WHERE tenant_id = $1 AND role = $2 AND joined_at IS NOT NULL
	`, tenantID, string(RoleOwner)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count owners: %w", err)
	}
	return count, nil
}
