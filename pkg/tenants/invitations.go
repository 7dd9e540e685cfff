package tenants

import (
	"context"
	"fmt"
	"time"

	"github.com/heimdallid/heimdall/pkg/audit"
)

// InviteMember creates a pending membership (joined_at NULL). The invitee
// gains no access until the invitation is accepted.
func (e *Engine) InviteMember(ctx context.Context, actorUserID *int64, tenantID, userID int64, role Role, overrides ...PermissionOverride) (*TenantMember, error) {
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
		VALUES ($1, $2, $3, $4, $5, $6, NULL)
		RETURNING id
	`, tenantID, userID, string(role), encoded, actorUserID, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit invitation: %w", err)
	}

	member := &TenantMember{
		ID:          id,
		TenantID:    tenantID,
		UserID:      userID,
		Role:        role,
		Permissions: overrides,
		InvitedBy:   actorUserID,
		InvitedAt:   now,
	}

	e.auditEvent(ctx, audit.ActionMemberInvite, actorUserID, tenantID, audit.TargetInvitation, fmt.Sprintf("%d", userID), map[string]interface{}{
		"role": string(role),
	})

	return member, nil
}

// AcceptInvitation turns a pending membership into a joined one. Expired
// invitations are deleted on the spot and rejected.
func (e *Engine) AcceptInvitation(ctx context.Context, tenantID, userID int64) error {
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
	if tenant.IsArchived() {
		return ErrTenantArchived
	}

	member, err := getMemberTx(ctx, tx, tenantID, userID)
	if err != nil {
		return err
	}
	if !member.Pending() {
		return ErrNotPending
	}
	if now.Sub(member.InvitedAt) > InvitationTTL {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM tenant_members WHERE tenant_id = $1 AND user_id = $2 AND joined_at IS NULL`,
			tenantID, userID,
		); err != nil {
			return fmt.Errorf("failed to drop expired invitation: %w", err)
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit invitation cleanup: %w", err)
		}
		return ErrInvitationExpired
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tenant_members SET joined_at = $1 WHERE tenant_id = $2 AND user_id = $3`,
		now, tenantID, userID,
	); err != nil {
		return fmt.Errorf("failed to accept invitation: %w", err)
	}

	e.invalidateMemberTx(ctx, tx, tenant, userID)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit invitation acceptance: %w", err)
	}

	e.auditEvent(ctx, audit.ActionInvitationAccept, &userID, tenantID, audit.TargetInvitation, fmt.Sprintf("%d", userID), nil)
	return nil
}

// RejectInvitation deletes a pending membership at the invitee's request.
func (e *Engine) RejectInvitation(ctx context.Context, tenantID, userID int64) error {
	if err := e.deletePending(ctx, tenantID, userID); err != nil {
		return err
	}
	e.auditEvent(ctx, audit.ActionInvitationReject, &userID, tenantID, audit.TargetInvitation, fmt.Sprintf("%d", userID), nil)
	return nil
}

// CancelInvitation deletes a pending membership at an administrator's
// request.
func (e *Engine) CancelInvitation(ctx context.Context, actorUserID *int64, tenantID, userID int64) error {
	if err := e.deletePending(ctx, tenantID, userID); err != nil {
		return err
	}
	e.auditEvent(ctx, audit.ActionInvitationCancel, actorUserID, tenantID, audit.TargetInvitation, fmt.Sprintf("%d", userID), nil)
	return nil
}

func (e *Engine) deletePending(ctx context.Context, tenantID, userID int64) error {
	result, err := e.db.ExecContext(ctx,
		`DELETE FROM tenant_members WHERE tenant_id = $1 AND user_id = $2 AND joined_at IS NULL`,
		tenantID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete invitation: %w", err)
	}
	if affected == 0 {
		return ErrNotPending
	}
	return nil
}

// CleanupExpiredInvitations removes pending invitations older than
// InvitationTTL. Idempotent; safe to run concurrently with normal traffic.
func (e *Engine) CleanupExpiredInvitations(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-InvitationTTL)
	result, err := e.db.ExecContext(ctx,
		`DELETE FROM tenant_members WHERE joined_at IS NULL AND invited_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup expired invitations: %w", err)
	}
	return result.RowsAffected()
}
