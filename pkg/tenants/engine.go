package tenants

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/heimdallid/heimdall/pkg/audit"
	"github.com/heimdallid/heimdall/pkg/cache"
	"github.com/heimdallid/heimdall/pkg/credentials"
	"github.com/heimdallid/heimdall/pkg/observability"
)

// Named errors. These are caller mistakes or invariant violations, distinct
// from authorization-state failures which deliberately carry no reason.
var (
	ErrTenantNotFound     = errors.New("tenant not found")
	ErrTenantArchived     = errors.New("tenant is archived")
	ErrTenantNotArchived  = errors.New("tenant is not archived")
	ErrSlugTaken          = errors.New("tenant slug is already taken")
	ErrNotMember          = errors.New("user is not a member of the tenant")
	ErrAlreadyMember      = errors.New("user is already a member of the tenant")
	ErrMemberPending      = errors.New("membership is a pending invitation")
	ErrNotPending         = errors.New("membership is not a pending invitation")
	ErrInvitationExpired  = errors.New("invitation has expired")
	ErrLastOwner          = errors.New("tenant must retain at least one owner")
	ErrNotOwner           = errors.New("user is not an owner of the tenant")
	ErrMoveIntoSubtree    = errors.New("cannot move a tenant into its own subtree")
	ErrInvalidOverride    = errors.New("permission override needs a resource type and at least one action")
	ErrPermissionNotFound = errors.New("permission not found")
)

// InvitationTTL is how long a pending invitation stays acceptable.
const InvitationTTL = 7 * 24 * time.Hour

// Engine owns the tenant hierarchy and the membership and permission
// lifecycle. Invariant-carrying mutations run in a single transaction that
// first takes a row lock on the tenant, so concurrent mutations on the same
// tenant serialize and the last-owner count is never checked against a
// stale snapshot.
type Engine struct {
	db    *sql.DB
	store *Store
	cache cache.Cache
	audit audit.Logger
	log   *observability.Logger
}

// NewEngine creates a tenant engine.
func NewEngine(db *sql.DB, c cache.Cache, auditLogger audit.Logger, log *observability.Logger) *Engine {
	if c == nil {
		c = cache.NewNop()
	}
	if auditLogger == nil {
		auditLogger = audit.NewNopLogger()
	}
	return &Engine{
		db:    db,
		store: NewStore(db),
		cache: c,
		audit: auditLogger,
		log:   log,
	}
}

// Store exposes the read layer.
func (e *Engine) Store() *Store {
	return e.store
}

// CreateTenant provisions a tenant under the given parent (nil for a root
// tenant) and bootstraps the creator as its sole owner.
func (e *Engine) CreateTenant(ctx context.Context, ownerUserID int64, name, slug string, parentID *int64) (*Tenant, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("tenant name is required")
	}
	if err := credentials.ValidateSlug(slug); err != nil {
		return nil, err
	}

	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var parentPath []int64
	level := 0
	if parentID != nil {
		parent, err := getTenantTx(ctx, tx, *parentID)
		if err != nil {
			return nil, err
		}
		if parent.IsArchived() {
			return nil, ErrTenantArchived
		}
		parentPath = parent.Path
		level = parent.Level + 1
	}

	now := time.Now().UTC()
	var id int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO tenants (name, slug, path, level, status, created_at, updated_at)
		VALUES ($1, $2, '', $3, $4, $5, $6)
		RETURNING id
	`, name, slug, level, string(StatusActive), now, now).Scan(&id)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, ErrSlugTaken
		}
		return nil, fmt.Errorf("failed to create tenant: %w", err)
	}

	path := append(append([]int64{}, parentPath...), id)
	if _, err := tx.ExecContext(ctx,
		`UPDATE tenants SET path = $1 WHERE id = $2`,
		FormatPath(path), id,
	); err != nil {
		return nil, fmt.Errorf("failed to set tenant path: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tenant_members (tenant_id, user_id, role, invited_at, joined_at)
		VALUES ($1, $2, $3, $4, $5)
	`, id, ownerUserID, string(RoleOwner), now, now); err != nil {
		return nil, fmt.Errorf("failed to bootstrap owner: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tenant_policies (tenant_id, effect, created_at, updated_at)
		VALUES ($1, $2, $3, $4)
	`, id, string(EffectAllow), now, now); err != nil {
		return nil, fmt.Errorf("failed to create tenant policy: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit tenant creation: %w", err)
	}

	tenant := &Tenant{
		ID:        id,
		Name:      name,
		Slug:      slug,
		Path:      path,
		Level:     level,
		Status:    StatusActive,
		CreatedAt: now,
		UpdatedAt: now,
	}

	e.auditEvent(ctx, audit.ActionTenantCreate, &ownerUserID, tenant.ID, audit.TargetTenant, fmt.Sprintf("%d", tenant.ID), map[string]interface{}{
		"slug":   slug,
		"parent": parentID,
	})

	return tenant, nil
}

// DeleteTenant hard-deletes a tenant and its entire subtree, including
// memberships, permissions, and policies.
func (e *Engine) DeleteTenant(ctx context.Context, actorUserID *int64, tenantID int64) error {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	tenant, err := getTenantTx(ctx, tx, tenantID)
	if err != nil {
		return err
	}

	subtree, err := listSubtreeTx(ctx, tx, tenant)
	if err != nil {
		return err
	}

	prefix := FormatPath(tenant.Path) + "%"
	for _, table := range []string{"tenant_members", "tenant_permissions", "tenant_policies"} {
		query := fmt.Sprintf(
			`DELETE FROM %s WHERE tenant_id IN (SELECT id FROM tenants WHERE path LIKE $1)`, table)
		if _, err := tx.ExecContext(ctx, query, prefix); err != nil {
			return fmt.Errorf("failed to delete tenant %s: %w", table, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM tenants WHERE path LIKE $1`, prefix); err != nil {
		return fmt.Errorf("failed to delete tenant subtree: %w", err)
	}

	// Invalidate before commit so no reader observes cached state for rows
	// that are about to disappear.
	e.invalidateSubtree(ctx, subtree)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tenant deletion: %w", err)
	}

	e.auditEvent(ctx, audit.ActionTenantDelete, actorUserID, tenant.ID, audit.TargetTenant, fmt.Sprintf("%d", tenant.ID), map[string]interface{}{
		"slug":         tenant.Slug,
		"subtree_size": len(subtree),
	})

	return nil
}

// MoveTenant reparents a tenant, rewriting the materialized path of the
// tenant and every descendant in one transaction. Inheritance caches for
// the whole subtree are invalidated before the transaction commits.
func (e *Engine) MoveTenant(ctx context.Context, actorUserID *int64, tenantID int64, newParentID *int64) error {
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

	var newParentPath []int64
	if newParentID != nil {
		if *newParentID == tenantID {
			return ErrMoveIntoSubtree
		}
		parent, err := getTenantTx(ctx, tx, *newParentID)
		if err != nil {
			return err
		}
		if parent.IsArchived() {
			return ErrTenantArchived
		}
		if IsAncestorOf(tenant.Path, parent.Path) {
			return ErrMoveIntoSubtree
		}
		newParentPath = parent.Path
	}

	subtree, err := listSubtreeTx(ctx, tx, tenant)
	if err != nil {
		return err
	}

	oldDepth := len(tenant.Path) - 1
	for _, node := range subtree {
		suffix := node.Path[oldDepth:]
		newPath := append(append([]int64{}, newParentPath...), suffix...)
		if _, err := tx.ExecContext(ctx,
			`UPDATE tenants SET path = $1, level = $2, updated_at = $3 WHERE id = $4`,
			FormatPath(newPath), len(newPath)-1, now, node.ID,
		); err != nil {
			return fmt.Errorf("failed to rewrite path for tenant %d: %w", node.ID, err)
		}
	}

	// Invalidate before commit. Committing first would open a window where
	// a permission check resolves pre-move ancestors from cache against the
	// post-move tree.
	e.invalidateSubtree(ctx, subtree)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tenant move: %w", err)
	}

	e.auditEvent(ctx, audit.ActionTenantMove, actorUserID, tenant.ID, audit.TargetTenant, fmt.Sprintf("%d", tenant.ID), map[string]interface{}{
		"new_parent":   newParentID,
		"subtree_size": len(subtree),
	})

	return nil
}

// ArchiveTenant flips the tenant's policy to deny and expires every
// permission in it. The operation is reversible via UnarchiveTenant.
func (e *Engine) ArchiveTenant(ctx context.Context, actorUserID *int64, tenantID int64) error {
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

	if _, err := tx.ExecContext(ctx,
		`UPDATE tenants SET status = $1, archived_at = $2 WHERE id = $3`,
		string(StatusArchived), now, tenantID,
	); err != nil {
		return fmt.Errorf("failed to archive tenant: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tenant_policies SET effect = $1, updated_at = $2 WHERE tenant_id = $3`,
		string(EffectDeny), now, tenantID,
	); err != nil {
		return fmt.Errorf("failed to flip tenant policy: %w", err)
	}
	// Expire rather than delete, marked with the archival timestamp so
	// unarchival can tell these apart from grants that expired on their own.
	// Grants carrying their own expiry keep it; the deny policy and the
	// archived status already gate every check while archived.
	if _, err := tx.ExecContext(ctx, `
		UPDATE tenant_permissions SET expires_at = $1
		WHERE tenant_id = $2 AND expires_at IS NULL
	`, now, tenantID); err != nil {
		return fmt.Errorf("failed to expire tenant permissions: %w", err)
	}

	subtree, err := listSubtreeTx(ctx, tx, tenant)
	if err != nil {
		return err
	}
	e.invalidateSubtree(ctx, subtree)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tenant archival: %w", err)
	}

	e.auditEvent(ctx, audit.ActionTenantArchive, actorUserID, tenant.ID, audit.TargetTenant, fmt.Sprintf("%d", tenant.ID), nil)
	return nil
}

// UnarchiveTenant reverses ArchiveTenant: the policy flips back to allow
// and permissions whose expiry matches the archival timestamp are restored.
func (e *Engine) UnarchiveTenant(ctx context.Context, actorUserID *int64, tenantID int64) error {
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
	if !tenant.IsArchived() || tenant.ArchivedAt == nil {
		return ErrTenantNotArchived
	}

	if _, err := tx.ExecContext(ctx,
		`UPDATE tenants SET status = $1, archived_at = NULL, updated_at = $2 WHERE id = $3`,
		string(StatusActive), now, tenantID,
	); err != nil {
		return fmt.Errorf("failed to unarchive tenant: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tenant_policies SET effect = $1, updated_at = $2 WHERE tenant_id = $3`,
		string(EffectAllow), now, tenantID,
	); err != nil {
		return fmt.Errorf("failed to restore tenant policy: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE tenant_permissions SET expires_at = NULL WHERE tenant_id = $1 AND expires_at = $2`,
		tenantID, *tenant.ArchivedAt,
	); err != nil {
		return fmt.Errorf("failed to restore tenant permissions: %w", err)
	}

	subtree, err := listSubtreeTx(ctx, tx, tenant)
	if err != nil {
		return err
	}
	e.invalidateSubtree(ctx, subtree)

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tenant unarchival: %w", err)
	}

	e.auditEvent(ctx, audit.ActionTenantUnarchive, actorUserID, tenant.ID, audit.TargetTenant, fmt.Sprintf("%d", tenant.ID), nil)
	return nil
}

// IsMember reports whether the user is a joined member of an active tenant.
// Read-through cached; pending invitations do not count.
func (e *Engine) IsMember(ctx context.Context, tenantID, userID int64) (bool, error) {
	member, err := e.getMemberCached(ctx, tenantID, userID)
	if err == ErrNotMember {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if member.Pending() {
		return false, nil
	}

	tenant, err := e.store.GetTenant(ctx, tenantID)
	if err != nil {
		return false, err
	}
	return !tenant.IsArchived(), nil
}

// getMemberCached is the read-through cached membership lookup.
func (e *Engine) getMemberCached(ctx context.Context, tenantID, userID int64) (*TenantMember, error) {
	key := cache.MemberKey(tenantID, userID)
	if data, ok, err := e.cache.Get(ctx, key); err == nil && ok {
		var member TenantMember
		if err := unmarshalCached(data, &member); err == nil {
			return &member, nil
		}
		e.cache.Delete(ctx, key)
	}

	member, err := e.store.GetMember(ctx, tenantID, userID)
	if err != nil {
		return nil, err
	}
	e.cacheSet(ctx, key, member)
	return member, nil
}

// lockTenant takes a row lock on the tenant inside tx, serializing
// invariant-carrying mutations on the same tenant. Also bumps updated_at.
func lockTenant(ctx context.Context, tx *sql.Tx, tenantID int64, now time.Time) error {
	result, err := tx.ExecContext(ctx,
		`UPDATE tenants SET updated_at = $1 WHERE id = $2`, now, tenantID)
	if err != nil {
		return fmt.Errorf("failed to lock tenant: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to lock tenant: %w", err)
	}
	if affected == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func getTenantTx(ctx context.Context, tx *sql.Tx, tenantID int64) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	tenant, err := scanTenant(tx.QueryRowContext(ctx, query, tenantID))
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

func listSubtreeTx(ctx context.Context, tx *sql.Tx, root *Tenant) ([]*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE path LIKE $1 ORDER BY level ASC, id ASC`
	rows, err := tx.QueryContext(ctx, query, FormatPath(root.Path)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list subtree: %w", err)
	}
	defer rows.Close()

	return collectTenants(rows)
}

// invalidateSubtree deletes every cached membership and permission view for
// the given tenants. Cache failures are logged, not surfaced; the store is
// the source of truth and cached entries expire on their own TTL.
func (e *Engine) invalidateSubtree(ctx context.Context, subtree []*Tenant) {
	for _, node := range subtree {
		for _, prefix := range []string{
			cache.TenantMembersPrefix(node.ID),
			cache.TenantEffectivePrefix(node.ID),
			cache.TenantPermissionsPrefix(node.ID),
		} {
			if err := e.cache.DeletePrefix(ctx, prefix); err != nil && e.log != nil {
				e.log.WithError(err).WithField("prefix", prefix).Warn("cache invalidation failed")
			}
		}
	}
}

func (e *Engine) cacheDelete(ctx context.Context, keys ...string) {
	for _, key := range keys {
		if err := e.cache.Delete(ctx, key); err != nil && e.log != nil {
			e.log.WithError(err).WithField("key", key).Warn("cache invalidation failed")
		}
	}
}

func (e *Engine) auditEvent(ctx context.Context, action audit.Action, actorUserID *int64, tenantID int64, targetType audit.TargetType, targetID string, details map[string]interface{}) {
	category := audit.CategoryTenant
	switch {
	case strings.HasPrefix(string(action), "member."):
		category = audit.CategoryMembership
	case strings.HasPrefix(string(action), "permission."):
		category = audit.CategoryPermission
	}

	event := audit.NewEvent(action, category, audit.StatusSuccess)
	event.ActorUserID = actorUserID
	event.TenantID = &tenantID
	event.TargetType = targetType
	event.TargetID = targetID
	event.Details = details

	if err := e.audit.Log(ctx, event); err != nil && e.log != nil {
		e.log.WithError(err).WithField("action", string(action)).Error("audit write failed")
	}
}

// isUniqueViolation matches unique-constraint failures across Postgres and
// the sqlite driver used in tests.
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate key")
}
