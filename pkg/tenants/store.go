package tenants

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
)

// Store handles tenant hierarchy persistence. All mutations that carry
// invariants (last owner, subtree moves, archival) live on the Engine,
// which runs them transactionally; the Store is the read and scan layer.
type Store struct {
	db *sql.DB
}

// NewStore creates a new tenant store.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const tenantColumns = "id, name, slug, path, level, status, created_at, updated_at, archived_at"

// GetTenant retrieves a tenant by ID. Returns ErrTenantNotFound when the
// tenant does not exist.
func (s *Store) GetTenant(ctx context.Context, tenantID int64) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`
	tenant, err := scanTenant(s.db.QueryRowContext(ctx, query, tenantID))
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return tenant, nil
}

// GetTenantBySlug retrieves a tenant by its globally unique slug.
func (s *Store) GetTenantBySlug(ctx context.Context, slug string) (*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`
	tenant, err := scanTenant(s.db.QueryRowContext(ctx, query, slug))
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tenant by slug: %w", err)
	}
	return tenant, nil
}

// ListChildren lists the direct children of a tenant.
func (s *Store) ListChildren(ctx context.Context, tenantID int64) ([]*Tenant, error) {
	parent, err := s.GetTenant(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE path LIKE $1 AND level = $2 ORDER BY name ASC`
	rows, err := s.db.QueryContext(ctx, query, FormatPath(parent.Path)+"%", parent.Level+1)
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}
	defer rows.Close()

	return collectTenants(rows)
}

// ListSubtree lists a tenant and every descendant, ordered root-first.
func (s *Store) ListSubtree(ctx context.Context, root *Tenant) ([]*Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE path LIKE $1 ORDER BY level ASC, id ASC`
	rows, err := s.db.QueryContext(ctx, query, FormatPath(root.Path)+"%")
	if err != nil {
		return nil, fmt.Errorf("failed to list subtree: %w", err)
	}
	defer rows.Close()

	return collectTenants(rows)
}

const memberColumns = "id, tenant_id, user_id, role, permissions, invited_by, invited_at, joined_at"

// marshalOverrides encodes member-level grants for the permissions column.
func marshalOverrides(overrides []PermissionOverride) (string, error) {
	if len(overrides) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal(overrides)
	if err != nil {
		return "", fmt.Errorf("failed to encode permission overrides: %w", err)
	}
	return string(data), nil
}

// GetMember retrieves a membership row, pending or joined. Returns
// ErrNotMember when no row exists.
func (s *Store) GetMember(ctx context.Context, tenantID, userID int64) (*TenantMember, error) {
	query := `SELECT ` + memberColumns + ` FROM tenant_members WHERE tenant_id = $1 AND user_id = $2`
	member, err := scanMember(s.db.QueryRowContext(ctx, query, tenantID, userID))
	if err == sql.ErrNoRows {
		return nil, ErrNotMember
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get member: %w", err)
	}
	return member, nil
}

// ListMembers lists joined members of a tenant.
func (s *Store) ListMembers(ctx context.Context, tenantID int64) ([]*TenantMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM tenant_members
		WHERE tenant_id = $1 AND joined_at IS NOT NULL
		ORDER BY joined_at ASC
	`
	return s.queryMembers(ctx, query, tenantID)
}

// ListInvitations lists pending invitations for a tenant.
func (s *Store) ListInvitations(ctx context.Context, tenantID int64) ([]*TenantMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM tenant_members
		WHERE tenant_id = $1 AND joined_at IS NULL
		ORDER BY invited_at DESC
	`
	return s.queryMembers(ctx, query, tenantID)
}

// ListMemberships lists all tenants a user has joined.
func (s *Store) ListMemberships(ctx context.Context, userID int64) ([]*TenantMember, error) {
	query := `
		SELECT ` + memberColumns + `
		FROM tenant_members
		WHERE user_id = $1 AND joined_at IS NOT NULL
		ORDER BY joined_at ASC
	`
	return s.queryMembers(ctx, query, userID)
}

func (s *Store) queryMembers(ctx context.Context, query string, arg interface{}) ([]*TenantMember, error) {
	rows, err := s.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to list members: %w", err)
	}
	defer rows.Close()

	var members []*TenantMember
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan member: %w", err)
		}
		members = append(members, member)
	}
	return members, rows.Err()
}

const permissionColumns = "id, user_id, tenant_id, resource_type, resource_id, actions, granted_by, created_at, expires_at"

// ListPermissions lists all explicit grants for a user in a tenant,
// including expired ones. Callers filter on expiry.
func (s *Store) ListPermissions(ctx context.Context, tenantID, userID int64) ([]*Permission, error) {
	query := `
		SELECT ` + permissionColumns + `
		FROM tenant_permissions
		WHERE tenant_id = $1 AND user_id = $2
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, tenantID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list permissions: %w", err)
	}
	defer rows.Close()

	var perms []*Permission
	for rows.Next() {
		perm, err := scanPermission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permission: %w", err)
		}
		perms = append(perms, perm)
	}
	return perms, rows.Err()
}

// GetPolicy retrieves a tenant's policy row, or nil when none exists.
func (s *Store) GetPolicy(ctx context.Context, tenantID int64) (*Policy, error) {
	query := `SELECT id, tenant_id, effect, created_at, updated_at FROM tenant_policies WHERE tenant_id = $1`

	var policy Policy
	var effect string
	err := s.db.QueryRowContext(ctx, query, tenantID).Scan(
		&policy.ID, &policy.TenantID, &effect, &policy.CreatedAt, &policy.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy: %w", err)
	}

	policy.Effect, err = ParseGrantEffect(effect)
	if err != nil {
		return nil, err
	}
	return &policy, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTenant(scanner rowScanner) (*Tenant, error) {
	var tenant Tenant
	var pathText, status string
	var archivedAt sql.NullTime

	err := scanner.Scan(
		&tenant.ID,
		&tenant.Name,
		&tenant.Slug,
		&pathText,
		&tenant.Level,
		&status,
		&tenant.CreatedAt,
		&tenant.UpdatedAt,
		&archivedAt,
	)
	if err != nil {
		return nil, err
	}

	tenant.Path, err = ParsePath(pathText)
	if err != nil {
		return nil, fmt.Errorf("corrupt tenant path: %w", err)
	}
	tenant.Status, err = ParseTenantStatus(status)
	if err != nil {
		return nil, err
	}
	if archivedAt.Valid {
		t := archivedAt.Time
		tenant.ArchivedAt = &t
	}

	return &tenant, nil
}

func scanMember(scanner rowScanner) (*TenantMember, error) {
	var member TenantMember
	var role, overrides string
	var invitedBy sql.NullInt64
	var joinedAt sql.NullTime

	err := scanner.Scan(
		&member.ID,
		&member.TenantID,
		&member.UserID,
		&role,
		&overrides,
		&invitedBy,
		&member.InvitedAt,
		&joinedAt,
	)
	if err != nil {
		return nil, err
	}

	member.Role, err = ParseRole(role)
	if err != nil {
		return nil, err
	}
	if overrides != "" && overrides != "[]" {
		if err := json.Unmarshal([]byte(overrides), &member.Permissions); err != nil {
			return nil, fmt.Errorf("failed to decode permission overrides: %w", err)
		}
	}
	if invitedBy.Valid {
		id := invitedBy.Int64
		member.InvitedBy = &id
	}
	if joinedAt.Valid {
		t := joinedAt.Time
		member.JoinedAt = &t
	}

	return &member, nil
}

func scanPermission(scanner rowScanner) (*Permission, error) {
	var perm Permission
	var actions string
	var grantedBy sql.NullInt64
	var expiresAt sql.NullTime

	err := scanner.Scan(
		&perm.ID,
		&perm.UserID,
		&perm.TenantID,
		&perm.ResourceType,
		&perm.ResourceID,
		&actions,
		&grantedBy,
		&perm.CreatedAt,
		&expiresAt,
	)
	if err != nil {
		return nil, err
	}

	if actions != "" {
		perm.Actions = strings.Fields(actions)
	}
	if grantedBy.Valid {
		id := grantedBy.Int64
		perm.GrantedBy = &id
	}
	if expiresAt.Valid {
		t := expiresAt.Time
		perm.ExpiresAt = &t
	}

	return &perm, nil
}

func collectTenants(rows *sql.Rows) ([]*Tenant, error) {
	var tenants []*Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan tenant: %w", err)
		}
		tenants = append(tenants, tenant)
	}
	return tenants, rows.Err()
}
