package tenants

import (
	"fmt"
	"time"
)

// TenantStatus represents a tenant's lifecycle state
type TenantStatus string

const (
	StatusActive   TenantStatus = "active"
	StatusArchived TenantStatus = "archived"
)

// ParseTenantStatus parses a status string, rejecting unknown values
func ParseTenantStatus(s string) (TenantStatus, error) {
	switch TenantStatus(s) {
	case StatusActive, StatusArchived:
		return TenantStatus(s), nil
	default:
		return "", fmt.Errorf("unknown tenant status: %q", s)
	}
}

// Role represents a member's role within a tenant
type Role string

const (
	RoleOwner  Role = "owner"
	RoleAdmin  Role = "admin"
	RoleMember Role = "member"
	RoleViewer Role = "viewer"
	RoleGuest  Role = "guest"
	RoleCustom Role = "custom"
)

// ParseRole parses a role string, rejecting unknown values at the edge
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleOwner, RoleAdmin, RoleMember, RoleViewer, RoleGuest, RoleCustom:
		return Role(s), nil
	default:
		return "", fmt.Errorf("unknown role: %q", s)
	}
}

// roleRank orders the lattice roles by authority. Custom sits outside the
// lattice; its authority comes from its explicit permission list only.
var roleRank = map[Role]int{
	RoleOwner:  5,
	RoleAdmin:  4,
	RoleMember: 3,
	RoleViewer: 2,
	RoleGuest:  1,
	RoleCustom: 0,
}

// AtLeast reports whether r carries at least the authority of other.
// Custom roles never satisfy a lattice comparison.
func (r Role) AtLeast(other Role) bool {
	if r == RoleCustom || other == RoleCustom {
		return false
	}
	return roleRank[r] >= roleRank[other]
}

// GrantEffect represents a policy effect
type GrantEffect string

const (
	EffectAllow GrantEffect = "allow"
	EffectDeny  GrantEffect = "deny"
)

// ParseGrantEffect parses an effect string, rejecting unknown values
func ParseGrantEffect(s string) (GrantEffect, error) {
	switch GrantEffect(s) {
	case EffectAllow, EffectDeny:
		return GrantEffect(s), nil
	default:
		return "", fmt.Errorf("unknown grant effect: %q", s)
	}
}

// Wildcard matches any resource type, resource ID, or action in a grant.
const Wildcard = "*"

// Tenant represents a node in the tenant hierarchy
type Tenant struct {
	ID         int64        `json:"id"`
	Name       string       `json:"name"`
	Slug       string       `json:"slug"`
	Path       []int64      `json:"path"`
	Level      int          `json:"level"`
	Status     TenantStatus `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	ArchivedAt *time.Time   `json:"archived_at,omitempty"`
}

// ParentID returns the id of the tenant's parent, or nil for a root tenant.
func (t *Tenant) ParentID() *int64 {
	if len(t.Path) < 2 {
		return nil
	}
	id := t.Path[len(t.Path)-2]
	return &id
}

// IsArchived reports whether the tenant is archived.
func (t *Tenant) IsArchived() bool {
	return t.Status == StatusArchived
}

// PermissionOverride is a member-level grant carried on the membership row.
// A custom role has no lattice defaults; its access comes entirely from
// these overrides plus explicit grants.
type PermissionOverride struct {
	ResourceType string   `json:"resource_type"`
	ResourceID   string   `json:"resource_id,omitempty"`
	Actions      []string `json:"actions"`
}

// TenantMember represents a user's membership in a tenant. A member with
// joined_at NULL is a pending invitation.
type TenantMember struct {
	ID          int64                `json:"id"`
	TenantID    int64                `json:"tenant_id"`
	UserID      int64                `json:"user_id"`
	Role        Role                 `json:"role"`
	Permissions []PermissionOverride `json:"permissions,omitempty"`
	InvitedBy   *int64               `json:"invited_by,omitempty"`
	InvitedAt   time.Time            `json:"invited_at"`
	JoinedAt    *time.Time           `json:"joined_at,omitempty"`
}

// Pending reports whether the membership is an unanswered invitation.
func (m *TenantMember) Pending() bool {
	return m.JoinedAt == nil
}

// Permission represents an explicit tenant-scoped grant
type Permission struct {
	ID           int64      `json:"id"`
	UserID       int64      `json:"user_id"`
	TenantID     int64      `json:"tenant_id"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	Actions      []string   `json:"actions"`
	GrantedBy    *int64     `json:"granted_by,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	ExpiresAt    *time.Time `json:"expires_at,omitempty"`
}

// Expired reports whether the grant has lapsed at the given instant.
func (p *Permission) Expired(now time.Time) bool {
	return p.ExpiresAt != nil && !p.ExpiresAt.After(now)
}

// Allows reports whether the grant covers the requested resource and action.
// Expiry is not considered here; callers filter expired grants first.
func (p *Permission) Allows(resourceType, resourceID, action string) bool {
	if p.ResourceType != Wildcard && p.ResourceType != resourceType {
		return false
	}
	if p.ResourceID != Wildcard && p.ResourceID != resourceID {
		return false
	}
	for _, a := range p.Actions {
		if a == Wildcard || a == action {
			return true
		}
	}
	return false
}

// Key returns a deduplication key for merging grant sets.
func (p *Permission) Key() string {
	return p.ResourceType + ":" + p.ResourceID
}

// Policy represents a tenant-wide allow/deny switch
type Policy struct {
	ID        int64       `json:"id"`
	TenantID  int64       `json:"tenant_id"`
	Effect    GrantEffect `json:"effect"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}

// DefaultRolePermissions returns the permissions a lattice role carries
// without any explicit grant. Custom roles have no defaults; guests gain
// access only through explicit grants.
func DefaultRolePermissions(role Role) []Permission {
	switch role {
	case RoleOwner:
		return []Permission{
			{ResourceType: Wildcard, ResourceID: Wildcard, Actions: []string{Wildcard}},
		}
	case RoleAdmin:
		return []Permission{
			{ResourceType: Wildcard, ResourceID: Wildcard, Actions: []string{"create", "read", "update", "delete", "invite"}},
		}
	case RoleMember:
		return []Permission{
			{ResourceType: Wildcard, ResourceID: Wildcard, Actions: []string{"create", "read", "update"}},
		}
	case RoleViewer:
		return []Permission{
			{ResourceType: Wildcard, ResourceID: Wildcard, Actions: []string{"read"}},
		}
	default:
		return nil
	}
}
