package cache

import "fmt"

// MemberKey is the cache key for a single membership row.
func MemberKey(tenantID, userID int64) string {
	return fmt.Sprintf("member:%d:%d", tenantID, userID)
}

// EffectivePermissionsKey is the cache key for a user's effective permissions
// within one tenant.
func EffectivePermissionsKey(tenantID, userID int64) string {
	return fmt.Sprintf("perms:effective:%d:%d", tenantID, userID)
}

// InheritedPermissionsKey is the cache key for a user's inherited permission
// view for one tenant (ancestors included).
func InheritedPermissionsKey(tenantID, userID int64) string {
	return fmt.Sprintf("perms:inherited:%d:%d", tenantID, userID)
}

// TenantPermissionsPrefix matches every cached permission view for a tenant,
// all users. Used when a mutation affects the whole tenant (archive, move,
// membership change on an ancestor).
func TenantPermissionsPrefix(tenantID int64) string {
	return fmt.Sprintf("perms:inherited:%d:", tenantID)
}

// TenantEffectivePrefix matches every cached effective-permission view for a
// tenant, all users.
func TenantEffectivePrefix(tenantID int64) string {
	return fmt.Sprintf("perms:effective:%d:", tenantID)
}

// TenantMembersPrefix matches every cached membership row for a tenant.
func TenantMembersPrefix(tenantID int64) string {
	return fmt.Sprintf("member:%d:", tenantID)
}

// ClientKey is the cache key for an OAuth client record.
func ClientKey(clientID string) string {
	return fmt.Sprintf("client:%s", clientID)
}
