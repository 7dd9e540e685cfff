// Package tenants provides the hierarchical multi-tenant store and the
// membership and permission engine for Heimdall.
//
// # Overview
//
// Tenants form a tree. Each tenant row carries a materialized path: the
// ordered chain of ancestor ids ending with the tenant's own id, stored as
// text ("1/4/9/"). Ancestor and descendant queries are prefix tests on this
// column instead of recursive joins, so permission inheritance checks cost
// one indexed lookup regardless of tree depth.
//
// # Membership
//
// A membership is a (tenant, user) row with a role from the lattice
//
//	owner > admin > member > viewer > guest
//
// plus "custom", which sits outside the lattice and derives authority only
// from explicit permission grants. A row with joined_at NULL is a pending
// invitation; it grants nothing until accepted and lapses after
// InvitationTTL.
//
// Every active tenant keeps at least one joined owner. RemoveMember and
// UpdateMemberRole enforce this inside a transaction that locks the tenant
// row first, so two concurrent demotions cannot both pass the owner count.
//
// # Permissions
//
// A user's effective permissions in a tenant are the role defaults, the
// member-level overrides carried on the membership row (a custom role's
// entire grant set), and unexpired explicit grants, with the tenant's
// policy as a kill switch: archiving a tenant flips its policy to deny and
// stamps every open-ended grant with an expiry equal to the archival time,
// which unarchival reverses. Grants carrying their own expiry keep it
// through the cycle.
//
// Inherited permissions walk the ancestor chain root-to-leaf, so a grant on
// a parent tenant is visible in every descendant and a nearer ancestor
// overrides a farther one on the same resource.
//
// # Caching
//
// Membership rows and permission views are read-through cached with a short
// TTL. Every mutation deletes the affected keys before its transaction
// commits; a reader never resolves pre-mutation ancestors from cache
// against the post-mutation tree. The cache is an accelerator only; losing
// it degrades latency, never correctness.
//
// # Usage Example
//
//	engine := tenants.NewEngine(db, cache, auditLogger, logger)
//
//	acme, err := engine.CreateTenant(ctx, adminID, "Acme", "acme", nil)
//	if err != nil {
//		return err
//	}
//
//	_, err = engine.AddMember(ctx, &adminID, acme.ID, devID, tenants.RoleMember)
//	if err != nil {
//		return err
//	}
//
//	ok, err := engine.CheckPermission(ctx, acme.ID, devID, "report", "q3", "read")
//
// # Related Packages
//
//   - pkg/cache: Cache interface and key scheme
//   - pkg/audit: Audit events emitted by every mutation
//   - pkg/oauth: Consults IsMember for tenant-scoped code issuance
package tenants
