// Package cache provides the TTL key/value cache used on Heimdall's hot
// authorization paths.
//
// # Overview
//
// The cache is a read-through accelerator, never a source of truth: losing it
// must never change an authorization answer, only its latency. Every mutation
// that could change a cached answer deletes the affected keys in the same
// logical operation rather than waiting for the TTL.
//
// Two implementations are provided behind the same interface:
//
//   - RedisCache: shared cache backed by Redis, for multi-process deployments
//   - MemoryCache: process-local expirable LRU, for single-node and tests
//
// plus a Nop cache that caches nothing, useful for deterministic tests.
//
// # Keys
//
// Keys are deterministic composite strings built by the helpers in keys.go:
//
//	member:{tenantID}:{userID}
//	perms:effective:{tenantID}:{userID}
//	perms:inherited:{tenantID}:{userID}
//	client:{clientID}
//
// Prefix deletion exists so that a mutation on an ancestor tenant can drop
// every cached inheritance view for a descendant in one call.
//
// # Related Packages
//
//   - pkg/tenants: membership and permission lookups (primary consumer)
//   - pkg/clients: client record lookups on the token path
package cache
