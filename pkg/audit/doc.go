// Package audit provides the append-only audit sink for every
// security-relevant mutation in the Heimdall core.
//
// # Overview
//
// Each mutation in the client registry, the OAuth engines and the tenant
// membership engine emits exactly one Event naming the actor, the action,
// the target and a structured detail payload. Events never contain secrets
// or token plaintext.
//
// Sinks implement the Logger interface:
//
//   - DBLogger: PostgreSQL table with a search API and retention sweep
//   - FileLogger: size-rotated NDJSON files
//   - MultiLogger: fan-out to several sinks
//   - NopLogger: discard (tests)
//
// # Failure Semantics
//
// An audit write failure after a successful mutation is logged by the caller
// and never re-thrown as if the mutation failed. Engines that write the
// mutation and its event in one transaction get atomicity from the
// transaction instead.
//
// # Usage
//
//	event := audit.NewEvent(audit.ActionMemberAdd, audit.CategoryMembership, audit.StatusSuccess)
//	event.ActorUserID = &actorID
//	event.TenantID = &tenantID
//	event.TargetType = audit.TargetMember
//	event.TargetID = strconv.FormatInt(userID, 10)
//	event.Details = map[string]interface{}{"role": "admin"}
//	if err := logger.Log(ctx, event); err != nil {
//		log.WithError(err).Error("audit write failed")
//	}
//
// # Related Packages
//
//   - pkg/clients, pkg/oauth, pkg/tenants: event producers
package audit
