package audit

import (
	"encoding/json"
	"time"
)

// Action identifies the security-relevant operation an event records.
type Action string

const (
	// Client registry events
	ActionClientRegister         Action = "client.register"
	ActionClientSecretRegenerate Action = "client.secret_regenerate"
	ActionClientSuspend          Action = "client.suspend"
	ActionClientActivate         Action = "client.activate"
	ActionClientDelete           Action = "client.delete"

	// OAuth protocol events
	ActionCodeIssue    Action = "oauth.code_issue"
	ActionCodeConsume  Action = "oauth.code_consume"
	ActionTokenIssue   Action = "oauth.token_issue"
	ActionTokenRefresh Action = "oauth.token_refresh"
	ActionTokenRevoke  Action = "oauth.token_revoke"

	// Tenant lifecycle events
	ActionTenantCreate    Action = "tenant.create"
	ActionTenantArchive   Action = "tenant.archive"
	ActionTenantUnarchive Action = "tenant.unarchive"
	ActionTenantMove      Action = "tenant.move"
	ActionTenantDelete    Action = "tenant.delete"

	// Membership events
	ActionMemberAdd          Action = "member.add"
	ActionMemberRemove       Action = "member.remove"
	ActionMemberRoleChange   Action = "member.role_change"
	ActionMemberInvite       Action = "member.invite"
	ActionInvitationAccept   Action = "member.invitation_accept"
	ActionInvitationReject   Action = "member.invitation_reject"
	ActionInvitationCancel   Action = "member.invitation_cancel"
	ActionOwnershipTransfer  Action = "member.ownership_transfer"
	ActionPermissionGrant    Action = "permission.grant"
	ActionPermissionRevoke   Action = "permission.revoke"
)

// Category groups actions for filtering and retention policy.
type Category string

const (
	CategoryClient     Category = "client"
	CategoryOAuth      Category = "oauth"
	CategoryTenant     Category = "tenant"
	CategoryMembership Category = "membership"
	CategoryPermission Category = "permission"
)

// Status represents the outcome of the recorded operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
	StatusDenied  Status = "denied"
)

// TargetType identifies what kind of entity the action operated on.
type TargetType string

const (
	TargetClient     TargetType = "oauth_client"
	TargetCode       TargetType = "authorization_code"
	TargetToken      TargetType = "token"
	TargetTenant     TargetType = "tenant"
	TargetMember     TargetType = "tenant_member"
	TargetPermission TargetType = "permission"
	TargetInvitation TargetType = "invitation"
)

// Event is a single append-only audit record. Every security-relevant
// mutation in the core emits exactly one.
type Event struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Action    Action    `json:"action"`
	Category  Category  `json:"category"`
	Status    Status    `json:"status"`

	// Actor and tenant scope; nil for unauthenticated protocol operations
	// (for example a failed token exchange).
	ActorUserID *int64 `json:"actor_user_id,omitempty"`
	TenantID    *int64 `json:"tenant_id,omitempty"`

	// Target entity
	TargetType TargetType `json:"target_type,omitempty"`
	TargetID   string     `json:"target_id,omitempty"`

	// Structured detail payload, never secrets or token plaintext.
	Details map[string]interface{} `json:"details,omitempty"`

	Message string `json:"message,omitempty"`
}

// ToJSON converts the event to JSON.
func (e *Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// SearchFilter narrows audit queries.
type SearchFilter struct {
	StartTime   *time.Time
	EndTime     *time.Time
	ActorUserID *int64
	TenantID    *int64
	Actions     []Action
	Category    Category
	Status      *Status
	TargetType  TargetType
	TargetID    string

	Limit  int
	Offset int
}
