package model

import (
	"encoding/json"
	"time"
)

// Audit event kinds recorded by the core pipeline. Routers/handlers may record
// additional kinds of their own; these are the ones C3/C8/C9 emit directly.
const (
	AuditWorkspaceCreated   = "WORKSPACE_CREATED"
	AuditWorkspaceArchived  = "WORKSPACE_ARCHIVED"
	AuditVisibilityChanged  = "VISIBILITY_CHANGED"
	AuditDocumentIngested   = "DOCUMENT_INGESTED"
	AuditDocumentReady      = "DOCUMENT_READY"
	AuditDocumentFailed     = "DOCUMENT_FAILED"
	AuditAccessDenied       = "ACCESS_DENIED"
	AuditQueryExecuted      = "QUERY_EXECUTED"
)

// AuditEvent is an immutable record of a security- or lifecycle-relevant
// action. WorkspaceID and ActorUserID are both optional since some events
//(a denied lookup of a hidden workspace) must not even confirm the workspace
// exists to the caller, while still being recorded server-side.
type AuditEvent struct {
	ID          string          `json:"id"`
	WorkspaceID *string         `json:"workspaceId,omitempty"`
	ActorUserID *string         `json:"actorUserId,omitempty"`
	Kind        string          `json:"kind"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}
