package model

import "time"

// Visibility controls who, besides the owner and admins, can read a workspace.
type Visibility string

const (
	VisibilityPrivate  Visibility = "PRIVATE"
	VisibilityOrgRead  Visibility = "ORG_READ"
	VisibilityShared   Visibility = "SHARED"
)

// Workspace isolates a set of documents, chunks and conversations under a
// single visibility policy. (owner_user_id, name) is unique.
type Workspace struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	OwnerUserID string     `json:"ownerUserId"`
	Visibility  Visibility `json:"visibility"`
	ArchivedAt  *time.Time `json:"archivedAt,omitempty"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
}

// Archived reports whether the workspace has been soft-archived.
func (w Workspace) Archived() bool {
	return w.ArchivedAt != nil
}

// ACLAccess is the grant level held by an ACL row. Only READ exists today —
// spec.md names no write-grant ACL entry, so the type carries one constant.
type ACLAccess string

const (
	ACLAccessRead ACLAccess = "READ"
)

// WorkspaceACL is a per-user read grant on a SHARED workspace.
type WorkspaceACL struct {
	WorkspaceID string    `json:"workspaceId"`
	UserID      string    `json:"userId"`
	Access      ACLAccess `json:"access"`
}
