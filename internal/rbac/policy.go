// Package rbac resolves the single authority question every read/write use
// case must ask before touching a repository: given an Actor, a Workspace and
// its ACL rows, what is the actor allowed to do?
package rbac

import "github.com/connexus-ai/ragbox-backend/internal/model"

// Capability is the set of operations an actor holds on a workspace.
type Capability struct {
	Read       bool
	Write      bool
	ManageACL  bool
	// Hidden is true when denial must look like the workspace does not exist
	// (a PRIVATE or un-granted SHARED workspace to a non-owner, non-admin).
	Hidden bool
}

// Resolve implements the decision table from spec.md §4.3. acl is the full
// set of ACL rows for the workspace; only rows matching actor.UserID matter.
func Resolve(actor model.Actor, ws model.Workspace, acl []model.WorkspaceACL) Capability {
	if actor.IsAdmin() || actor.UserID == ws.OwnerUserID {
		if ws.Archived() {
			return Capability{Read: true, Write: false, ManageACL: false}
		}
		return Capability{Read: true, Write: true, ManageACL: true}
	}

	switch ws.Visibility {
	case model.VisibilityOrgRead:
		return Capability{Read: true}
	case model.VisibilityShared:
		if hasReadGrant(acl, actor.UserID) {
			return Capability{Read: true}
		}
		return Capability{Hidden: true}
	case model.VisibilityPrivate:
		return Capability{Hidden: true}
	default:
		return Capability{Hidden: true}
	}
}

func hasReadGrant(acl []model.WorkspaceACL, userID string) bool {
	for _, row := range acl {
		if row.UserID == userID && row.Access == model.ACLAccessRead {
			return true
		}
	}
	return false
}

// ResolveRead is a convenience wrapper returning a typed apperr-ready
// (allowed, hidden) pair for the common read-gate call site. The streaming
// answer pipeline and the non-streaming use cases both call this — see
// SPEC_FULL.md §9 on standardizing the workspace-access helper signature.
func ResolveRead(actor model.Actor, ws model.Workspace, acl []model.WorkspaceACL) (allowed bool, hidden bool) {
	cap := Resolve(actor, ws, acl)
	return cap.Read, cap.Hidden
}

// ResolveWrite is the write-gate convenience wrapper. Archived workspaces
// deny writes for everyone, including the owner and admins.
func ResolveWrite(actor model.Actor, ws model.Workspace, acl []model.WorkspaceACL) (allowed bool, hidden bool) {
	cap := Resolve(actor, ws, acl)
	return cap.Write, cap.Hidden
}
