package rbac

import (
	"testing"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

func TestResolve(t *testing.T) {
	owner := model.Actor{UserID: "u-owner", Role: model.RoleEmployee}
	admin := model.Actor{UserID: "u-admin", Role: model.RoleAdmin}
	member := model.Actor{UserID: "u-member", Role: model.RoleEmployee}
	outsider := model.Actor{UserID: "u-outsider", Role: model.RoleEmployee}

	grant := []model.WorkspaceACL{{WorkspaceID: "w1", UserID: "u-member", Access: model.ACLAccessRead}}

	tests := []struct {
		name       string
		actor      model.Actor
		visibility model.Visibility
		acl        []model.WorkspaceACL
		wantRead   bool
		wantWrite  bool
		wantHidden bool
	}{
		{"owner private", owner, model.VisibilityPrivate, nil, true, true, false},
		{"admin private", admin, model.VisibilityPrivate, nil, true, true, false},
		{"employee in acl, shared", member, model.VisibilityShared, grant, true, false, false},
		{"employee org_read", outsider, model.VisibilityOrgRead, nil, true, false, false},
		{"employee private, not owner", outsider, model.VisibilityPrivate, nil, false, false, true},
		{"employee shared, not in acl", outsider, model.VisibilityShared, grant, false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := model.Workspace{ID: "w1", OwnerUserID: "u-owner", Visibility: tt.visibility}
			got := Resolve(tt.actor, ws, tt.acl)
			if got.Read != tt.wantRead {
				t.Errorf("Read = %v, want %v", got.Read, tt.wantRead)
			}
			if got.Write != tt.wantWrite {
				t.Errorf("Write = %v, want %v", got.Write, tt.wantWrite)
			}
			if got.Hidden != tt.wantHidden {
				t.Errorf("Hidden = %v, want %v", got.Hidden, tt.wantHidden)
			}
		})
	}
}

func TestResolveArchivedDeniesWrites(t *testing.T) {
	now := time.Now()
	ws := model.Workspace{ID: "w1", OwnerUserID: "u-owner", Visibility: model.VisibilityPrivate, ArchivedAt: &now}

	owner := model.Actor{UserID: "u-owner", Role: model.RoleEmployee}
	admin := model.Actor{UserID: "u-admin", Role: model.RoleAdmin}

	for _, actor := range []model.Actor{owner, admin} {
		got := Resolve(actor, ws, nil)
		if !got.Read {
			t.Errorf("actor %s: expected read on archived workspace", actor.UserID)
		}
		if got.Write {
			t.Errorf("actor %s: expected write denied on archived workspace", actor.UserID)
		}
	}
}
