package handler

import (
	"context"
	"fmt"

	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/rbac"
)

// WorkspaceRepository is the narrow view of workspace storage the handlers in
// this package need to resolve an access decision.
type WorkspaceRepository interface {
	GetByID(ctx context.Context, id string) (*model.Workspace, error)
}

// ACLRepository is the narrow view of per-user grants the handlers need.
type ACLRepository interface {
	ListByWorkspace(ctx context.Context, workspaceID string) ([]model.WorkspaceACL, error)
}

// resolveCapability looks up a workspace and its ACL grants and resolves the
// calling actor's capability against them via rbac.Resolve.
func resolveCapability(ctx context.Context, workspaces WorkspaceRepository, acls ACLRepository, workspaceID string) (rbac.Capability, error) {
	actor := middleware.ActorFromContext(ctx)

	ws, err := workspaces.GetByID(ctx, workspaceID)
	if err != nil {
		return rbac.Capability{}, fmt.Errorf("handler.resolveCapability: get workspace: %w", err)
	}

	grants, err := acls.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return rbac.Capability{}, fmt.Errorf("handler.resolveCapability: list acl: %w", err)
	}

	return rbac.Resolve(actor, *ws, grants), nil
}
