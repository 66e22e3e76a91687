package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// WorkspaceStore is the storage surface the workspace handlers need beyond
// the read-only WorkspaceRepository used for capability resolution.
type WorkspaceStore interface {
	WorkspaceRepository
	Create(ctx context.Context, ws *model.Workspace) error
	ListForActor(ctx context.Context, actorUserID string, isAdmin bool, limit, offset int) ([]model.Workspace, error)
	UpdateVisibility(ctx context.Context, id string, visibility model.Visibility) error
	Archive(ctx context.Context, id string) error
}

// ACLStore is the storage surface the ACL handlers need beyond the
// read-only ACLRepository used for capability resolution.
type ACLStore interface {
	ACLRepository
	Grant(ctx context.Context, workspaceID, userID string, access model.ACLAccess) error
	Revoke(ctx context.Context, workspaceID, userID string) error
}

type WorkspaceDeps struct {
	Workspaces WorkspaceStore
	ACLs       ACLStore
}

type CreateWorkspaceRequest struct {
	Name       string `json:"name"`
	Visibility string `json:"visibility"`
}

func CreateWorkspace(deps WorkspaceDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			respondJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
			return
		}

		var req CreateWorkspaceRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "name is required"})
			return
		}

		visibility := model.Visibility(req.Visibility)
		switch visibility {
		case model.VisibilityPrivate, model.VisibilityOrgRead, model.VisibilityShared:
		case "":
			visibility = model.VisibilityPrivate
		default:
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid visibility"})
			return
		}

		ws := &model.Workspace{Name: req.Name, OwnerUserID: userID, Visibility: visibility}
		if err := deps.Workspaces.Create(r.Context(), ws); err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: ws})
	}
}

func ListWorkspaces(deps WorkspaceDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := middleware.ActorFromContext(r.Context())
		if actor.UserID == "" {
			respondJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
			return
		}

		workspaces, err := deps.Workspaces.ListForActor(r.Context(), actor.UserID, actor.IsAdmin(), 0, 0)
		if err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{"workspaces": workspaces}})
	}
}

type UpdateVisibilityRequest struct {
	Visibility string `json:"visibility"`
}

func UpdateWorkspaceVisibility(deps WorkspaceDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")
		capability, err := resolveCapability(r.Context(), deps.Workspaces, deps.ACLs, workspaceID)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if !capability.ManageACL {
			respondJSON(w, http.StatusForbidden, envelope{Success: false, Error: "access denied"})
			return
		}

		var req UpdateVisibilityRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
			return
		}

		visibility := model.Visibility(req.Visibility)
		switch visibility {
		case model.VisibilityPrivate, model.VisibilityOrgRead, model.VisibilityShared:
		default:
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid visibility"})
			return
		}

		if err := deps.Workspaces.UpdateVisibility(r.Context(), workspaceID, visibility); err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true})
	}
}

func ArchiveWorkspace(deps WorkspaceDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")
		capability, err := resolveCapability(r.Context(), deps.Workspaces, deps.ACLs, workspaceID)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if !capability.ManageACL {
			respondJSON(w, http.StatusForbidden, envelope{Success: false, Error: "access denied"})
			return
		}

		if err := deps.Workspaces.Archive(r.Context(), workspaceID); err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true})
	}
}

type GrantACLRequest struct {
	UserID string `json:"userId"`
}

func GrantWorkspaceAccess(deps WorkspaceDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")
		capability, err := resolveCapability(r.Context(), deps.Workspaces, deps.ACLs, workspaceID)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if !capability.ManageACL {
			respondJSON(w, http.StatusForbidden, envelope{Success: false, Error: "access denied"})
			return
		}

		var req GrantACLRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "userId is required"})
			return
		}

		if err := deps.ACLs.Grant(r.Context(), workspaceID, req.UserID, model.ACLAccessRead); err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true})
	}
}

func RevokeWorkspaceAccess(deps WorkspaceDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "id")
		capability, err := resolveCapability(r.Context(), deps.Workspaces, deps.ACLs, workspaceID)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if !capability.ManageACL {
			respondJSON(w, http.StatusForbidden, envelope{Success: false, Error: "access denied"})
			return
		}

		userID := chi.URLParam(r, "userId")
		if err := deps.ACLs.Revoke(r.Context(), workspaceID, userID); err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true})
	}
}
