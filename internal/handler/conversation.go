package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// ConversationDeps bundles dependencies for the conversation handlers.
type ConversationDeps struct {
	Conversations *service.ConversationService
	Workspaces    WorkspaceRepository
	ACLs          ACLRepository
}

// StartConversationRequest is the request body for POST /api/conversations.
type StartConversationRequest struct {
	WorkspaceID string `json:"workspaceId"`
}

// StartConversation returns a handler for POST /api/conversations.
func StartConversation(deps ConversationDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			respondJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
			return
		}

		var req StartConversationRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.WorkspaceID == "" {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "workspaceId is required"})
			return
		}

		capability, err := resolveCapability(r.Context(), deps.Workspaces, deps.ACLs, req.WorkspaceID)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if !capability.Read {
			respondJSON(w, http.StatusForbidden, envelope{Success: false, Error: "access denied"})
			return
		}

		conv, err := deps.Conversations.Start(r.Context(), req.WorkspaceID, userID)
		if err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: conv})
	}
}

// ConversationHistory returns a handler for GET /api/conversations/{id}/messages.
func ConversationHistory(deps ConversationDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			respondJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
			return
		}

		conversationID := chi.URLParam(r, "id")
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

		msgs, err := deps.Conversations.History(r.Context(), conversationID, limit)
		if err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{"messages": msgs}})
	}
}

// ClearConversation returns a handler for DELETE /api/conversations/{id}/messages.
func ClearConversation(deps ConversationDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			respondJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
			return
		}

		conversationID := chi.URLParam(r, "id")
		if err := deps.Conversations.Clear(r.Context(), conversationID); err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true})
	}
}
