package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// FeedbackDeps bundles dependencies for the feedback handlers.
type FeedbackDeps struct {
	Feedback *service.FeedbackService
}

// VoteRequest is the request body for POST /api/messages/{id}/feedback.
type VoteRequest struct {
	Value int `json:"value"`
}

// VoteMessage returns a handler recording the caller's judgment on an
// assistant message. value must be -1, 0, or 1.
func VoteMessage(deps FeedbackDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			respondJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
			return
		}

		messageID := chi.URLParam(r, "id")

		var req VoteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
			return
		}
		if req.Value < -1 || req.Value > 1 {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "value must be -1, 0, or 1"})
			return
		}

		if err := deps.Feedback.Vote(r.Context(), messageID, userID, model.FeedbackValue(req.Value)); err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true})
	}
}

// ListMessageFeedback returns a handler for GET /api/messages/{id}/feedback.
func ListMessageFeedback(deps FeedbackDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			respondJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
			return
		}

		messageID := chi.URLParam(r, "id")
		votes, err := deps.Feedback.ForMessage(r.Context(), messageID)
		if err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]interface{}{"votes": votes}})
	}
}
