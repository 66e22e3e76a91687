package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// ConfirmIngest returns a handler for POST /api/documents/{id}/ingest. The
// client calls this once its direct PUT to the signed upload URL succeeds;
// it enqueues the document for out-of-band processing by queue.Worker and
// returns immediately. Returns 202 Accepted.
func ConfirmIngest(deps DocumentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			respondJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
			return
		}

		docID := chi.URLParam(r, "id")
		if docID == "" {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "document id required"})
			return
		}

		doc, err := deps.Documents.Get(r.Context(), docID)
		if err != nil {
			respondAppError(w, err)
			return
		}

		capability, err := resolveCapability(r.Context(), deps.Workspaces, deps.ACLs, doc.WorkspaceID)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if !capability.Write {
			respondJSON(w, http.StatusForbidden, envelope{Success: false, Error: "access denied"})
			return
		}

		if doc.Status != model.DocumentPending {
			respondJSON(w, http.StatusConflict, envelope{
				Success: false,
				Error:   "document is not in PENDING status",
			})
			return
		}

		if err := deps.Queue.Enqueue(r.Context(), docID); err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusAccepted, envelope{
			Success: true,
			Data: map[string]string{
				"documentId": docID,
				"status":     "queued",
			},
		})
	}
}
