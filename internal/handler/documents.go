package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/queue"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

const maxFilenameLength = 255

// DocumentDeps bundles the dependencies every document handler in this file
// needs: the document and pipeline services, the ingest queue, and enough of
// the workspace layer to resolve an RBAC capability per request.
type DocumentDeps struct {
	Documents  *service.DocumentService
	Pipeline   *service.PipelineService
	Chunks     service.ChunkDeleter
	Queue      queue.Enqueuer
	Workspaces WorkspaceRepository
	ACLs       ACLRepository
}

// UploadRequest is the request body for document upload URL generation.
type UploadRequest struct {
	Filename    string `json:"filename"`
	ContentType string `json:"contentType"`
	SizeBytes   int    `json:"sizeBytes"`
}

// UploadDocument returns a handler that generates a signed upload URL and
// creates the backing PENDING document record.
// POST /api/workspaces/{workspaceId}/documents
func UploadDocument(deps DocumentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			respondJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
			return
		}

		workspaceID := chi.URLParam(r, "workspaceId")
		capability, err := resolveCapability(r.Context(), deps.Workspaces, deps.ACLs, workspaceID)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if !capability.Write {
			respondJSON(w, http.StatusForbidden, envelope{Success: false, Error: "access denied"})
			return
		}

		var req UploadRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
			return
		}

		if req.Filename == "" || req.ContentType == "" || req.SizeBytes == 0 {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "filename, contentType, and sizeBytes are required"})
			return
		}

		if len(req.Filename) > maxFilenameLength {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "filename exceeds 255 character limit"})
			return
		}

		if strings.Contains(req.Filename, "..") || strings.Contains(req.Filename, "/") || strings.Contains(req.Filename, "\\") {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "filename contains invalid path characters"})
			return
		}

		if !model.AllowedMimeTypes[req.ContentType] {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "unsupported content type"})
			return
		}

		if req.SizeBytes > model.MaxFileSizeBytes {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "file size exceeds 50MB limit"})
			return
		}

		resp, err := deps.Documents.GenerateUploadURL(r.Context(), workspaceID, userID, req.Filename, req.ContentType, req.SizeBytes)
		if err != nil {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: err.Error()})
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: resp})
	}
}

// ListDocuments returns a handler for GET /api/workspaces/{workspaceId}/documents.
func ListDocuments(deps DocumentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		workspaceID := chi.URLParam(r, "workspaceId")
		capability, err := resolveCapability(r.Context(), deps.Workspaces, deps.ACLs, workspaceID)
		if err != nil {
			respondAppError(w, err)
			return
		}
		if !capability.Read {
			respondJSON(w, http.StatusForbidden, envelope{Success: false, Error: "access denied"})
			return
		}

		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		docs, total, err := deps.Documents.List(r.Context(), workspaceID, service.ListOpts{Limit: limit, Offset: offset})
		if err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{
			Success: true,
			Data: map[string]interface{}{
				"documents": docs,
				"total":     total,
			},
		})
	}
}

// GetDocument returns a handler for GET /api/documents/{id}.
func GetDocument(deps DocumentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID := chi.URLParam(r, "id")

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
		if !capability.Read {
			respondJSON(w, http.StatusForbidden, envelope{Success: false, Error: "access denied"})
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: doc})
	}
}

// DeleteDocument returns a handler for DELETE /api/documents/{id}. Soft-deletes
// the document row and removes its chunks so future retrieval queries and
// similarity search never surface a deleted document's content.
func DeleteDocument(deps DocumentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID := chi.URLParam(r, "id")

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

		if err := deps.Documents.Delete(r.Context(), docID); err != nil {
			respondAppError(w, err)
			return
		}
		if err := deps.Chunks.DeleteByDocumentID(r.Context(), docID); err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true})
	}
}

// ReprocessDocument returns a handler for POST /api/documents/{id}/reprocess.
// Re-runs ingestion synchronously in the request goroutine — callers expect
// an immediate success/conflict answer, unlike the queue-driven initial
// ingestion path.
func ReprocessDocument(deps DocumentDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docID := chi.URLParam(r, "id")

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

		if err := deps.Pipeline.Reprocess(r.Context(), docID); err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]string{"documentId": docID, "status": "ready"}})
	}
}
