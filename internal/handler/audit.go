package handler

import (
	"net/http"
	"strconv"

	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// AuditDeps bundles dependencies for the audit handler.
type AuditDeps struct {
	Audit *service.AuditService
}

// ListAudit returns a handler for GET /api/audit. Restricted to admins: audit
// events span every workspace and are not scoped by the requesting actor's
// own access grants.
// Supports query params: workspaceId, actorUserId, kind, limit, offset.
func ListAudit(deps AuditDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor := middleware.ActorFromContext(r.Context())
		if actor.UserID == "" {
			respondJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
			return
		}
		if !actor.IsAdmin() {
			respondJSON(w, http.StatusForbidden, envelope{Success: false, Error: "admin role required"})
			return
		}

		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		offset, _ := strconv.Atoi(q.Get("offset"))

		filter := service.AuditFilter{
			Kind:   q.Get("kind"),
			Limit:  limit,
			Offset: offset,
		}
		if v := q.Get("workspaceId"); v != "" {
			filter.WorkspaceID = &v
		}
		if v := q.Get("actorUserId"); v != "" {
			filter.ActorUserID = &v
		}

		entries, total, err := deps.Audit.List(r.Context(), filter)
		if err != nil {
			respondAppError(w, err)
			return
		}

		respondJSON(w, http.StatusOK, envelope{
			Success: true,
			Data: map[string]interface{}{
				"entries": entries,
				"total":   total,
				"limit":   filter.Limit,
				"offset":  filter.Offset,
			},
		})
	}
}
