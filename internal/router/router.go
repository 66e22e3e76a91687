package router

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// Dependencies holds all injected services needed by the router.
type Dependencies struct {
	DB                 handler.DBPinger
	AuthService        *service.AuthService
	FrontendURL        string
	Version            string
	Metrics            *middleware.Metrics
	MetricsReg         *prometheus.Registry
	InternalAuthSecret string

	Documents     handler.DocumentDeps
	Workspaces    handler.WorkspaceDeps
	Chat          handler.ChatDeps
	Conversations handler.ConversationDeps
	Feedback      handler.FeedbackDeps
	Audit         handler.AuditDeps

	// Rate limiters (nil = no rate limiting)
	GeneralRateLimiter *middleware.RateLimiter
	ChatRateLimiter    *middleware.RateLimiter
}

// New creates and configures the Chi router with all routes.
func New(deps *Dependencies) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(deps.FrontendURL))
	if deps.Metrics != nil {
		r.Use(middleware.Monitoring(deps.Metrics))
	}

	// Public routes (no auth)
	r.Get("/api/health", handler.Health(deps.DB, deps.Version))
	if deps.MetricsReg != nil {
		r.Handle("/metrics", middleware.MetricsHandler(deps.MetricsReg))
	}

	// Protected routes (require internal service auth or Firebase auth)
	r.Group(func(r chi.Router) {
		r.Use(middleware.InternalOrFirebaseAuth(deps.AuthService, deps.InternalAuthSecret))

		// General rate limit for all authenticated endpoints
		if deps.GeneralRateLimiter != nil {
			r.Use(middleware.RateLimit(deps.GeneralRateLimiter))
		}

		// Non-SSE routes get a 30s write timeout to prevent slow-read attacks.
		// Chat (SSE) is registered separately below without the timeout.
		timeout30s := middleware.Timeout(30 * time.Second)

		// Workspaces
		r.With(timeout30s).Post("/api/workspaces", handler.CreateWorkspace(deps.Workspaces))
		r.With(timeout30s).Get("/api/workspaces", handler.ListWorkspaces(deps.Workspaces))
		r.With(timeout30s).Patch("/api/workspaces/{id}/visibility", handler.UpdateWorkspaceVisibility(deps.Workspaces))
		r.With(timeout30s).Post("/api/workspaces/{id}/archive", handler.ArchiveWorkspace(deps.Workspaces))
		r.With(timeout30s).Post("/api/workspaces/{id}/acl", handler.GrantWorkspaceAccess(deps.Workspaces))
		r.With(timeout30s).Delete("/api/workspaces/{id}/acl/{userId}", handler.RevokeWorkspaceAccess(deps.Workspaces))

		// Documents
		r.With(timeout30s).Post("/api/workspaces/{workspaceId}/documents", handler.UploadDocument(deps.Documents))
		r.With(timeout30s).Get("/api/workspaces/{workspaceId}/documents", handler.ListDocuments(deps.Documents))
		r.With(timeout30s).Get("/api/documents/{id}", handler.GetDocument(deps.Documents))
		r.With(timeout30s).Delete("/api/documents/{id}", handler.DeleteDocument(deps.Documents))
		r.With(timeout30s).Post("/api/documents/{id}/reprocess", handler.ReprocessDocument(deps.Documents))
		// Ingest triggers async queue processing; keep a short timeout since it
		// only needs to enqueue and return.
		r.With(timeout30s).Post("/api/documents/{id}/ingest", handler.ConfirmIngest(deps.Documents))

		// Conversations
		r.With(timeout30s).Post("/api/conversations", handler.StartConversation(deps.Conversations))
		r.With(timeout30s).Get("/api/conversations/{id}/messages", handler.ConversationHistory(deps.Conversations))
		r.With(timeout30s).Delete("/api/conversations/{id}/messages", handler.ClearConversation(deps.Conversations))

		// Feedback
		r.With(timeout30s).Post("/api/messages/{id}/feedback", handler.VoteMessage(deps.Feedback))
		r.With(timeout30s).Get("/api/messages/{id}/feedback", handler.ListMessageFeedback(deps.Feedback))

		// Chat — SSE streaming, NO write timeout. Stricter rate limit applies
		// when configured.
		if deps.ChatRateLimiter != nil {
			r.With(middleware.RateLimit(deps.ChatRateLimiter)).Post("/api/chat", handler.Chat(deps.Chat))
		} else {
			r.Post("/api/chat", handler.Chat(deps.Chat))
		}

		// Audit — admin only, enforced inside the handler.
		r.With(timeout30s).Get("/api/audit", handler.ListAudit(deps.Audit))
	})

	// 404 fallback
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"success": false,
			"error":   "route not found",
		})
	})

	return r
}
