package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

const maxQueryLength = 10000

// ChatDeps bundles the dependencies the chat handler needs: the retrieval
// and generation services, conversation persistence, and enough of the
// workspace layer to resolve a read capability per request.
type ChatDeps struct {
	Retriever     *service.RetrieverService
	Generator     *service.GeneratorService
	Conversations *service.ConversationService
	Workspaces    WorkspaceRepository
	ACLs          ACLRepository
}

// ChatRequest is the request body for POST /api/chat.
type ChatRequest struct {
	WorkspaceID    string `json:"workspaceId"`
	ConversationID string `json:"conversationId"`
	Query          string `json:"query"`
	TopK           int    `json:"topK"`
	Hybrid         bool   `json:"hybrid"`
	FilterMode     string `json:"filterMode"`
	Stream         bool   `json:"stream"`
}

// ChatResponse is the sync (non-streaming) answer payload.
type ChatResponse struct {
	ConversationID string                    `json:"conversationId"`
	Answer         string                    `json:"answer"`
	Citations      []service.ContextCitation `json:"citations"`
	LatencyMs      int64                     `json:"latencyMs"`
}

func (deps ChatDeps) retrieve(r *http.Request, req ChatRequest) (*service.RetrievalResult, error) {
	return deps.Retriever.Retrieve(r.Context(), req.WorkspaceID, req.Query, service.RetrieverOptions{
		TopK:       req.TopK,
		Hybrid:     req.Hybrid,
		FilterMode: service.FilterMode(req.FilterMode),
	})
}

// Chat returns a handler for POST /api/chat. Answers synchronously unless
// the request sets stream=true, in which case it switches to an SSE event
// sequence (see chatStream).
func Chat(deps ChatDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserIDFromContext(r.Context())
		if userID == "" {
			respondJSON(w, http.StatusUnauthorized, envelope{Success: false, Error: "unauthorized"})
			return
		}

		var req ChatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "invalid request body"})
			return
		}
		if req.WorkspaceID == "" {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "workspaceId is required"})
			return
		}
		if req.Query == "" {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "query is required"})
			return
		}
		if len(req.Query) > maxQueryLength {
			respondJSON(w, http.StatusBadRequest, envelope{Success: false, Error: "query exceeds 10000 character limit"})
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

		conversationID := req.ConversationID
		if conversationID != "" {
			if _, err := deps.Conversations.AppendUserMessage(r.Context(), conversationID, req.Query); err != nil {
				slog.Warn("chat: failed to record user message", "conversation_id", conversationID, "error", err)
			}
		}

		if req.Stream {
			chatStream(w, r, deps, req, conversationID)
			return
		}

		result, err := deps.retrieve(r, req)
		if err != nil {
			respondAppError(w, err)
			return
		}

		generated, err := deps.Generator.Generate(r.Context(), req.Query, result.Context)
		if err != nil {
			respondAppError(w, err)
			return
		}

		if conversationID != "" {
			if _, err := deps.Conversations.AppendAssistantMessage(r.Context(), conversationID, generated.Answer, generated.Citations); err != nil {
				slog.Warn("chat: failed to record assistant message", "conversation_id", conversationID, "error", err)
			}
		}

		respondJSON(w, http.StatusOK, envelope{Success: true, Data: ChatResponse{
			ConversationID: conversationID,
			Answer:         generated.Answer,
			Citations:      generated.Citations,
			LatencyMs:      generated.LatencyMs,
		}})
	}
}

// chatStream runs the retrieval+generation pipeline and relays the
// generator's typed event sequence as SSE events: start, token*, end, or
// error. The full answer is accumulated so the conversation record reflects
// exactly what the client rendered.
func chatStream(w http.ResponseWriter, r *http.Request, deps ChatDeps, req ChatRequest, conversationID string) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	result, err := deps.retrieve(r, req)
	if err != nil {
		sendEvent(w, flusher, "error", fmt.Sprintf(`{"error":%q}`, err.Error()))
		return
	}

	var answer string
	events := deps.Generator.GenerateStream(r.Context(), req.Query, result.Context)
	for ev := range events {
		switch ev.Kind {
		case service.EventStart:
			payload, _ := json.Marshal(map[string]interface{}{"citations": ev.Citations})
			sendEvent(w, flusher, "start", string(payload))
		case service.EventToken:
			answer += ev.Token
			payload, _ := json.Marshal(map[string]string{"token": ev.Token})
			sendEvent(w, flusher, "token", string(payload))
		case service.EventEnd:
			payload, _ := json.Marshal(map[string]int64{"latencyMs": ev.LatencyMs})
			sendEvent(w, flusher, "end", string(payload))
		case service.EventError:
			payload, _ := json.Marshal(map[string]string{"error": ev.Err.Error()})
			sendEvent(w, flusher, "error", string(payload))
		}
	}

	if conversationID != "" && answer != "" {
		if _, err := deps.Conversations.AppendAssistantMessage(r.Context(), conversationID, answer, result.Context.Citations); err != nil {
			slog.Warn("chat: failed to record streamed assistant message", "conversation_id", conversationID, "error", err)
		}
	}
}

// sendEvent writes a single SSE event in the standard format.
func sendEvent(w http.ResponseWriter, f http.Flusher, event, data string) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
	f.Flush()
}
