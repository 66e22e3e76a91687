package handler

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/middleware"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// stubEmbedder implements service.QueryEmbedder.
type stubEmbedder struct {
	vec []float32
	err error
}

func (s *stubEmbedder) EmbedQuery(ctx context.Context, text string, taskType cache.TaskType) ([]float32, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.vec, nil
}

// stubSearcher implements service.VectorSearcher.
type stubSearcher struct {
	results []service.VectorSearchResult
	err     error
}

func (s *stubSearcher) SimilaritySearch(ctx context.Context, workspaceID string, queryVec []float32, topK int, threshold float64) ([]service.VectorSearchResult, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.results, nil
}

// stubGenAI implements service.GenAIClient.
type stubGenAI struct {
	answer string
	tokens []string
	err    error
}

func (s *stubGenAI) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	if s.err != nil {
		return "", s.err
	}
	return s.answer, nil
}

func (s *stubGenAI) GenerateStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan service.StreamToken, error) {
	out := make(chan service.StreamToken, len(s.tokens)+1)
	go func() {
		defer close(out)
		for _, tok := range s.tokens {
			out <- service.StreamToken{Text: tok}
		}
		if s.err != nil {
			out <- service.StreamToken{Err: s.err}
		}
	}()
	return out, nil
}

// stubConversationRepo implements service.ConversationRepository.
type stubConversationRepo struct {
	messages []model.Message
}

func (s *stubConversationRepo) Create(ctx context.Context, conv *model.Conversation) error { return nil }
func (s *stubConversationRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	s.messages = append(s.messages, *msg)
	return nil
}
func (s *stubConversationRepo) GetMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	return s.messages, nil
}
func (s *stubConversationRepo) Clear(ctx context.Context, conversationID string) error {
	s.messages = nil
	return nil
}

func chatDeps(searchResults []service.VectorSearchResult, answer string) (ChatDeps, *stubConversationRepo) {
	ctxBuilder := service.NewContextBuilderService(8000)
	retriever := service.NewRetrieverService(&stubEmbedder{vec: []float32{0.1, 0.2}}, &stubSearcher{results: searchResults}, ctxBuilder, 50, 20, 20, 0.5, 0.3)
	generator := service.NewGeneratorService(&stubGenAI{answer: answer, tokens: strings.Fields(answer)}, "v1")
	convRepo := &stubConversationRepo{}
	return ChatDeps{
		Retriever:     retriever,
		Generator:     generator,
		Conversations: service.NewConversationService(convRepo),
		Workspaces:    &mockWorkspaceRepo{ws: &model.Workspace{ID: "ws-1", OwnerUserID: "user-1", Visibility: model.VisibilityPrivate}},
		ACLs:          &mockACLRepo{},
	}, convRepo
}

func TestChat_Sync_EmptyContext(t *testing.T) {
	deps, _ := chatDeps(nil, "unused")
	h := Chat(deps)

	body := `{"workspaceId":"ws-1","query":"what is the policy?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	req = req.WithContext(middleware.WithActor(req.Context(), model.Actor{UserID: "user-1", Role: model.RoleEmployee}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", rec.Code, rec.Body.String())
	}

	var resp struct {
		Success bool         `json:"success"`
		Data    ChatResponse `json:"data"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if !resp.Success {
		t.Error("expected success=true")
	}
	if resp.Data.Answer == "" {
		t.Error("expected non-empty fallback answer")
	}
}

func TestChat_Sync_WithResults(t *testing.T) {
	results := []service.VectorSearchResult{
		{Chunk: model.Chunk{ID: "c1", DocumentID: "d1", Content: "relevant text"}, DocumentName: "doc.pdf", Score: 0.9},
	}
	deps, convRepo := chatDeps(results, "the policy allows remote work")
	h := Chat(deps)

	body := `{"workspaceId":"ws-1","conversationId":"conv-1","query":"what is the remote work policy?"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	req = req.WithContext(middleware.WithActor(req.Context(), model.Actor{UserID: "user-1", Role: model.RoleEmployee}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200. body: %s", rec.Code, rec.Body.String())
	}
	if len(convRepo.messages) != 2 {
		t.Errorf("messages recorded = %d, want 2 (user + assistant)", len(convRepo.messages))
	}
}

func TestChat_MissingQuery(t *testing.T) {
	deps, _ := chatDeps(nil, "")
	h := Chat(deps)

	body := `{"workspaceId":"ws-1"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	req = req.WithContext(middleware.WithActor(req.Context(), model.Actor{UserID: "user-1", Role: model.RoleEmployee}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChat_Unauthorized(t *testing.T) {
	deps, _ := chatDeps(nil, "")
	h := Chat(deps)

	body := `{"workspaceId":"ws-1","query":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestChat_Forbidden(t *testing.T) {
	deps, _ := chatDeps(nil, "")
	deps.Workspaces = &mockWorkspaceRepo{ws: &model.Workspace{ID: "ws-1", OwnerUserID: "owner", Visibility: model.VisibilityPrivate}}
	h := Chat(deps)

	body := `{"workspaceId":"ws-1","query":"hi"}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	req = req.WithContext(middleware.WithActor(req.Context(), model.Actor{UserID: "outsider", Role: model.RoleEmployee}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestChat_Stream(t *testing.T) {
	results := []service.VectorSearchResult{
		{Chunk: model.Chunk{ID: "c1", DocumentID: "d1", Content: "relevant text"}, DocumentName: "doc.pdf", Score: 0.9},
	}
	deps, _ := chatDeps(results, "hello world")
	h := Chat(deps)

	body := `{"workspaceId":"ws-1","query":"what is the remote work policy?","stream":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/chat", bytes.NewBufferString(body))
	req = req.WithContext(middleware.WithActor(req.Context(), model.Actor{UserID: "user-1", Role: model.RoleEmployee}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	scanner := bufio.NewScanner(rec.Body)
	var events []string
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "event: ") {
			events = append(events, strings.TrimPrefix(line, "event: "))
		}
	}
	if len(events) == 0 {
		t.Fatal("expected at least one SSE event")
	}
	if events[0] != "start" {
		t.Errorf("first event = %q, want start", events[0])
	}
	if events[len(events)-1] != "end" {
		t.Errorf("last event = %q, want end", events[len(events)-1])
	}
}
