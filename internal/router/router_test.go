package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"

	"github.com/connexus-ai/ragbox-backend/internal/handler"
	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// mockDB implements handler.DBPinger for testing.
type mockDB struct {
	err error
}

func (m *mockDB) Ping(ctx context.Context) error {
	return m.err
}

// mockAuthClient implements service.AuthClient for testing.
type mockAuthClient struct {
	uid string
	err error
}

func (m *mockAuthClient) VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &auth.Token{UID: m.uid}, nil
}

// mockStorage implements service.StorageClient for testing.
type mockStorage struct{}

func (m *mockStorage) SignedURL(bucket, object string, opts *service.SignedURLOptions) (string, error) {
	return "https://storage.example.com/" + bucket + "/" + object, nil
}

// mockDocRepo implements service.DocumentRepository for testing.
type mockDocRepo struct {
	doc *model.Document
}

func (m *mockDocRepo) Create(ctx context.Context, doc *model.Document) error { return nil }

func (m *mockDocRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	if m.doc == nil {
		return nil, fmt.Errorf("not found")
	}
	return m.doc, nil
}

func (m *mockDocRepo) ListByWorkspace(ctx context.Context, workspaceID string, opts service.ListOpts) ([]model.Document, int, error) {
	return []model.Document{}, 0, nil
}
func (m *mockDocRepo) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, errMsg *string) error {
	return nil
}
func (m *mockDocRepo) UpdateChunkCount(ctx context.Context, id string, count int) error { return nil }
func (m *mockDocRepo) SoftDelete(ctx context.Context, id string) error                  { return nil }
func (m *mockDocRepo) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	return true, nil
}

// mockChunkDeleter implements service.ChunkDeleter for testing.
type mockChunkDeleter struct{}

func (m *mockChunkDeleter) DeleteByDocumentID(ctx context.Context, documentID string) error {
	return nil
}

// mockQueue implements queue.Enqueuer for testing.
type mockQueue struct{}

func (m *mockQueue) Enqueue(ctx context.Context, documentID string) error { return nil }

// mockWorkspaceStore implements handler.WorkspaceStore for testing.
type mockWorkspaceStore struct {
	ws *model.Workspace
}

func (m *mockWorkspaceStore) GetByID(ctx context.Context, id string) (*model.Workspace, error) {
	if m.ws == nil {
		return nil, fmt.Errorf("not found")
	}
	return m.ws, nil
}
func (m *mockWorkspaceStore) Create(ctx context.Context, ws *model.Workspace) error { return nil }
func (m *mockWorkspaceStore) ListForActor(ctx context.Context, actorUserID string, isAdmin bool, limit, offset int) ([]model.Workspace, error) {
	return nil, nil
}
func (m *mockWorkspaceStore) UpdateVisibility(ctx context.Context, id string, visibility model.Visibility) error {
	return nil
}
func (m *mockWorkspaceStore) Archive(ctx context.Context, id string) error { return nil }

// mockACLStore implements handler.ACLStore for testing.
type mockACLStore struct{}

func (m *mockACLStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]model.WorkspaceACL, error) {
	return nil, nil
}
func (m *mockACLStore) Grant(ctx context.Context, workspaceID, userID string, access model.ACLAccess) error {
	return nil
}
func (m *mockACLStore) Revoke(ctx context.Context, workspaceID, userID string) error { return nil }

// mockGenAI implements service.GenAIClient for testing.
type mockGenAI struct{}

func (m *mockGenAI) GenerateContent(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	return "answer", nil
}
func (m *mockGenAI) GenerateStream(ctx context.Context, systemPrompt, userPrompt string) (<-chan service.StreamToken, error) {
	ch := make(chan service.StreamToken)
	close(ch)
	return ch, nil
}

// mockConversationRepo implements service.ConversationRepository for testing.
type mockConversationRepo struct{}

func (m *mockConversationRepo) Create(ctx context.Context, conv *model.Conversation) error { return nil }
func (m *mockConversationRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	return nil
}
func (m *mockConversationRepo) GetMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	return nil, nil
}
func (m *mockConversationRepo) Clear(ctx context.Context, conversationID string) error { return nil }

// mockFeedbackRepo implements service.FeedbackRepository for testing.
type mockFeedbackRepo struct{}

func (m *mockFeedbackRepo) Upsert(ctx context.Context, vote *model.FeedbackVote) error { return nil }
func (m *mockFeedbackRepo) GetForMessage(ctx context.Context, messageID string) ([]model.FeedbackVote, error) {
	return nil, nil
}

// mockAuditRepo implements service.AuditRepository for testing.
type mockAuditRepo struct{}

func (m *mockAuditRepo) Create(ctx context.Context, entry *model.AuditEvent) error { return nil }
func (m *mockAuditRepo) List(ctx context.Context, f service.AuditFilter) ([]model.AuditEvent, int, error) {
	return nil, 0, nil
}

func newTestRouter(authErr error) http.Handler {
	client := &mockAuthClient{uid: "test-user", err: authErr}

	ws := &model.Workspace{ID: "ws-1", OwnerUserID: "test-user", Visibility: model.VisibilityPrivate}
	docRepo := &mockDocRepo{}

	docService := service.NewDocumentService(&mockStorage{}, docRepo, "test-bucket", time.Hour)
	pipelineSvc := service.NewPipelineService(docRepo, &mockChunkDeleter{}, nil, nil, nil, nil, nil)

	ctxBuilder := service.NewContextBuilderService(8000)
	retriever := service.NewRetrieverService(nil, nil, ctxBuilder, 50, 20, 20, 0.5, 0.3)
	generator := service.NewGeneratorService(&mockGenAI{}, "v1")

	deps := &Dependencies{
		DB:          &mockDB{},
		AuthService: service.NewAuthService(client),
		FrontendURL: "http://localhost:3000",
		Version:     "0.2.0",
		Documents: handler.DocumentDeps{
			Documents:  docService,
			Pipeline:   pipelineSvc,
			Chunks:     &mockChunkDeleter{},
			Queue:      &mockQueue{},
			Workspaces: &mockWorkspaceStore{ws: ws},
			ACLs:       &mockACLStore{},
		},
		Workspaces: handler.WorkspaceDeps{
			Workspaces: &mockWorkspaceStore{ws: ws},
			ACLs:       &mockACLStore{},
		},
		Chat: handler.ChatDeps{
			Retriever:     retriever,
			Generator:     generator,
			Conversations: service.NewConversationService(&mockConversationRepo{}),
			Workspaces:    &mockWorkspaceStore{ws: ws},
			ACLs:          &mockACLStore{},
		},
		Conversations: handler.ConversationDeps{
			Conversations: service.NewConversationService(&mockConversationRepo{}),
			Workspaces:    &mockWorkspaceStore{ws: ws},
			ACLs:          &mockACLStore{},
		},
		Feedback: handler.FeedbackDeps{
			Feedback: service.NewFeedbackService(&mockFeedbackRepo{}),
		},
		Audit: handler.AuditDeps{
			Audit: service.NewAuditService(&mockAuditRepo{}),
		},
	}
	return New(deps)
}

func TestHealth_IsPublic(t *testing.T) {
	r := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["status"] != "ok" {
		t.Errorf("status = %q, want %q", body["status"], "ok")
	}
	if body["version"] != "0.2.0" {
		t.Errorf("version = %q, want %q", body["version"], "0.2.0")
	}
}

func TestHealth_DBDown(t *testing.T) {
	r := newTestRouter(nil)
	// newTestRouter always wires a healthy DB; build a degraded one directly.
	client := &mockAuthClient{uid: "test-user"}
	ws := &model.Workspace{ID: "ws-1", OwnerUserID: "test-user"}
	deps := &Dependencies{
		DB:          &mockDB{err: fmt.Errorf("connection refused")},
		AuthService: service.NewAuthService(client),
		FrontendURL: "http://localhost:3000",
		Documents: handler.DocumentDeps{
			Workspaces: &mockWorkspaceStore{ws: ws},
			ACLs:       &mockACLStore{},
		},
	}
	r = New(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusServiceUnavailable)
	}

	var body map[string]string
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["database"] != "disconnected" {
		t.Errorf("database = %q, want %q", body["database"], "disconnected")
	}
}

func TestDocuments_RequiresAuth(t *testing.T) {
	r := newTestRouter(fmt.Errorf("invalid token"))

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/ws-1/documents", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestDocuments_WithAuth(t *testing.T) {
	r := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/ws-1/documents", nil)
	req.Header.Set("Authorization", "Bearer valid-token")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestChat_RequiresAuth(t *testing.T) {
	r := newTestRouter(fmt.Errorf("invalid token"))

	req := httptest.NewRequest(http.MethodPost, "/api/chat", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestUnknownRoute_Returns404(t *testing.T) {
	r := newTestRouter(nil)

	req := httptest.NewRequest(http.MethodGet, "/api/nonexistent", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}

	var body map[string]interface{}
	json.Unmarshal(rec.Body.Bytes(), &body)
	if body["success"] != false {
		t.Error("expected success=false for 404")
	}
}

func TestAudit_RequiresAuth(t *testing.T) {
	r := newTestRouter(fmt.Errorf("invalid token"))

	req := httptest.NewRequest(http.MethodGet, "/api/audit", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestInternalAuth_Bypasses_Firebase(t *testing.T) {
	client := &mockAuthClient{uid: "test-user", err: fmt.Errorf("firebase should not be called")}
	ws := &model.Workspace{ID: "ws-1", OwnerUserID: "internal-user-42", Visibility: model.VisibilityPrivate}
	docRepo := &mockDocRepo{}
	deps := &Dependencies{
		DB:                 &mockDB{},
		AuthService:        service.NewAuthService(client),
		FrontendURL:        "http://localhost:3000",
		InternalAuthSecret: "test-secret-123",
		Documents: handler.DocumentDeps{
			Documents:  service.NewDocumentService(&mockStorage{}, docRepo, "test-bucket", time.Hour),
			Pipeline:   service.NewPipelineService(docRepo, &mockChunkDeleter{}, nil, nil, nil, nil, nil),
			Chunks:     &mockChunkDeleter{},
			Queue:      &mockQueue{},
			Workspaces: &mockWorkspaceStore{ws: ws},
			ACLs:       &mockACLStore{},
		},
	}
	r := New(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/ws-1/documents", nil)
	req.Header.Set("X-Internal-Auth", "test-secret-123")
	req.Header.Set("X-User-ID", "internal-user-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusOK)
	}
}

func TestInternalAuth_BadSecret_Returns401(t *testing.T) {
	client := &mockAuthClient{uid: "test-user", err: fmt.Errorf("firebase should not be called")}
	deps := &Dependencies{
		DB:                 &mockDB{},
		AuthService:        service.NewAuthService(client),
		FrontendURL:        "http://localhost:3000",
		InternalAuthSecret: "correct-secret",
		Documents: handler.DocumentDeps{
			Workspaces: &mockWorkspaceStore{},
			ACLs:       &mockACLStore{},
		},
	}
	r := New(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/workspaces/ws-1/documents", nil)
	req.Header.Set("X-Internal-Auth", "wrong-secret")
	req.Header.Set("X-User-ID", "internal-user-42")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}
