package repository

import (
	"context"
	"encoding/json"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

func setupDocRepo(t *testing.T) (*DocumentRepo, *WorkspaceRepo, func()) {
	t.Helper()
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, dbURL, 5)
	if err != nil {
		t.Fatalf("NewPool: %v", err)
	}

	migrationSQL, err := os.ReadFile("../../migrations/001_initial_schema.up.sql")
	if err != nil {
		pool.Close()
		t.Fatalf("read migration: %v", err)
	}

	for attempt := 0; attempt < 5; attempt++ {
		_, err = pool.Exec(ctx, string(migrationSQL))
		if err == nil {
			break
		}
		time.Sleep(time.Duration(attempt+1) * time.Second)
	}
	if err != nil {
		pool.Close()
		t.Fatalf("setup schema after retries: %v", err)
	}

	return NewDocumentRepo(pool), NewWorkspaceRepo(pool), func() { pool.Close() }
}

func createTestWorkspace(t *testing.T, wsRepo *WorkspaceRepo, ownerUserID string) *model.Workspace {
	t.Helper()
	ws := &model.Workspace{
		ID:          uuid.New().String(),
		Name:        "ws-" + uuid.New().String(),
		OwnerUserID: ownerUserID,
		Visibility:  model.VisibilityPrivate,
		CreatedAt:   time.Now().UTC(),
		UpdatedAt:   time.Now().UTC(),
	}
	if err := wsRepo.Create(context.Background(), ws); err != nil {
		t.Fatalf("create test workspace: %v", err)
	}
	return ws
}

func newTestDoc(workspaceID, uploaderUserID string) *model.Document {
	id := uuid.New().String()
	storageKey := "uploads/" + workspaceID + "/" + id + "/test.pdf"
	fileName := "test.pdf"
	mimeType := "application/pdf"
	return &model.Document{
		ID:             id,
		WorkspaceID:    workspaceID,
		Title:          "test",
		FileName:       &fileName,
		MimeType:       &mimeType,
		StorageKey:     &storageKey,
		Status:         model.DocumentPending,
		UploaderUserID: uploaderUserID,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}
}

func TestDocumentRepo_CreateAndGetByID(t *testing.T) {
	repo, wsRepo, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "test-user-doc")
	doc := newTestDoc(ws.ID, "test-user-doc")

	if err := repo.Create(ctx, doc); err != nil {
		t.Fatalf("Create() error: %v", err)
	}

	got, err := repo.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}

	if got.ID != doc.ID {
		t.Errorf("ID = %q, want %q", got.ID, doc.ID)
	}
	if got.WorkspaceID != ws.ID {
		t.Errorf("WorkspaceID = %q, want %q", got.WorkspaceID, ws.ID)
	}
	if got.Status != model.DocumentPending {
		t.Errorf("Status = %q, want %q", got.Status, model.DocumentPending)
	}
}

func TestDocumentRepo_ListByWorkspace(t *testing.T) {
	repo, wsRepo, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "test-user-doc")

	for i := 0; i < 3; i++ {
		doc := newTestDoc(ws.ID, "test-user-doc")
		if err := repo.Create(ctx, doc); err != nil {
			t.Fatalf("Create() error: %v", err)
		}
	}

	docs, total, err := repo.ListByWorkspace(ctx, ws.ID, service.ListOpts{Limit: 10, Offset: 0})
	if err != nil {
		t.Fatalf("ListByWorkspace() error: %v", err)
	}

	if total != 3 {
		t.Errorf("total = %d, want 3", total)
	}
	if len(docs) != 3 {
		t.Errorf("docs count = %d, want 3", len(docs))
	}
}

func TestDocumentRepo_SoftDelete(t *testing.T) {
	repo, wsRepo, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "test-user-doc")
	doc := newTestDoc(ws.ID, "test-user-doc")
	repo.Create(ctx, doc)

	if err := repo.SoftDelete(ctx, doc.ID); err != nil {
		t.Fatalf("SoftDelete() error: %v", err)
	}

	got, err := repo.GetByID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetByID() error: %v", err)
	}
	if got.DeletedAt == nil {
		t.Error("DeletedAt should be set after soft delete")
	}

	docs, _, err := repo.ListByWorkspace(ctx, ws.ID, service.ListOpts{Limit: 10})
	if err != nil {
		t.Fatalf("ListByWorkspace() error: %v", err)
	}
	for _, d := range docs {
		if d.ID == doc.ID {
			t.Error("soft-deleted document should not appear in listing")
		}
	}
}

func TestDocumentRepo_ClaimForProcessing(t *testing.T) {
	repo, wsRepo, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "test-user-doc")
	doc := newTestDoc(ws.ID, "test-user-doc")
	repo.Create(ctx, doc)

	claimed, err := repo.ClaimForProcessing(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ClaimForProcessing() error: %v", err)
	}
	if !claimed {
		t.Fatal("expected first claim to succeed")
	}

	got, _ := repo.GetByID(ctx, doc.ID)
	if got.Status != model.DocumentProcessing {
		t.Errorf("Status = %q, want %q", got.Status, model.DocumentProcessing)
	}

	// A second claim attempt on an already-PROCESSING document is a no-op.
	claimedAgain, err := repo.ClaimForProcessing(ctx, doc.ID)
	if err != nil {
		t.Fatalf("ClaimForProcessing() second call error: %v", err)
	}
	if claimedAgain {
		t.Error("expected second claim to fail (document already PROCESSING)")
	}
}

func TestDocumentRepo_UpdateStatus(t *testing.T) {
	repo, wsRepo, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "test-user-doc")
	doc := newTestDoc(ws.ID, "test-user-doc")
	repo.Create(ctx, doc)

	errMsg := "extraction failed"
	if err := repo.UpdateStatus(ctx, doc.ID, model.DocumentFailed, &errMsg); err != nil {
		t.Fatalf("UpdateStatus() error: %v", err)
	}

	got, _ := repo.GetByID(ctx, doc.ID)
	if got.Status != model.DocumentFailed {
		t.Errorf("Status = %q, want %q", got.Status, model.DocumentFailed)
	}
	if got.ErrorMessage == nil || *got.ErrorMessage != errMsg {
		t.Errorf("ErrorMessage = %v, want %q", got.ErrorMessage, errMsg)
	}
}

func TestDocumentRepo_UpdateChunkCount(t *testing.T) {
	repo, wsRepo, cleanup := setupDocRepo(t)
	defer cleanup()

	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "test-user-doc")
	doc := newTestDoc(ws.ID, "test-user-doc")
	repo.Create(ctx, doc)

	if err := repo.UpdateChunkCount(ctx, doc.ID, 42); err != nil {
		t.Fatalf("UpdateChunkCount() error: %v", err)
	}

	got, _ := repo.GetByID(ctx, doc.ID)
	var meta struct {
		ChunkCount int `json:"chunk_count"`
	}
	if err := json.Unmarshal(got.Metadata, &meta); err != nil {
		t.Fatalf("unmarshal metadata: %v", err)
	}
	if meta.ChunkCount != 42 {
		t.Errorf("chunk_count = %d, want 42", meta.ChunkCount)
	}
}
