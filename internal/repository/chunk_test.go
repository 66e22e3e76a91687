package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

func setupChunkRepo(t *testing.T) (*ChunkRepo, *DocumentRepo, *WorkspaceRepo, func()) {
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

	return NewChunkRepo(pool), NewDocumentRepo(pool), NewWorkspaceRepo(pool), func() { pool.Close() }
}

func createTestDocForChunks(t *testing.T, docRepo *DocumentRepo, workspaceID string) *model.Document {
	t.Helper()
	doc := newTestDoc(workspaceID, "test-user-chunk")
	if err := docRepo.Create(context.Background(), doc); err != nil {
		t.Fatalf("create test document: %v", err)
	}
	return doc
}

func randomVector(seed float32) []float32 {
	v := make([]float32, model.EmbeddingDimensions)
	for i := range v {
		v[i] = seed
	}
	return v
}

func TestChunkRepo_BulkInsert(t *testing.T) {
	repo, docRepo, wsRepo, cleanup := setupChunkRepo(t)
	defer cleanup()

	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "test-user-chunk")
	doc := createTestDocForChunks(t, docRepo, ws.ID)

	chunks := []service.Chunk{
		{Content: "first chunk", Index: 0, DocumentID: doc.ID},
		{Content: "second chunk", Index: 1, DocumentID: doc.ID},
	}
	vectors := [][]float32{randomVector(0.1), randomVector(0.2)}

	if err := repo.BulkInsert(ctx, ws.ID, chunks, vectors); err != nil {
		t.Fatalf("BulkInsert() error: %v", err)
	}

	count, err := repo.CountByDocumentID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("CountByDocumentID() error: %v", err)
	}
	if count != 2 {
		t.Errorf("count = %d, want 2", count)
	}
}

func TestChunkRepo_BulkInsert_Empty(t *testing.T) {
	repo, _, _, cleanup := setupChunkRepo(t)
	defer cleanup()

	if err := repo.BulkInsert(context.Background(), "ws", nil, nil); err != nil {
		t.Fatalf("BulkInsert() with empty chunks should be a no-op, got error: %v", err)
	}
}

func TestChunkRepo_BulkInsert_MismatchedLengths(t *testing.T) {
	repo, docRepo, wsRepo, cleanup := setupChunkRepo(t)
	defer cleanup()

	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "test-user-chunk")
	doc := createTestDocForChunks(t, docRepo, ws.ID)

	chunks := []service.Chunk{{Content: "only chunk", Index: 0, DocumentID: doc.ID}}
	vectors := [][]float32{randomVector(0.1), randomVector(0.2)}

	if err := repo.BulkInsert(ctx, ws.ID, chunks, vectors); err == nil {
		t.Fatal("expected error for mismatched chunk/vector counts")
	}
}

func TestChunkRepo_DeleteByDocumentID(t *testing.T) {
	repo, docRepo, wsRepo, cleanup := setupChunkRepo(t)
	defer cleanup()

	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "test-user-chunk")
	doc := createTestDocForChunks(t, docRepo, ws.ID)

	chunks := []service.Chunk{{Content: "doomed chunk", Index: 0, DocumentID: doc.ID}}
	vectors := [][]float32{randomVector(0.1)}
	if err := repo.BulkInsert(ctx, ws.ID, chunks, vectors); err != nil {
		t.Fatalf("BulkInsert() error: %v", err)
	}

	if err := repo.DeleteByDocumentID(ctx, doc.ID); err != nil {
		t.Fatalf("DeleteByDocumentID() error: %v", err)
	}

	count, err := repo.CountByDocumentID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("CountByDocumentID() error: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0 after delete", count)
	}
}

func TestChunkRepo_CountByDocumentID_NoChunks(t *testing.T) {
	repo, docRepo, wsRepo, cleanup := setupChunkRepo(t)
	defer cleanup()

	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "test-user-chunk")
	doc := createTestDocForChunks(t, docRepo, ws.ID)

	count, err := repo.CountByDocumentID(ctx, doc.ID)
	if err != nil {
		t.Fatalf("CountByDocumentID() error: %v", err)
	}
	if count != 0 {
		t.Errorf("count = %d, want 0", count)
	}
}

func TestChunkRepo_SimilaritySearch(t *testing.T) {
	repo, docRepo, wsRepo, cleanup := setupChunkRepo(t)
	defer cleanup()

	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "test-user-chunk")
	doc := createTestDocForChunks(t, docRepo, ws.ID)

	chunks := []service.Chunk{
		{Content: "closely related content", Index: 0, DocumentID: doc.ID},
		{Content: "unrelated filler content", Index: 1, DocumentID: doc.ID},
	}
	vectors := [][]float32{randomVector(0.5), randomVector(-0.5)}
	if err := repo.BulkInsert(ctx, ws.ID, chunks, vectors); err != nil {
		t.Fatalf("BulkInsert() error: %v", err)
	}

	results, err := repo.SimilaritySearch(ctx, ws.ID, randomVector(0.5), 10, -1.0)
	if err != nil {
		t.Fatalf("SimilaritySearch() error: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results count = %d, want 2", len(results))
	}
	if results[0].Chunk.Content != "closely related content" {
		t.Errorf("top result = %q, want the closer vector match first", results[0].Chunk.Content)
	}
	if results[0].DocumentName != doc.Title {
		t.Errorf("DocumentName = %q, want %q", results[0].DocumentName, doc.Title)
	}
}

func TestChunkRepo_SimilaritySearch_ThresholdFilters(t *testing.T) {
	repo, docRepo, wsRepo, cleanup := setupChunkRepo(t)
	defer cleanup()

	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "test-user-chunk")
	doc := createTestDocForChunks(t, docRepo, ws.ID)

	chunks := []service.Chunk{{Content: "far vector", Index: 0, DocumentID: doc.ID}}
	vectors := [][]float32{randomVector(-1.0)}
	if err := repo.BulkInsert(ctx, ws.ID, chunks, vectors); err != nil {
		t.Fatalf("BulkInsert() error: %v", err)
	}

	results, err := repo.SimilaritySearch(ctx, ws.ID, randomVector(1.0), 10, 0.99)
	if err != nil {
		t.Fatalf("SimilaritySearch() error: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("results count = %d, want 0 (below threshold)", len(results))
	}
}

func TestChunkRepo_SimilaritySearch_ScopedToWorkspace(t *testing.T) {
	repo, docRepo, wsRepo, cleanup := setupChunkRepo(t)
	defer cleanup()

	ctx := context.Background()
	wsA := createTestWorkspace(t, wsRepo, "test-user-chunk-a")
	wsB := createTestWorkspace(t, wsRepo, "test-user-chunk-b")
	docA := createTestDocForChunks(t, docRepo, wsA.ID)
	docB := createTestDocForChunks(t, docRepo, wsB.ID)

	if err := repo.BulkInsert(ctx, wsA.ID, []service.Chunk{{Content: "workspace a content", Index: 0, DocumentID: docA.ID}}, [][]float32{randomVector(0.3)}); err != nil {
		t.Fatalf("BulkInsert() error: %v", err)
	}
	if err := repo.BulkInsert(ctx, wsB.ID, []service.Chunk{{Content: "workspace b content", Index: 0, DocumentID: docB.ID}}, [][]float32{randomVector(0.3)}); err != nil {
		t.Fatalf("BulkInsert() error: %v", err)
	}

	results, err := repo.SimilaritySearch(ctx, wsA.ID, randomVector(0.3), 10, -1.0)
	if err != nil {
		t.Fatalf("SimilaritySearch() error: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("results count = %d, want 1 (scoped to workspace A)", len(results))
	}
	if results[0].Chunk.WorkspaceID != wsA.ID {
		t.Errorf("WorkspaceID = %q, want %q", results[0].Chunk.WorkspaceID, wsA.ID)
	}
}
