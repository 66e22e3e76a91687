package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

func setupFeedbackRepo(t *testing.T) (*FeedbackRepo, *ConversationRepo, *WorkspaceRepo, func()) {
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

	return NewFeedbackRepo(pool), NewConversationRepo(pool), NewWorkspaceRepo(pool), func() { pool.Close() }
}

func createTestMessage(t *testing.T, convRepo *ConversationRepo, wsRepo *WorkspaceRepo) *model.Message {
	t.Helper()
	ctx := context.Background()
	ws := createTestWorkspace(t, wsRepo, "feedback-user")
	conv := &model.Conversation{ID: uuid.New().String(), WorkspaceID: ws.ID, OwnerUserID: "feedback-user", CreatedAt: time.Now().UTC()}
	if err := convRepo.Create(ctx, conv); err != nil {
		t.Fatalf("create test conversation: %v", err)
	}
	msg := &model.Message{ID: uuid.New().String(), ConversationID: conv.ID, Role: model.MessageRoleAssistant, Content: "the contract renews annually", CreatedAt: time.Now().UTC()}
	if err := convRepo.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("create test message: %v", err)
	}
	return msg
}

func TestFeedbackRepo_UpsertAndGetForMessage(t *testing.T) {
	repo, convRepo, wsRepo, cleanup := setupFeedbackRepo(t)
	defer cleanup()

	ctx := context.Background()
	msg := createTestMessage(t, convRepo, wsRepo)

	vote := &model.FeedbackVote{MessageID: msg.ID, UserID: "voter-1", Value: model.FeedbackUp}
	if err := repo.Upsert(ctx, vote); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}

	votes, err := repo.GetForMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetForMessage() error: %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("votes count = %d, want 1", len(votes))
	}
	if votes[0].Value != model.FeedbackUp {
		t.Errorf("Value = %d, want %d", votes[0].Value, model.FeedbackUp)
	}
}

func TestFeedbackRepo_UpsertOverwritesExistingVote(t *testing.T) {
	repo, convRepo, wsRepo, cleanup := setupFeedbackRepo(t)
	defer cleanup()

	ctx := context.Background()
	msg := createTestMessage(t, convRepo, wsRepo)

	if err := repo.Upsert(ctx, &model.FeedbackVote{MessageID: msg.ID, UserID: "voter-1", Value: model.FeedbackUp}); err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if err := repo.Upsert(ctx, &model.FeedbackVote{MessageID: msg.ID, UserID: "voter-1", Value: model.FeedbackDown}); err != nil {
		t.Fatalf("Upsert() (overwrite) error: %v", err)
	}

	votes, err := repo.GetForMessage(ctx, msg.ID)
	if err != nil {
		t.Fatalf("GetForMessage() error: %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("votes count = %d, want 1 (overwritten, not duplicated)", len(votes))
	}
	if votes[0].Value != model.FeedbackDown {
		t.Errorf("Value = %d, want %d (latest vote wins)", votes[0].Value, model.FeedbackDown)
	}
}
