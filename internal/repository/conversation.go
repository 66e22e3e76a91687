package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// ConversationRepo implements service.ConversationRepository with pgx.
type ConversationRepo struct {
	pool *pgxpool.Pool
}

// NewConversationRepo creates a ConversationRepo.
func NewConversationRepo(pool *pgxpool.Pool) *ConversationRepo {
	return &ConversationRepo{pool: pool}
}

// Compile-time check.
var _ service.ConversationRepository = (*ConversationRepo)(nil)

func (r *ConversationRepo) Create(ctx context.Context, conv *model.Conversation) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO conversations (id, workspace_id, owner_user_id, created_at) VALUES ($1, $2, $3, $4)`,
		conv.ID, conv.WorkspaceID, conv.OwnerUserID, conv.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository.Create: %w", err)
	}
	return nil
}

func (r *ConversationRepo) AppendMessage(ctx context.Context, msg *model.Message) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO messages (id, conversation_id, role, content, sources_snapshot, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		msg.ID, msg.ConversationID, string(msg.Role), msg.Content, msg.SourcesSnapshot, msg.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository.AppendMessage: %w", err)
	}
	return nil
}

func (r *ConversationRepo) GetMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, conversation_id, role, content, sources_snapshot, created_at FROM (
			SELECT id, conversation_id, role, content, sources_snapshot, created_at
			FROM messages WHERE conversation_id = $1
			ORDER BY created_at DESC LIMIT $2
		) recent ORDER BY created_at ASC`,
		conversationID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.GetMessages: %w", err)
	}
	defer rows.Close()

	var msgs []model.Message
	for rows.Next() {
		var m model.Message
		var role string
		if err := rows.Scan(&m.ID, &m.ConversationID, &role, &m.Content, &m.SourcesSnapshot, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("repository.GetMessages: scan: %w", err)
		}
		m.Role = model.MessageRole(role)
		msgs = append(msgs, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.GetMessages: rows: %w", err)
	}

	return msgs, nil
}

func (r *ConversationRepo) Clear(ctx context.Context, conversationID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return fmt.Errorf("repository.Clear: %w", err)
	}
	return nil
}
