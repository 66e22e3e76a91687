package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// ConversationRepository persists conversations and their turns.
type ConversationRepository interface {
	Create(ctx context.Context, conv *model.Conversation) error
	AppendMessage(ctx context.Context, msg *model.Message) error
	GetMessages(ctx context.Context, conversationID string, limit int) ([]model.Message, error)
	Clear(ctx context.Context, conversationID string) error
}

// ConversationService manages conversation turns and their citation
// snapshots, independent of the retrieval/generation pipeline that produces
// the assistant content.
type ConversationService struct {
	repo ConversationRepository
}

func NewConversationService(repo ConversationRepository) *ConversationService {
	return &ConversationService{repo: repo}
}

const maxMessageHistory = 50

// Start creates a new conversation in a workspace, owned by the caller.
func (s *ConversationService) Start(ctx context.Context, workspaceID, ownerUserID string) (*model.Conversation, error) {
	conv := &model.Conversation{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		OwnerUserID: ownerUserID,
		CreatedAt:   time.Now().UTC(),
	}
	if err := s.repo.Create(ctx, conv); err != nil {
		return nil, fmt.Errorf("service.Start: %w", err)
	}
	return conv, nil
}

// AppendUserMessage records a user turn.
func (s *ConversationService) AppendUserMessage(ctx context.Context, conversationID, content string) (*model.Message, error) {
	return s.append(ctx, conversationID, model.MessageRoleUser, content, nil)
}

// AppendAssistantMessage records an assistant turn, freezing the citations it
// was grounded on so later chunk re-indexing cannot change what a past
// answer claims to cite.
func (s *ConversationService) AppendAssistantMessage(ctx context.Context, conversationID, content string, citations []ContextCitation) (*model.Message, error) {
	var snapshot json.RawMessage
	if len(citations) > 0 {
		b, err := json.Marshal(citations)
		if err != nil {
			return nil, fmt.Errorf("service.AppendAssistantMessage: marshal citations: %w", err)
		}
		snapshot = b
	}
	return s.append(ctx, conversationID, model.MessageRoleAssistant, content, snapshot)
}

func (s *ConversationService) append(ctx context.Context, conversationID string, role model.MessageRole, content string, snapshot json.RawMessage) (*model.Message, error) {
	msg := &model.Message{
		ID:              uuid.New().String(),
		ConversationID:  conversationID,
		Role:            role,
		Content:         content,
		SourcesSnapshot: snapshot,
		CreatedAt:       time.Now().UTC(),
	}
	if err := s.repo.AppendMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("service.append: %w", err)
	}
	return msg, nil
}

// History returns the most recent messages in a conversation, oldest first,
// bounded by maxMessageHistory regardless of the caller-requested limit.
func (s *ConversationService) History(ctx context.Context, conversationID string, limit int) ([]model.Message, error) {
	if limit <= 0 || limit > maxMessageHistory {
		limit = maxMessageHistory
	}
	msgs, err := s.repo.GetMessages(ctx, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("service.History: %w", err)
	}
	return msgs, nil
}

// Clear deletes all messages in a conversation, keeping the conversation
// record itself.
func (s *ConversationService) Clear(ctx context.Context, conversationID string) error {
	if err := s.repo.Clear(ctx, conversationID); err != nil {
		return fmt.Errorf("service.Clear: %w", err)
	}
	return nil
}
