package service

import (
	"context"
	"fmt"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// FeedbackRepository persists per-(message, user) feedback votes.
type FeedbackRepository interface {
	Upsert(ctx context.Context, vote *model.FeedbackVote) error
	GetForMessage(ctx context.Context, messageID string) ([]model.FeedbackVote, error)
}

// FeedbackService records and retrieves user judgments on assistant answers.
type FeedbackService struct {
	repo FeedbackRepository
}

func NewFeedbackService(repo FeedbackRepository) *FeedbackService {
	return &FeedbackService{repo: repo}
}

// Vote records or overwrites the caller's vote on a message. A vote is unique
// per (message_id, user_id); voting again replaces the prior value rather
// than accumulating one.
func (s *FeedbackService) Vote(ctx context.Context, messageID, userID string, value model.FeedbackValue) error {
	vote := &model.FeedbackVote{
		MessageID: messageID,
		UserID:    userID,
		Value:     value,
	}
	if err := s.repo.Upsert(ctx, vote); err != nil {
		return fmt.Errorf("service.Vote: %w", err)
	}
	return nil
}

// ForMessage returns every recorded vote on a message.
func (s *FeedbackService) ForMessage(ctx context.Context, messageID string) ([]model.FeedbackVote, error) {
	votes, err := s.repo.GetForMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("service.ForMessage: %w", err)
	}
	return votes, nil
}
