package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// FeedbackRepo implements service.FeedbackRepository with pgx.
type FeedbackRepo struct {
	pool *pgxpool.Pool
}

// NewFeedbackRepo creates a FeedbackRepo.
func NewFeedbackRepo(pool *pgxpool.Pool) *FeedbackRepo {
	return &FeedbackRepo{pool: pool}
}

// Compile-time check.
var _ service.FeedbackRepository = (*FeedbackRepo)(nil)

// Upsert inserts or replaces the caller's vote for (message_id, user_id).
func (r *FeedbackRepo) Upsert(ctx context.Context, vote *model.FeedbackVote) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO feedback_votes (message_id, user_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (message_id, user_id) DO UPDATE SET value = EXCLUDED.value`,
		vote.MessageID, vote.UserID, int(vote.Value),
	)
	if err != nil {
		return fmt.Errorf("repository.Upsert: %w", err)
	}
	return nil
}

func (r *FeedbackRepo) GetForMessage(ctx context.Context, messageID string) ([]model.FeedbackVote, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT message_id, user_id, value FROM feedback_votes WHERE message_id = $1`,
		messageID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.GetForMessage: %w", err)
	}
	defer rows.Close()

	var votes []model.FeedbackVote
	for rows.Next() {
		var v model.FeedbackVote
		var value int
		if err := rows.Scan(&v.MessageID, &v.UserID, &value); err != nil {
			return nil, fmt.Errorf("repository.GetForMessage: scan: %w", err)
		}
		v.Value = model.FeedbackValue(value)
		votes = append(votes, v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.GetForMessage: rows: %w", err)
	}

	return votes, nil
}
