package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// AuditRepo implements service.AuditRepository over an append-only table.
type AuditRepo struct {
	pool *pgxpool.Pool
}

// NewAuditRepo creates an AuditRepo.
func NewAuditRepo(pool *pgxpool.Pool) *AuditRepo {
	return &AuditRepo{pool: pool}
}

// Compile-time check.
var _ service.AuditRepository = (*AuditRepo)(nil)

func (r *AuditRepo) Create(ctx context.Context, entry *model.AuditEvent) error {
	payload := entry.Payload
	if payload == nil {
		payload = json.RawMessage(`{}`)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO audit_events (id, workspace_id, actor_user_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		entry.ID, entry.WorkspaceID, entry.ActorUserID, entry.Kind, payload, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository.Create: %w", err)
	}
	return nil
}

func (r *AuditRepo) List(ctx context.Context, f service.AuditFilter) ([]model.AuditEvent, int, error) {
	query := `SELECT id, workspace_id, actor_user_id, kind, payload, created_at FROM audit_events WHERE 1=1`
	countQuery := `SELECT count(*) FROM audit_events WHERE 1=1`
	var args []interface{}
	argIdx := 1

	if f.WorkspaceID != nil {
		clause := fmt.Sprintf(` AND workspace_id = $%d`, argIdx)
		query += clause
		countQuery += clause
		args = append(args, *f.WorkspaceID)
		argIdx++
	}
	if f.ActorUserID != nil {
		clause := fmt.Sprintf(` AND actor_user_id = $%d`, argIdx)
		query += clause
		countQuery += clause
		args = append(args, *f.ActorUserID)
		argIdx++
	}
	if f.Kind != "" {
		clause := fmt.Sprintf(` AND kind = $%d`, argIdx)
		query += clause
		countQuery += clause
		args = append(args, f.Kind)
		argIdx++
	}

	var total int
	if err := r.pool.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("repository.List: count: %w", err)
	}

	query += ` ORDER BY created_at DESC`
	query += fmt.Sprintf(` LIMIT $%d OFFSET $%d`, argIdx, argIdx+1)
	args = append(args, f.Limit, f.Offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.List: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEvent
	for rows.Next() {
		var e model.AuditEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.WorkspaceID, &e.ActorUserID, &e.Kind, &payload, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("repository.List: scan: %w", err)
		}
		e.Payload = json.RawMessage(payload)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository.List: rows: %w", err)
	}

	return entries, total, nil
}
