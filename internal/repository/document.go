package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// DocumentRepo implements service.DocumentRepository with pgx.
type DocumentRepo struct {
	pool *pgxpool.Pool
}

// NewDocumentRepo creates a DocumentRepo.
func NewDocumentRepo(pool *pgxpool.Pool) *DocumentRepo {
	return &DocumentRepo{pool: pool}
}

// Compile-time check that DocumentRepo implements service.DocumentRepository.
var _ service.DocumentRepository = (*DocumentRepo)(nil)

func (r *DocumentRepo) Create(ctx context.Context, doc *model.Document) error {
	tags := doc.Tags
	if tags == nil {
		tags = []string{}
	}
	meta := doc.Metadata
	if meta == nil {
		meta = json.RawMessage(`{}`)
	}

	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (
			id, workspace_id, title, source, file_name, mime_type, storage_key,
			status, error_message, tags, metadata, uploader_user_id,
			created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14
		)`,
		doc.ID, doc.WorkspaceID, doc.Title, doc.Source, doc.FileName, doc.MimeType, doc.StorageKey,
		string(doc.Status), doc.ErrorMessage, tags, meta, doc.UploaderUserID,
		doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository.Create: %w", err)
	}
	return nil
}

func scanDocument(row pgx.Row) (*model.Document, error) {
	doc := &model.Document{}
	var status string
	var metaJSON []byte

	err := row.Scan(
		&doc.ID, &doc.WorkspaceID, &doc.Title, &doc.Source, &doc.FileName, &doc.MimeType, &doc.StorageKey,
		&status, &doc.ErrorMessage, &doc.Tags, &metaJSON, &doc.UploaderUserID,
		&doc.CreatedAt, &doc.UpdatedAt, &doc.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	doc.Status = model.DocumentStatus(status)
	doc.Metadata = json.RawMessage(metaJSON)
	return doc, nil
}

func (r *DocumentRepo) GetByID(ctx context.Context, id string) (*model.Document, error) {
	doc, err := scanDocument(r.pool.QueryRow(ctx, `
		SELECT id, workspace_id, title, source, file_name, mime_type, storage_key,
			status, error_message, tags, metadata, uploader_user_id,
			created_at, updated_at, deleted_at
		FROM documents WHERE id = $1`, id,
	))
	if err != nil {
		return nil, fmt.Errorf("repository.GetByID: %w", err)
	}
	return doc, nil
}

func (r *DocumentRepo) ListByWorkspace(ctx context.Context, workspaceID string, opts service.ListOpts) ([]model.Document, int, error) {
	var total int
	err := r.pool.QueryRow(ctx,
		`SELECT count(*) FROM documents WHERE workspace_id = $1 AND deleted_at IS NULL`,
		workspaceID,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.ListByWorkspace: count: %w", err)
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, workspace_id, title, source, file_name, mime_type, storage_key,
			status, error_message, tags, metadata, uploader_user_id,
			created_at, updated_at, deleted_at
		FROM documents WHERE workspace_id = $1 AND deleted_at IS NULL
		ORDER BY created_at DESC LIMIT $2 OFFSET $3`,
		workspaceID, opts.Limit, opts.Offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("repository.ListByWorkspace: query: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("repository.ListByWorkspace: scan: %w", err)
		}
		docs = append(docs, *d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("repository.ListByWorkspace: rows: %w", err)
	}

	return docs, total, nil
}

func (r *DocumentRepo) UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, errMsg *string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE documents SET status = $1, error_message = $2, updated_at = $3 WHERE id = $4`,
		string(status), errMsg, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("repository.UpdateStatus: %w", err)
	}
	return nil
}

// ClaimForProcessing is the CAS transition PENDING -> PROCESSING. Two workers
// racing the same document_id race this UPDATE; exactly one affects a row.
func (r *DocumentRepo) ClaimForProcessing(ctx context.Context, id string) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE documents SET status = 'PROCESSING', updated_at = $1 WHERE id = $2 AND status = 'PENDING'`,
		time.Now().UTC(), id,
	)
	if err != nil {
		return false, fmt.Errorf("repository.ClaimForProcessing: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *DocumentRepo) UpdateChunkCount(ctx context.Context, id string, count int) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE documents SET metadata = jsonb_set(COALESCE(metadata, '{}'), '{chunk_count}', to_jsonb($1::int)), updated_at = $2 WHERE id = $3`,
		count, time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("repository.UpdateChunkCount: %w", err)
	}
	return nil
}

func (r *DocumentRepo) SoftDelete(ctx context.Context, id string) error {
	now := time.Now().UTC()
	_, err := r.pool.Exec(ctx,
		`UPDATE documents SET deleted_at = $1, updated_at = $2 WHERE id = $3`,
		now, now, id,
	)
	if err != nil {
		return fmt.Errorf("repository.SoftDelete: %w", err)
	}
	return nil
}
