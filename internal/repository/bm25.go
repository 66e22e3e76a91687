package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// BM25Repository implements service.BM25Searcher over the generated tsvector
// column on chunks, using websearch_to_tsquery so callers can pass raw user
// queries (quoted phrases, "-" exclusion, "OR") without pre-parsing them.
type BM25Repository struct {
	pool *pgxpool.Pool
}

// NewBM25Repository creates a BM25Repository.
func NewBM25Repository(pool *pgxpool.Pool) *BM25Repository {
	return &BM25Repository{pool: pool}
}

// Compile-time check.
var _ service.BM25Searcher = (*BM25Repository)(nil)

// FullTextSearch finds chunks in workspaceID matching query via PostgreSQL
// full-text search, ranked by ts_rank_cd over the GIN-indexed tsvector.
func (r *BM25Repository) FullTextSearch(ctx context.Context, workspaceID, query string, topK int) ([]service.VectorSearchResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.workspace_id, c.chunk_index, c.content, c.metadata, c.created_at,
			ts_rank_cd(c.content_tsv, websearch_to_tsquery('english', $1)) AS score, d.title
		FROM chunks c
		JOIN documents d ON c.document_id = d.id
		WHERE c.workspace_id = $2
			AND d.deleted_at IS NULL
			AND c.content_tsv @@ websearch_to_tsquery('english', $1)
		ORDER BY score DESC
		LIMIT $3`,
		query, workspaceID, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.FullTextSearch: %w", err)
	}
	defer rows.Close()

	var results []service.VectorSearchResult
	for rows.Next() {
		cr, err := scanBM25Result(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.FullTextSearch: scan: %w", err)
		}
		results = append(results, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.FullTextSearch: rows: %w", err)
	}

	return results, nil
}

func scanBM25Result(row pgx.Rows) (service.VectorSearchResult, error) {
	var cr service.VectorSearchResult
	var metaJSON []byte

	err := row.Scan(
		&cr.Chunk.ID, &cr.Chunk.DocumentID, &cr.Chunk.WorkspaceID, &cr.Chunk.ChunkIndex,
		&cr.Chunk.Content, &metaJSON, &cr.Chunk.CreatedAt,
		&cr.Score, &cr.DocumentName,
	)
	if err != nil {
		return cr, err
	}
	if len(metaJSON) > 0 {
		if err := json.Unmarshal(metaJSON, &cr.Chunk.Metadata); err != nil {
			return cr, fmt.Errorf("unmarshal chunk metadata: %w", err)
		}
	}
	return cr, nil
}
