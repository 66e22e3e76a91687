package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pgvector "github.com/pgvector/pgvector-go"

	"github.com/connexus-ai/ragbox-backend/internal/model"
	"github.com/connexus-ai/ragbox-backend/internal/service"
)

// ChunkRepo implements service.ChunkStore and service.VectorSearcher over
// chunks, a table with a pgvector embedding column and a generated
// tsvector column for lexical search (see BM25Repository).
type ChunkRepo struct {
	pool *pgxpool.Pool
}

// NewChunkRepo creates a ChunkRepo.
func NewChunkRepo(pool *pgxpool.Pool) *ChunkRepo {
	return &ChunkRepo{pool: pool}
}

// Compile-time checks.
var (
	_ service.ChunkStore     = (*ChunkRepo)(nil)
	_ service.VectorSearcher = (*ChunkRepo)(nil)
	_ service.ChunkDeleter   = (*ChunkRepo)(nil)
)

// BulkInsert stores chunks with their embedding vectors in one round trip via
// pgx batching, stamping workspaceID on every row.
func (r *ChunkRepo) BulkInsert(ctx context.Context, workspaceID string, chunks []service.Chunk, vectors [][]float32) error {
	if len(chunks) == 0 {
		return nil
	}
	if len(chunks) != len(vectors) {
		return fmt.Errorf("repository.BulkInsert: chunk count (%d) != vector count (%d)", len(chunks), len(vectors))
	}

	batch := &pgx.Batch{}
	now := time.Now().UTC()

	for i, c := range chunks {
		if len(vectors[i]) != model.EmbeddingDimensions {
			return fmt.Errorf("repository.BulkInsert: chunk %d vector has %d dimensions, want %d", i, len(vectors[i]), model.EmbeddingDimensions)
		}
		id := uuid.New().String()
		embedding := pgvector.NewVector(vectors[i])
		metaJSON, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("repository.BulkInsert: marshal metadata: %w", err)
		}

		batch.Queue(`
			INSERT INTO chunks (id, document_id, workspace_id, chunk_index, content, embedding, metadata, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, c.DocumentID, workspaceID, c.Index, c.Content, embedding, metaJSON, now,
		)
	}

	br := r.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < len(chunks); i++ {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("repository.BulkInsert: chunk %d: %w", i, err)
		}
	}

	return nil
}

func scanSearchResult(row pgx.Rows) (service.VectorSearchResult, error) {
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

// SimilaritySearch finds the top-K chunks in workspaceID most similar to
// queryVec by cosine distance, above threshold.
func (r *ChunkRepo) SimilaritySearch(ctx context.Context, workspaceID string, queryVec []float32, topK int, threshold float64) ([]service.VectorSearchResult, error) {
	embedding := pgvector.NewVector(queryVec)

	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.document_id, c.workspace_id, c.chunk_index, c.content, c.metadata, c.created_at,
			1 - (c.embedding <=> $1::vector) AS score, d.title
		FROM chunks c
		JOIN documents d ON c.document_id = d.id
		WHERE c.workspace_id = $2
			AND d.deleted_at IS NULL
			AND (1 - (c.embedding <=> $1::vector)) > $3
		ORDER BY c.embedding <=> $1::vector
		LIMIT $4`,
		embedding, workspaceID, threshold, topK,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.SimilaritySearch: %w", err)
	}
	defer rows.Close()

	var results []service.VectorSearchResult
	for rows.Next() {
		cr, err := scanSearchResult(rows)
		if err != nil {
			return nil, fmt.Errorf("repository.SimilaritySearch: scan: %w", err)
		}
		results = append(results, cr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("repository.SimilaritySearch: rows: %w", err)
	}

	return results, nil
}

// DeleteByDocumentID removes all chunks for a document, used by
// PipelineService.Reprocess before chunks are regenerated.
func (r *ChunkRepo) DeleteByDocumentID(ctx context.Context, documentID string) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return fmt.Errorf("repository.DeleteByDocumentID: %w", err)
	}
	return nil
}

// CountByDocumentID returns the number of chunks for a document.
func (r *ChunkRepo) CountByDocumentID(ctx context.Context, documentID string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE document_id = $1`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("repository.CountByDocumentID: %w", err)
	}
	return count, nil
}
