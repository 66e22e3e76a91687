package service

import (
	"context"
	"fmt"
	"math"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

const (
	// maxBatchSize is the max texts per embedding API call.
	maxBatchSize = 250
)

// EmbeddingClient abstracts the embedding provider for document-side (as
// opposed to query-side, see cache.Provider) vector generation.
type EmbeddingClient interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}

// ChunkStore abstracts bulk insertion of chunks with their vectors, scoped
// to the workspace the parent document belongs to.
type ChunkStore interface {
	BulkInsert(ctx context.Context, workspaceID string, chunks []Chunk, vectors [][]float32) error
}

// EmbedderService generates vector embeddings for chunks and stores them.
type EmbedderService struct {
	client     EmbeddingClient
	chunkStore ChunkStore
}

func NewEmbedderService(client EmbeddingClient, chunkStore ChunkStore) *EmbedderService {
	return &EmbedderService{
		client:     client,
		chunkStore: chunkStore,
	}
}

// Embed generates embeddings for a slice of texts, batching as needed.
// Returns one model.EmbeddingDimensions-wide L2-normalized vector per input.
func (s *EmbedderService) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, fmt.Errorf("service.Embed: no texts provided")
	}

	allVectors := make([][]float32, 0, len(texts))

	for i := 0; i < len(texts); i += maxBatchSize {
		end := i + maxBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[i:end]

		vectors, err := s.client.EmbedTexts(ctx, batch)
		if err != nil {
			return nil, fmt.Errorf("service.Embed: batch %d-%d: %w", i, end, err)
		}

		for j, vec := range vectors {
			if len(vec) != model.EmbeddingDimensions {
				return nil, fmt.Errorf("service.Embed: vector %d has %d dimensions, want %d", i+j, len(vec), model.EmbeddingDimensions)
			}
			vectors[j] = l2Normalize(vec)
		}

		allVectors = append(allVectors, vectors...)
	}

	if len(allVectors) != len(texts) {
		return nil, fmt.Errorf("service.Embed: got %d vectors for %d texts", len(allVectors), len(texts))
	}

	return allVectors, nil
}

// EmbedAndStore generates embeddings for chunks and persists them, stamping
// workspaceID so the chunk store can scope retrieval without a join back to
// documents.
func (s *EmbedderService) EmbedAndStore(ctx context.Context, workspaceID string, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Content
	}

	vectors, err := s.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("service.EmbedAndStore: %w", err)
	}

	if err := s.chunkStore.BulkInsert(ctx, workspaceID, chunks, vectors); err != nil {
		return fmt.Errorf("service.EmbedAndStore: store: %w", err)
	}

	return nil
}

// l2Normalize normalizes a vector to unit length (L2 norm = 1).
func l2Normalize(vec []float32) []float32 {
	var sumSq float64
	for _, v := range vec {
		sumSq += float64(v) * float64(v)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 {
		return vec
	}

	result := make([]float32, len(vec))
	for i, v := range vec {
		result[i] = float32(float64(v) / norm)
	}
	return result
}
