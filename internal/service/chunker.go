package service

import (
	"context"
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
)

// ChunkerService splits document text into overlapping, character-indexed
// chunks. Chunk k starts at index k*(chunkSize-overlap) and spans up to
// chunkSize runes of the original text.
type ChunkerService struct {
	chunkSize int
	overlap   int
}

// NewChunkerService creates a ChunkerService. overlap must be in
// [0, chunkSize); out-of-range values fall back to defaults rather than
// panic, since callers may source these from config.
func NewChunkerService(chunkSize, overlap int) *ChunkerService {
	if chunkSize <= 0 {
		chunkSize = 1000
	}
	if overlap < 0 || overlap >= chunkSize {
		overlap = 0
	}
	return &ChunkerService{chunkSize: chunkSize, overlap: overlap}
}

// Chunk splits text into ordered, non-empty chunks. Empty or
// whitespace-only input produces zero chunks paired with a validation
// error, since the pipeline has nothing to embed in that case.
func (s *ChunkerService) Chunk(ctx context.Context, text, docID string) ([]Chunk, error) {
	runes := []rune(text)
	stride := s.chunkSize - s.overlap

	var chunks []Chunk
	index := 0

	for start := 0; start < len(runes); start += stride {
		end := start + s.chunkSize
		if end > len(runes) {
			end = len(runes)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			chunks = append(chunks, Chunk{
				Content:     content,
				ContentHash: sha256Hash(content),
				Index:       index,
				DocumentID:  docID,
			})
			index++
		}

		if end == len(runes) {
			break
		}
	}

	if len(chunks) == 0 {
		return nil, apperr.New(apperr.CodeValidation, "no content to chunk")
	}

	return chunks, nil
}

func sha256Hash(s string) string {
	h := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", h)
}
