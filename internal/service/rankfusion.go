package service

import (
	"context"
	"sort"
	"strconv"
)

// rrfK is the standard Reciprocal Rank Fusion constant.
const rrfK = 60

// RankedIdentity is a chunk identity as it appears in a dense or lexical
// ranked list, ordered best-first.
type RankedIdentity struct {
	ChunkID    string
	DocumentID string
	ChunkIndex int
}

func (r RankedIdentity) key() string {
	if r.ChunkID != "" {
		return "id:" + r.ChunkID
	}
	return docChunkKey(r.DocumentID, r.ChunkIndex)
}

func docChunkKey(documentID string, chunkIndex int) string {
	return documentID + "#" + strconv.Itoa(chunkIndex)
}

// FusedResult is one identity's outcome after RRF: its combined score and
// the rank it held in each input list (-1 when absent from that list, used
// for tie-breaking and provenance).
type FusedResult struct {
	Identity   RankedIdentity
	Score      float64
	DenseRank  int
	LexicalRank int
}

// ReciprocalRankFusion fuses two ranked identity lists (dense first,
// lexical second) into a single list ordered by fused score descending.
// Ties break by lowest dense rank, then lowest lexical rank, then chunk
// identity, making the output fully deterministic.
func ReciprocalRankFusion(dense, lexical []RankedIdentity) []FusedResult {
	scores := make(map[string]float64)
	denseRank := make(map[string]int)
	lexicalRank := make(map[string]int)
	identities := make(map[string]RankedIdentity)

	for rank, item := range dense {
		k := item.key()
		scores[k] += 1.0 / float64(rrfK+rank+1)
		denseRank[k] = rank
		identities[k] = item
	}
	for k := range identities {
		if _, ok := denseRank[k]; !ok {
			denseRank[k] = -1
		}
	}

	for rank, item := range lexical {
		k := item.key()
		scores[k] += 1.0 / float64(rrfK+rank+1)
		lexicalRank[k] = rank
		if _, ok := identities[k]; !ok {
			identities[k] = item
			denseRank[k] = -1
		}
	}
	for k := range identities {
		if _, ok := lexicalRank[k]; !ok {
			lexicalRank[k] = -1
		}
	}

	results := make([]FusedResult, 0, len(identities))
	for k, identity := range identities {
		results = append(results, FusedResult{
			Identity:    identity,
			Score:       scores[k],
			DenseRank:   denseRank[k],
			LexicalRank: lexicalRank[k],
		})
	}

	sort.Slice(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		ar, br := rankOrInf(a.DenseRank), rankOrInf(b.DenseRank)
		if ar != br {
			return ar < br
		}
		ar, br = rankOrInf(a.LexicalRank), rankOrInf(b.LexicalRank)
		if ar != br {
			return ar < br
		}
		return a.Identity.key() < b.Identity.key()
	})

	return results
}

func rankOrInf(rank int) int {
	if rank < 0 {
		return int(^uint(0) >> 1) // absent from the list sorts last among ties
	}
	return rank
}

// Reranker is an optional pluggable component applied after fusion. A
// failing reranker must never block the pipeline; callers fall back to the
// fused order unchanged.
type Reranker interface {
	Rerank(ctx context.Context, query string, results []FusedResult) ([]FusedResult, error)
}

// ApplyReranker runs r over fused and returns its output, or fused
// unchanged if r is nil or returns an error.
func ApplyReranker(ctx context.Context, r Reranker, query string, fused []FusedResult) []FusedResult {
	if r == nil {
		return fused
	}
	reranked, err := r.Rerank(ctx, query, fused)
	if err != nil {
		return fused
	}
	return reranked
}
