package service

import (
	"context"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/cache"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// VectorSearchResult is one candidate chunk returned by a search backend,
// carrying enough of the parent document to build a citation.
type VectorSearchResult struct {
	Chunk        model.Chunk
	DocumentName string
	Score        float64
	Rank         int
}

// VectorSearcher abstracts dense similarity search for testability.
type VectorSearcher interface {
	SimilaritySearch(ctx context.Context, workspaceID string, queryVec []float32, topK int, threshold float64) ([]VectorSearchResult, error)
}

// QueryEmbedder abstracts query embedding for testability.
type QueryEmbedder interface {
	EmbedQuery(ctx context.Context, text string, taskType cache.TaskType) ([]float32, error)
}

// BM25Searcher abstracts full-text search for testability.
type BM25Searcher interface {
	FullTextSearch(ctx context.Context, workspaceID, query string, topK int) ([]VectorSearchResult, error)
}

// RetrievalResult is the fused, filtered, and context-built outcome of one
// retrieval pass, ready for generation.
type RetrievalResult struct {
	Fused           []FusedResult
	Sources         []ContextSource
	Context         BuiltContext
	TotalCandidates int
}

// RetrieverOptions configures one retrieval call. TopK is clamped to
// [1, TopKMax] by Retrieve; zero uses the configured default.
type RetrieverOptions struct {
	TopK       int
	Hybrid     bool
	FilterMode FilterMode
}

// RetrieverService runs the dense+lexical fan-out, fusion, injection
// filtering, optional reranking, and context assembly phases of the
// retrieval pipeline (generation is a separate, final step — see
// GeneratorService).
type RetrieverService struct {
	embedder   QueryEmbedder
	searcher   VectorSearcher
	bm25       BM25Searcher // nil disables hybrid retrieval
	reranker   Reranker     // nil = no reranking, fused order stands
	ctxBuilder *ContextBuilderService

	topKMax             int
	denseCandidates     int
	lexicalCandidates   int
	similarityThreshold float64
	filterThreshold     float64
}

func NewRetrieverService(embedder QueryEmbedder, searcher VectorSearcher, ctxBuilder *ContextBuilderService, topKMax, denseCandidates, lexicalCandidates int, similarityThreshold, filterThreshold float64) *RetrieverService {
	if topKMax <= 0 {
		topKMax = 50
	}
	return &RetrieverService{
		embedder:            embedder,
		searcher:            searcher,
		ctxBuilder:          ctxBuilder,
		topKMax:             topKMax,
		denseCandidates:     denseCandidates,
		lexicalCandidates:   lexicalCandidates,
		similarityThreshold: similarityThreshold,
		filterThreshold:     filterThreshold,
	}
}

// SetBM25 attaches a BM25Searcher for hybrid retrieval. Nil (default) means
// vector-only.
func (s *RetrieverService) SetBM25(bm25 BM25Searcher) {
	s.bm25 = bm25
}

// SetReranker attaches an optional post-fusion Reranker.
func (s *RetrieverService) SetReranker(r Reranker) {
	s.reranker = r
}

// Retrieve embeds the query, fans out dense (and optionally lexical) search,
// fuses with RRF, applies the injection filter, reranks, and builds the final
// context. workspace-scoping of the underlying searches is the caller's
// responsibility to have already authorized (see rbac.Resolve).
func (s *RetrieverService) Retrieve(ctx context.Context, workspaceID, query string, opts RetrieverOptions) (*RetrievalResult, error) {
	if query == "" {
		return nil, apperr.Validation("query must not be empty")
	}

	topK := opts.TopK
	if topK <= 0 || topK > s.topKMax {
		topK = s.topKMax
	}

	queryVec, err := s.embedder.EmbedQuery(ctx, query, cache.TaskRetrievalQuery)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeEmbeddingError, "embed query", err)
	}

	var denseResults, lexicalResults []VectorSearchResult

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		denseResults, err = s.searcher.SimilaritySearch(gCtx, workspaceID, queryVec, s.denseCandidates, s.similarityThreshold)
		return err
	})

	if opts.Hybrid && s.bm25 != nil {
		g.Go(func() error {
			results, err := s.bm25.FullTextSearch(gCtx, workspaceID, query, s.lexicalCandidates)
			if err != nil {
				slog.Warn("retriever: lexical search failed, continuing dense-only", "workspace_id", workspaceID, "error", err)
				return nil
			}
			lexicalResults = results
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, apperr.Wrap(apperr.CodeDBError, "dense search", err)
	}

	byIdentity := make(map[string]VectorSearchResult, len(denseResults)+len(lexicalResults))
	denseIdentities := toIdentities(denseResults, byIdentity)
	lexicalIdentities := toIdentities(lexicalResults, byIdentity)

	fused := ReciprocalRankFusion(denseIdentities, lexicalIdentities)

	filterMode := opts.FilterMode
	if filterMode == "" {
		filterMode = FilterDownrank
	}
	fused = ApplyFilter(filterMode, fused,
		func(f FusedResult) model.ChunkMetadata { return byIdentity[f.Identity.key()].Chunk.Metadata },
		func(f FusedResult) float64 { return f.Score },
		func(f FusedResult, score float64) FusedResult { f.Score = score; return f },
	)

	fused = ApplyReranker(ctx, s.reranker, query, fused)

	if topK < len(fused) {
		fused = fused[:topK]
	}

	sources := make([]ContextSource, 0, len(fused))
	for _, f := range fused {
		r, ok := byIdentity[f.Identity.key()]
		if !ok {
			continue
		}
		sources = append(sources, ContextSource{
			Chunk:        r.Chunk,
			DocumentID:   r.Chunk.DocumentID,
			DocumentName: r.DocumentName,
			Score:        f.Score,
		})
	}

	built := s.ctxBuilder.Build(sources)

	return &RetrievalResult{
		Fused:           fused,
		Sources:         sources,
		Context:         built,
		TotalCandidates: len(denseResults) + len(lexicalResults),
	}, nil
}

func toIdentities(results []VectorSearchResult, byIdentity map[string]VectorSearchResult) []RankedIdentity {
	identities := make([]RankedIdentity, len(results))
	for i, r := range results {
		id := RankedIdentity{ChunkID: r.Chunk.ID, DocumentID: r.Chunk.DocumentID, ChunkIndex: r.Chunk.ChunkIndex}
		identities[i] = id
		byIdentity[id.key()] = r
	}
	return identities
}
