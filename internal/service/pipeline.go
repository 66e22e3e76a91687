package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/connexus-ai/ragbox-backend/internal/apperr"
	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// Parser abstracts document text extraction.
type Parser interface {
	Extract(ctx context.Context, storageKey string) (*ParseResult, error)
}

// InjectionScanner abstracts prompt-injection heuristic scoring per chunk.
type InjectionScanner interface {
	Scan(ctx context.Context, text string) InjectionScanResult
}

// Chunker abstracts document chunking.
type Chunker interface {
	Chunk(ctx context.Context, text, docID string) ([]Chunk, error)
}

// Chunk is a fragment produced by Chunker, carrying the derived metadata
// persisted alongside it once embedded.
type Chunk struct {
	Content     string
	ContentHash string
	Index       int
	DocumentID  string
	Metadata    model.ChunkMetadata
}

// Embedder abstracts vector embedding and persistence for a batch of chunks.
type Embedder interface {
	EmbedAndStore(ctx context.Context, workspaceID string, chunks []Chunk) error
}

// ChunkDeleter abstracts removal of a document's existing chunks, used by
// Reprocess before chunks are regenerated.
type ChunkDeleter interface {
	DeleteByDocumentID(ctx context.Context, documentID string) error
}

// AuditLogger abstracts audit event recording.
type AuditLogger interface {
	Log(ctx context.Context, kind string, workspaceID, actorUserID *string, payload json.RawMessage) error
}

// PipelineService runs the out-of-band ingestion pipeline claimed by
// queue.Worker: parse -> chunk -> scan each chunk for injection risk ->
// embed+store -> mark READY, or FAILED with the triggering error recorded.
//
// A document is claimed exactly once per attempt via the document repository's
// compare-and-swap status transition (PENDING -> PROCESSING, ClaimForProcessing);
// two workers racing on the same document_id cannot both run the pipeline
// concurrently because the loser's claim affects zero rows.
type PipelineService struct {
	docRepo  DocumentRepository
	chunks   ChunkDeleter
	parser   Parser
	scanner  InjectionScanner
	chunker  Chunker
	embedder Embedder
	audit    AuditLogger
}

func NewPipelineService(
	docRepo DocumentRepository,
	chunks ChunkDeleter,
	parser Parser,
	scanner InjectionScanner,
	chunker Chunker,
	embedder Embedder,
	audit AuditLogger,
) *PipelineService {
	return &PipelineService{
		docRepo:  docRepo,
		chunks:   chunks,
		parser:   parser,
		scanner:  scanner,
		chunker:  chunker,
		embedder: embedder,
		audit:    audit,
	}
}

// ProcessDocument runs the ingestion pipeline for a document. queue.Worker's
// job handler calls it after claiming the document (status PROCESSING).
// Reprocess also calls it directly, inside the HTTP request, on a document it
// has reset to PENDING without a claim.
func (s *PipelineService) ProcessDocument(ctx context.Context, docID string) error {
	slog.Info("pipeline starting", "document_id", docID)

	doc, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		return fmt.Errorf("pipeline.ProcessDocument: get document: %w", err)
	}

	if doc.StorageKey == nil {
		s.fail(ctx, doc, apperr.New(apperr.CodeValidation, "document has no storage key"))
		return fmt.Errorf("pipeline.ProcessDocument: document %s has no storage key", docID)
	}

	slog.Info("pipeline extracting text", "document_id", docID, "storage_key", *doc.StorageKey)
	parsed, err := s.parser.Extract(ctx, *doc.StorageKey)
	if err != nil {
		wrapped := apperr.Wrap(apperr.CodeStorageError, "text extraction failed", err)
		s.fail(ctx, doc, wrapped)
		return fmt.Errorf("pipeline.ProcessDocument: parse: %w", err)
	}

	chunks, err := s.chunker.Chunk(ctx, parsed.Text, docID)
	if err != nil {
		wrapped := apperr.Wrap(apperr.CodeValidation, "chunking failed", err)
		s.fail(ctx, doc, wrapped)
		return fmt.Errorf("pipeline.ProcessDocument: chunk: %w", err)
	}
	slog.Info("pipeline chunks created", "document_id", docID, "chunk_count", len(chunks))

	for i := range chunks {
		scan := s.scanner.Scan(ctx, chunks[i].Content)
		chunks[i].Metadata = scan.ToChunkMetadata()
		if IsFlagged(chunks[i].Metadata) {
			slog.Warn("pipeline chunk flagged for injection risk",
				"document_id", docID, "chunk_index", chunks[i].Index, "risk_score", scan.RiskScore)
		}
	}

	if err := s.embedder.EmbedAndStore(ctx, doc.WorkspaceID, chunks); err != nil {
		wrapped := apperr.Wrap(apperr.CodeEmbeddingError, "embedding failed", err)
		s.fail(ctx, doc, wrapped)
		return fmt.Errorf("pipeline.ProcessDocument: embed: %w", err)
	}

	if err := s.docRepo.UpdateChunkCount(ctx, docID, len(chunks)); err != nil {
		slog.Warn("pipeline failed to update chunk count", "document_id", docID, "error", err)
	}
	if err := s.docRepo.UpdateStatus(ctx, docID, model.DocumentReady, nil); err != nil {
		return fmt.Errorf("pipeline.ProcessDocument: set ready: %w", err)
	}

	if s.audit != nil {
		payload, _ := json.Marshal(map[string]any{"document_id": docID, "chunk_count": len(chunks)})
		if err := s.audit.Log(ctx, model.AuditDocumentReady, &doc.WorkspaceID, &doc.UploaderUserID, payload); err != nil {
			slog.Warn("pipeline audit log failed", "document_id", docID, "error", err)
		}
	}

	slog.Info("pipeline completed", "document_id", docID, "chunk_count", len(chunks))
	return nil
}

// Reprocess re-runs ingestion for a document that is not currently
// PROCESSING: it resets the status to PENDING (clearing the error), deletes
// existing chunks, then runs ProcessDocument synchronously, so a reader never
// observes a mix of old and new chunks for one document. No queue job is
// enqueued. A document currently PROCESSING returns a typed Conflict instead
// of racing the in-flight worker.
func (s *PipelineService) Reprocess(ctx context.Context, docID string) error {
	doc, err := s.docRepo.GetByID(ctx, docID)
	if err != nil {
		return fmt.Errorf("pipeline.Reprocess: get document: %w", err)
	}
	if doc.Status == model.DocumentProcessing {
		return apperr.Conflict("document is already being processed", docID)
	}

	if err := s.docRepo.UpdateStatus(ctx, docID, model.DocumentPending, nil); err != nil {
		return fmt.Errorf("pipeline.Reprocess: reset status: %w", err)
	}
	if err := s.chunks.DeleteByDocumentID(ctx, docID); err != nil {
		return fmt.Errorf("pipeline.Reprocess: delete existing chunks: %w", err)
	}
	return s.ProcessDocument(ctx, docID)
}

func (s *PipelineService) fail(ctx context.Context, doc *model.Document, cause error) {
	msg := cause.Error()
	if err := s.docRepo.UpdateStatus(ctx, doc.ID, model.DocumentFailed, &msg); err != nil {
		slog.Error("pipeline failed to record failure status", "document_id", doc.ID, "error", err)
	}
	if s.audit != nil {
		payload, _ := json.Marshal(map[string]any{"document_id": doc.ID, "error": msg})
		if err := s.audit.Log(ctx, model.AuditDocumentFailed, &doc.WorkspaceID, &doc.UploaderUserID, payload); err != nil {
			slog.Warn("pipeline audit log failed", "document_id", doc.ID, "error", err)
		}
	}
}
