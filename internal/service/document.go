package service

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// StorageClient abstracts Cloud Storage operations for testability.
type StorageClient interface {
	SignedURL(bucket, object string, opts *SignedURLOptions) (string, error)
}

// SignedURLOptions mirrors the options needed for generating signed URLs.
type SignedURLOptions struct {
	Method      string
	Expires     time.Time
	ContentType string
}

// DocumentRepository defines the persistence operations for documents.
type DocumentRepository interface {
	Create(ctx context.Context, doc *model.Document) error
	GetByID(ctx context.Context, id string) (*model.Document, error)
	ListByWorkspace(ctx context.Context, workspaceID string, opts ListOpts) ([]model.Document, int, error)
	UpdateStatus(ctx context.Context, id string, status model.DocumentStatus, errMsg *string) error
	UpdateChunkCount(ctx context.Context, id string, count int) error
	SoftDelete(ctx context.Context, id string) error

	// ClaimForProcessing atomically transitions a PENDING document to
	// PROCESSING. It reports false, with no error, when the document was not
	// PENDING — the caller must treat that as a no-op, not a failure: it
	// means another worker already claimed (or finished) the job.
	ClaimForProcessing(ctx context.Context, id string) (bool, error)
}

// ListOpts holds pagination options for document listing. Limit is always
// clamped server-side; callers cannot request an unbounded page.
type ListOpts struct {
	Limit  int
	Offset int
}

const maxListLimit = 100

func (o ListOpts) clamp() ListOpts {
	if o.Limit <= 0 || o.Limit > maxListLimit {
		o.Limit = maxListLimit
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// SignedURLResponse is returned to the client with the upload URL.
type SignedURLResponse struct {
	URL        string `json:"url"`
	DocumentID string `json:"documentId"`
	ObjectName string `json:"objectName"`
}

// DocumentService handles document intake orchestration: validating the
// upload, minting a signed PUT URL, and recording a PENDING document that the
// ingestion worker later claims (see queue.Worker).
type DocumentService struct {
	storage    StorageClient
	docRepo    DocumentRepository
	bucketName string
	urlExpiry  time.Duration
}

// NewDocumentService creates a DocumentService.
func NewDocumentService(storage StorageClient, docRepo DocumentRepository, bucketName string, urlExpiry time.Duration) *DocumentService {
	return &DocumentService{
		storage:    storage,
		docRepo:    docRepo,
		bucketName: bucketName,
		urlExpiry:  urlExpiry,
	}
}

// GenerateUploadURL creates a signed PUT URL for direct client upload to
// Cloud Storage and creates a PENDING document record scoped to workspaceID.
func (s *DocumentService) GenerateUploadURL(ctx context.Context, workspaceID, uploaderUserID, filename, contentType string, sizeBytes int) (*SignedURLResponse, error) {
	if !model.AllowedMimeTypes[contentType] {
		return nil, fmt.Errorf("service.GenerateUploadURL: unsupported content type %q", contentType)
	}

	if sizeBytes > model.MaxFileSizeBytes {
		return nil, fmt.Errorf("service.GenerateUploadURL: file size %d exceeds maximum %d bytes", sizeBytes, model.MaxFileSizeBytes)
	}

	if sizeBytes <= 0 {
		return nil, fmt.Errorf("service.GenerateUploadURL: file size must be positive")
	}

	docID := uuid.New().String()
	objectName := fmt.Sprintf("uploads/%s/%s/%s", workspaceID, docID, filename)

	url, err := s.storage.SignedURL(s.bucketName, objectName, &SignedURLOptions{
		Method:      "PUT",
		Expires:     time.Now().Add(s.urlExpiry),
		ContentType: contentType,
	})
	if err != nil {
		return nil, fmt.Errorf("service.GenerateUploadURL: sign URL: %w", err)
	}

	storageKey := objectName
	mime := contentType
	fname := filename

	doc := &model.Document{
		ID:             docID,
		WorkspaceID:    workspaceID,
		Title:          strings.TrimSuffix(filename, filepath.Ext(filename)),
		FileName:       &fname,
		MimeType:       &mime,
		StorageKey:     &storageKey,
		Status:         model.DocumentPending,
		UploaderUserID: uploaderUserID,
		CreatedAt:      time.Now().UTC(),
		UpdatedAt:      time.Now().UTC(),
	}

	if err := s.docRepo.Create(ctx, doc); err != nil {
		return nil, fmt.Errorf("service.GenerateUploadURL: create document: %w", err)
	}

	return &SignedURLResponse{
		URL:        url,
		DocumentID: docID,
		ObjectName: objectName,
	}, nil
}

// List returns a workspace's documents, most recent first.
func (s *DocumentService) List(ctx context.Context, workspaceID string, opts ListOpts) ([]model.Document, int, error) {
	return s.docRepo.ListByWorkspace(ctx, workspaceID, opts.clamp())
}

// Get returns a single document by ID.
func (s *DocumentService) Get(ctx context.Context, id string) (*model.Document, error) {
	return s.docRepo.GetByID(ctx, id)
}

// Delete soft-deletes a document. Chunk cleanup is the caller's
// responsibility (the DeleteDocument handler calls
// ChunkDeleter.DeleteByDocumentID).
func (s *DocumentService) Delete(ctx context.Context, id string) error {
	return s.docRepo.SoftDelete(ctx, id)
}
