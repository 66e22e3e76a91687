package model

import (
	"encoding/json"
	"time"
)

// DocumentStatus is the ingestion lifecycle state of a Document.
type DocumentStatus string

const (
	DocumentPending    DocumentStatus = "PENDING"
	DocumentProcessing DocumentStatus = "PROCESSING"
	DocumentReady      DocumentStatus = "READY"
	DocumentFailed     DocumentStatus = "FAILED"
)

// Document represents an uploaded file ingested into a workspace.
type Document struct {
	ID             string          `json:"id"`
	WorkspaceID    string          `json:"workspaceId"`
	Title          string          `json:"title"`
	Source         *string         `json:"source,omitempty"`
	FileName       *string         `json:"fileName,omitempty"`
	MimeType       *string         `json:"mimeType,omitempty"`
	StorageKey     *string         `json:"storageKey,omitempty"`
	Status         DocumentStatus  `json:"status"`
	ErrorMessage   *string         `json:"errorMessage,omitempty"`
	Tags           []string        `json:"tags,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	UploaderUserID string          `json:"uploaderUserId"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	DeletedAt      *time.Time      `json:"deletedAt,omitempty"`
}

// Deleted reports whether the document has been soft-deleted.
func (d Document) Deleted() bool {
	return d.DeletedAt != nil
}

// EmbeddingDimensions is the fixed vector width every Chunk.Embedding must carry.
const EmbeddingDimensions = 768

// ChunkMetadata carries the injection-detector output for a chunk (C5).
// Raw source text is never persisted in metadata — only the derived signals.
type ChunkMetadata struct {
	SecurityFlags    []string `json:"securityFlags,omitempty"`
	RiskScore        float64  `json:"riskScore"`
	DetectedPatterns []string `json:"detectedPatterns,omitempty"`
}

// Chunk is a fragment of a Document with its embedding and derived full-text
// vector. WorkspaceID is denormalized from the parent Document to scope
// retrieval queries without a join.
type Chunk struct {
	ID          string        `json:"id"`
	DocumentID  string        `json:"documentId"`
	WorkspaceID string        `json:"workspaceId"`
	ChunkIndex  int           `json:"chunkIndex"`
	Content     string        `json:"content"`
	Embedding   []float32     `json:"-"`
	Metadata    ChunkMetadata `json:"metadata"`
	CreatedAt   time.Time     `json:"createdAt"`
}

// AllowedMimeTypes lists the mime types accepted for upload: PDF, DOCX, plain text.
var AllowedMimeTypes = map[string]bool{
	"application/pdf": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
	"text/plain": true,
}

// MaxFileSizeBytes is the maximum allowed upload size (50 MB).
const MaxFileSizeBytes = 50 * 1024 * 1024
