package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// AuditRepository abstracts persistence of audit events.
type AuditRepository interface {
	Create(ctx context.Context, entry *model.AuditEvent) error
	List(ctx context.Context, f AuditFilter) ([]model.AuditEvent, int, error)
}

// AuditFilter narrows List results. Limit is always clamped server-side.
type AuditFilter struct {
	WorkspaceID *string
	ActorUserID *string
	Kind        string
	Limit       int
	Offset      int
}

// AuditService records immutable lifecycle and security events. Log returns
// write failures to the caller; PipelineService logs them and carries on, so
// audit there is best-effort.
type AuditService struct {
	repo AuditRepository
}

// Compile-time check that AuditService implements the pipeline's AuditLogger port.
var _ AuditLogger = (*AuditService)(nil)

func NewAuditService(repo AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

// Log records a single audit event. workspaceID and actorUserID may be nil
// when the event must not confirm the existence of the resource it concerns
// (e.g. an access-denied lookup against a hidden workspace).
func (s *AuditService) Log(ctx context.Context, kind string, workspaceID, actorUserID *string, payload json.RawMessage) error {
	entry := &model.AuditEvent{
		ID:          uuid.New().String(),
		WorkspaceID: workspaceID,
		ActorUserID: actorUserID,
		Kind:        kind,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}

	if err := s.repo.Create(ctx, entry); err != nil {
		return fmt.Errorf("service.Log: %w", err)
	}
	return nil
}

// List returns audit events matching f, most recent first.
func (s *AuditService) List(ctx context.Context, f AuditFilter) ([]model.AuditEvent, int, error) {
	if f.Limit <= 0 || f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.repo.List(ctx, f)
}
