package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/connexus-ai/ragbox-backend/internal/model"
)

// WorkspaceRepo persists Workspace rows with pgx.
type WorkspaceRepo struct {
	pool *pgxpool.Pool
}

func NewWorkspaceRepo(pool *pgxpool.Pool) *WorkspaceRepo {
	return &WorkspaceRepo{pool: pool}
}

func (r *WorkspaceRepo) Create(ctx context.Context, ws *model.Workspace) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO workspaces (id, name, owner_user_id, visibility, archived_at, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		ws.ID, ws.Name, ws.OwnerUserID, string(ws.Visibility), ws.ArchivedAt, ws.CreatedAt, ws.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("repository.WorkspaceCreate: %w", err)
	}
	return nil
}

func (r *WorkspaceRepo) GetByID(ctx context.Context, id string) (*model.Workspace, error) {
	ws := &model.Workspace{}
	var visibility string
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, owner_user_id, visibility, archived_at, created_at, updated_at
		 FROM workspaces WHERE id = $1`, id,
	).Scan(&ws.ID, &ws.Name, &ws.OwnerUserID, &visibility, &ws.ArchivedAt, &ws.CreatedAt, &ws.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("repository.WorkspaceGetByID: %w", err)
	}
	ws.Visibility = model.Visibility(visibility)
	return ws, nil
}

// ListForActor lists every workspace for an admin; for a non-admin it lists
// the workspaces the actor owns plus those visible via ORG_READ or an ACL
// grant. limit is always applied; a limit <= 0 or above 200 becomes 200.
func (r *WorkspaceRepo) ListForActor(ctx context.Context, actorUserID string, isAdmin bool, limit, offset int) ([]model.Workspace, error) {
	if limit <= 0 || limit > 200 {
		limit = 200
	}

	query := `
		SELECT DISTINCT w.id, w.name, w.owner_user_id, w.visibility, w.archived_at, w.created_at, w.updated_at
		FROM workspaces w
		LEFT JOIN workspace_acl a ON a.workspace_id = w.id AND a.user_id = $1
		WHERE w.owner_user_id = $1 OR w.visibility = 'ORG_READ' OR a.user_id = $1`
	args := []interface{}{actorUserID}

	if isAdmin {
		query = `SELECT id, name, owner_user_id, visibility, archived_at, created_at, updated_at FROM workspaces w`
		args = nil
	}

	query += fmt.Sprintf(` ORDER BY w.created_at DESC LIMIT $%d OFFSET $%d`, len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("repository.WorkspaceListForActor: %w", err)
	}
	defer rows.Close()

	var out []model.Workspace
	for rows.Next() {
		var ws model.Workspace
		var visibility string
		if err := rows.Scan(&ws.ID, &ws.Name, &ws.OwnerUserID, &visibility, &ws.ArchivedAt, &ws.CreatedAt, &ws.UpdatedAt); err != nil {
			return nil, fmt.Errorf("repository.WorkspaceListForActor: scan: %w", err)
		}
		ws.Visibility = model.Visibility(visibility)
		out = append(out, ws)
	}
	return out, nil
}

func (r *WorkspaceRepo) UpdateVisibility(ctx context.Context, id string, visibility model.Visibility) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE workspaces SET visibility = $1, updated_at = now() WHERE id = $2`,
		string(visibility), id,
	)
	if err != nil {
		return fmt.Errorf("repository.WorkspaceUpdateVisibility: %w", err)
	}
	return nil
}

func (r *WorkspaceRepo) Archive(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE workspaces SET archived_at = now(), updated_at = now() WHERE id = $1 AND archived_at IS NULL`,
		id,
	)
	if err != nil {
		return fmt.Errorf("repository.WorkspaceArchive: %w", err)
	}
	return nil
}

// ACLRepo persists WorkspaceACL grant rows.
type ACLRepo struct {
	pool *pgxpool.Pool
}

func NewACLRepo(pool *pgxpool.Pool) *ACLRepo {
	return &ACLRepo{pool: pool}
}

func (r *ACLRepo) Grant(ctx context.Context, workspaceID, userID string, access model.ACLAccess) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO workspace_acl (workspace_id, user_id, access)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (workspace_id, user_id) DO UPDATE SET access = $3`,
		workspaceID, userID, string(access),
	)
	if err != nil {
		return fmt.Errorf("repository.ACLGrant: %w", err)
	}
	return nil
}

func (r *ACLRepo) Revoke(ctx context.Context, workspaceID, userID string) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM workspace_acl WHERE workspace_id = $1 AND user_id = $2`,
		workspaceID, userID,
	)
	if err != nil {
		return fmt.Errorf("repository.ACLRevoke: %w", err)
	}
	return nil
}

func (r *ACLRepo) ListByWorkspace(ctx context.Context, workspaceID string) ([]model.WorkspaceACL, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT workspace_id, user_id, access FROM workspace_acl WHERE workspace_id = $1`,
		workspaceID,
	)
	if err != nil {
		return nil, fmt.Errorf("repository.ACLListByWorkspace: %w", err)
	}
	defer rows.Close()

	var out []model.WorkspaceACL
	for rows.Next() {
		var a model.WorkspaceACL
		var access string
		if err := rows.Scan(&a.WorkspaceID, &a.UserID, &access); err != nil {
			return nil, fmt.Errorf("repository.ACLListByWorkspace: scan: %w", err)
		}
		a.Access = model.ACLAccess(access)
		out = append(out, a)
	}
	return out, nil
}
