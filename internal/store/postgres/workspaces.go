package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

const workspaceColumns = `
	uuid, suuid, created_at, modified_at, deleted_at,
	name, description, visibility, created_by
`

func scanWorkspace(row pgx.Row) (*models.Workspace, error) {
	var ws models.Workspace
	err := row.Scan(
		&ws.UUID, &ws.SUUID, &ws.CreatedAt, &ws.ModifiedAt, &ws.DeletedAt,
		&ws.Name, &ws.Description, &ws.Visibility, &ws.CreatedBy,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &ws, nil
}

func (s *Store) CreateWorkspace(ctx context.Context, ws *models.Workspace) error {
	store.EnsureIdentity(&ws.Base, s.now())
	if ws.Visibility == "" {
		ws.Visibility = models.VisibilityPrivate
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workspaces (`+workspaceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		ws.UUID, ws.SUUID, ws.CreatedAt, ws.ModifiedAt, ws.DeletedAt,
		ws.Name, ws.Description, ws.Visibility, ws.CreatedBy,
	)
	return mapError(err)
}

func (s *Store) GetWorkspaceByUUID(ctx context.Context, id uuid.UUID) (*models.Workspace, error) {
	return scanWorkspace(s.pool.QueryRow(ctx, `
		SELECT `+workspaceColumns+` FROM workspaces WHERE uuid = $1 AND deleted_at IS NULL
	`, id))
}

func (s *Store) GetWorkspaceBySUUID(ctx context.Context, suuid string) (*models.Workspace, error) {
	return scanWorkspace(s.pool.QueryRow(ctx, `
		SELECT `+workspaceColumns+` FROM workspaces WHERE suuid = $1 AND deleted_at IS NULL
	`, suuid))
}

func (s *Store) UpdateWorkspace(ctx context.Context, ws *models.Workspace) error {
	ws.ModifiedAt = s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE workspaces SET modified_at = $2, name = $3, description = $4, visibility = $5
		WHERE uuid = $1 AND deleted_at IS NULL
	`, ws.UUID, ws.ModifiedAt, ws.Name, ws.Description, ws.Visibility)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeleteWorkspace(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE workspaces SET deleted_at = $2, modified_at = $2
		WHERE uuid = $1 AND deleted_at IS NULL
	`, id, s.now())
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListWorkspaces(ctx context.Context) ([]*models.Workspace, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+workspaceColumns+` FROM workspaces WHERE deleted_at IS NULL
		ORDER BY created_at
	`)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*models.Workspace
	for rows.Next() {
		ws, err := scanWorkspace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ws)
	}
	return out, mapError(rows.Err())
}

const projectColumns = `
	uuid, suuid, created_at, modified_at, deleted_at,
	name, description, visibility, workspace_uuid, created_by
`

func scanProject(row pgx.Row) (*models.Project, error) {
	var p models.Project
	err := row.Scan(
		&p.UUID, &p.SUUID, &p.CreatedAt, &p.ModifiedAt, &p.DeletedAt,
		&p.Name, &p.Description, &p.Visibility, &p.WorkspaceUUID, &p.CreatedBy,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (s *Store) CreateProject(ctx context.Context, p *models.Project) error {
	store.EnsureIdentity(&p.Base, s.now())
	if p.Visibility == "" {
		p.Visibility = models.VisibilityPrivate
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO projects (`+projectColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`,
		p.UUID, p.SUUID, p.CreatedAt, p.ModifiedAt, p.DeletedAt,
		p.Name, p.Description, p.Visibility, p.WorkspaceUUID, p.CreatedBy,
	)
	return mapError(err)
}

func (s *Store) GetProjectByUUID(ctx context.Context, id uuid.UUID) (*models.Project, error) {
	return scanProject(s.pool.QueryRow(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE uuid = $1 AND deleted_at IS NULL
	`, id))
}

func (s *Store) GetProjectBySUUID(ctx context.Context, suuid string) (*models.Project, error) {
	return scanProject(s.pool.QueryRow(ctx, `
		SELECT `+projectColumns+` FROM projects WHERE suuid = $1 AND deleted_at IS NULL
	`, suuid))
}

func (s *Store) UpdateProject(ctx context.Context, p *models.Project) error {
	p.ModifiedAt = s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects SET modified_at = $2, name = $3, description = $4, visibility = $5
		WHERE uuid = $1 AND deleted_at IS NULL
	`, p.UUID, p.ModifiedAt, p.Name, p.Description, p.Visibility)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeleteProject(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE projects SET deleted_at = $2, modified_at = $2
		WHERE uuid = $1 AND deleted_at IS NULL
	`, id, s.now())
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListProjects(ctx context.Context, workspaceID *uuid.UUID) ([]*models.Project, error) {
	query := `SELECT ` + projectColumns + ` FROM projects WHERE deleted_at IS NULL`
	args := []any{}
	if workspaceID != nil {
		query += ` AND workspace_uuid = $1`
		args = append(args, *workspaceID)
	}
	query += ` ORDER BY created_at`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*models.Project
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, mapError(rows.Err())
}
