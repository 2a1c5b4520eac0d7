package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

const userColumns = `
	uuid, suuid, created_at, modified_at, deleted_at,
	email, name, is_active, is_superuser, password_hash, auth_token,
	job_title, avatar_file
`

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.UUID, &u.SUUID, &u.CreatedAt, &u.ModifiedAt, &u.DeletedAt,
		&u.Email, &u.Name, &u.IsActive, &u.IsSuperuser, &u.PasswordHash, &u.AuthToken,
		&u.JobTitle, &u.AvatarFile,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	store.EnsureIdentity(&user.Base, s.now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (`+userColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		user.UUID, user.SUUID, user.CreatedAt, user.ModifiedAt, user.DeletedAt,
		user.Email, user.Name, user.IsActive, user.IsSuperuser, user.PasswordHash, user.AuthToken,
		user.JobTitle, user.AvatarFile,
	)
	return mapError(err)
}

func (s *Store) GetUserByUUID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE uuid = $1 AND deleted_at IS NULL
	`, id))
}

func (s *Store) GetUserByAuthToken(ctx context.Context, token string) (*models.User, error) {
	if token == "" {
		return nil, store.ErrNotFound
	}
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE auth_token = $1 AND deleted_at IS NULL
	`, token))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	return scanUser(s.pool.QueryRow(ctx, `
		SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL
	`, email))
}

const membershipColumns = `
	uuid, suuid, created_at, modified_at, deleted_at,
	user_uuid, object_type, object_uuid, role_code,
	name, job_title, use_global_profile, avatar_file,
	email, invitation_token, invited_at, resend_count
`

func scanMembership(row pgx.Row) (*models.Membership, error) {
	var m models.Membership
	err := row.Scan(
		&m.UUID, &m.SUUID, &m.CreatedAt, &m.ModifiedAt, &m.DeletedAt,
		&m.UserUUID, &m.ObjectType, &m.ObjectUUID, &m.RoleCode,
		&m.Name, &m.JobTitle, &m.UseGlobalProfile, &m.AvatarFile,
		&m.Email, &m.InvitationToken, &m.InvitedAt, &m.ResendCount,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &m, nil
}

func (s *Store) CreateMembership(ctx context.Context, m *models.Membership) error {
	store.EnsureIdentity(&m.Base, s.now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO memberships (`+membershipColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
	`,
		m.UUID, m.SUUID, m.CreatedAt, m.ModifiedAt, m.DeletedAt,
		m.UserUUID, m.ObjectType, m.ObjectUUID, m.RoleCode,
		m.Name, m.JobTitle, m.UseGlobalProfile, m.AvatarFile,
		m.Email, m.InvitationToken, m.InvitedAt, m.ResendCount,
	)
	return mapError(err)
}

func (s *Store) GetMembershipBySUUID(ctx context.Context, suuid string) (*models.Membership, error) {
	return scanMembership(s.pool.QueryRow(ctx, `
		SELECT `+membershipColumns+` FROM memberships WHERE suuid = $1 AND deleted_at IS NULL
	`, suuid))
}

func (s *Store) UpdateMembership(ctx context.Context, m *models.Membership) error {
	m.ModifiedAt = s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE memberships SET
			modified_at = $2, user_uuid = $3, role_code = $4,
			name = $5, job_title = $6, use_global_profile = $7, avatar_file = $8,
			email = $9, invitation_token = $10, invited_at = $11, resend_count = $12
		WHERE uuid = $1 AND deleted_at IS NULL
	`,
		m.UUID, m.ModifiedAt, m.UserUUID, m.RoleCode,
		m.Name, m.JobTitle, m.UseGlobalProfile, m.AvatarFile,
		m.Email, m.InvitationToken, m.InvitedAt, m.ResendCount,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) SoftDeleteMembership(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE memberships SET deleted_at = $2, modified_at = $2
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

func (s *Store) MembershipsForUser(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT object_uuid, role_code FROM memberships
		WHERE user_uuid = $1 AND deleted_at IS NULL
	`, userID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[uuid.UUID]string)
	for rows.Next() {
		var objectID uuid.UUID
		var roleCode string
		if err := rows.Scan(&objectID, &roleCode); err != nil {
			return nil, mapError(err)
		}
		out[objectID] = roleCode
	}
	return out, mapError(rows.Err())
}

func (s *Store) MembershipsForWorkspace(ctx context.Context, workspaceID uuid.UUID, withInvitations bool) ([]*models.Membership, error) {
	query := `
		SELECT ` + membershipColumns + ` FROM memberships
		WHERE object_uuid = $1 AND deleted_at IS NULL
	`
	if !withInvitations {
		query += ` AND user_uuid IS NOT NULL`
	}
	rows, err := s.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*models.Membership
	for rows.Next() {
		m, err := scanMembership(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, mapError(rows.Err())
}
