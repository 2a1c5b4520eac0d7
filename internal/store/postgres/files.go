package postgres

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

const objectReferenceColumns = `
	uuid, suuid, created_at, modified_at, deleted_at,
	owner_kind, owner_uuid, owner_suuid
`

func scanObjectReference(row pgx.Row) (*models.ObjectReference, error) {
	var ref models.ObjectReference
	err := row.Scan(
		&ref.UUID, &ref.SUUID, &ref.CreatedAt, &ref.ModifiedAt, &ref.DeletedAt,
		&ref.OwnerKind, &ref.OwnerUUID, &ref.OwnerSUUID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &ref, nil
}

func (s *Store) ObjectReferenceFor(ctx context.Context, kind models.OwnerKind, ownerUUID uuid.UUID, ownerSUUID string) (*models.ObjectReference, error) {
	ref := &models.ObjectReference{
		OwnerKind:  kind,
		OwnerUUID:  ownerUUID,
		OwnerSUUID: ownerSUUID,
	}
	if err := ref.Validate(); err != nil {
		return nil, err
	}

	existing, err := scanObjectReference(s.pool.QueryRow(ctx, `
		SELECT `+objectReferenceColumns+` FROM object_references
		WHERE owner_kind = $1 AND owner_uuid = $2
	`, kind, ownerUUID))
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	store.EnsureIdentity(&ref.Base, s.now())
	_, err = s.pool.Exec(ctx, `
		INSERT INTO object_references (`+objectReferenceColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (owner_kind, owner_uuid) DO NOTHING
	`,
		ref.UUID, ref.SUUID, ref.CreatedAt, ref.ModifiedAt, ref.DeletedAt,
		ref.OwnerKind, ref.OwnerUUID, ref.OwnerSUUID,
	)
	if err != nil {
		return nil, mapError(err)
	}

	// Re-read in case a concurrent create won the conflict.
	return scanObjectReference(s.pool.QueryRow(ctx, `
		SELECT `+objectReferenceColumns+` FROM object_references
		WHERE owner_kind = $1 AND owner_uuid = $2
	`, kind, ownerUUID))
}

func (s *Store) GetObjectReference(ctx context.Context, id uuid.UUID) (*models.ObjectReference, error) {
	return scanObjectReference(s.pool.QueryRow(ctx, `
		SELECT `+objectReferenceColumns+` FROM object_references WHERE uuid = $1
	`, id))
}

const fileColumns = `
	uuid, suuid, created_at, modified_at, deleted_at,
	name, description, size, etag, content_type, completed_at,
	created_for, created_by
`

func scanFile(row pgx.Row) (*models.File, error) {
	var f models.File
	err := row.Scan(
		&f.UUID, &f.SUUID, &f.CreatedAt, &f.ModifiedAt, &f.DeletedAt,
		&f.Name, &f.Description, &f.Size, &f.Etag, &f.ContentType, &f.CompletedAt,
		&f.CreatedFor, &f.CreatedBy,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &f, nil
}

func (s *Store) CreateFile(ctx context.Context, f *models.File) error {
	store.EnsureIdentity(&f.Base, s.now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO files (`+fileColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		f.UUID, f.SUUID, f.CreatedAt, f.ModifiedAt, f.DeletedAt,
		f.Name, f.Description, f.Size, f.Etag, f.ContentType, f.CompletedAt,
		f.CreatedFor, f.CreatedBy,
	)
	return mapError(err)
}

func (s *Store) GetFileByUUID(ctx context.Context, id uuid.UUID) (*models.File, error) {
	return scanFile(s.pool.QueryRow(ctx, `
		SELECT `+fileColumns+` FROM files WHERE uuid = $1 AND deleted_at IS NULL
	`, id))
}

func (s *Store) GetFileBySUUID(ctx context.Context, suuid string) (*models.File, error) {
	return scanFile(s.pool.QueryRow(ctx, `
		SELECT `+fileColumns+` FROM files WHERE suuid = $1 AND deleted_at IS NULL
	`, suuid))
}

func (s *Store) UpdateFile(ctx context.Context, f *models.File) error {
	f.ModifiedAt = s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE files SET
			modified_at = $2, name = $3, description = $4,
			size = $5, etag = $6, content_type = $7, completed_at = $8
		WHERE uuid = $1 AND deleted_at IS NULL
	`,
		f.UUID, f.ModifiedAt, f.Name, f.Description,
		f.Size, f.Etag, f.ContentType, f.CompletedAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteFile(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM files WHERE uuid = $1`, id)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListFilesForOwner(ctx context.Context, refID uuid.UUID) ([]*models.File, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+fileColumns+` FROM files
		WHERE created_for = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`, refID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*models.File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, mapError(rows.Err())
}
