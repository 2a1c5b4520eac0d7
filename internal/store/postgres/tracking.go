package postgres

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

// ReplaceMetrics swaps the run's metric rows for the batch in one
// transaction.
func (s *Store) ReplaceMetrics(ctx context.Context, runID uuid.UUID, rows []*models.RunMetric) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `DELETE FROM run_metrics WHERE run_uuid = $1`, runID); err != nil {
		return mapError(err)
	}

	batch := &pgx.Batch{}
	now := s.now()
	for _, row := range rows {
		store.EnsureIdentity(&row.Base, now)
		row.RunUUID = runID
		batch.Queue(`
			INSERT INTO run_metrics (
				uuid, suuid, created_at, modified_at,
				run_uuid, name, value, type, labels, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		`,
			row.UUID, row.SUUID, row.CreatedAt, row.ModifiedAt,
			row.RunUUID, row.Name, row.Value, row.Type, row.Labels, row.RecordedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit(ctx))
}

func (s *Store) ListMetrics(ctx context.Context, runID uuid.UUID) ([]*models.RunMetric, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uuid, suuid, created_at, modified_at, deleted_at,
			run_uuid, name, value, type, labels, recorded_at
		FROM run_metrics
		WHERE run_uuid = $1
		ORDER BY recorded_at, name
	`, runID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*models.RunMetric
	for rows.Next() {
		var m models.RunMetric
		err := rows.Scan(
			&m.UUID, &m.SUUID, &m.CreatedAt, &m.ModifiedAt, &m.DeletedAt,
			&m.RunUUID, &m.Name, &m.Value, &m.Type, &m.Labels, &m.RecordedAt,
		)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, &m)
	}
	return out, mapError(rows.Err())
}

// ReplaceVariables swaps the run's variable rows for the batch in one
// transaction.
func (s *Store) ReplaceVariables(ctx context.Context, runID uuid.UUID, rows []*models.RunVariable) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return mapError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	if _, err := tx.Exec(ctx, `DELETE FROM run_variables WHERE run_uuid = $1`, runID); err != nil {
		return mapError(err)
	}

	batch := &pgx.Batch{}
	now := s.now()
	for _, row := range rows {
		store.EnsureIdentity(&row.Base, now)
		row.RunUUID = runID
		batch.Queue(`
			INSERT INTO run_variables (
				uuid, suuid, created_at, modified_at,
				run_uuid, name, value, type, labels, is_masked, recorded_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		`,
			row.UUID, row.SUUID, row.CreatedAt, row.ModifiedAt,
			row.RunUUID, row.Name, row.Value, row.Type, row.Labels, row.IsMasked, row.RecordedAt,
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return mapError(err)
	}
	return mapError(tx.Commit(ctx))
}

func (s *Store) ListVariables(ctx context.Context, runID uuid.UUID) ([]*models.RunVariable, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT uuid, suuid, created_at, modified_at, deleted_at,
			run_uuid, name, value, type, labels, is_masked, recorded_at
		FROM run_variables
		WHERE run_uuid = $1
		ORDER BY recorded_at, name
	`, runID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*models.RunVariable
	for rows.Next() {
		var v models.RunVariable
		err := rows.Scan(
			&v.UUID, &v.SUUID, &v.CreatedAt, &v.ModifiedAt, &v.DeletedAt,
			&v.RunUUID, &v.Name, &v.Value, &v.Type, &v.Labels, &v.IsMasked, &v.RecordedAt,
		)
		if err != nil {
			return nil, mapError(err)
		}
		out = append(out, &v)
	}
	return out, mapError(rows.Err())
}

// DeduplicateObservations drops rows identical on (name, value, labels,
// recorded_at), keeping the oldest of each group.
func (s *Store) DeduplicateObservations(ctx context.Context, runID uuid.UUID) (int, error) {
	removed := 0
	for _, table := range []string{"run_metrics", "run_variables"} {
		tag, err := s.pool.Exec(ctx, `
			DELETE FROM `+table+` a
			USING `+table+` b
			WHERE a.run_uuid = $1 AND b.run_uuid = $1
			  AND a.name = b.name
			  AND a.recorded_at = b.recorded_at
			  AND a.value IS NOT DISTINCT FROM b.value
			  AND a.labels = b.labels
			  AND a.ctid > b.ctid
		`, runID)
		if err != nil {
			return removed, mapError(err)
		}
		removed += int(tag.RowsAffected())
	}
	return removed, nil
}

func (s *Store) SetProjectVariable(ctx context.Context, projectID uuid.UUID, name, value string, masked bool) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO project_variables (project_uuid, name, value, masked, created_at, modified_at)
		VALUES ($1, $2, $3, $4, $5, $5)
		ON CONFLICT (project_uuid, name)
		DO UPDATE SET value = EXCLUDED.value, masked = EXCLUDED.masked, modified_at = EXCLUDED.modified_at
	`, projectID, name, value, masked, s.now())
	return mapError(err)
}

func (s *Store) ProjectVariables(ctx context.Context, projectID uuid.UUID) (map[string]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, value FROM project_variables WHERE project_uuid = $1
	`, projectID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	out := make(map[string]string)
	for rows.Next() {
		var name, value string
		if err := rows.Scan(&name, &value); err != nil {
			return nil, mapError(err)
		}
		out[name] = value
	}
	return out, mapError(rows.Err())
}

func (s *Store) DeleteProjectVariable(ctx context.Context, projectID uuid.UUID, name string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM project_variables WHERE project_uuid = $1 AND name = $2
	`, projectID, name)
	return mapError(err)
}
