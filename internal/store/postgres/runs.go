package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

const runColumns = `
	uuid, suuid, created_at, modified_at, deleted_at,
	name, description, job_uuid, package_uuid,
	payload_file, result_file, log_file,
	status, trigger, exit_code,
	started_at, finished_at, duration,
	metrics_meta, variables_meta,
	environment_image, timezone, created_by
`

func scanRun(row pgx.Row) (*models.Run, error) {
	var r models.Run
	err := row.Scan(
		&r.UUID, &r.SUUID, &r.CreatedAt, &r.ModifiedAt, &r.DeletedAt,
		&r.Name, &r.Description, &r.JobUUID, &r.PackageUUID,
		&r.PayloadFile, &r.ResultFile, &r.LogFile,
		&r.Status, &r.Trigger, &r.ExitCode,
		&r.StartedAt, &r.FinishedAt, &r.Duration,
		&r.MetricsMeta, &r.VariablesMeta,
		&r.EnvironmentImage, &r.Timezone, &r.CreatedBy,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &r, nil
}

func (s *Store) CreateRun(ctx context.Context, run *models.Run) error {
	store.EnsureIdentity(&run.Base, s.now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (`+runColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12,
			$13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
	`,
		run.UUID, run.SUUID, run.CreatedAt, run.ModifiedAt, run.DeletedAt,
		run.Name, run.Description, run.JobUUID, run.PackageUUID,
		run.PayloadFile, run.ResultFile, run.LogFile,
		run.Status, run.Trigger, run.ExitCode,
		run.StartedAt, run.FinishedAt, run.Duration,
		run.MetricsMeta, run.VariablesMeta,
		run.EnvironmentImage, run.Timezone, run.CreatedBy,
	)
	return mapError(err)
}

func (s *Store) GetRunByUUID(ctx context.Context, id uuid.UUID) (*models.Run, error) {
	return scanRun(s.pool.QueryRow(ctx, `
		SELECT `+runColumns+` FROM runs WHERE uuid = $1 AND deleted_at IS NULL
	`, id))
}

func (s *Store) GetRunBySUUID(ctx context.Context, suuid string) (*models.Run, error) {
	return scanRun(s.pool.QueryRow(ctx, `
		SELECT `+runColumns+` FROM runs WHERE suuid = $1 AND deleted_at IS NULL
	`, suuid))
}

func (s *Store) ListRuns(ctx context.Context, jobID *uuid.UUID) ([]*models.Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs WHERE deleted_at IS NULL`
	args := []any{}
	if jobID != nil {
		query += ` AND job_uuid = $1`
		args = append(args, *jobID)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*models.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, mapError(rows.Err())
}

func (s *Store) SoftDeleteRun(ctx context.Context, id uuid.UUID) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE runs SET deleted_at = $2, modified_at = $2
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

// Transition applies fn to the run under a row lock, so concurrent lifecycle
// steps on one run serialize instead of clobbering each other.
func (s *Store) Transition(ctx context.Context, id uuid.UUID, fn func(run *models.Run) error) (*models.Run, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	run, err := scanRun(tx.QueryRow(ctx, `
		SELECT `+runColumns+` FROM runs
		WHERE uuid = $1 AND deleted_at IS NULL
		FOR UPDATE
	`, id))
	if err != nil {
		return nil, err
	}

	if err := fn(run); err != nil {
		return nil, err
	}
	run.ModifiedAt = s.now()

	_, err = tx.Exec(ctx, `
		UPDATE runs SET
			modified_at = $2, name = $3, description = $4,
			payload_file = $5, result_file = $6, log_file = $7,
			status = $8, exit_code = $9,
			started_at = $10, finished_at = $11, duration = $12,
			metrics_meta = $13, variables_meta = $14
		WHERE uuid = $1
	`,
		run.UUID, run.ModifiedAt, run.Name, run.Description,
		run.PayloadFile, run.ResultFile, run.LogFile,
		run.Status, run.ExitCode,
		run.StartedAt, run.FinishedAt, run.Duration,
		run.MetricsMeta, run.VariablesMeta,
	)
	if err != nil {
		return nil, mapError(err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, mapError(err)
	}
	return run, nil
}

// HardDeleteOrphans removes runs whose ancestry has been hard-deleted. The
// tracking rows cascade with the run.
func (s *Store) HardDeleteOrphans(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM runs r
		WHERE NOT EXISTS (
			SELECT 1 FROM jobs j
			JOIN projects p ON p.uuid = j.project_uuid
			JOIN workspaces w ON w.uuid = p.workspace_uuid
			WHERE j.uuid = r.job_uuid
		)
	`)
	if err != nil {
		return 0, mapError(err)
	}
	return int(tag.RowsAffected()), nil
}

// PurgeDeleted hard-removes soft-deleted rows past the grace window. A purged
// project takes its schedules, jobs and packages with it; the project's runs
// lose their ancestry and fall to the next HardDeleteOrphans pass. Workspaces
// only go once none of their projects remain.
func (s *Store) PurgeDeleted(ctx context.Context, before time.Time) (int, error) {
	removed := 0
	for _, query := range []string{
		`DELETE FROM memberships WHERE deleted_at IS NOT NULL AND deleted_at < $1`,
		`DELETE FROM runs WHERE deleted_at IS NOT NULL AND deleted_at < $1`,
		`DELETE FROM schedules s USING jobs j, projects p
		 WHERE s.job_uuid = j.uuid AND j.project_uuid = p.uuid
		   AND p.deleted_at IS NOT NULL AND p.deleted_at < $1`,
		`DELETE FROM packages pk USING projects p
		 WHERE pk.project_uuid = p.uuid
		   AND p.deleted_at IS NOT NULL AND p.deleted_at < $1`,
		`DELETE FROM jobs j USING projects p
		 WHERE j.project_uuid = p.uuid
		   AND p.deleted_at IS NOT NULL AND p.deleted_at < $1`,
		`DELETE FROM projects WHERE deleted_at IS NOT NULL AND deleted_at < $1`,
		`DELETE FROM workspaces w
		 WHERE w.deleted_at IS NOT NULL AND w.deleted_at < $1
		   AND NOT EXISTS (SELECT 1 FROM projects p WHERE p.workspace_uuid = w.uuid)`,
	} {
		tag, err := s.pool.Exec(ctx, query, before)
		if err != nil {
			return removed, mapError(err)
		}
		removed += int(tag.RowsAffected())
	}
	return removed, nil
}
