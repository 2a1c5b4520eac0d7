package postgres

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

const jobColumns = `
	uuid, suuid, created_at, modified_at, deleted_at,
	name, description, project_uuid, environment_image, timezone, notifications
`

func scanJob(row pgx.Row) (*models.JobDef, error) {
	var job models.JobDef
	err := row.Scan(
		&job.UUID, &job.SUUID, &job.CreatedAt, &job.ModifiedAt, &job.DeletedAt,
		&job.Name, &job.Description, &job.ProjectUUID, &job.EnvironmentImage, &job.Timezone,
		&job.Notifications,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &job, nil
}

func (s *Store) CreateJob(ctx context.Context, job *models.JobDef) error {
	store.EnsureIdentity(&job.Base, s.now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO jobs (`+jobColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		job.UUID, job.SUUID, job.CreatedAt, job.ModifiedAt, job.DeletedAt,
		job.Name, job.Description, job.ProjectUUID, job.EnvironmentImage, job.Timezone,
		job.Notifications,
	)
	return mapError(err)
}

func (s *Store) GetJobByUUID(ctx context.Context, id uuid.UUID) (*models.JobDef, error) {
	return scanJob(s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE uuid = $1 AND deleted_at IS NULL
	`, id))
}

func (s *Store) GetJobBySUUID(ctx context.Context, suuid string) (*models.JobDef, error) {
	return scanJob(s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs WHERE suuid = $1 AND deleted_at IS NULL
	`, suuid))
}

func (s *Store) GetJobByName(ctx context.Context, projectID uuid.UUID, name string) (*models.JobDef, error) {
	return scanJob(s.pool.QueryRow(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE project_uuid = $1 AND name = $2 AND deleted_at IS NULL
	`, projectID, name))
}

func (s *Store) UpdateJob(ctx context.Context, job *models.JobDef) error {
	job.ModifiedAt = s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE jobs SET
			modified_at = $2, name = $3, description = $4,
			environment_image = $5, timezone = $6, notifications = $7
		WHERE uuid = $1 AND deleted_at IS NULL
	`,
		job.UUID, job.ModifiedAt, job.Name, job.Description,
		job.EnvironmentImage, job.Timezone, job.Notifications,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) ListJobs(ctx context.Context, projectID uuid.UUID) ([]*models.JobDef, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+jobColumns+` FROM jobs
		WHERE project_uuid = $1 AND deleted_at IS NULL
		ORDER BY name
	`, projectID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*models.JobDef
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, mapError(rows.Err())
}

const scheduleColumns = `
	uuid, suuid, created_at, modified_at, deleted_at,
	job_uuid, raw_definition, cron_definition, cron_timezone,
	last_run_at, next_run_at, member_uuid
`

func scanSchedule(row pgx.Row) (*models.Schedule, error) {
	var sch models.Schedule
	err := row.Scan(
		&sch.UUID, &sch.SUUID, &sch.CreatedAt, &sch.ModifiedAt, &sch.DeletedAt,
		&sch.JobUUID, &sch.RawDefinition, &sch.CronDefinition, &sch.CronTimezone,
		&sch.LastRunAt, &sch.NextRunAt, &sch.MemberUUID,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &sch, nil
}

func (s *Store) CreateSchedule(ctx context.Context, sch *models.Schedule) error {
	store.EnsureIdentity(&sch.Base, s.now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO schedules (`+scheduleColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`,
		sch.UUID, sch.SUUID, sch.CreatedAt, sch.ModifiedAt, sch.DeletedAt,
		sch.JobUUID, sch.RawDefinition, sch.CronDefinition, sch.CronTimezone,
		sch.LastRunAt, sch.NextRunAt, sch.MemberUUID,
	)
	return mapError(err)
}

func (s *Store) UpdateSchedule(ctx context.Context, sch *models.Schedule) error {
	sch.ModifiedAt = s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE schedules SET
			modified_at = $2, raw_definition = $3, cron_definition = $4,
			cron_timezone = $5, last_run_at = $6, next_run_at = $7
		WHERE uuid = $1 AND deleted_at IS NULL
	`,
		sch.UUID, sch.ModifiedAt, sch.RawDefinition, sch.CronDefinition,
		sch.CronTimezone, sch.LastRunAt, sch.NextRunAt,
	)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) DeleteSchedulesForJob(ctx context.Context, jobID uuid.UUID) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM schedules WHERE job_uuid = $1`, jobID)
	return mapError(err)
}

func (s *Store) ListSchedulesForJob(ctx context.Context, jobID uuid.UUID) ([]*models.Schedule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE job_uuid = $1 AND deleted_at IS NULL
		ORDER BY created_at
	`, jobID)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*models.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sch)
	}
	return out, mapError(rows.Err())
}

func (s *Store) DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+scheduleColumns+` FROM schedules
		WHERE deleted_at IS NULL AND next_run_at IS NOT NULL AND next_run_at <= $1
		ORDER BY next_run_at
	`, now)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []*models.Schedule
	for rows.Next() {
		sch, err := scanSchedule(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sch)
	}
	return out, mapError(rows.Err())
}

const packageColumns = `
	uuid, suuid, created_at, modified_at, deleted_at,
	project_uuid, file_uuid, description, created_by
`

func scanPackage(row pgx.Row) (*models.Package, error) {
	var p models.Package
	err := row.Scan(
		&p.UUID, &p.SUUID, &p.CreatedAt, &p.ModifiedAt, &p.DeletedAt,
		&p.ProjectUUID, &p.FileUUID, &p.Description, &p.CreatedBy,
	)
	if err != nil {
		return nil, mapError(err)
	}
	return &p, nil
}

func (s *Store) CreatePackage(ctx context.Context, p *models.Package) error {
	store.EnsureIdentity(&p.Base, s.now())
	_, err := s.pool.Exec(ctx, `
		INSERT INTO packages (`+packageColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		p.UUID, p.SUUID, p.CreatedAt, p.ModifiedAt, p.DeletedAt,
		p.ProjectUUID, p.FileUUID, p.Description, p.CreatedBy,
	)
	return mapError(err)
}

func (s *Store) GetPackageByUUID(ctx context.Context, id uuid.UUID) (*models.Package, error) {
	return scanPackage(s.pool.QueryRow(ctx, `
		SELECT `+packageColumns+` FROM packages WHERE uuid = $1 AND deleted_at IS NULL
	`, id))
}

func (s *Store) GetPackageBySUUID(ctx context.Context, suuid string) (*models.Package, error) {
	return scanPackage(s.pool.QueryRow(ctx, `
		SELECT `+packageColumns+` FROM packages WHERE suuid = $1 AND deleted_at IS NULL
	`, suuid))
}

func (s *Store) UpdatePackage(ctx context.Context, p *models.Package) error {
	p.ModifiedAt = s.now()
	tag, err := s.pool.Exec(ctx, `
		UPDATE packages SET modified_at = $2, file_uuid = $3, description = $4
		WHERE uuid = $1 AND deleted_at IS NULL
	`, p.UUID, p.ModifiedAt, p.FileUUID, p.Description)
	if err != nil {
		return mapError(err)
	}
	if tag.RowsAffected() == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (s *Store) LatestPackageForProject(ctx context.Context, projectID uuid.UUID) (*models.Package, error) {
	// Only packages whose upload completed count.
	return scanPackage(s.pool.QueryRow(ctx, `
		SELECT `+prefixColumns("p", packageColumns)+` FROM packages p
		JOIN files f ON f.uuid = p.file_uuid
		WHERE p.project_uuid = $1
		  AND p.deleted_at IS NULL
		  AND f.completed_at IS NOT NULL
		ORDER BY p.created_at DESC
		LIMIT 1
	`, projectID))
}
