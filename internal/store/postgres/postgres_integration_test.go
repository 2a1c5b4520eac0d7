//go:build integration

package postgres

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/store"
)

func setupPostgresContainer(t *testing.T, ctx context.Context) (*Store, func()) {
	req := testcontainers.ContainerRequest{
		Image:        "postgres:18-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "test",
			"POSTGRES_PASSWORD": "test",
			"POSTGRES_DB":       "testdb",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	connString := fmt.Sprintf("postgres://test:test@%s:%s/testdb?sslmode=disable", host, port.Port())

	st, err := New(ctx, &PoolConfig{ConnString: connString, AutoMigrate: true})
	require.NoError(t, err)
	require.NoError(t, st.Start())

	cleanup := func() {
		st.Stop()
		_ = container.Terminate(ctx)
	}
	return st, cleanup
}

// seedProject creates workspace, project and job rows for the run tests.
func seedProject(t *testing.T, ctx context.Context, st *Store) *models.JobDef {
	ws := &models.Workspace{Name: "team"}
	require.NoError(t, st.CreateWorkspace(ctx, ws))
	project := &models.Project{Name: "demo", WorkspaceUUID: ws.UUID}
	require.NoError(t, st.CreateProject(ctx, project))
	job := &models.JobDef{Name: "train", ProjectUUID: project.UUID, Timezone: "UTC"}
	require.NoError(t, st.CreateJob(ctx, job))
	return job
}

func TestIntegration_RunRoundTrip(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	job := seedProject(t, ctx, st)

	run := &models.Run{
		Name:    "nightly",
		JobUUID: job.UUID,
		Status:  models.RunSubmitted,
		Trigger: models.TriggerSchedule,
	}
	require.NoError(t, st.CreateRun(ctx, run))
	require.NotEmpty(t, run.SUUID)

	loaded, err := st.GetRunBySUUID(ctx, run.SUUID)
	require.NoError(t, err)
	require.Equal(t, run.UUID, loaded.UUID)
	require.Equal(t, models.RunSubmitted, loaded.Status)

	// Transition under the row lock.
	updated, err := st.Transition(ctx, run.UUID, func(r *models.Run) error {
		r.Status = models.RunPending
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, models.RunPending, updated.Status)

	reread, err := st.GetRunByUUID(ctx, run.UUID)
	require.NoError(t, err)
	require.Equal(t, models.RunPending, reread.Status)
}

func TestIntegration_TransitionAborted(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	job := seedProject(t, ctx, st)
	run := &models.Run{JobUUID: job.UUID, Status: models.RunSubmitted, Trigger: models.TriggerAPI}
	require.NoError(t, st.CreateRun(ctx, run))

	_, err := st.Transition(ctx, run.UUID, func(r *models.Run) error {
		r.Status = models.RunFailed
		return fmt.Errorf("boom")
	})
	require.Error(t, err)

	// The aborted transition wrote nothing.
	loaded, err := st.GetRunByUUID(ctx, run.UUID)
	require.NoError(t, err)
	require.Equal(t, models.RunSubmitted, loaded.Status)
}

func TestIntegration_DueSchedules(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	job := seedProject(t, ctx, st)
	now := time.Now().UTC().Truncate(time.Second)

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	due := &models.Schedule{JobUUID: job.UUID, RawDefinition: "@daily", CronDefinition: "0 0 * * *", CronTimezone: "UTC", NextRunAt: &past}
	notDue := &models.Schedule{JobUUID: job.UUID, RawDefinition: "@hourly", CronDefinition: "0 * * * *", CronTimezone: "UTC", NextRunAt: &future}
	require.NoError(t, st.CreateSchedule(ctx, due))
	require.NoError(t, st.CreateSchedule(ctx, notDue))

	schedules, err := st.DueSchedules(ctx, now)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	require.Equal(t, due.UUID, schedules[0].UUID)
}

func TestIntegration_DeduplicateObservations(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	job := seedProject(t, ctx, st)
	run := &models.Run{JobUUID: job.UUID, Status: models.RunSubmitted, Trigger: models.TriggerAPI}
	require.NoError(t, st.CreateRun(ctx, run))

	recorded := time.Now().UTC().Truncate(time.Second)
	rows := []*models.RunMetric{
		{Name: "accuracy", Value: 0.92, Type: "float", Labels: []models.ValueLabel{}, RecordedAt: recorded},
		{Name: "accuracy", Value: 0.92, Type: "float", Labels: []models.ValueLabel{}, RecordedAt: recorded},
		{Name: "loss", Value: 0.1, Type: "float", Labels: []models.ValueLabel{}, RecordedAt: recorded},
	}
	require.NoError(t, st.ReplaceMetrics(ctx, run.UUID, rows))

	removed, err := st.DeduplicateObservations(ctx, run.UUID)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	metrics, err := st.ListMetrics(ctx, run.UUID)
	require.NoError(t, err)
	require.Len(t, metrics, 2)
}

func TestIntegration_MembershipUniqueness(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	user := &models.User{Email: "robbert@example.com", IsActive: true}
	require.NoError(t, st.CreateUser(ctx, user))

	dup := &models.User{Email: "robbert@example.com", IsActive: true}
	err := st.CreateUser(ctx, dup)
	require.ErrorIs(t, err, store.ErrConflict)
}

func TestIntegration_LatestPackageRequiresCompletedFile(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	job := seedProject(t, ctx, st)
	project, err := st.GetProjectByUUID(ctx, job.ProjectUUID)
	require.NoError(t, err)

	pkg := &models.Package{ProjectUUID: project.UUID}
	require.NoError(t, st.CreatePackage(ctx, pkg))

	// Incomplete upload: the package does not count yet.
	_, err = st.LatestPackageForProject(ctx, project.UUID)
	require.ErrorIs(t, err, store.ErrNotFound)

	ref, err := st.ObjectReferenceFor(ctx, models.OwnerPackage, pkg.UUID, pkg.SUUID)
	require.NoError(t, err)
	now := time.Now().UTC()
	f := &models.File{Name: "package.zip", CreatedFor: ref.UUID, CompletedAt: &now}
	require.NoError(t, st.CreateFile(ctx, f))
	pkg.FileUUID = &f.UUID
	require.NoError(t, st.UpdatePackage(ctx, pkg))

	latest, err := st.LatestPackageForProject(ctx, project.UUID)
	require.NoError(t, err)
	require.Equal(t, pkg.UUID, latest.UUID)
}

func TestIntegration_PurgeDeleted(t *testing.T) {
	ctx := context.Background()
	st, cleanup := setupPostgresContainer(t, ctx)
	defer cleanup()

	job := seedProject(t, ctx, st)
	project, err := st.GetProjectByUUID(ctx, job.ProjectUUID)
	require.NoError(t, err)

	run := &models.Run{JobUUID: job.UUID, Status: models.RunSubmitted}
	require.NoError(t, st.CreateRun(ctx, run))

	require.NoError(t, st.SoftDeleteProject(ctx, project.UUID))
	require.NoError(t, st.SoftDeleteWorkspace(ctx, project.WorkspaceUUID))

	// Inside the grace window nothing is removed.
	removed, err := st.PurgeDeleted(ctx, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed)

	// job + project + workspace; the run survives as an orphan.
	removed, err = st.PurgeDeleted(ctx, time.Now().UTC().Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 3, removed)

	orphans, err := st.HardDeleteOrphans(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, orphans)
}
