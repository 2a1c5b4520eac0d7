package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/askanna-io/askanna-core/internal/models"
)

func seedTree(t *testing.T, st *Store) (*models.Workspace, *models.Project, *models.JobDef, *models.Run) {
	t.Helper()
	ctx := context.Background()

	ws := &models.Workspace{Name: "team", Visibility: models.VisibilityPrivate}
	require.NoError(t, st.CreateWorkspace(ctx, ws))

	project := &models.Project{Name: "demo", WorkspaceUUID: ws.UUID, Visibility: models.VisibilityPrivate}
	require.NoError(t, st.CreateProject(ctx, project))

	job := &models.JobDef{Name: "train", ProjectUUID: project.UUID, Timezone: "UTC"}
	require.NoError(t, st.CreateJob(ctx, job))

	run := &models.Run{JobUUID: job.UUID, Status: models.RunSubmitted}
	require.NoError(t, st.CreateRun(ctx, run))

	return ws, project, job, run
}

func TestPurgeDeletedCascadesProject(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	ws, project, job, run := seedTree(t, st)

	sched := &models.Schedule{JobUUID: job.UUID, RawDefinition: "@daily", CronDefinition: "0 0 * * *", CronTimezone: "UTC"}
	require.NoError(t, st.CreateSchedule(ctx, sched))

	require.NoError(t, st.SoftDeleteProject(ctx, project.UUID))
	require.NoError(t, st.SoftDeleteWorkspace(ctx, ws.UUID))

	// Inside the grace window nothing goes.
	removed, err := st.PurgeDeleted(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	require.Zero(t, removed)

	removed, err = st.PurgeDeleted(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)
	// schedule + job + project + workspace
	require.Equal(t, 4, removed)

	// The run lost its ancestry and falls to the orphan sweep.
	orphans, err := st.HardDeleteOrphans(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, orphans)

	_, err = st.GetRunByUUID(ctx, run.UUID)
	require.Error(t, err)
}

func TestPurgeDeletedKeepsWorkspaceWithLiveProjects(t *testing.T) {
	ctx := context.Background()
	st := NewStore()
	ws, project, _, _ := seedTree(t, st)

	require.NoError(t, st.SoftDeleteWorkspace(ctx, ws.UUID))

	_, err := st.PurgeDeleted(ctx, time.Now().Add(time.Hour))
	require.NoError(t, err)

	// The project is still active, so the workspace row must survive the
	// purge even though its grace window has passed.
	_, err = st.GetProjectByUUID(ctx, project.UUID)
	require.NoError(t, err)
	_, err = st.GetWorkspaceByUUID(ctx, ws.UUID)
	require.Error(t, err) // soft-deleted rows stay invisible to reads
}
