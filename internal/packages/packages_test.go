package packages

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"testing"
	"time"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/require"

	"github.com/askanna-io/askanna-core/internal/filestore"
	"github.com/askanna-io/askanna-core/internal/lock"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/storage"
	"github.com/askanna-io/askanna-core/internal/store/memory"
)

type fixture struct {
	store   *memory.Store
	files   *filestore.Service
	svc     *Service
	project *models.Project
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := memory.NewStore()
	backend, err := storage.NewFileSystem(t.TempDir())
	require.NoError(t, err)
	files := filestore.NewService(st, backend, lock.NewLocal())

	ws := &models.Workspace{Name: "team"}
	require.NoError(t, st.CreateWorkspace(ctx, ws))
	project := &models.Project{Name: "demo", WorkspaceUUID: ws.UUID}
	require.NoError(t, st.CreateProject(ctx, project))

	return &fixture{
		store:   st,
		files:   files,
		svc:     NewService(st, files, "UTC"),
		project: project,
	}
}

func zipArchive(t *testing.T, entries map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for name, content := range entries {
		entry, err := w.Create(name)
		require.NoError(t, err)
		_, err = entry.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, w.Close())
	return buf.Bytes()
}

// uploadPackage runs the full pipeline for an archive.
func (f *fixture) uploadPackage(t *testing.T, archive []byte) (*models.Package, *models.File, error) {
	t.Helper()
	ctx := context.Background()

	sum := md5.Sum(archive)
	pkg, slot, err := f.svc.Create(ctx, CreateInput{
		Project: f.project,
		Size:    int64(len(archive)),
		Etag:    hex.EncodeToString(sum[:]),
	})
	require.NoError(t, err)

	require.NoError(t, f.files.UploadPart(ctx, slot, 1, bytes.NewReader(archive)))
	completed, err := f.svc.Finalize(ctx, pkg, slot)
	return pkg, completed, err
}

func TestUploadPackageSyncsJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	archive := zipArchive(t, map[string]string{
		"askanna.yml": `
timezone: Europe/Amsterdam

environment:
  image: python:3.11

train:
  job:
    - python train.py
  schedule:
    - "@daily"

report:
  job:
    - python report.py
  environment:
    image: python:3.12-slim
  notifications:
    error:
      email:
        - oncall@example.com
`,
		"train.py": "print('train')\n",
	})

	pkg, completed, err := f.uploadPackage(t, archive)
	require.NoError(t, err)
	require.True(t, completed.IsComplete())

	// The package is now the project's latest.
	latest, err := f.store.LatestPackageForProject(ctx, f.project.UUID)
	require.NoError(t, err)
	require.Equal(t, pkg.UUID, latest.UUID)

	jobs, err := f.store.ListJobs(ctx, f.project.UUID)
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	train, err := f.store.GetJobByName(ctx, f.project.UUID, "train")
	require.NoError(t, err)
	require.Equal(t, "python:3.11", train.EnvironmentImage)
	require.Equal(t, "Europe/Amsterdam", train.Timezone)

	schedules, err := f.store.ListSchedulesForJob(ctx, train.UUID)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	require.Equal(t, "0 0 * * *", schedules[0].CronDefinition)
	require.Equal(t, "Europe/Amsterdam", schedules[0].CronTimezone)
	require.NotNil(t, schedules[0].NextRunAt)

	report, err := f.store.GetJobByName(ctx, f.project.UUID, "report")
	require.NoError(t, err)
	require.Equal(t, "python:3.12-slim", report.EnvironmentImage)
	require.Equal(t, []string{"oncall@example.com"}, report.Notifications.Error.Email)
}

func TestReuploadPreservesScheduleHistory(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	archive := zipArchive(t, map[string]string{
		"askanna.yml": "train:\n  job:\n    - python train.py\n  schedule:\n    - \"@hourly\"\n",
	})

	_, _, err := f.uploadPackage(t, archive)
	require.NoError(t, err)

	train, err := f.store.GetJobByName(ctx, f.project.UUID, "train")
	require.NoError(t, err)
	schedules, err := f.store.ListSchedulesForJob(ctx, train.UUID)
	require.NoError(t, err)
	firstNextRun := schedules[0].NextRunAt

	// Simulate a fire so the schedule has history.
	fired := schedules[0].NextRunAt.Add(-time.Hour)
	schedules[0].LastRunAt = &fired
	require.NoError(t, f.store.UpdateSchedule(ctx, schedules[0]))

	_, _, err = f.uploadPackage(t, archive)
	require.NoError(t, err)

	schedules, err = f.store.ListSchedulesForJob(ctx, train.UUID)
	require.NoError(t, err)
	require.Len(t, schedules, 1)
	require.NotNil(t, schedules[0].LastRunAt)
	require.Equal(t, fired.UTC(), schedules[0].LastRunAt.UTC())
	require.NotNil(t, firstNextRun)
}

func TestFinalizeRejectsNonZip(t *testing.T) {
	f := newFixture(t)

	_, _, err := f.uploadPackage(t, []byte("plain text, not an archive"))
	require.ErrorIs(t, err, ErrNotAPackage)
}

func TestArchiveWithoutConfigDefinesNoJobs(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	archive := zipArchive(t, map[string]string{"main.py": "print('hi')\n"})
	_, completed, err := f.uploadPackage(t, archive)
	require.NoError(t, err)
	require.True(t, completed.IsComplete())

	jobs, err := f.store.ListJobs(ctx, f.project.UUID)
	require.NoError(t, err)
	require.Empty(t, jobs)
}
