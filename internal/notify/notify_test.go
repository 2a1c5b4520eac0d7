package notify

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"

	"github.com/askanna-io/askanna-core/internal/filestore"
	"github.com/askanna-io/askanna-core/internal/lock"
	"github.com/askanna-io/askanna-core/internal/logqueue"
	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/rbac"
	"github.com/askanna-io/askanna-core/internal/storage"
	"github.com/askanna-io/askanna-core/internal/store/memory"
)

type fakeMailer struct {
	sent []sentMail
}

type sentMail struct {
	to      []string
	subject string
	body    string
}

func (f *fakeMailer) Send(_ context.Context, to []string, subject, body string) error {
	f.sent = append(f.sent, sentMail{to: to, subject: subject, body: body})
	return nil
}

type fixture struct {
	store      *memory.Store
	files      *filestore.Service
	logs       *logqueue.Queue
	mailer     *fakeMailer
	dispatcher *Dispatcher

	workspace *models.Workspace
	project   *models.Project
	job       *models.JobDef
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	st := memory.NewStore()
	backend, err := storage.NewFileSystem(t.TempDir())
	require.NoError(t, err)
	files := filestore.NewService(st, backend, lock.NewLocal())

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	logs := logqueue.New(rdb, files, st, lock.NewLocal(), time.Second)

	mailer := &fakeMailer{}

	ws := &models.Workspace{Name: "team", Visibility: models.VisibilityPrivate}
	require.NoError(t, st.CreateWorkspace(ctx, ws))
	project := &models.Project{Name: "demo", WorkspaceUUID: ws.UUID, Visibility: models.VisibilityPrivate}
	require.NoError(t, st.CreateProject(ctx, project))
	job := &models.JobDef{Name: "train", ProjectUUID: project.UUID, Timezone: "UTC"}
	require.NoError(t, st.CreateJob(ctx, job))

	return &fixture{
		store:      st,
		files:      files,
		logs:       logs,
		mailer:     mailer,
		dispatcher: NewDispatcher(st, files, logs, mailer),
		workspace:  ws,
		project:    project,
		job:        job,
	}
}

func (f *fixture) addMember(t *testing.T, email, roleCode string, active bool) {
	t.Helper()
	ctx := context.Background()
	user := &models.User{Email: email, IsActive: active}
	require.NoError(t, f.store.CreateUser(ctx, user))
	require.NoError(t, f.store.CreateMembership(ctx, &models.Membership{
		UserUUID:   &user.UUID,
		ObjectType: models.MembershipObjectWorkspace,
		ObjectUUID: f.workspace.UUID,
		RoleCode:   roleCode,
	}))
}

func TestLevelForStatus(t *testing.T) {
	for status, want := range map[string]Level{
		"SUBMITTED":       LevelInfo,
		"PENDING":         LevelInfo,
		"IN_PROGRESS":     LevelInfo,
		"COMPLETED":       LevelInfo,
		"FAILED":          LevelError,
		"SCHEDULE_MISSED": LevelError,
	} {
		require.Equal(t, want, LevelForStatus(status), "status %s", status)
	}
}

func TestExpandRecipients(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.addMember(t, "admin@example.com", rbac.CodeWorkspaceAdmin, true)
	f.addMember(t, "member@example.com", rbac.CodeWorkspaceMember, true)
	f.addMember(t, "inactive@example.com", rbac.CodeWorkspaceMember, false)

	require.NoError(t, f.store.SetProjectVariable(ctx, f.project.UUID, "ONCALL", "oncall@example.com", false))

	t.Run("comma separated entries", func(t *testing.T) {
		got := f.dispatcher.expandRecipients(ctx, f.job, []string{"a@example.com, b@example.com"}, nil)
		require.Equal(t, []string{"a@example.com", "b@example.com"}, got)
	})

	t.Run("placeholders from project variables", func(t *testing.T) {
		got := f.dispatcher.expandRecipients(ctx, f.job, []string{"${ONCALL}"}, nil)
		require.Equal(t, []string{"oncall@example.com"}, got)
	})

	t.Run("placeholders from extra context", func(t *testing.T) {
		got := f.dispatcher.expandRecipients(ctx, f.job, []string{"${owner}"}, map[string]string{"owner": "me@example.com"})
		require.Equal(t, []string{"me@example.com"}, got)
	})

	t.Run("workspace admins", func(t *testing.T) {
		got := f.dispatcher.expandRecipients(ctx, f.job, []string{"workspace admins"}, nil)
		require.Equal(t, []string{"admin@example.com"}, got)
	})

	t.Run("workspace members excludes inactive", func(t *testing.T) {
		got := f.dispatcher.expandRecipients(ctx, f.job, []string{"workspace members"}, nil)
		require.ElementsMatch(t, []string{"admin@example.com", "member@example.com"}, got)
	})

	t.Run("invalid addresses skipped", func(t *testing.T) {
		got := f.dispatcher.expandRecipients(ctx, f.job, []string{"not-an-email", "ok@example.com"}, nil)
		require.Equal(t, []string{"ok@example.com"}, got)
	})

	t.Run("duplicates removed", func(t *testing.T) {
		got := f.dispatcher.expandRecipients(ctx, f.job, []string{"x@example.com", "x@example.com"}, nil)
		require.Equal(t, []string{"x@example.com"}, got)
	})
}

func TestRunStatusChangedSendsToErrorListOnFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.job.Notifications = models.JobNotifications{
		All:   models.NotificationLevel{Email: []string{"all@example.com"}},
		Error: models.NotificationLevel{Email: []string{"oncall@example.com"}},
	}
	require.NoError(t, f.store.UpdateJob(ctx, f.job))

	started := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	finished := started.Add(65 * time.Second)
	duration := 65
	exitCode := 1
	run := &models.Run{
		JobUUID:    f.job.UUID,
		Status:     models.RunFailed,
		Trigger:    models.TriggerSchedule,
		StartedAt:  &started,
		FinishedAt: &finished,
		Duration:   &duration,
		ExitCode:   &exitCode,
	}
	require.NoError(t, f.store.CreateRun(ctx, run))

	_, err := f.logs.Append(ctx, run.SUUID, "Traceback (most recent call last):", nil)
	require.NoError(t, err)

	f.dispatcher.RunStatusChanged(ctx, run)

	require.Len(t, f.mailer.sent, 1)
	mail := f.mailer.sent[0]
	require.ElementsMatch(t, []string{"all@example.com", "oncall@example.com"}, mail.to)
	require.Contains(t, mail.subject, "failed")
	require.Contains(t, mail.body, "FAILED")
	require.Contains(t, mail.body, "1 minute, 5 seconds")
	require.Contains(t, mail.body, "Traceback")
	require.Contains(t, mail.body, "SCHEDULE")
}

func TestRunStatusChangedInfoSkipsErrorList(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.job.Notifications = models.JobNotifications{
		All:   models.NotificationLevel{Email: []string{"all@example.com"}},
		Error: models.NotificationLevel{Email: []string{"oncall@example.com"}},
	}
	require.NoError(t, f.store.UpdateJob(ctx, f.job))

	run := &models.Run{JobUUID: f.job.UUID, Status: models.RunCompleted, Trigger: models.TriggerAPI}
	require.NoError(t, f.store.CreateRun(ctx, run))

	f.dispatcher.RunStatusChanged(ctx, run)

	require.Len(t, f.mailer.sent, 1)
	require.Equal(t, []string{"all@example.com"}, f.mailer.sent[0].to)
}

func TestRunStatusChangedWithoutRecipientsSendsNothing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	run := &models.Run{JobUUID: f.job.UUID, Status: models.RunCompleted}
	require.NoError(t, f.store.CreateRun(ctx, run))

	f.dispatcher.RunStatusChanged(ctx, run)
	require.Empty(t, f.mailer.sent)
}

func TestScheduleMissed(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	f.job.Notifications = models.JobNotifications{
		Error: models.NotificationLevel{Email: []string{"oncall@example.com"}},
	}
	require.NoError(t, f.store.UpdateJob(ctx, f.job))

	schedule := &models.Schedule{
		JobUUID:        f.job.UUID,
		RawDefinition:  "@hourly",
		CronDefinition: "0 * * * *",
		CronTimezone:   "UTC",
	}
	require.NoError(t, f.store.CreateSchedule(ctx, schedule))

	missedAt := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, f.dispatcher.ScheduleMissed(ctx, schedule, missedAt))

	require.Len(t, f.mailer.sent, 1)
	mail := f.mailer.sent[0]
	require.Equal(t, []string{"oncall@example.com"}, mail.to)
	require.Contains(t, mail.subject, "Missed schedule")
	require.Contains(t, mail.body, "@hourly")
}

func TestHumanizeDuration(t *testing.T) {
	for d, want := range map[time.Duration]string{
		0:                                "0 seconds",
		time.Second:                      "1 second",
		65 * time.Second:                 "1 minute, 5 seconds",
		time.Hour:                        "1 hour",
		3*time.Hour + 2*time.Minute + 1: "3 hours, 2 minutes",
	} {
		require.Equal(t, want, HumanizeDuration(d), "duration %s", d)
	}
}
