// Package store defines the persistence interfaces of the orchestration core
// plus the sentinel errors shared by every backend. PostgreSQL is the
// production backend; the memory backend exists for unit tests.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/askanna-io/askanna-core/internal/models"
)

// Sentinel errors for common error conditions.
var (
	ErrNotFound  = errors.New("object not found")
	ErrConflict  = errors.New("conflict")
	ErrTimeout   = errors.New("operation timed out")
	ErrTransient = errors.New("transient backend failure")
)

// AccountStore persists users and workspace memberships.
type AccountStore interface {
	CreateUser(ctx context.Context, user *models.User) error
	GetUserByUUID(ctx context.Context, id uuid.UUID) (*models.User, error)
	GetUserByAuthToken(ctx context.Context, token string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CreateMembership(ctx context.Context, m *models.Membership) error
	GetMembershipBySUUID(ctx context.Context, suuid string) (*models.Membership, error)
	UpdateMembership(ctx context.Context, m *models.Membership) error
	SoftDeleteMembership(ctx context.Context, id uuid.UUID) error

	// MembershipsForUser returns the active, accepted memberships of a user,
	// keyed by workspace uuid with the persisted role code as value.
	MembershipsForUser(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]string, error)

	// MembershipsForWorkspace returns active memberships, invitations included
	// when withInvitations is set.
	MembershipsForWorkspace(ctx context.Context, workspaceID uuid.UUID, withInvitations bool) ([]*models.Membership, error)
}

// WorkspaceStore persists workspaces and projects.
type WorkspaceStore interface {
	CreateWorkspace(ctx context.Context, ws *models.Workspace) error
	GetWorkspaceByUUID(ctx context.Context, id uuid.UUID) (*models.Workspace, error)
	GetWorkspaceBySUUID(ctx context.Context, suuid string) (*models.Workspace, error)
	UpdateWorkspace(ctx context.Context, ws *models.Workspace) error
	SoftDeleteWorkspace(ctx context.Context, id uuid.UUID) error
	ListWorkspaces(ctx context.Context) ([]*models.Workspace, error)

	CreateProject(ctx context.Context, p *models.Project) error
	GetProjectByUUID(ctx context.Context, id uuid.UUID) (*models.Project, error)
	GetProjectBySUUID(ctx context.Context, suuid string) (*models.Project, error)
	UpdateProject(ctx context.Context, p *models.Project) error
	SoftDeleteProject(ctx context.Context, id uuid.UUID) error
	ListProjects(ctx context.Context, workspaceID *uuid.UUID) ([]*models.Project, error)
}

// JobStore persists job definitions and their schedules.
type JobStore interface {
	CreateJob(ctx context.Context, job *models.JobDef) error
	GetJobByUUID(ctx context.Context, id uuid.UUID) (*models.JobDef, error)
	GetJobBySUUID(ctx context.Context, suuid string) (*models.JobDef, error)
	GetJobByName(ctx context.Context, projectID uuid.UUID, name string) (*models.JobDef, error)
	UpdateJob(ctx context.Context, job *models.JobDef) error
	ListJobs(ctx context.Context, projectID uuid.UUID) ([]*models.JobDef, error)

	CreateSchedule(ctx context.Context, s *models.Schedule) error
	UpdateSchedule(ctx context.Context, s *models.Schedule) error
	DeleteSchedulesForJob(ctx context.Context, jobID uuid.UUID) error
	ListSchedulesForJob(ctx context.Context, jobID uuid.UUID) ([]*models.Schedule, error)

	// DueSchedules returns active schedules with next_run_at <= now.
	DueSchedules(ctx context.Context, now time.Time) ([]*models.Schedule, error)
}

// PackageStore persists uploaded code archives.
type PackageStore interface {
	CreatePackage(ctx context.Context, p *models.Package) error
	GetPackageByUUID(ctx context.Context, id uuid.UUID) (*models.Package, error)
	GetPackageBySUUID(ctx context.Context, suuid string) (*models.Package, error)
	UpdatePackage(ctx context.Context, p *models.Package) error

	// LatestPackageForProject returns the newest package whose file upload has
	// completed, or ErrNotFound.
	LatestPackageForProject(ctx context.Context, projectID uuid.UUID) (*models.Package, error)
}

// RunStore persists runs. Transition serializes state changes per run.
type RunStore interface {
	CreateRun(ctx context.Context, run *models.Run) error
	GetRunByUUID(ctx context.Context, id uuid.UUID) (*models.Run, error)
	GetRunBySUUID(ctx context.Context, suuid string) (*models.Run, error)
	ListRuns(ctx context.Context, jobID *uuid.UUID) ([]*models.Run, error)
	SoftDeleteRun(ctx context.Context, id uuid.UUID) error

	// Transition loads the run under an exclusive per-run lock, applies fn and
	// persists the result. fn returning an error aborts without writing.
	Transition(ctx context.Context, id uuid.UUID, fn func(run *models.Run) error) (*models.Run, error)

	// HardDeleteOrphans removes runs whose job, project or workspace has been
	// hard-deleted. Returns the number of removed rows.
	HardDeleteOrphans(ctx context.Context) (int, error)
}

// FileStore persists file rows and object references; the bytes live in a
// storage.Backend.
type FileStore interface {
	// ObjectReferenceFor returns the reference row for an owner, creating it
	// when absent.
	ObjectReferenceFor(ctx context.Context, kind models.OwnerKind, ownerUUID uuid.UUID, ownerSUUID string) (*models.ObjectReference, error)
	GetObjectReference(ctx context.Context, id uuid.UUID) (*models.ObjectReference, error)

	CreateFile(ctx context.Context, f *models.File) error
	GetFileByUUID(ctx context.Context, id uuid.UUID) (*models.File, error)
	GetFileBySUUID(ctx context.Context, suuid string) (*models.File, error)
	UpdateFile(ctx context.Context, f *models.File) error
	DeleteFile(ctx context.Context, id uuid.UUID) error
	ListFilesForOwner(ctx context.Context, refID uuid.UUID) ([]*models.File, error)
}

// TrackingStore persists metric and variable rows for runs.
type TrackingStore interface {
	ReplaceMetrics(ctx context.Context, runID uuid.UUID, rows []*models.RunMetric) error
	ListMetrics(ctx context.Context, runID uuid.UUID) ([]*models.RunMetric, error)

	ReplaceVariables(ctx context.Context, runID uuid.UUID, rows []*models.RunVariable) error
	ListVariables(ctx context.Context, runID uuid.UUID) ([]*models.RunVariable, error)

	// DeduplicateObservations drops rows identical on (name, value, labels,
	// recorded_at), keeping one of each. Returns removed row count.
	DeduplicateObservations(ctx context.Context, runID uuid.UUID) (int, error)
}

// ProjectVariableStore persists the per-project variables used for
// notification templating and worker environments.
type ProjectVariableStore interface {
	SetProjectVariable(ctx context.Context, projectID uuid.UUID, name, value string, masked bool) error
	ProjectVariables(ctx context.Context, projectID uuid.UUID) (map[string]string, error)
	DeleteProjectVariable(ctx context.Context, projectID uuid.UUID, name string) error
}

// Store aggregates every persistence concern behind one handle, the way the
// commands wire it.
type Store interface {
	AccountStore
	WorkspaceStore
	JobStore
	PackageStore
	RunStore
	FileStore
	TrackingStore
	ProjectVariableStore

	// PurgeDeleted hard-removes soft-deleted workspaces, projects, memberships
	// and runs whose deleted_at is older than before. Dependents of a purged
	// row become orphans; HardDeleteOrphans picks those up. Returns the number
	// of removed rows.
	PurgeDeleted(ctx context.Context, before time.Time) (int, error)

	// Lifecycle
	Start() error
	Stop() error
}
