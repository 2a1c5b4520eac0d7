package rbac

import (
	"github.com/google/uuid"

	"github.com/askanna-io/askanna-core/internal/models"
)

// Actor is the resolved caller of a request: the user (nil when anonymous)
// and their active workspace memberships, keyed by workspace uuid.
type Actor struct {
	User        *models.User
	Memberships map[uuid.UUID]string
}

// Anonymous reports whether the actor carries no authenticated user.
func (a Actor) Anonymous() bool {
	return a.User == nil
}

// Target is the object an action applies to, resolved to its parents. Either
// field may be nil; a project target should also carry its workspace.
type Target struct {
	Workspace *models.Workspace
	Project   *models.Project
}

// SiteRole resolves the actor's site-wide role.
func SiteRole(a Actor) Role {
	switch {
	case a.User == nil || !a.User.IsActive:
		return AskAnnaPublicViewer
	case a.User.IsSuperuser:
		return AskAnnaAdmin
	default:
		return AskAnnaMember
	}
}

// WorkspaceRole resolves the actor's role for one workspace: the membership
// role when present, PublicViewer for public workspaces, NoMember otherwise.
func WorkspaceRole(a Actor, ws *models.Workspace) Role {
	if ws == nil {
		return WorkspaceNoMember
	}
	if code, ok := a.Memberships[ws.UUID]; ok {
		if role, ok := RoleByCode(code); ok {
			return role
		}
	}
	if ws.Visibility == models.VisibilityPublic {
		return WorkspacePublicViewer
	}
	return WorkspaceNoMember
}

// ProjectRole resolves the actor's role for a project. The role inherits
// deterministically from the workspace role, with one extra step: a private
// project inside a public workspace stays invisible to non-members.
func ProjectRole(a Actor, project *models.Project, ws *models.Workspace) Role {
	if project == nil {
		return ProjectNoMember
	}
	wsRole := WorkspaceRole(a, ws)
	if wsRole.Code == CodeWorkspacePublicViewer && project.Visibility != models.VisibilityPublic {
		return ProjectNoMember
	}
	role, ok := projectRoleForWorkspace[wsRole.Code]
	if !ok {
		return ProjectNoMember
	}
	return role
}

// Roles returns the actor's effective roles for a target, site role first.
func Roles(a Actor, t Target) []Role {
	roles := []Role{SiteRole(a)}
	if t.Project != nil {
		roles = append(roles, ProjectRole(a, t.Project, t.Workspace), WorkspaceRole(a, t.Workspace))
	} else if t.Workspace != nil {
		roles = append(roles, WorkspaceRole(a, t.Workspace))
	}
	return roles
}

// Allow merges the actor's roles for the target and answers the permission
// lookup, defaulting to false. Pure: no side effects, no persistence reads.
func Allow(a Actor, p Permission, t Target) bool {
	return Merge(Roles(a, t)...)[p]
}

// CanList reports whether a (workspace, project) pair belongs in the actor's
// listing result set: member of the workspace, or both the workspace and the
// project are public. Listing endpoints filter with this instead of running
// per-row Allow checks.
func CanList(a Actor, ws *models.Workspace, project *models.Project) bool {
	if ws == nil {
		return false
	}
	if _, ok := a.Memberships[ws.UUID]; ok {
		return true
	}
	if ws.Visibility != models.VisibilityPublic {
		return false
	}
	if project == nil {
		return true
	}
	return project.Visibility == models.VisibilityPublic
}
