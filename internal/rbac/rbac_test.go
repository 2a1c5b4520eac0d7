package rbac

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/askanna-io/askanna-core/internal/models"
)

func privateWorkspace() *models.Workspace {
	ws := &models.Workspace{Visibility: models.VisibilityPrivate}
	ws.UUID = uuid.New()
	return ws
}

func publicWorkspace() *models.Workspace {
	ws := &models.Workspace{Visibility: models.VisibilityPublic}
	ws.UUID = uuid.New()
	return ws
}

func projectIn(ws *models.Workspace, visibility models.Visibility) *models.Project {
	p := &models.Project{Visibility: visibility, WorkspaceUUID: ws.UUID}
	p.UUID = uuid.New()
	return p
}

func activeUser() *models.User {
	u := &models.User{IsActive: true}
	u.UUID = uuid.New()
	return u
}

func TestSiteRole(t *testing.T) {
	require.Equal(t, AskAnnaPublicViewer, SiteRole(Actor{}))

	inactive := activeUser()
	inactive.IsActive = false
	require.Equal(t, AskAnnaPublicViewer, SiteRole(Actor{User: inactive}))

	require.Equal(t, AskAnnaMember, SiteRole(Actor{User: activeUser()}))

	root := activeUser()
	root.IsSuperuser = true
	require.Equal(t, AskAnnaAdmin, SiteRole(Actor{User: root}))
}

func TestWorkspaceRole(t *testing.T) {
	ws := privateWorkspace()

	t.Run("member takes membership role", func(t *testing.T) {
		actor := Actor{
			User:        activeUser(),
			Memberships: map[uuid.UUID]string{ws.UUID: CodeWorkspaceAdmin},
		}
		require.Equal(t, WorkspaceAdmin, WorkspaceRole(actor, ws))
	})

	t.Run("non-member of private workspace", func(t *testing.T) {
		require.Equal(t, WorkspaceNoMember, WorkspaceRole(Actor{User: activeUser()}, ws))
	})

	t.Run("non-member of public workspace", func(t *testing.T) {
		require.Equal(t, WorkspacePublicViewer, WorkspaceRole(Actor{}, publicWorkspace()))
	})
}

func TestProjectRoleInheritance(t *testing.T) {
	ws := privateWorkspace()
	project := projectIn(ws, models.VisibilityPrivate)

	cases := []struct {
		wsCode  string
		project Role
	}{
		{CodeWorkspaceAdmin, ProjectAdmin},
		{CodeWorkspaceMember, ProjectMember},
		{CodeWorkspaceViewer, ProjectViewer},
	}
	for _, tc := range cases {
		actor := Actor{
			User:        activeUser(),
			Memberships: map[uuid.UUID]string{ws.UUID: tc.wsCode},
		}
		require.Equal(t, tc.project, ProjectRole(actor, project, ws), "workspace role %s", tc.wsCode)
	}
}

func TestProjectRolePublicWorkspacePrivateProject(t *testing.T) {
	ws := publicWorkspace()
	project := projectIn(ws, models.VisibilityPrivate)

	// Anonymous viewers of a public workspace must not see a private project.
	require.Equal(t, ProjectNoMember, ProjectRole(Actor{}, project, ws))

	public := projectIn(ws, models.VisibilityPublic)
	require.Equal(t, ProjectPublicViewer, ProjectRole(Actor{}, public, ws))
}

func TestMergeTrueWins(t *testing.T) {
	merged := Merge(WorkspaceViewer, WorkspaceAdmin)
	require.True(t, merged[PermWorkspaceEdit])

	merged = Merge(WorkspaceAdmin, WorkspaceViewer)
	require.True(t, merged[PermWorkspaceEdit])
}

func TestAllow(t *testing.T) {
	ws := privateWorkspace()
	project := projectIn(ws, models.VisibilityPrivate)
	target := Target{Workspace: ws, Project: project}

	t.Run("anonymous cannot write anywhere", func(t *testing.T) {
		for _, p := range []Permission{
			PermProjectRunCreate, PermProjectEdit, PermWorkspaceEdit,
			PermProjectCodeCreate, PermWorkspaceInvitationCreate,
		} {
			require.False(t, Allow(Actor{}, p, target), "permission %s", p)
		}
	})

	t.Run("workspace admin can create runs in its projects", func(t *testing.T) {
		actor := Actor{
			User:        activeUser(),
			Memberships: map[uuid.UUID]string{ws.UUID: CodeWorkspaceAdmin},
		}
		require.True(t, Allow(actor, PermProjectRunCreate, target))
	})

	t.Run("workspace viewer can read but not create", func(t *testing.T) {
		actor := Actor{
			User:        activeUser(),
			Memberships: map[uuid.UUID]string{ws.UUID: CodeWorkspaceViewer},
		}
		require.True(t, Allow(actor, PermProjectRunList, target))
		require.False(t, Allow(actor, PermProjectRunCreate, target))
	})

	t.Run("unknown permission defaults to false", func(t *testing.T) {
		actor := Actor{User: activeUser()}
		require.False(t, Allow(actor, Permission("project.telepathy"), target))
	})
}

func TestCanList(t *testing.T) {
	privWS := privateWorkspace()
	pubWS := publicWorkspace()

	member := Actor{
		User:        activeUser(),
		Memberships: map[uuid.UUID]string{privWS.UUID: CodeWorkspaceMember},
	}

	require.True(t, CanList(member, privWS, projectIn(privWS, models.VisibilityPrivate)))
	require.False(t, CanList(Actor{}, privWS, projectIn(privWS, models.VisibilityPublic)))
	require.True(t, CanList(Actor{}, pubWS, projectIn(pubWS, models.VisibilityPublic)))
	require.False(t, CanList(Actor{}, pubWS, projectIn(pubWS, models.VisibilityPrivate)))
}
