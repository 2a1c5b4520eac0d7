package rbac

// Permission is a dotted action name, e.g. "project.run.create".
type Permission string

// Site scope.
const (
	PermAskAnnaAdmin    Permission = "askanna.admin"
	PermAskAnnaMember   Permission = "askanna.member"
	PermWorkspaceCreate Permission = "workspace.create"
)

// Workspace scope.
const (
	PermWorkspaceInfo               Permission = "workspace.info"
	PermWorkspaceEdit               Permission = "workspace.edit"
	PermWorkspaceRemove             Permission = "workspace.remove"
	PermWorkspacePeopleList         Permission = "workspace.people.list"
	PermWorkspacePeopleEdit         Permission = "workspace.people.edit"
	PermWorkspacePeopleRemove       Permission = "workspace.people.remove"
	PermWorkspaceInvitationCreate   Permission = "workspace.people.invite.create"
	PermWorkspaceInvitationRemove   Permission = "workspace.people.invite.remove"
	PermWorkspaceInvitationResend   Permission = "workspace.people.invite.resend"
	PermWorkspaceProjectList        Permission = "workspace.project.list"
	PermWorkspaceProjectCreate      Permission = "workspace.project.create"
)

// Project scope.
const (
	PermProjectInfo           Permission = "project.info"
	PermProjectEdit           Permission = "project.edit"
	PermProjectRemove         Permission = "project.remove"
	PermProjectCodeList       Permission = "project.code.list"
	PermProjectCodeCreate     Permission = "project.code.create"
	PermProjectJobList        Permission = "project.job.list"
	PermProjectJobEdit        Permission = "project.job.edit"
	PermProjectRunList        Permission = "project.run.list"
	PermProjectRunCreate      Permission = "project.run.create"
	PermProjectRunEdit        Permission = "project.run.edit"
	PermProjectRunRemove      Permission = "project.run.remove"
	PermProjectVariableList   Permission = "project.variable.list"
	PermProjectVariableCreate Permission = "project.variable.create"
	PermProjectVariableEdit   Permission = "project.variable.edit"
	PermProjectVariableRemove Permission = "project.variable.remove"
)

func perms(ps ...Permission) map[Permission]bool {
	m := make(map[Permission]bool, len(ps))
	for _, p := range ps {
		m[p] = true
	}
	return m
}

func extend(base map[Permission]bool, ps ...Permission) map[Permission]bool {
	m := make(map[Permission]bool, len(base)+len(ps))
	for p, v := range base {
		m[p] = v
	}
	for _, p := range ps {
		m[p] = true
	}
	return m
}

// Site roles.
var (
	AskAnnaPublicViewer = register(Role{Code: CodeAskAnnaPublicViewer, permissions: perms()})

	AskAnnaMember = register(Role{Code: CodeAskAnnaMember, permissions: perms(
		PermAskAnnaMember,
		PermWorkspaceCreate,
	)})

	AskAnnaAdmin = register(Role{Code: CodeAskAnnaAdmin, permissions: extend(
		AskAnnaMember.permissions,
		PermAskAnnaAdmin,
	)})
)

// Workspace roles.
var (
	WorkspaceNoMember = register(Role{Code: CodeWorkspaceNoMember, permissions: perms()})

	WorkspacePublicViewer = register(Role{Code: CodeWorkspacePublicViewer, permissions: perms(
		PermWorkspaceInfo,
		PermWorkspaceProjectList,
	)})

	WorkspaceViewer = register(Role{Code: CodeWorkspaceViewer, permissions: perms(
		PermWorkspaceInfo,
		PermWorkspacePeopleList,
		PermWorkspaceProjectList,
	)})

	WorkspaceMember = register(Role{Code: CodeWorkspaceMember, permissions: extend(
		WorkspaceViewer.permissions,
		PermWorkspaceProjectCreate,
	)})

	WorkspaceAdmin = register(Role{Code: CodeWorkspaceAdmin, permissions: extend(
		WorkspaceMember.permissions,
		PermWorkspaceEdit,
		PermWorkspaceRemove,
		PermWorkspacePeopleEdit,
		PermWorkspacePeopleRemove,
		PermWorkspaceInvitationCreate,
		PermWorkspaceInvitationRemove,
		PermWorkspaceInvitationResend,
	)})
)

// Project roles.
var (
	ProjectNoMember = register(Role{Code: CodeProjectNoMember, permissions: perms()})

	ProjectPublicViewer = register(Role{Code: CodeProjectPublicViewer, permissions: perms(
		PermProjectInfo,
		PermProjectCodeList,
		PermProjectJobList,
		PermProjectRunList,
	)})

	ProjectViewer = register(Role{Code: CodeProjectViewer, permissions: extend(
		ProjectPublicViewer.permissions,
		PermProjectVariableList,
	)})

	ProjectMember = register(Role{Code: CodeProjectMember, permissions: extend(
		ProjectViewer.permissions,
		PermProjectCodeCreate,
		PermProjectRunCreate,
		PermProjectRunEdit,
		PermProjectVariableCreate,
		PermProjectVariableEdit,
		PermProjectVariableRemove,
	)})

	ProjectAdmin = register(Role{Code: CodeProjectAdmin, permissions: extend(
		ProjectMember.permissions,
		PermProjectEdit,
		PermProjectRemove,
		PermProjectRunRemove,
		PermProjectJobEdit,
	)})
)

// projectRoleForWorkspace maps a workspace role onto the project role it
// implies. Project roles are fully inherited from the workspace.
var projectRoleForWorkspace = map[string]Role{
	CodeWorkspaceNoMember:     ProjectNoMember,
	CodeWorkspacePublicViewer: ProjectPublicViewer,
	CodeWorkspaceViewer:       ProjectViewer,
	CodeWorkspaceMember:       ProjectMember,
	CodeWorkspaceAdmin:        ProjectAdmin,
}
