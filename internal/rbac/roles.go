// Package rbac resolves the caller's effective roles for a target object and
// answers per-action permission checks. Roles are static permission maps
// merged with union-of-trues; evaluation is a pure function of the caller,
// the resolved workspace/project and the action.
package rbac

// Role is a named set of permissions within one scope (site, workspace or
// project).
type Role struct {
	Code        string
	permissions map[Permission]bool
}

// Code strings persisted on memberships and exposed in API payloads.
const (
	CodeAskAnnaPublicViewer = "AP"
	CodeAskAnnaMember       = "AM"
	CodeAskAnnaAdmin        = "AA"

	CodeWorkspaceNoMember     = "WN"
	CodeWorkspacePublicViewer = "WP"
	CodeWorkspaceViewer       = "WV"
	CodeWorkspaceMember       = "WM"
	CodeWorkspaceAdmin        = "WA"

	CodeProjectNoMember     = "PN"
	CodeProjectPublicViewer = "PP"
	CodeProjectViewer       = "PV"
	CodeProjectMember       = "PM"
	CodeProjectAdmin        = "PA"
)

// Has returns the role's value for a permission, defaulting to false.
func (r Role) Has(p Permission) bool {
	return r.permissions[p]
}

// Merge unions the permission maps of the given roles. A permission is true
// in the result when any role grants it.
func Merge(roles ...Role) map[Permission]bool {
	merged := make(map[Permission]bool)
	for _, role := range roles {
		for p, v := range role.permissions {
			if v {
				merged[p] = true
			} else if _, ok := merged[p]; !ok {
				merged[p] = false
			}
		}
	}
	return merged
}

// RoleByCode returns the role for a persisted role code.
func RoleByCode(code string) (Role, bool) {
	r, ok := rolesByCode[code]
	return r, ok
}

var rolesByCode = map[string]Role{}

func register(r Role) Role {
	rolesByCode[r.Code] = r
	return r
}
