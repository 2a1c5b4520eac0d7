package models

import (
	"time"

	"github.com/google/uuid"
)

// User is an authenticated principal.
type User struct {
	Base
	Email       string
	Name        string
	IsActive    bool
	IsSuperuser bool
	// Password hash and API token; never serialized outward.
	PasswordHash string
	AuthToken    string

	// Global profile, reusable across memberships.
	JobTitle   string
	AvatarFile *uuid.UUID
}

// MembershipObjectType scopes a membership to an entity kind. Only workspaces
// carry memberships today.
type MembershipObjectType string

const (
	MembershipObjectWorkspace MembershipObjectType = "WS"
)

// Role codes persisted on memberships.
const (
	RoleWorkspaceAdmin  = "WA"
	RoleWorkspaceMember = "WM"
	RoleWorkspaceViewer = "WV"
)

// Membership binds a user to a workspace with a role. A membership with a nil
// UserUUID is an outstanding invitation and must carry a signed token and the
// invitee email.
type Membership struct {
	Base
	UserUUID   *uuid.UUID
	ObjectType MembershipObjectType
	ObjectUUID uuid.UUID
	RoleCode   string

	// Per-membership profile, used when UseGlobalProfile is false.
	Name             string
	JobTitle         string
	UseGlobalProfile bool
	AvatarFile       *uuid.UUID

	// Invitation fields, cleared on acceptance.
	Email           string
	InvitationToken string
	InvitedAt       *time.Time
	ResendCount     int
}

// IsInvitation returns true while the membership has not been accepted.
func (m *Membership) IsInvitation() bool {
	return m.UserUUID == nil
}
