package models

import "github.com/google/uuid"

// Visibility controls anonymous and non-member access to a workspace or
// project. Both the workspace and the project must be PUBLIC for an object to
// be visible outside the membership.
type Visibility string

const (
	VisibilityPrivate Visibility = "PRIVATE"
	VisibilityPublic  Visibility = "PUBLIC"
)

// Valid reports whether v is one of the two accepted values.
func (v Visibility) Valid() bool {
	return v == VisibilityPrivate || v == VisibilityPublic
}

// Workspace is the top-level tenant boundary.
type Workspace struct {
	Base
	Name        string
	Description string
	Visibility  Visibility
	CreatedBy   *uuid.UUID
}

// Project groups jobs, packages and runs inside a workspace.
type Project struct {
	Base
	Name          string
	Description   string
	Visibility    Visibility
	WorkspaceUUID uuid.UUID
	CreatedBy     *uuid.UUID
}
