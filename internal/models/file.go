package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OwnerKind enumerates the entity kinds a file can belong to.
type OwnerKind string

const (
	OwnerUser       OwnerKind = "user"
	OwnerMembership OwnerKind = "membership"
	OwnerPackage    OwnerKind = "package"
	OwnerRun        OwnerKind = "run"
	OwnerRunResult  OwnerKind = "run_result"
	OwnerRunArtifact OwnerKind = "run_artifact"
)

// Valid reports whether k names a known owner kind.
func (k OwnerKind) Valid() bool {
	switch k {
	case OwnerUser, OwnerMembership, OwnerPackage, OwnerRun, OwnerRunResult, OwnerRunArtifact:
		return true
	}
	return false
}

// ObjectReference is the tagged owner of a file: exactly one (kind, uuid)
// pair, validated at write time. OwnerSUUID is denormalized because storage
// keys are derived from it.
type ObjectReference struct {
	Base
	OwnerKind  OwnerKind
	OwnerUUID  uuid.UUID
	OwnerSUUID string
}

// Validate enforces the exactly-one-owner invariant.
func (o *ObjectReference) Validate() error {
	if !o.OwnerKind.Valid() {
		return fmt.Errorf("unknown owner kind %q", o.OwnerKind)
	}
	if o.OwnerUUID == uuid.Nil {
		return fmt.Errorf("object reference without owner uuid")
	}
	return nil
}

// File is a content-addressed blob entity. A file is reserved on creation,
// uploaded in parts, and visible only once CompletedAt is set.
type File struct {
	Base
	Name        string
	Description string
	Size        int64
	Etag        string // MD5 of the assembled content, hex
	ContentType string
	CompletedAt *time.Time

	CreatedFor uuid.UUID // ObjectReference uuid
	CreatedBy  *uuid.UUID
}

// IsComplete returns true once the upload has been finalized.
func (f *File) IsComplete() bool {
	return f.CompletedAt != nil
}
