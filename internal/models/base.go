// Package models holds the persistent entities of the orchestration core.
// Every entity carries an opaque uuid primary key plus a short suuid, the
// external handle used in URLs and API payloads.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Base is embedded by every persistent entity.
type Base struct {
	UUID       uuid.UUID
	SUUID      string
	CreatedAt  time.Time
	ModifiedAt time.Time
	DeletedAt  *time.Time // Soft delete; non-nil rows are invisible to listings
}

// IsDeleted returns true when the entity has been soft-deleted.
func (b *Base) IsDeleted() bool {
	return b.DeletedAt != nil
}
