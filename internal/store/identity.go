package store

import (
	"time"

	"github.com/google/uuid"

	"github.com/askanna-io/askanna-core/internal/models"
	"github.com/askanna-io/askanna-core/internal/suuid"
)

// EnsureIdentity fills the identity and timestamp fields of an entity about
// to be persisted. Backends call this on every create so that callers may,
// but need not, pre-assign identifiers.
func EnsureIdentity(b *models.Base, now time.Time) {
	if b.UUID == uuid.Nil {
		b.UUID, b.SUUID = suuid.NewPair()
	}
	if b.SUUID == "" {
		b.SUUID = suuid.FromUUID(b.UUID)
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = now
	}
	b.ModifiedAt = now
}
