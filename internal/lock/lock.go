// Package lock provides named exclusive locks. The redsync implementation
// coordinates across replicas; the local implementation serves single-process
// deployments and tests. Callers that must not queue (meta recompute, file
// finalization) use TryAcquire and fail fast on ErrLocked.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrLocked is returned by TryAcquire when the lock is already held.
var ErrLocked = errors.New("lock already held")

// Release frees a held lock. Releasing twice is harmless.
type Release func()

// Locker hands out named exclusive locks with a TTL. The TTL bounds how long
// a crashed holder can block others.
type Locker interface {
	// TryAcquire takes the lock or fails immediately with ErrLocked.
	TryAcquire(ctx context.Context, name string, ttl time.Duration) (Release, error)

	// Acquire takes the lock, waiting up to maxWait. Past the deadline it
	// returns ErrLocked.
	Acquire(ctx context.Context, name string, ttl, maxWait time.Duration) (Release, error)
}
