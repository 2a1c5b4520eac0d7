package lock

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v8"
	"github.com/rs/zerolog/log"
)

// Redsync implements Locker on top of a redis-backed redsync pool, so locks
// hold across replicas.
type Redsync struct {
	rs *redsync.Redsync
}

var _ Locker = (*Redsync)(nil)

// NewRedsync wraps an existing redis client.
func NewRedsync(cli *redis.Client) *Redsync {
	return &Redsync{rs: redsync.New(goredis.NewPool(cli))}
}

func (r *Redsync) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Release, error) {
	mutex := r.rs.NewMutex("lock:"+name, redsync.WithExpiry(ttl), redsync.WithTries(1))
	if err := mutex.LockContext(ctx); err != nil {
		var taken *redsync.ErrTaken
		if errors.As(err, &taken) || errors.Is(err, redsync.ErrFailed) {
			return nil, ErrLocked
		}
		return nil, err
	}
	return r.releaseFunc(mutex, name), nil
}

func (r *Redsync) Acquire(ctx context.Context, name string, ttl, maxWait time.Duration) (Release, error) {
	deadline := time.Now().Add(maxWait)
	for {
		rel, err := r.TryAcquire(ctx, name, ttl)
		if err == nil {
			return rel, nil
		}
		if !errors.Is(err, ErrLocked) {
			return nil, err
		}
		if time.Now().After(deadline) {
			return nil, ErrLocked
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

func (r *Redsync) releaseFunc(mutex *redsync.Mutex, name string) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			if _, err := mutex.Unlock(); err != nil {
				log.Warn().Err(err).Str("lock", name).Msg("Failed to release lock")
			}
		})
	}
}
