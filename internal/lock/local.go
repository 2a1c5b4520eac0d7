package lock

import (
	"context"
	"sync"
	"time"
)

// Local implements Locker inside one process.
type Local struct {
	mu   sync.Mutex
	held map[string]struct{}
}

var _ Locker = (*Local)(nil)

// NewLocal returns an empty local locker.
func NewLocal() *Local {
	return &Local{held: make(map[string]struct{})}
}

func (l *Local) TryAcquire(ctx context.Context, name string, ttl time.Duration) (Release, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, taken := l.held[name]; taken {
		return nil, ErrLocked
	}
	l.held[name] = struct{}{}
	return l.releaseFunc(name), nil
}

func (l *Local) Acquire(ctx context.Context, name string, ttl, maxWait time.Duration) (Release, error) {
	deadline := time.Now().Add(maxWait)
	for {
		rel, err := l.TryAcquire(ctx, name, ttl)
		if err == nil {
			return rel, nil
		}
		if time.Now().After(deadline) {
			return nil, ErrLocked
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func (l *Local) releaseFunc(name string) Release {
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, name)
			l.mu.Unlock()
		})
	}
}
