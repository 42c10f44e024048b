package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bsm/redislock"
)

// ErrGuardHeld means another firing of the same ScheduledCall holds the guard.
var ErrGuardHeld = errors.New("scheduler: firing already in progress")

// FireGuard serializes firings of one ScheduledCall, across processes when backed by Redis.
type FireGuard interface {
	// Acquire returns ErrGuardHeld when the guard is taken. Any other error means the guard
	// backend is unavailable.
	Acquire(ctx context.Context, scheduledCallID string) (release func(), err error)
}

// RedisFireGuard uses a redislock lease per ScheduledCall. The TTL bounds how long a crashed
// process can block the next occurrence.
type RedisFireGuard struct {
	locker *redislock.Client
	ttl    time.Duration
	prefix string
}

func NewRedisFireGuard(locker *redislock.Client, ttl time.Duration) *RedisFireGuard {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &RedisFireGuard{locker: locker, ttl: ttl, prefix: "voice:fire:"}
}

func (g *RedisFireGuard) Acquire(ctx context.Context, scheduledCallID string) (func(), error) {
	if g.locker == nil {
		return nil, errors.New("scheduler: redis lock not ready")
	}
	lock, err := g.locker.Obtain(ctx, g.prefix+scheduledCallID, g.ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrGuardHeld
	}
	if err != nil {
		return nil, err
	}
	return func() {
		_ = lock.Release(context.WithoutCancel(ctx))
	}, nil
}

// MemoryFireGuard is the in-process guard used when Redis is not configured.
type MemoryFireGuard struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func NewMemoryFireGuard() *MemoryFireGuard {
	return &MemoryFireGuard{held: map[string]struct{}{}}
}

func (g *MemoryFireGuard) Acquire(_ context.Context, scheduledCallID string) (func(), error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.held[scheduledCallID]; ok {
		return nil, ErrGuardHeld
	}
	g.held[scheduledCallID] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.held, scheduledCallID)
			g.mu.Unlock()
		})
	}, nil
}
