// Package locking provides the per-ticket exclusive section used by the
// decision engine. Concurrent triggers for the same ticket (a user reply and
// a follow-up firing at once) serialize on this lock.
package locking

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/resolvemeq/agent-service/pkg/util"
)

// ErrLockHeld is returned when the lock could not be acquired before the
// caller's context expired.
var ErrLockHeld = apperrors.NewConflict("ticket is being processed", nil)

// retryInterval is the pause between acquisition attempts while waiting for
// a contended ticket lock.
const retryInterval = 100 * time.Millisecond

// Unlock releases an acquired lock. Safe to call more than once.
type Unlock func(ctx context.Context) error

// TicketLocker serializes work per ticket across service instances. Acquire
// waits for a contended lock until the context is done.
type TicketLocker interface {
	Acquire(ctx context.Context, ticketID string, ttl time.Duration) (Unlock, error)
}

type redisLocker struct {
	client *redis.Client
	prefix string
}

// NewRedisLocker builds a Redis-backed locker. The TTL bounds how long a
// crashed holder can block a ticket.
func NewRedisLocker(client *redis.Client) TicketLocker {
	return &redisLocker{client: client, prefix: "agent:lock:"}
}

// releaseScript deletes the lock only when the caller still owns it, so a
// holder that outlived its TTL cannot release a successor's lock.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
    return redis.call("DEL", KEYS[1])
end
return 0`)

func (l *redisLocker) Acquire(ctx context.Context, ticketID string, ttl time.Duration) (Unlock, error) {
	key := l.prefix + ticketID
	token := uuid.NewString()

	for {
		ok, err := l.client.SetNX(ctx, key, token, ttl).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ErrLockHeld
		case <-time.After(retryInterval):
		}
	}

	var once sync.Once
	unlock := func(ctx context.Context) error {
		var releaseErr error
		once.Do(func() {
			releaseErr = releaseScript.Run(ctx, l.client, []string{key}, token).Err()
		})
		return releaseErr
	}
	return unlock, nil
}

type localLocker struct {
	mu    sync.Mutex
	locks map[string]struct{}
}

// NewLocalLocker builds an in-process locker for tests and single-instance
// deployments without Redis.
func NewLocalLocker() TicketLocker {
	return &localLocker{locks: make(map[string]struct{})}
}

func (l *localLocker) Acquire(ctx context.Context, ticketID string, _ time.Duration) (Unlock, error) {
	for {
		l.mu.Lock()
		if _, held := l.locks[ticketID]; !held {
			l.locks[ticketID] = struct{}{}
			l.mu.Unlock()
			break
		}
		l.mu.Unlock()
		select {
		case <-ctx.Done():
			return nil, ErrLockHeld
		case <-time.After(retryInterval):
		}
	}

	var once sync.Once
	unlock := func(context.Context) error {
		once.Do(func() {
			l.mu.Lock()
			delete(l.locks, ticketID)
			l.mu.Unlock()
		})
		return nil
	}
	return unlock, nil
}
