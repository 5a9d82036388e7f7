// Package slotlock serializes booking attempts on the same court interval.
package slotlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

// ErrLockTimeout is returned when a lock could not be acquired before the
// context was done.
var ErrLockTimeout = errors.New("timed out waiting for slot lock")

// Locker hands out exclusive locks keyed by court interval. The returned
// release func must be called exactly once.
type Locker interface {
	Lock(ctx context.Context, key Key) (release func(), err error)
}

// Key identifies a court interval at millisecond precision.
type Key struct {
	CourtID int64
	Start   time.Time
	End     time.Time
}

func (k Key) String() string {
	return fmt.Sprintf("slot:%d:%d:%d", k.CourtID, k.Start.UnixMilli(), k.End.UnixMilli())
}

// Local locks within a single process.
type Local struct {
	mu    sync.Mutex
	slots map[string]*localSlot
}

type localSlot struct {
	ch   chan struct{}
	refs int
}

func NewLocal() *Local {
	return &Local{slots: make(map[string]*localSlot)}
}

func (l *Local) Lock(ctx context.Context, key Key) (func(), error) {
	name := key.String()

	l.mu.Lock()
	slot, ok := l.slots[name]
	if !ok {
		slot = &localSlot{ch: make(chan struct{}, 1)}
		l.slots[name] = slot
	}
	slot.refs++
	l.mu.Unlock()

	select {
	case slot.ch <- struct{}{}:
	case <-ctx.Done():
		l.unref(name, slot)
		return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-slot.ch
			l.unref(name, slot)
		})
	}, nil
}

func (l *Local) unref(name string, slot *localSlot) {
	l.mu.Lock()
	defer l.mu.Unlock()
	slot.refs--
	if slot.refs == 0 {
		delete(l.slots, name)
	}
}

// Held reports how many keys currently have holders or waiters.
func (l *Local) Held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.slots)
}

// unlockScript deletes the key only if it still carries our token, so an
// expired lock taken over by another holder is never released by us.
var unlockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Redis locks across processes sharing one Redis instance. Locks expire
// after ttl so a crashed holder cannot wedge a slot forever.
type Redis struct {
	client redis.UniversalClient
	ttl    time.Duration
	retry  time.Duration
	prefix string
}

func NewRedis(client redis.UniversalClient, ttl time.Duration) *Redis {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &Redis{client: client, ttl: ttl, retry: 25 * time.Millisecond, prefix: "courtbook:lock:"}
}

func (r *Redis) Lock(ctx context.Context, key Key) (func(), error) {
	name := r.prefix + key.String()
	token := uuid.NewString()

	ticker := time.NewTicker(r.retry)
	defer ticker.Stop()

	for {
		ok, err := r.client.SetNX(ctx, name, token, r.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire %s: %w", name, err)
		}
		if ok {
			break
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %v", ErrLockTimeout, ctx.Err())
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			// Release even if the caller's context is already cancelled.
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			defer cancel()
			if err := unlockScript.Run(releaseCtx, r.client, []string{name}, token).Err(); err != nil {
				// The key still expires after ttl.
				log.Ctx(ctx).Warn().Err(err).Str("lock", name).Dur("ttl", r.ttl).Msg("Failed to release slot lock")
			}
		})
	}, nil
}

// Ping checks connectivity to the Redis server.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
