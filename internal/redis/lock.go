package redisclient

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// CalendarLocker serializes bookings and reschedules touching one doctor's
// calendar day across all process instances.
type CalendarLocker interface {
	// Acquire returns nil without error when the lock is held elsewhere;
	// that is an expected outcome, not a failure. Acquiring a key this
	// caller already holds also returns nil: the lock is not reentrant.
	Acquire(ctx context.Context, doctorID uuid.UUID, day time.Time) (*LockHandle, error)

	// Release is idempotent and only removes the key while the handle's
	// token is still the stored value.
	Release(ctx context.Context, handle *LockHandle) error
}

// LockHandle proves ownership of an acquired lock. The token is unique per
// acquisition, so a handle that outlives its TTL can never release a lock
// re-acquired by another holder.
type LockHandle struct {
	Key        string
	Token      string
	AcquiredAt time.Time
}

type redisCalendarLocker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCalendarLocker creates a locker keyed per doctor and calendar day.
// The TTL bounds worst-case lock lifetime if a holder crashes.
func NewRedisCalendarLocker(client *redis.Client, ttl time.Duration) CalendarLocker {
	return &redisCalendarLocker{
		client: client,
		ttl:    ttl,
	}
}

func lockKey(doctorID uuid.UUID, day time.Time) string {
	return fmt.Sprintf("lock:calendar:%s:%s", doctorID.String(), day.UTC().Format("2006-01-02"))
}

func (l *redisCalendarLocker) Acquire(ctx context.Context, doctorID uuid.UUID, day time.Time) (*LockHandle, error) {
	key := lockKey(doctorID, day)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire calendar lock: %w", err)
	}
	if !ok {
		return nil, nil
	}

	return &LockHandle{
		Key:        key,
		Token:      token,
		AcquiredAt: time.Now(),
	}, nil
}

// unlockScript deletes the key only while it still holds our token, in one
// atomic round trip. A separate GET+DEL would race with TTL expiry.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisCalendarLocker) Release(ctx context.Context, handle *LockHandle) error {
	if handle == nil {
		return nil
	}
	_, err := unlockScript.Run(ctx, l.client, []string{handle.Key}, handle.Token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("release calendar lock: %w", err)
	}
	return nil
}
