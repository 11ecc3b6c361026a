package hold

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrLockNotAcquired means another caller holds the slot's critical section.
var ErrLockNotAcquired = errors.New("hold: slot lock not acquired")

// SlotLocker guards the reserve critical section per slot.
type SlotLocker interface {
	WithSlotLock(ctx context.Context, tenantID, calendarID string, slotTime time.Time, fn func(ctx context.Context) error) error
}

type redisSlotLocker struct {
	client redis.UniversalClient
	ttl    time.Duration
	tracer trace.Tracer
}

// NewRedisSlotLocker creates a locker keyed by a stable hash of the
// (tenant, calendar, slot) tuple. Acquisition is bounded: if the key is
// already set the caller fails immediately rather than queueing.
func NewRedisSlotLocker(client redis.UniversalClient, ttl time.Duration) SlotLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &redisSlotLocker{
		client: client,
		ttl:    ttl,
		tracer: otel.Tracer("booking.internal.hold.lock"),
	}
}

func slotLockKey(tenantID, calendarID string, slotTime time.Time) string {
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%s|%d", tenantID, calendarID, slotTime.UTC().Unix())))
	return "lock:slot:" + hex.EncodeToString(sum[:16])
}

func (l *redisSlotLocker) WithSlotLock(ctx context.Context, tenantID, calendarID string, slotTime time.Time, fn func(ctx context.Context) error) error {
	ctx, span := l.tracer.Start(ctx, "hold.slot_lock")
	defer span.End()
	span.SetAttributes(attribute.String("booking.tenant_id", tenantID))

	key := slotLockKey(tenantID, calendarID, slotTime)
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("hold: acquire slot lock: %w", err)
	}
	if !ok {
		return ErrLockNotAcquired
	}

	defer func() {
		_ = l.release(ctx, key, token)
	}()

	lockCtx, cancel := context.WithTimeout(ctx, l.ttl)
	defer cancel()

	return fn(lockCtx)
}

// Only the token owner may delete the key; an expired lock that another
// caller re-acquired must not be released from here.
var unlockScript = redis.NewScript(`
local val = redis.call("GET", KEYS[1])
if val == ARGV[1] then
  return redis.call("DEL", KEYS[1])
else
  return 0
end
`)

func (l *redisSlotLocker) release(ctx context.Context, key, token string) error {
	_, err := unlockScript.Run(ctx, l.client, []string{key}, token).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("hold: release slot lock: %w", err)
	}
	return nil
}
