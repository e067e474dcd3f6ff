package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking/internal/wizard"
)

var sessionsTracer = otel.Tracer("clinic.internal.sessions")

// releaseScript deletes the submit lock only if it still carries the caller's token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// RedisRepository stores sessions as JSON values with a sliding TTL.
type RedisRepository struct {
	redis *redis.Client
	ttl   time.Duration
}

// NewRedisRepository wraps client. A non-positive ttl means DefaultTTL.
func NewRedisRepository(client *redis.Client, ttl time.Duration) *RedisRepository {
	if client == nil {
		panic("sessions: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &RedisRepository{redis: client, ttl: ttl}
}

func (r *RedisRepository) Load(ctx context.Context, id string) (wizard.Session, error) {
	ctx, span := sessionsTracer.Start(ctx, "sessions.load")
	defer span.End()

	data, err := r.redis.Get(ctx, sessionKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return wizard.Session{}, ErrNotFound
		}
		span.RecordError(err)
		return wizard.Session{}, fmt.Errorf("sessions: failed to load session: %w", err)
	}

	var sess wizard.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		span.RecordError(err)
		return wizard.Session{}, fmt.Errorf("sessions: failed to decode session: %w", err)
	}

	if err := r.redis.Expire(ctx, sessionKey(id), r.ttl).Err(); err != nil {
		span.RecordError(err)
	}
	return sess, nil
}

func (r *RedisRepository) Save(ctx context.Context, sess wizard.Session) error {
	ctx, span := sessionsTracer.Start(ctx, "sessions.save")
	defer span.End()
	span.SetAttributes(attribute.Int("booking.step", int(sess.Step)))

	data, err := json.Marshal(sess)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("sessions: failed to marshal session: %w", err)
	}
	if err := r.redis.Set(ctx, sessionKey(sess.ID), data, r.ttl).Err(); err != nil {
		span.RecordError(err)
		return fmt.Errorf("sessions: failed to persist session: %w", err)
	}
	return nil
}

func (r *RedisRepository) Delete(ctx context.Context, id string) error {
	if err := r.redis.Del(ctx, sessionKey(id), submitKey(id)).Err(); err != nil {
		return fmt.Errorf("sessions: failed to delete session: %w", err)
	}
	return nil
}

func (r *RedisRepository) AcquireSubmit(ctx context.Context, id string, ttl time.Duration) (string, bool, error) {
	token := uuid.NewString()
	ok, err := r.redis.SetNX(ctx, submitKey(id), token, ttl).Result()
	if err != nil {
		return "", false, fmt.Errorf("sessions: failed to acquire submit lock: %w", err)
	}
	if !ok {
		return "", false, nil
	}
	return token, true, nil
}

func (r *RedisRepository) ReleaseSubmit(ctx context.Context, id, token string) error {
	if err := releaseScript.Run(ctx, r.redis, []string{submitKey(id)}, token).Err(); err != nil {
		return fmt.Errorf("sessions: failed to release submit lock: %w", err)
	}
	return nil
}

func sessionKey(id string) string {
	return fmt.Sprintf("booking_session:%s", id)
}

func submitKey(id string) string {
	return fmt.Sprintf("booking_session:%s:submit", id)
}
