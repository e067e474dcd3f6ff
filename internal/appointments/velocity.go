package appointments

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel/attribute"

	"github.com/wolfman30/clinic-booking/pkg/logging"
)

// VelocityConfig bounds how often one client may look up appointments.
type VelocityConfig struct {
	MaxLookups int
	Window     time.Duration
}

// DefaultVelocityConfig returns the default lookup limits.
func DefaultVelocityConfig() VelocityConfig {
	return VelocityConfig{
		MaxLookups: 10,
		Window:     time.Hour,
	}
}

// VelocityResult contains the result of a velocity check.
type VelocityResult struct {
	Allowed      bool
	CurrentCount int
	MaxAllowed   int
	WindowExpiry time.Time
	Message      string
}

// VelocityChecker counts lookups per client in Redis. Without a Redis client
// every check is allowed.
type VelocityChecker struct {
	redis  *redis.Client
	logger *logging.Logger
	config VelocityConfig
	now    func() time.Time
}

// NewVelocityChecker creates a new velocity checker.
func NewVelocityChecker(redisClient *redis.Client, config VelocityConfig, logger *logging.Logger) *VelocityChecker {
	if logger == nil {
		logger = logging.Default()
	}
	defaults := DefaultVelocityConfig()
	if config.MaxLookups <= 0 {
		config.MaxLookups = defaults.MaxLookups
	}
	if config.Window <= 0 {
		config.Window = defaults.Window
	}
	return &VelocityChecker{
		redis:  redisClient,
		logger: logger,
		config: config,
		now:    time.Now,
	}
}

// CheckLookup counts one lookup for clientKey and reports whether it is
// within the limit.
func (v *VelocityChecker) CheckLookup(ctx context.Context, clientKey string) (*VelocityResult, error) {
	ctx, span := appointmentsTracer.Start(ctx, "velocity.check_lookup")
	defer span.End()

	if v == nil || v.redis == nil {
		return &VelocityResult{Allowed: true}, nil
	}

	key := lookupKey(clientKey)
	count, expiry, err := v.incrementAndGet(ctx, key, v.config.Window)
	if err != nil {
		v.logger.Error("velocity check failed", "error", err)
		// Fail open if Redis is down
		return &VelocityResult{Allowed: true, Message: "velocity check unavailable"}, nil
	}

	result := &VelocityResult{
		Allowed:      count <= v.config.MaxLookups,
		CurrentCount: count,
		MaxAllowed:   v.config.MaxLookups,
		WindowExpiry: expiry,
	}
	if !result.Allowed {
		result.Message = fmt.Sprintf("exceeded %d lookups in %s", v.config.MaxLookups, v.config.Window)
		v.logger.Warn("lookup velocity exceeded",
			"client", clientKey,
			"count", count,
			"max", v.config.MaxLookups,
		)
		span.SetAttributes(attribute.Bool("velocity.exceeded", true))
	}
	return result, nil
}

func (v *VelocityChecker) incrementAndGet(ctx context.Context, key string, window time.Duration) (int, time.Time, error) {
	count, err := v.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, time.Time{}, err
	}

	// Set expiry only on first increment
	if count == 1 {
		v.redis.Expire(ctx, key, window)
	}

	ttl, err := v.redis.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return int(count), v.now().Add(ttl), nil
}

func lookupKey(clientKey string) string {
	return fmt.Sprintf("velocity:lookup:%s", clientKey)
}
