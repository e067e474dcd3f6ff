// Package bootstrap builds the runtime dependencies shared by the API
// server and the operator commands.
package bootstrap

import (
	"context"
	"crypto/tls"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/audit"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/sessions"
	"github.com/wolfman30/clinic-booking/internal/wizard"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		_ = client.Close()
		return nil
	}
	return client
}

// BuildSessionRepository picks the session store named by SESSION_STORE.
// The redis store refuses to start without a reachable server; sessions
// must survive restarts and be shared across instances once it is chosen.
func BuildSessionRepository(ctx context.Context, cfg *appconfig.Config, redisClient *redis.Client, logger *logging.Logger) (sessions.Repository, error) {
	if cfg == nil {
		return nil, fmt.Errorf("bootstrap: config is required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	switch cfg.SessionStore {
	case "", StoreMemory:
		if cfg.IsProduction() {
			logger.Warn("in-memory session store in production; sessions are lost on restart")
		}
		return sessions.NewMemoryRepository(cfg.SessionTTL), nil
	case StoreRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("bootstrap: SESSION_STORE=redis but redis is unavailable at %q", cfg.RedisAddr)
		}
		logger.Info("redis session store enabled", "addr", cfg.RedisAddr)
		return sessions.NewRedisRepository(redisClient, cfg.SessionTTL), nil
	default:
		return nil, fmt.Errorf("bootstrap: unknown session store %q", cfg.SessionStore)
	}
}

// OpenAuditDB connects to Postgres through a pgx pool and exposes it as
// *sql.DB for the audit store. It returns nils when DATABASE_URL is unset.
func OpenAuditDB(ctx context.Context, cfg *appconfig.Config) (*pgxpool.Pool, *sql.DB, error) {
	if cfg == nil || strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, nil, nil
	}
	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("bootstrap: connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("bootstrap: ping postgres: %w", err)
	}
	return pool, stdlib.OpenDBFromPool(pool), nil
}

// BuildAuditRecorder returns the Postgres-backed recorder, or a no-op one
// when no database is configured.
func BuildAuditRecorder(db *sql.DB, logger *logging.Logger) wizard.AuditRecorder {
	if db == nil {
		if logger != nil {
			logger.Info("submission audit disabled; DATABASE_URL not set")
		}
		return audit.NopRecorder{}
	}
	return audit.NewStore(db)
}
