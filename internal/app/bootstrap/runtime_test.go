package bootstrap

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/wolfman30/clinic-booking/internal/audit"
	appconfig "github.com/wolfman30/clinic-booking/internal/config"
	"github.com/wolfman30/clinic-booking/internal/sessions"
	"github.com/wolfman30/clinic-booking/pkg/logging"
)

func TestBuildRedisClientDisabled(t *testing.T) {
	if client := BuildRedisClient(context.Background(), &appconfig.Config{}, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client without an address")
	}
}

func TestBuildRedisClientVerify(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &appconfig.Config{RedisAddr: mr.Addr()}

	client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true)
	if client == nil {
		t.Fatalf("expected client for reachable redis")
	}
	t.Cleanup(func() { _ = client.Close() })

	mr.Close()
	if client := BuildRedisClient(context.Background(), cfg, logging.New("error"), true); client != nil {
		t.Fatalf("expected nil client when ping fails")
	}
}

func TestBuildSessionRepository(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	logger := logging.New("error")

	tests := []struct {
		name    string
		cfg     *appconfig.Config
		client  *redis.Client
		wantErr bool
		check   func(t *testing.T, repo sessions.Repository)
	}{
		{name: "nil config", wantErr: true},
		{
			name: "memory default",
			cfg:  &appconfig.Config{SessionTTL: time.Hour},
			check: func(t *testing.T, repo sessions.Repository) {
				if _, ok := repo.(*sessions.MemoryRepository); !ok {
					t.Fatalf("expected memory repository, got %T", repo)
				}
			},
		},
		{
			name:   "redis",
			cfg:    &appconfig.Config{SessionStore: StoreRedis, SessionTTL: time.Hour},
			client: rdb,
			check: func(t *testing.T, repo sessions.Repository) {
				if _, ok := repo.(*sessions.RedisRepository); !ok {
					t.Fatalf("expected redis repository, got %T", repo)
				}
			},
		},
		{
			name:    "redis unavailable",
			cfg:     &appconfig.Config{SessionStore: StoreRedis},
			wantErr: true,
		},
		{
			name:    "unknown store",
			cfg:     &appconfig.Config{SessionStore: "dynamo"},
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo, err := BuildSessionRepository(context.Background(), tt.cfg, tt.client, logger)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			tt.check(t, repo)
		})
	}
}

func TestOpenAuditDBDisabled(t *testing.T) {
	pool, db, err := OpenAuditDB(context.Background(), &appconfig.Config{})
	if err != nil || pool != nil || db != nil {
		t.Fatalf("expected nils for empty DATABASE_URL, got %v %v %v", pool, db, err)
	}
}

func TestBuildAuditRecorder(t *testing.T) {
	if _, ok := BuildAuditRecorder(nil, logging.New("error")).(audit.NopRecorder); !ok {
		t.Fatalf("expected no-op recorder without a database")
	}

	db, _, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, ok := BuildAuditRecorder(db, nil).(*audit.Store); !ok {
		t.Fatalf("expected postgres audit store")
	}
}
