//go:build integration

// Package testutil provides helpers for integration tests that run against
// real Postgres and Redis instances. TEST_DATABASE_URL and TEST_REDIS_URL
// point at existing servers; when unset, throwaway containers are started.
package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/migrate"

	"github.com/freeeve/quizbattle/internal/repository/postgres/migrations"
)

// Connections are shared by every test in the package. Containers are
// reaped by the testcontainers reaper when the test binary exits.
var (
	mu       sync.Mutex
	sharedDB *sql.DB
	sharedRD *redis.Client
)

// SetupDB connects to the test Postgres and runs migrations.
func SetupDB(t *testing.T) *sql.DB {
	t.Helper()
	mu.Lock()
	defer mu.Unlock()
	if sharedDB != nil {
		return sharedDB
	}
	ctx := context.Background()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		dbURL = startContainer(t, ctx, tc.ContainerRequest{
			Image:        "postgres:16-alpine",
			Env:          map[string]string{"POSTGRES_USER": "battle", "POSTGRES_PASSWORD": "battle", "POSTGRES_DB": "quizbattle_test"},
			ExposedPorts: []string{"5432/tcp"},
			WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
		}, "5432/tcp", "postgres://battle:battle@%s:%s/quizbattle_test?sslmode=disable")
	}

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}

	if err := pingWithRetry(ctx, db.PingContext); err != nil {
		t.Fatalf("ping test db: %v", err)
	}

	migrator := migrate.NewMigrator(bun.NewDB(db, pgdialect.New()), migrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	sharedDB = db
	return db
}

// SetupRedis connects to the test Redis.
func SetupRedis(t *testing.T) *redis.Client {
	t.Helper()
	mu.Lock()
	defer mu.Unlock()
	if sharedRD != nil {
		return sharedRD
	}
	ctx := context.Background()

	redisURL := os.Getenv("TEST_REDIS_URL")
	if redisURL == "" {
		redisURL = startContainer(t, ctx, tc.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
		}, "6379/tcp", "redis://%s:%s/0")
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		t.Fatalf("parse redis URL: %v", err)
	}
	rdb := redis.NewClient(opts)

	if err := pingWithRetry(ctx, func(ctx context.Context) error { return rdb.Ping(ctx).Err() }); err != nil {
		t.Fatalf("ping test redis: %v", err)
	}
	sharedRD = rdb
	return rdb
}

// CleanupDB truncates all tables between tests.
func CleanupDB(t *testing.T, db *sql.DB) {
	t.Helper()
	_, err := db.Exec("TRUNCATE experience_awards, user_experience, multiplayer_games, quiz_questions, monsters CASCADE")
	if err != nil {
		t.Fatalf("truncate tables: %v", err)
	}
}

// CleanupRedis flushes the test Redis database between tests.
func CleanupRedis(t *testing.T, rdb *redis.Client) {
	t.Helper()
	if err := rdb.FlushDB(t.Context()).Err(); err != nil {
		t.Fatalf("flush redis: %v", err)
	}
}

// startContainer runs req and formats dsn with the mapped host and port.
// The test is skipped when Docker is unavailable.
func startContainer(t *testing.T, ctx context.Context, req tc.ContainerRequest, port, dsn string) string {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start %s: %v", req.Image, err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("container host: %v", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		t.Fatalf("container port: %v", err)
	}
	return fmt.Sprintf(dsn, host, mapped.Port())
}

func pingWithRetry(ctx context.Context, ping func(context.Context) error) error {
	var err error
	for range 20 {
		if err = ping(ctx); err == nil {
			return nil
		}
		time.Sleep(250 * time.Millisecond)
	}
	return err
}
