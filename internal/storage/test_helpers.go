package storage

import (
	"context"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/raid-tracker/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// testPostgresConfig is the local development database used by integration tests
func testPostgresConfig() *config.PostgresConfig {
	return &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "raid_tracker_test",
		User:           "tracker",
		Password:       "tracker_dev_password",
		MaxConnections: 5,
	}
}

// setupTestPostgres connects to the test database and applies migrations, skipping when unavailable
func setupTestPostgres(t *testing.T) *PostgresDB {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := testPostgresConfig()
	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
	}
	t.Cleanup(db.Close)

	_, file, _, _ := runtime.Caller(0)
	migrations := filepath.Join(filepath.Dir(file), "..", "..", DefaultMigrationsPath)
	if err := RunMigrations(DatabaseURL(cfg), migrations); err != nil {
		t.Skipf("Skipping test - migrations failed: %v", err)
	}

	return db
}
