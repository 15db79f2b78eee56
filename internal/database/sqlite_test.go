package database

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
)

func openTemp(t *testing.T) *sql.DB {
	t.Helper()
	conn, err := Open(context.Background(), Config{Path: filepath.Join(t.TempDir(), "nested", "cache.db")})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestOpenAppliesMigrations(t *testing.T) {
	conn := openTemp(t)

	var n int
	if err := conn.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&n); err != nil {
		t.Fatalf("count migrations: %v", err)
	}
	if n != len(Migrations()) {
		t.Fatalf("applied = %d, want %d", n, len(Migrations()))
	}

	if _, err := conn.Exec("INSERT INTO elevation_cache (lat_e5, lon_e5, elevation, fetched_at) VALUES (1, 2, 3.5, 0)"); err != nil {
		t.Fatalf("insert into elevation_cache: %v", err)
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	conn := openTemp(t)
	ctx := context.Background()

	if err := NewMigrationManager(conn, Migrations(), nil).RunMigrations(ctx); err != nil {
		t.Fatalf("second RunMigrations() = %v", err)
	}

	var n int
	_ = conn.QueryRow("SELECT COUNT(*) FROM migrations").Scan(&n)
	if n != len(Migrations()) {
		t.Fatalf("applied = %d after rerun, want %d", n, len(Migrations()))
	}
}

func TestFailedMigrationRollsBack(t *testing.T) {
	conn := openTemp(t)
	ctx := context.Background()

	bad := []Migration{{Version: 99, Name: "099_broken", SQL: "CREATE TABLE elevation_cache (id INTEGER)"}}
	if err := NewMigrationManager(conn, bad, nil).RunMigrations(ctx); err == nil {
		t.Fatalf("RunMigrations() with broken SQL succeeded")
	}

	var n int
	_ = conn.QueryRow("SELECT COUNT(*) FROM migrations WHERE version = 99").Scan(&n)
	if n != 0 {
		t.Fatalf("broken migration recorded")
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	conn := openTemp(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := Transaction(ctx, conn, func(tx *sql.Tx) error {
		if _, err := tx.Exec("INSERT INTO elevation_cache (lat_e5, lon_e5, elevation, fetched_at) VALUES (5, 5, 1, 0)"); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Transaction() error = %v, want boom", err)
	}

	var n int
	_ = conn.QueryRow("SELECT COUNT(*) FROM elevation_cache").Scan(&n)
	if n != 0 {
		t.Fatalf("rows after rollback = %d, want 0", n)
	}
}
