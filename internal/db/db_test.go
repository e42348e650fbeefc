package db

import (
	"context"
	"database/sql"
	"io/fs"
	"os"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"

	"github.com/albapepper/morningcast/internal/config"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, migrationsDir)
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no migrations embedded")
	}
	for _, e := range entries {
		data, err := fs.ReadFile(migrationsFS, migrationsDir+"/"+e.Name())
		if err != nil {
			t.Fatalf("read %s: %v", e.Name(), err)
		}
		sql := string(data)
		if !strings.Contains(sql, "-- +goose Up") || !strings.Contains(sql, "-- +goose Down") {
			t.Errorf("%s is missing goose annotations", e.Name())
		}
	}
}

func TestNewMigratorRequiresDSN(t *testing.T) {
	if _, err := NewMigrator("", nil); err == nil {
		t.Fatal("expected error for empty dsn")
	}
}

func TestPoolAgainstDatabase(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	m, err := NewMigrator(dsn, nil)
	if err != nil {
		t.Fatalf("NewMigrator: %v", err)
	}
	if err := m.Up(ctx); err != nil {
		t.Fatalf("Up: %v", err)
	}

	pool, err := New(ctx, &config.Config{DatabaseURL: dsn, DBPoolMinConns: 1, DBPoolMaxConns: 2})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer pool.Close()

	if err := pool.HealthCheck(ctx); err != nil {
		t.Fatalf("HealthCheck: %v", err)
	}
}

func TestMigratorDownTo(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()

	m, err := NewMigrator(dsn, nil)
	if err != nil {
		t.Fatalf("NewMigrator: %v", err)
	}
	if err := m.Up(ctx); err != nil {
		t.Fatalf("Up: %v", err)
	}
	t.Cleanup(func() {
		if err := m.Up(ctx); err != nil {
			t.Errorf("restore migrations: %v", err)
		}
	})

	version := func() int64 {
		t.Helper()
		var v int64
		err := m.withDB(func(db *sql.DB) error {
			var err error
			v, err = goose.GetDBVersionContext(ctx, db)
			return err
		})
		if err != nil {
			t.Fatalf("db version: %v", err)
		}
		return v
	}

	if err := m.Down(ctx, DownLatest); err != nil {
		t.Fatalf("Down(latest): %v", err)
	}
	if got := version(); got != 1 {
		t.Fatalf("version after Down(latest) = %d, want 1", got)
	}
	if err := m.Down(ctx, 0); err != nil {
		t.Fatalf("Down(0): %v", err)
	}
	if got := version(); got != 0 {
		t.Fatalf("version after Down(0) = %d, want 0", got)
	}
}
