package store

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

var migrationsDir = filepath.Join("..", "..", "db", "migrations")

func TestLoadMigrationsPairsFiles(t *testing.T) {
	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		t.Fatalf("LoadMigrations() error = %v", err)
	}
	if len(migrations) < 2 {
		t.Fatalf("expected at least 2 migrations, got %d", len(migrations))
	}
	for i, m := range migrations {
		if i > 0 && migrations[i-1].Version >= m.Version {
			t.Fatalf("migrations out of order: %s before %s", migrations[i-1].Version, m.Version)
		}
		if !strings.HasSuffix(m.Up, ".up.sql") || !strings.HasSuffix(m.Down, ".down.sql") {
			t.Fatalf("unexpected pair for %s: %+v", m.Version, m)
		}
	}
}

func TestLoadMigrationsRejectsBrokenDirs(t *testing.T) {
	cases := []struct {
		name  string
		files []string
	}{
		{name: "missing down", files: []string{"0001_init.up.sql"}},
		{name: "duplicate up", files: []string{"0001_a.up.sql", "0001_b.up.sql", "0001_a.down.sql"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			for _, name := range tc.files {
				if err := os.WriteFile(filepath.Join(dir, name), []byte("SELECT 1;"), 0o600); err != nil {
					t.Fatal(err)
				}
			}
			if _, err := LoadMigrations(dir); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestInitMigrationCreatesOwnedTables(t *testing.T) {
	script, err := os.ReadFile(filepath.Join(migrationsDir, "0001_init.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, table := range []string{"workspaces", "projects", "tasks", "comments", "activity_log", "workspace_invites"} {
		if !strings.Contains(string(script), "CREATE TABLE IF NOT EXISTS "+table+" (") {
			t.Fatalf("init migration does not create %s", table)
		}
	}
}

func TestActivityLogGuardRaises(t *testing.T) {
	script, err := os.ReadFile(filepath.Join(migrationsDir, "0002_activity_log_immutability_trigger.up.sql"))
	if err != nil {
		t.Fatalf("read migration: %v", err)
	}
	for _, snippet := range []string{
		"activity_log_immutable_guard",
		"RAISE EXCEPTION",
		"CREATE TRIGGER trg_activity_log_block_update",
		"CREATE TRIGGER trg_activity_log_block_delete",
	} {
		if !strings.Contains(string(script), snippet) {
			t.Fatalf("activity log guard missing %q", snippet)
		}
	}
	if strings.Contains(string(script), "DO INSTEAD NOTHING") {
		t.Fatal("activity log guard must fail loudly, not drop writes")
	}
}

func TestMigrationsRoundTripPostgres(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("TEST_DATABASE_URL"))
	if dsn == "" || testing.Short() {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	db, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	defer db.Close()
	if err := resetPublicSchema(ctx, db); err != nil {
		t.Fatalf("reset schema: %v", err)
	}

	applied, err := ApplyMigrations(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("first apply: %v", err)
	}
	if len(applied) == 0 {
		t.Fatal("first apply ran nothing")
	}
	again, err := ApplyMigrations(ctx, db, migrationsDir)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if len(again) != 0 {
		t.Fatalf("second apply ran %v", again)
	}

	if err := rollBack(ctx, db); err != nil {
		t.Fatalf("down migrations: %v", err)
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM schema_migrations`); err != nil {
		t.Fatalf("clear schema_migrations: %v", err)
	}
	if _, err := ApplyMigrations(ctx, db, migrationsDir); err != nil {
		t.Fatalf("reapply after rollback: %v", err)
	}
}

func resetPublicSchema(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `DROP SCHEMA IF EXISTS public CASCADE; CREATE SCHEMA public;`)
	return err
}

func rollBack(ctx context.Context, db *sql.DB) error {
	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		return err
	}
	for i := len(migrations) - 1; i >= 0; i-- {
		script, err := os.ReadFile(migrations[i].Down)
		if err != nil {
			return err
		}
		if strings.TrimSpace(string(script)) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, string(script)); err != nil {
			return err
		}
	}
	return nil
}
