package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
)

// migrationLockKey serializes migrations across API instances starting at once.
const migrationLockKey = 74201

var migrationFile = regexp.MustCompile(`^(\d+)_[a-z0-9_]+\.(up|down)\.sql$`)

// Migration is one numbered schema change with its up and down scripts.
type Migration struct {
	Version string
	Up      string
	Down    string
}

// LoadMigrations pairs the *.up.sql and *.down.sql files in dir by their
// numeric prefix, ordered by version. A version missing either half, or
// carrying two files for the same direction, is an error.
func LoadMigrations(dir string) ([]Migration, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}

	byVersion := map[string]*Migration{}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		match := migrationFile.FindStringSubmatch(entry.Name())
		if match == nil {
			continue
		}
		m := byVersion[match[1]]
		if m == nil {
			m = &Migration{Version: match[1]}
			byVersion[match[1]] = m
		}
		path := filepath.Join(dir, entry.Name())
		slot := &m.Up
		if match[2] == "down" {
			slot = &m.Down
		}
		if *slot != "" {
			return nil, fmt.Errorf("migration %s has more than one %s file", m.Version, match[2])
		}
		*slot = path
	}

	out := make([]Migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down files", m.Version)
		}
		out = append(out, *m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out, nil
}

// ApplyMigrations runs every pending up script in order, each in its own
// transaction, and returns the file names it applied. Applied scripts are
// tracked by file name in schema_migrations.
func ApplyMigrations(ctx context.Context, db *sql.DB, migrationsDir string) ([]string, error) {
	migrations, err := LoadMigrations(migrationsDir)
	if err != nil {
		return nil, err
	}
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`); err != nil {
		return nil, fmt.Errorf("ensure schema_migrations: %w", err)
	}

	applied := []string{}
	for _, m := range migrations {
		name := filepath.Base(m.Up)
		ran, err := runMigration(ctx, db, m.Up, name)
		if err != nil {
			return applied, err
		}
		if ran {
			applied = append(applied, name)
		}
	}
	return applied, nil
}

// runMigration applies one script under an advisory lock, skipping it when
// another instance already recorded it.
func runMigration(ctx context.Context, db *sql.DB, file, name string) (bool, error) {
	script, err := os.ReadFile(file)
	if err != nil {
		return false, fmt.Errorf("read migration %s: %w", name, err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin migration %s: %w", name, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, migrationLockKey); err != nil {
		return false, fmt.Errorf("lock migrations: %w", err)
	}
	var done bool
	if err := tx.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE version = $1)`, name).Scan(&done); err != nil {
		return false, fmt.Errorf("check migration %s: %w", name, err)
	}
	if done {
		return false, nil
	}
	if _, err := tx.ExecContext(ctx, string(script)); err != nil {
		return false, fmt.Errorf("execute migration %s: %w", name, err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations(version) VALUES ($1)`, name); err != nil {
		return false, fmt.Errorf("record migration %s: %w", name, err)
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit migration %s: %w", name, err)
	}
	return true, nil
}
