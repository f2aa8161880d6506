package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"
)

// CurrentSchemaVersion is the newest schema a writable local store is
// migrated to
const CurrentSchemaVersion = "1.1.0"

// Migration is one forward schema step
type Migration struct {
	Version string
	SQL     string
}

// Migrations lists the schema steps for writable local stores. The
// tables mirror the subset of the capture daemon's schema that search
// reads; a capture database opened read-only is used as-is.
var Migrations = []Migration{
	{
		Version: "1.0.0",
		SQL: `
CREATE TABLE IF NOT EXISTS schema_version (
    version TEXT PRIMARY KEY,
    applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS entities (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    filepath TEXT NOT NULL,
    filename TEXT,
    file_type_group TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_entities_created_at ON entities(created_at);

CREATE TABLE IF NOT EXISTS metadata_entries (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    entity_id INTEGER NOT NULL,
    key TEXT NOT NULL,
    value TEXT NOT NULL,
    source TEXT,
    data_type TEXT DEFAULT 'text',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (entity_id) REFERENCES entities(id) ON DELETE CASCADE,
    UNIQUE(entity_id, key)
);

CREATE INDEX IF NOT EXISTS idx_metadata_entity ON metadata_entries(entity_id);
`,
	},
	{
		// Text search filters on key before scanning values
		Version: "1.1.0",
		SQL: `
CREATE INDEX IF NOT EXISTS idx_metadata_key_entity ON metadata_entries(key, entity_id);
`,
	},
}

// ApplyMigrations brings db up to CurrentSchemaVersion. Each step runs
// in its own transaction together with its version record.
func ApplyMigrations(ctx context.Context, db *sql.DB) error {
	current, err := schemaVersion(ctx, db)
	if err != nil {
		return err
	}

	pending, err := pendingMigrations(current)
	if err != nil {
		return err
	}

	for _, m := range pending {
		if err := applyMigration(ctx, db, m); err != nil {
			return err
		}
	}
	return nil
}

type versionedMigration struct {
	version *semver.Version
	Migration
}

// pendingMigrations returns the steps newer than current, oldest first
func pendingMigrations(current *semver.Version) ([]versionedMigration, error) {
	var pending []versionedMigration
	for _, m := range Migrations {
		v, err := semver.NewVersion(m.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid migration version %s: %w", m.Version, err)
		}
		if v.GreaterThan(current) {
			pending = append(pending, versionedMigration{version: v, Migration: m})
		}
	}
	sort.Slice(pending, func(i, j int) bool {
		return pending[i].version.LessThan(pending[j].version)
	})
	return pending, nil
}

func applyMigration(ctx context.Context, db *sql.DB, m versionedMigration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin migration %s: %w", m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("failed to apply migration %s: %w", m.Version, err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", m.version.String()); err != nil {
		return fmt.Errorf("failed to record migration %s: %w", m.Version, err)
	}
	return tx.Commit()
}

// schemaVersion returns the highest recorded version, 0.0.0 when none is
// recorded
func schemaVersion(ctx context.Context, db *sql.DB) (*semver.Version, error) {
	zero := semver.MustParse("0.0.0")

	var name string
	err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='table' AND name='schema_version'").Scan(&name)
	if errors.Is(err, sql.ErrNoRows) {
		return zero, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check schema_version table: %w", err)
	}

	rows, err := db.QueryContext(ctx, "SELECT version FROM schema_version")
	if err != nil {
		return nil, fmt.Errorf("failed to read schema_version: %w", err)
	}
	defer func() { _ = rows.Close() }()

	latest := zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan schema version: %w", err)
		}
		v, err := semver.NewVersion(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid recorded schema version %q: %w", raw, err)
		}
		if v.GreaterThan(latest) {
			latest = v
		}
	}
	return latest, rows.Err()
}
