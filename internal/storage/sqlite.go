package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// SQLiteStore reads a capture database directly. It is the fallback path
// used when the Pensieve service cannot answer.
type SQLiteStore struct {
	db       *sql.DB
	path     string
	readOnly bool
}

// SQLiteOptions configures OpenSQLite
type SQLiteOptions struct {
	// ReadOnly opens the file with mode=ro and skips migrations
	ReadOnly bool
	// MaxOpenConns bounds the reader pool (default 4)
	MaxOpenConns int
}

// ExpandPath resolves a leading "~" to the user's home directory
func ExpandPath(path string) (string, error) {
	if path != "~" && !strings.HasPrefix(path, "~/") {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory: %w", err)
	}
	return filepath.Join(home, strings.TrimPrefix(path, "~")), nil
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string, opts SQLiteOptions) (*sql.DB, error) {
	dsn := dbPath
	if opts.ReadOnly {
		dsn = "file:" + dbPath + "?mode=ro"
	}

	db, err := sql.Open(DriverName, dsn)
	if err != nil {
		return nil, err
	}

	if !opts.ReadOnly {
		// WAL lets the capture daemon keep writing while we read
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
		}
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	maxConns := opts.MaxOpenConns
	if maxConns <= 0 {
		maxConns = 4
	}
	if !opts.ReadOnly {
		maxConns = 1 // single writer
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	db.SetConnMaxLifetime(0)

	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return db, nil
}

// OpenSQLite opens the capture database at path. Writable databases get
// the schema applied; read-only ones must already contain it.
func OpenSQLite(ctx context.Context, path string, opts SQLiteOptions) (*SQLiteStore, error) {
	resolved, err := ExpandPath(path)
	if err != nil {
		return nil, err
	}

	if opts.ReadOnly {
		if _, err := os.Stat(resolved); err != nil {
			return nil, fmt.Errorf("capture database %s: %w", resolved, err)
		}
	}

	db, err := openDatabase(resolved, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	if !opts.ReadOnly {
		if err := ApplyMigrations(ctx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to apply migrations: %w", err)
		}
	}

	return &SQLiteStore{db: db, path: resolved, readOnly: opts.ReadOnly}, nil
}

// Path returns the resolved database path
func (s *SQLiteStore) Path() string {
	return s.path
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SearchText implements Store
func (s *SQLiteStore) SearchText(ctx context.Context, text string, limit int, filter *Filter) ([]Entity, error) {
	words := searchWords(text)
	if len(words) == 0 {
		return nil, nil
	}
	query, args := buildTextSearch(sqliteDialect, words, limit, filter)
	return s.queryEntities(ctx, query, args)
}

// RecentEntities implements Store
func (s *SQLiteStore) RecentEntities(ctx context.Context, limit int, filter *Filter) ([]Entity, error) {
	query, args := buildRecent(sqliteDialect, limit, filter)
	return s.queryEntities(ctx, query, args)
}

func (s *SQLiteStore) queryEntities(ctx context.Context, query string, args []interface{}) ([]Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []Entity
	for rows.Next() {
		var e Entity
		if err := rows.Scan(&e.ID, &e.Filepath, &e.CreatedAt, &e.FileTypeGroup); err != nil {
			return nil, fmt.Errorf("failed to scan entity: %w", err)
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

// ListMetadata implements Store
func (s *SQLiteStore) ListMetadata(ctx context.Context, ids []int64) (map[int64]map[string]string, error) {
	result := make(map[int64]map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args := buildMetadata(sqliteDialect, ids)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var (
			id         int64
			key, value string
		)
		if err := rows.Scan(&id, &key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan metadata: %w", err)
		}
		if result[id] == nil {
			result[id] = make(map[string]string)
		}
		result[id][key] = value
	}
	return result, rows.Err()
}

// HasVectorArtifacts reports whether the database carries vector tables
// or stored embeddings
func (s *SQLiteStore) HasVectorArtifacts(ctx context.Context) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND (name LIKE '%vec%' OR name LIKE '%embedding%')`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	if n > 0 {
		return true, nil
	}

	err = s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='metadata_entries'`).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	if n == 0 {
		return false, nil
	}

	var one int
	err = s.db.QueryRowContext(ctx, "SELECT 1 FROM metadata_entries WHERE key = ? LIMIT 1", KeyEmbedding).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to look for embeddings: %w", err)
	}
	return true, nil
}

// InsertEntity stores an entity with its metadata and returns the new id.
// The capture daemon owns production data; this exists for local seeding.
func (s *SQLiteStore) InsertEntity(ctx context.Context, entity Entity, metadata map[string]string) (int64, error) {
	if s.readOnly {
		return 0, ErrReadOnly
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	createdAt := entity.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO entities (filepath, filename, file_type_group, created_at) VALUES (?, ?, ?, ?)`,
		entity.Filepath, filepath.Base(entity.Filepath), entity.FileTypeGroup, createdAt)
	if err != nil {
		return 0, fmt.Errorf("failed to insert entity: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for key, value := range metadata {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO metadata_entries (entity_id, key, value) VALUES (?, ?, ?)
			 ON CONFLICT(entity_id, key) DO UPDATE SET value = excluded.value`,
			id, key, value); err != nil {
			return 0, fmt.Errorf("failed to insert metadata %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit entity: %w", err)
	}
	return id, nil
}
