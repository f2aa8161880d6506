package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresStore reads a capture database hosted on PostgreSQL. When the
// pgvector extension and the entity_embeddings table are present it also
// answers vector queries natively.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// PostgresOptions configures NewPostgresStore
type PostgresOptions struct {
	MaxConns int32
	MinConns int32
}

// NewPostgresStore connects to url and verifies the connection
func NewPostgresStore(ctx context.Context, url string, opts PostgresOptions) (*PostgresStore, error) {
	poolConfig, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	if opts.MaxConns > 0 {
		poolConfig.MaxConns = opts.MaxConns
	}
	if opts.MinConns > 0 {
		poolConfig.MinConns = opts.MinConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresStore{pool: pool}, nil
}

// Close releases the pool
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// SearchText implements Store
func (s *PostgresStore) SearchText(ctx context.Context, text string, limit int, filter *Filter) ([]Entity, error) {
	words := searchWords(text)
	if len(words) == 0 {
		return nil, nil
	}
	query, args := buildTextSearch(postgresDialect, words, limit, filter)
	return s.queryEntities(ctx, query, args)
}

// RecentEntities implements Store
func (s *PostgresStore) RecentEntities(ctx context.Context, limit int, filter *Filter) ([]Entity, error) {
	query, args := buildRecent(postgresDialect, limit, filter)
	return s.queryEntities(ctx, query, args)
}

func (s *PostgresStore) queryEntities(ctx context.Context, query string, args []interface{}) ([]Entity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entities: %w", err)
	}
	defer rows.Close()

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
func (s *PostgresStore) ListMetadata(ctx context.Context, ids []int64) (map[int64]map[string]string, error) {
	result := make(map[int64]map[string]string, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	rows, err := s.pool.Query(ctx,
		`SELECT entity_id, key, value FROM metadata_entries WHERE entity_id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to query metadata: %w", err)
	}
	defer rows.Close()

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

// HasVectorArtifacts implements Store
func (s *PostgresStore) HasVectorArtifacts(ctx context.Context) (bool, error) {
	stats, err := s.VectorStats(ctx)
	if err != nil {
		return false, err
	}
	return stats.Count > 0, nil
}

// SearchVector implements VectorStore. Scores are remapped cosine,
// (2 - distance) / 2, so they share a scale with in-process ranking.
func (s *PostgresStore) SearchVector(ctx context.Context, vector []float32, threshold float64, limit int, filter *Filter) ([]VectorHit, error) {
	b := newQueryBuilder(postgresDialect, "")
	vec := b.arg(pgvector.NewVector(vector))
	score := "(2 - (v.embedding <=> " + vec + "::vector)) / 2"

	b.write("SELECT " + entityColumns + ", " + score + " AS score" +
		" FROM entity_embeddings v JOIN entities e ON e.id = v.entity_id" +
		" WHERE " + score + " >= " + b.arg(threshold))
	b.applyFilter(filter)
	b.write(" ORDER BY score DESC, e.id ASC LIMIT " + b.arg(limit))

	query, args := b.build()
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to run vector query: %w", err)
	}
	defer rows.Close()

	var hits []VectorHit
	for rows.Next() {
		var h VectorHit
		if err := rows.Scan(&h.Entity.ID, &h.Entity.Filepath, &h.Entity.CreatedAt, &h.Entity.FileTypeGroup, &h.Score); err != nil {
			return nil, fmt.Errorf("failed to scan vector hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}

// VectorStats implements VectorStore
func (s *PostgresStore) VectorStats(ctx context.Context) (VectorStats, error) {
	var stats VectorStats

	err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'vector')`).Scan(&stats.PgvectorAvailable)
	if err != nil {
		return stats, fmt.Errorf("failed to check pgvector extension: %w", err)
	}
	if !stats.PgvectorAvailable {
		return stats, nil
	}

	var hasTable bool
	err = s.pool.QueryRow(ctx,
		`SELECT to_regclass('public.entity_embeddings') IS NOT NULL`).Scan(&hasTable)
	if err != nil {
		return stats, fmt.Errorf("failed to check embeddings table: %w", err)
	}
	if !hasTable {
		stats.PgvectorAvailable = false
		return stats, nil
	}

	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM entity_embeddings`).Scan(&stats.Count); err != nil {
		return stats, fmt.Errorf("failed to count embeddings: %w", err)
	}

	err = s.pool.QueryRow(ctx, `SELECT vector_dims(embedding) FROM entity_embeddings LIMIT 1`).Scan(&stats.Dimensions)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return stats, fmt.Errorf("failed to read embedding dimensions: %w", err)
	}

	return stats, nil
}
