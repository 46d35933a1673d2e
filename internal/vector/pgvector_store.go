package vector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
	pgxvector "github.com/pgvector/pgvector-go/pgx"

	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/config"
	"github.com/spherical-ai/spherical/libs/recommendation-engine/internal/domain"
)

// Querier is the subset of pgxpool.Pool the store uses.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewPool opens a pgx pool with pgvector types registered on every connection.
func NewPool(ctx context.Context, cfg config.PGVectorConfig) (*pgxpool.Pool, error) {
	if cfg.DSN == "" {
		return nil, errors.New("pgvector dsn is required")
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	poolCfg.MaxConns = 10
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = 2
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnLifetime = 1 * time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	return pool, nil
}

// PGVectorStore searches product embeddings stored in a pgvector table
// with columns (id BIGINT, vec vector(dimension)).
type PGVectorStore struct {
	db        Querier
	table     string
	dimension int
}

// NewPGVectorStore creates a store over db. table may be schema-qualified.
func NewPGVectorStore(db Querier, table string, dimension int) (*PGVectorStore, error) {
	if table == "" {
		table = "kok_product_embedding"
	}
	if dimension <= 0 {
		return nil, fmt.Errorf("invalid dimension %d", dimension)
	}
	return &PGVectorStore{
		db:        db,
		table:     pgx.Identifier(strings.Split(table, ".")).Sanitize(),
		dimension: dimension,
	}, nil
}

// EnsureSchema creates the vector extension and the embedding table if missing.
func (s *PGVectorStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	ddl := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (id BIGINT PRIMARY KEY, vec vector(%d) NOT NULL)", s.table, s.dimension)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create embedding table: %w", err)
	}
	return nil
}

// Search orders the allowed ids by L2 distance to query.
func (s *PGVectorStore) Search(ctx context.Context, query []float32, allow []domain.ProductID, k int) (domain.Ranking, error) {
	if len(query) != s.dimension {
		return nil, fmt.Errorf("%w: expected %d, got %d", ErrDimensionMismatch, s.dimension, len(query))
	}
	if k <= 0 || len(allow) == 0 {
		return domain.Ranking{}, nil
	}

	sql := fmt.Sprintf(`SELECT id, vec <-> $1 AS distance FROM %s WHERE id = ANY($2) ORDER BY distance ASC, id ASC LIMIT $3`, s.table)
	rows, err := s.db.Query(ctx, sql, pgvector.NewVector(query), idArgs(allow), k)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	results := make(domain.Ranking, 0, k)
	for rows.Next() {
		var (
			id       int64
			distance float64
		)
		if err := rows.Scan(&id, &distance); err != nil {
			return nil, fmt.Errorf("scan vector result: %w", err)
		}
		results = append(results, domain.Scored{ID: domain.ProductID(id), Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate vector results: %w", err)
	}
	return results, nil
}

// Upsert writes vectors one row at a time, replacing existing ones.
func (s *PGVectorStore) Upsert(ctx context.Context, entries []Entry) error {
	for _, e := range entries {
		if len(e.Vector) != s.dimension {
			return fmt.Errorf("%w: expected %d, got %d for id %d", ErrDimensionMismatch, s.dimension, len(e.Vector), e.ID)
		}
	}

	sql := fmt.Sprintf(`INSERT INTO %s (id, vec) VALUES ($1, $2) ON CONFLICT (id) DO UPDATE SET vec = EXCLUDED.vec`, s.table)
	for _, e := range entries {
		if _, err := s.db.Exec(ctx, sql, int64(e.ID), pgvector.NewVector(e.Vector)); err != nil {
			return fmt.Errorf("upsert vector %d: %w", e.ID, err)
		}
	}
	return nil
}

// Count returns the number of rows in the embedding table.
func (s *PGVectorStore) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", s.table)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count vectors: %w", err)
	}
	return n, nil
}

// Close closes the underlying pool when the store owns one.
func (s *PGVectorStore) Close() error {
	if c, ok := s.db.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}

var _ Store = (*PGVectorStore)(nil)
