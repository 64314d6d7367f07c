package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStorage implements Storage using github.com/jackc/pgx/v5.
// It is designed to work with pgxpool, similar to River.
type PostgresStorage struct {
	pool      *pgxpool.Pool
	tableName string
}

// NewPostgresStorage creates a Postgres-backed storage.
func NewPostgresStorage(pool *pgxpool.Pool, tableName string) *PostgresStorage {
	if tableName == "" {
		tableName = "resultdock_blobs"
	}
	return &PostgresStorage{
		pool:      pool,
		tableName: tableName,
	}
}

// InitSchema creates the blob table if it doesn't exist.
func (s *PostgresStorage) InitSchema(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			storage_key TEXT PRIMARY KEY,
			content BYTEA NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);
	`, s.tableName)

	_, err := s.pool.Exec(ctx, query)
	return err
}

func (s *PostgresStorage) ReadPath(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT content FROM %s WHERE storage_key = $1`, s.tableName)

	var content []byte
	err := s.pool.QueryRow(ctx, query, key).Scan(&content)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return content, nil
}

func (s *PostgresStorage) WritePath(ctx context.Context, key string, content []byte) error {
	query := fmt.Sprintf(`
		INSERT INTO %s (storage_key, content, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT(storage_key) DO UPDATE SET
			content = excluded.content,
			updated_at = excluded.updated_at
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query, key, content); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *PostgresStorage) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE storage_key = $1", s.tableName)
	_, err := s.pool.Exec(ctx, query, key)
	return err
}

// Close releases the connection pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
