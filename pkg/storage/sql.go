package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// SQLDialect defines the SQL syntax variant.
type SQLDialect string

const (
	DialectSQLite   SQLDialect = "sqlite"
	DialectPostgres SQLDialect = "postgres"
	DialectMySQL    SQLDialect = "mysql"
)

// SQLStorage implements Storage using database/sql.
// It supports SQLite, Postgres, and MySQL.
type SQLStorage struct {
	db        *sql.DB
	tableName string
	dialect   SQLDialect
}

// NewSQLStorage creates a SQL-backed storage.
// The caller opens the *sql.DB with the driver matching dialect.
func NewSQLStorage(db *sql.DB, tableName string, dialect SQLDialect) *SQLStorage {
	if tableName == "" {
		tableName = "resultdock_blobs"
	}
	return &SQLStorage{
		db:        db,
		tableName: tableName,
		dialect:   dialect,
	}
}

// InitSchema creates the blob table if it doesn't exist.
func (s *SQLStorage) InitSchema(ctx context.Context) error {
	keyType := "TEXT"
	blobType := "BLOB"
	timestampType := "TIMESTAMP"

	switch s.dialect {
	case DialectPostgres:
		blobType = "BYTEA"
	case DialectMySQL:
		// MySQL cannot index an unbounded TEXT primary key
		keyType = "VARCHAR(767)"
		blobType = "LONGBLOB"
		timestampType = "DATETIME(6)"
	}

	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			storage_key %s PRIMARY KEY,
			content %s NOT NULL,
			updated_at %s NOT NULL
		)
	`, s.tableName, keyType, blobType, timestampType)

	_, err := s.db.ExecContext(ctx, query)
	return err
}

func (s *SQLStorage) placeholder(n int) string {
	if s.dialect == DialectPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (s *SQLStorage) ReadPath(ctx context.Context, key string) ([]byte, error) {
	query := fmt.Sprintf(`SELECT content FROM %s WHERE storage_key = %s`,
		s.tableName, s.placeholder(1))

	var content []byte
	err := s.db.QueryRowContext(ctx, query, key).Scan(&content)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get key %s: %w", key, err)
	}
	return content, nil
}

func (s *SQLStorage) WritePath(ctx context.Context, key string, content []byte) error {
	p1, p2, p3 := s.placeholder(1), s.placeholder(2), s.placeholder(3)

	// Build upsert query based on dialect
	var query string
	if s.dialect == DialectMySQL {
		query = fmt.Sprintf(`
			INSERT INTO %s (storage_key, content, updated_at)
			VALUES (%s, %s, %s)
			ON DUPLICATE KEY UPDATE
				content = VALUES(content),
				updated_at = VALUES(updated_at)
		`, s.tableName, p1, p2, p3)
	} else {
		// SQLite and Postgres use ON CONFLICT
		query = fmt.Sprintf(`
			INSERT INTO %s (storage_key, content, updated_at)
			VALUES (%s, %s, %s)
			ON CONFLICT(storage_key) DO UPDATE SET
				content = excluded.content,
				updated_at = excluded.updated_at
		`, s.tableName, p1, p2, p3)
	}

	if _, err := s.db.ExecContext(ctx, query, key, content, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to set key %s: %w", key, err)
	}
	return nil
}

func (s *SQLStorage) Delete(ctx context.Context, key string) error {
	query := fmt.Sprintf("DELETE FROM %s WHERE storage_key = %s", s.tableName, s.placeholder(1))
	_, err := s.db.ExecContext(ctx, query, key)
	return err
}

// Close closes the underlying database handle.
func (s *SQLStorage) Close() error {
	return s.db.Close()
}
