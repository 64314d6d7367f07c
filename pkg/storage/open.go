package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"

	_ "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/mattn/go-sqlite3"
)

// Open builds a storage from a location string:
//
//	memory:                              in-process map
//	file:///var/lib/results, ~/results   local filesystem (bare paths too)
//	redis://host:6379/0, rediss://...    Redis
//	postgres://user:pw@host/db           Postgres via pgxpool
//	sqlite:results.db, sqlite::memory:   SQLite via database/sql
//	mysql:user:pw@tcp(host:3306)/db      MySQL via database/sql
//	badger:/var/lib/results, badger:     Badger on disk, or in memory
//	s3://bucket/prefix?endpoint=URL      S3 or an S3-compatible service
//
// SQL-backed storages have their schema created on open. Storages that hold
// connections implement io.Closer.
func Open(ctx context.Context, location string) (Storage, error) {
	if location == "" {
		return nil, errors.New("storage location is empty")
	}
	lower := strings.ToLower(location)

	switch {
	case lower == "memory:" || lower == "memory://":
		return NewMemoryStorage(), nil

	case strings.HasPrefix(lower, "file://"):
		return NewLocalFileSystem(location[len("file://"):])

	case strings.HasPrefix(lower, "redis://"), strings.HasPrefix(lower, "rediss://"):
		return NewRedisStorageFromURL(location, "")

	case strings.HasPrefix(lower, "postgres://"), strings.HasPrefix(lower, "postgresql://"):
		pool, err := pgxpool.New(ctx, location)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		s := NewPostgresStorage(pool, "")
		if err := s.InitSchema(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("init postgres schema: %w", err)
		}
		return s, nil

	case strings.HasPrefix(lower, "sqlite:"):
		dsn := strings.TrimPrefix(location[len("sqlite:"):], "//")
		if dsn == "" {
			dsn = ":memory:"
		}
		return openSQL(ctx, "sqlite3", dsn, DialectSQLite)

	case strings.HasPrefix(lower, "mysql:"):
		dsn := strings.TrimPrefix(location[len("mysql:"):], "//")
		return openSQL(ctx, "mysql", dsn, DialectMySQL)

	case strings.HasPrefix(lower, "badger:"):
		return OpenBadgerStorage(strings.TrimPrefix(location[len("badger:"):], "//"))

	case strings.HasPrefix(lower, "s3://"):
		u, err := url.Parse(location)
		if err != nil {
			return nil, fmt.Errorf("invalid s3 location: %w", err)
		}
		return NewS3StorageFromConfig(ctx, u.Host, u.Path, u.Query().Get("endpoint"))
	}

	if strings.Contains(location, "://") {
		scheme, _, _ := strings.Cut(location, "://")
		return nil, fmt.Errorf("unsupported storage scheme: %s", scheme)
	}
	return NewLocalFileSystem(location)
}

func openSQL(ctx context.Context, driver, dsn string, dialect SQLDialect) (Storage, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	if dialect == DialectSQLite {
		// Every pooled connection to :memory: would be a separate database
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	s := NewSQLStorage(db, "", dialect)
	if err := s.InitSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init %s schema: %w", driver, err)
	}
	return s, nil
}
