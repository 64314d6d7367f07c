// Package storage provides the key/value byte stores results are written to.
//
// Backends (local filesystem, memory, Redis, Postgres, database/sql,
// Badger, S3) all implement Storage. Implementations must be thread-safe.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNotFound is wrapped by ReadPath when a key has no content.
var ErrNotFound = errors.New("storage: key not found")

// Storage reads and writes opaque blobs by key.
type Storage interface {
	// ReadPath returns the content stored under key.
	// A missing key returns an error wrapping ErrNotFound.
	ReadPath(ctx context.Context, key string) ([]byte, error)

	// WritePath stores content under key, replacing any existing content.
	WritePath(ctx context.Context, key string, content []byte) error
}

// PathResolver is implemented by storages that map keys to absolute
// locations (e.g. a filesystem path under a base directory).
type PathResolver interface {
	ResolvePath(key string) (string, error)
}

// Deleter is implemented by storages that can remove a key.
type Deleter interface {
	Delete(ctx context.Context, key string) error
}

// Identified is implemented by storages that were loaded from a registered
// backend document and therefore have a stable block id.
type Identified interface {
	BlockID() uuid.UUID
}

// BlockIDOf returns the block id of s, or nil when s is anonymous.
func BlockIDOf(s Storage) *uuid.UUID {
	if s == nil {
		return nil
	}
	if ident, ok := s.(Identified); ok {
		id := ident.BlockID()
		return &id
	}
	return nil
}

// WithBlockID attaches a block id to s. The result keeps the optional
// PathResolver and Deleter capabilities of s.
func WithBlockID(s Storage, id uuid.UUID) Storage {
	return &identified{Storage: s, id: id}
}

type identified struct {
	Storage
	id uuid.UUID
}

func (i *identified) BlockID() uuid.UUID { return i.id }

func (i *identified) ResolvePath(key string) (string, error) {
	if r, ok := i.Storage.(PathResolver); ok {
		return r.ResolvePath(key)
	}
	return key, nil
}

func (i *identified) Delete(ctx context.Context, key string) error {
	if d, ok := i.Storage.(Deleter); ok {
		return d.Delete(ctx, key)
	}
	return errors.New("storage: delete not supported")
}

// Unwrap returns the underlying storage.
func (i *identified) Unwrap() Storage { return i.Storage }
