package storage

import (
	"context"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v3"
)

// BadgerStorage implements Storage on an embedded Badger database.
type BadgerStorage struct {
	db     *badger.DB
	prefix []byte
	owned  bool
}

// NewBadgerStorage wraps an already-open Badger database. Keys are
// namespaced under prefix ("results/" if empty). The caller keeps
// ownership of db.
func NewBadgerStorage(db *badger.DB, prefix string) *BadgerStorage {
	if prefix == "" {
		prefix = "results/"
	}
	return &BadgerStorage{db: db, prefix: []byte(prefix)}
}

// OpenBadgerStorage opens (or creates) a Badger database at dir.
// An empty dir opens an in-memory database.
func OpenBadgerStorage(dir string) (*BadgerStorage, error) {
	opts := badger.DefaultOptions(dir).WithLoggingLevel(badger.ERROR)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger at %q: %w", dir, err)
	}
	s := NewBadgerStorage(db, "")
	s.owned = true
	return s, nil
}

func (s *BadgerStorage) key(key string) []byte {
	return append(append([]byte(nil), s.prefix...), key...)
}

func (s *BadgerStorage) ReadPath(ctx context.Context, key string) ([]byte, error) {
	var content []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(s.key(key))
		if err != nil {
			return err
		}
		content, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("badger get failed: %w", err)
	}
	return content, nil
}

func (s *BadgerStorage) WritePath(ctx context.Context, key string, content []byte) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(s.key(key), append([]byte(nil), content...))
	})
}

func (s *BadgerStorage) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(s.key(key))
	})
}

// Close closes the database if this storage opened it.
func (s *BadgerStorage) Close() error {
	if !s.owned {
		return nil
	}
	return s.db.Close()
}
