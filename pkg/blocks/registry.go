// Package blocks resolves named or id-addressed storage backend documents
// to live storages.
//
// A document records a backend's name, stable id and either a live storage
// or a location string understood by storage.Open. Location documents are
// opened lazily on first load and cached.
package blocks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"resultdock/pkg/storage"
)

// ErrBlockNotFound is returned when no document matches a name or id.
var ErrBlockNotFound = errors.New("storage block not found")

// Registry loads storage backends by name or id. Loading may perform I/O.
type Registry interface {
	Load(ctx context.Context, name string) (storage.Storage, error)
	LoadByID(ctx context.Context, id uuid.UUID) (storage.Storage, error)
}

// Document describes a registered backend.
type Document struct {
	ID       uuid.UUID
	Name     string
	Location string
}

type entry struct {
	doc     Document
	storage storage.Storage // nil until opened
}

// MemoryRegistry is an in-process Registry.
type MemoryRegistry struct {
	mu     sync.Mutex
	byID   map[uuid.UUID]*entry
	byName map[string]uuid.UUID
	open   func(ctx context.Context, location string) (storage.Storage, error)
}

// NewMemoryRegistry creates an empty registry that opens locations with
// storage.Open.
func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{
		byID:   make(map[uuid.UUID]*entry),
		byName: make(map[string]uuid.UUID),
		open:   storage.Open,
	}
}

// Save registers a live storage under name and returns its document.
// Saving an existing name keeps its id and replaces the storage.
func (r *MemoryRegistry) Save(name string, s storage.Storage) Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.upsert(name, "")
	e.storage = storage.WithBlockID(s, e.doc.ID)
	return e.doc
}

// SaveLocation registers a location string (see storage.Open) under name.
func (r *MemoryRegistry) SaveLocation(name, location string) Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	e := r.upsert(name, location)
	e.storage = nil
	return e.doc
}

func (r *MemoryRegistry) upsert(name, location string) *entry {
	id, ok := r.byName[name]
	if !ok {
		id = uuid.New()
		r.byName[name] = id
	}
	e := &entry{doc: Document{ID: id, Name: name, Location: location}}
	r.byID[id] = e
	return e
}

// Documents lists registered documents.
func (r *MemoryRegistry) Documents() []Document {
	r.mu.Lock()
	defer r.mu.Unlock()
	docs := make([]Document, 0, len(r.byID))
	for _, e := range r.byID {
		docs = append(docs, e.doc)
	}
	return docs
}

// Load resolves a backend by name. A name that parses as a uuid and is not
// registered as a name is looked up by id.
func (r *MemoryRegistry) Load(ctx context.Context, name string) (storage.Storage, error) {
	r.mu.Lock()
	id, ok := r.byName[name]
	r.mu.Unlock()
	if !ok {
		parsed, err := uuid.Parse(name)
		if err != nil {
			return nil, fmt.Errorf("%w: name %q", ErrBlockNotFound, name)
		}
		id = parsed
	}
	return r.LoadByID(ctx, id)
}

// LoadByID resolves a backend by id, opening its location on first use.
func (r *MemoryRegistry) LoadByID(ctx context.Context, id uuid.UUID) (storage.Storage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %s", ErrBlockNotFound, id)
	}
	if e.storage != nil {
		return e.storage, nil
	}
	s, err := r.open(ctx, e.doc.Location)
	if err != nil {
		return nil, fmt.Errorf("failed to open storage block %q: %w", e.doc.Name, err)
	}
	e.storage = storage.WithBlockID(s, id)
	return e.storage, nil
}
