package results

import (
	"context"
	"fmt"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/google/uuid"

	"resultdock/pkg/serializers"
	"resultdock/pkg/storage"
)

// ReferenceTypePersisted is the type tag of PersistedResult.
const ReferenceTypePersisted = "reference"

// PersistedResult is a lazy pointer to a result in storage, optionally
// holding the value in memory.
//
// A freshly created reference caches its value and has not been written.
// Write persists it (once); Get returns the cached value or reads it back.
// A reference with SerializeToNone is never written and encodes as null.
type PersistedResult struct {
	Type            string
	SerializerType  string
	StorageKey      string
	StorageBlockID  *uuid.UUID
	Expiration      *time.Time
	SerializeToNone bool

	mu         sync.Mutex
	cached     any
	hasCached  bool
	skipCache  bool // decoded references cache values by default
	storage    storage.Storage
	serializer serializers.Serializer
	persisted  bool
	defaults   *Defaults
	observer   Observer
}

type persistedResultWire struct {
	Type            string     `json:"type"`
	SerializerType  string     `json:"serializer_type"`
	StorageKey      string     `json:"storage_key"`
	StorageBlockID  *uuid.UUID `json:"storage_block_id"`
	Expiration      *time.Time `json:"expiration"`
	SerializeToNone bool       `json:"serialize_to_none"`
}

// PersistedResultOptions configures CreatePersistedResult.
type PersistedResultOptions struct {
	// Storage receives the value on Write. Required.
	Storage storage.Storage

	// StorageBlockID is the registered id of Storage, if any.
	StorageBlockID *uuid.UUID

	// StorageKeyFunc mints the storage key. Nil uses DefaultStorageKeyFunc.
	StorageKeyFunc StorageKeyFunc

	// Serializer encodes the value. Nil uses serializers.Default().
	Serializer serializers.Serializer

	// CacheObject keeps the value in memory after Write.
	CacheObject bool

	Expiration      *time.Time
	SerializeToNone bool

	// Defaults and Observer are optional.
	Defaults *Defaults
	Observer Observer
}

// CreatePersistedResult builds an unwritten reference holding obj.
//
// When the storage resolves keys to absolute locations and no block id is
// recorded, the absolute location becomes the storage key so the reference
// can be read back without knowing the storage configuration.
func CreatePersistedResult(obj any, opts PersistedResultOptions) (*PersistedResult, error) {
	if opts.Storage == nil {
		return nil, &ArgumentError{Argument: "storage", Message: "a storage is required"}
	}
	keyFn := opts.StorageKeyFunc
	if keyFn == nil {
		keyFn = DefaultStorageKeyFunc
	}
	key, err := keyFn()
	if err != nil {
		return nil, fmt.Errorf("failed to mint storage key: %w", err)
	}
	if key == "" {
		return nil, &ArgumentError{Argument: "storage key", Message: "storage key function returned an empty key"}
	}

	if opts.StorageBlockID == nil {
		if resolver, ok := opts.Storage.(storage.PathResolver); ok {
			abs, err := resolver.ResolvePath(key)
			if err != nil {
				return nil, fmt.Errorf("failed to resolve storage key %q: %w", key, err)
			}
			key = abs
		}
	}

	ser := opts.Serializer
	if ser == nil {
		ser = serializers.Default()
	}

	return &PersistedResult{
		Type:            ReferenceTypePersisted,
		SerializerType:  ser.Type(),
		StorageKey:      key,
		StorageBlockID:  opts.StorageBlockID,
		Expiration:      opts.Expiration,
		SerializeToNone: opts.SerializeToNone,
		cached:          obj,
		hasCached:       true,
		skipCache:       !opts.CacheObject,
		storage:         opts.Storage,
		serializer:      ser,
		defaults:        opts.Defaults,
		observer:        opts.Observer,
	}, nil
}

func (r *PersistedResult) ReferenceType() string {
	if r.Type == "" {
		return ReferenceTypePersisted
	}
	return r.Type
}

// HasCachedObject reports whether the value is held in memory.
func (r *PersistedResult) HasCachedObject() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.hasCached
}

// Persisted reports whether Write has completed.
func (r *PersistedResult) Persisted() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.persisted
}

// Write persists the cached value. It is a no-op once persisted or when
// SerializeToNone is set, and fails with ErrNoCachedObject when no value
// is cached.
func (r *PersistedResult) Write(ctx context.Context) error {
	return r.write(ctx, nil, false)
}

// WriteValue persists obj in place of the cached value, with the same
// no-op rules as Write.
func (r *PersistedResult) WriteValue(ctx context.Context, obj any) error {
	return r.write(ctx, obj, true)
}

// WriteAsync runs Write on its own goroutine.
func (r *PersistedResult) WriteAsync(ctx context.Context) *Future[struct{}] {
	return goAsync(func() (struct{}, error) {
		return struct{}{}, r.Write(ctx)
	})
}

func (r *PersistedResult) write(ctx context.Context, obj any, haveObj bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.persisted || r.SerializeToNone {
		return nil
	}
	if !haveObj {
		if !r.hasCached {
			return ErrNoCachedObject
		}
		obj = r.cached
	}

	store, err := r.adHocStore(ctx)
	if err != nil {
		return err
	}
	rec, err := store.CreateResultRecord(r.StorageKey, obj, r.Expiration)
	if err != nil {
		return err
	}
	if err := store.PersistResultRecord(ctx, rec, ""); err != nil {
		return err
	}

	r.persisted = true
	if r.skipCache {
		r.cached = nil
		r.hasCached = false
	}
	return nil
}

// Get returns the value, from memory if cached unless IgnoreCache is
// given. Reading from storage refreshes Expiration and, for references
// that cache values, repopulates the cache.
func (r *PersistedResult) Get(ctx context.Context, opts ...GetOption) (any, error) {
	value, _, err := r.get(ctx, applyGetOptions(opts).ignoreCache)
	return value, err
}

// GetAsync runs Get on its own goroutine.
func (r *PersistedResult) GetAsync(ctx context.Context, opts ...GetOption) *Future[any] {
	return goAsync(func() (any, error) {
		return r.Get(ctx, opts...)
	})
}

func (r *PersistedResult) get(ctx context.Context, ignoreCache bool) (any, *ResultRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	hit := !ignoreCache && r.hasCached
	r.observerFor().OnReferenceCache(ctx, &ReferenceCacheEvent{
		StorageKey:  r.StorageKey,
		Hit:         hit,
		IgnoreCache: ignoreCache,
	})
	if hit {
		return r.cached, nil, nil
	}

	store, err := r.adHocStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	rec, err := store.Read(ctx, r.StorageKey, "")
	if err != nil {
		return nil, nil, err
	}

	r.Expiration = rec.Expiration()
	if !r.skipCache {
		r.cached = rec.Result
		r.hasCached = true
	}
	return rec.Result, rec, nil
}

// GetValue returns the value of ref decoded as T.
func GetValue[T any](ctx context.Context, ref *PersistedResult, opts ...GetOption) (T, error) {
	var out T
	value, rec, err := ref.get(ctx, applyGetOptions(opts).ignoreCache)
	if err != nil {
		return out, err
	}
	if typed, ok := value.(T); ok {
		return typed, nil
	}
	if rec != nil {
		err = rec.Decode(&out)
		return out, err
	}

	// Cached value of another shape; convert through the serializer
	ref.mu.Lock()
	ser, err := ref.resolveSerializer()
	ref.mu.Unlock()
	if err != nil {
		return out, err
	}
	data, err := ser.Dumps(value)
	if err != nil {
		return out, err
	}
	err = ser.Loads(data, &out)
	return out, err
}

// adHocStore builds a store over exactly this reference's storage and
// serializer. Callers must hold r.mu.
func (r *PersistedResult) adHocStore(ctx context.Context) (*ResultStore, error) {
	st, err := r.resolveStorage(ctx)
	if err != nil {
		return nil, err
	}
	ser, err := r.resolveSerializer()
	if err != nil {
		return nil, err
	}
	return NewResultStore(
		WithResultStorage(st),
		WithSerializer(ser),
		WithPersistResult(true),
		WithDefaults(r.defaultsFor(ctx)),
		WithObserver(r.observerFor()),
	), nil
}

// Callers must hold r.mu.
func (r *PersistedResult) resolveStorage(ctx context.Context) (storage.Storage, error) {
	if r.storage != nil {
		return r.storage, nil
	}
	defaults := r.defaultsFor(ctx)
	var (
		s   storage.Storage
		err error
	)
	if r.StorageBlockID != nil {
		s, err = defaults.LoadStorageByID(ctx, *r.StorageBlockID)
	} else {
		s, err = defaults.ResultStorage(ctx)
	}
	if err != nil {
		return nil, err
	}
	r.storage = s
	return s, nil
}

// Callers must hold r.mu.
func (r *PersistedResult) resolveSerializer() (serializers.Serializer, error) {
	if r.serializer != nil {
		return r.serializer, nil
	}
	s, err := serializers.Resolve(r.SerializerType)
	if err != nil {
		return nil, err
	}
	r.serializer = s
	return s, nil
}

func (r *PersistedResult) defaultsFor(ctx context.Context) *Defaults {
	if r.defaults != nil {
		return r.defaults
	}
	return defaultsFromContext(ctx)
}

func (r *PersistedResult) observerFor() Observer {
	if r.observer != nil {
		return r.observer
	}
	return NoOpObserver{}
}

// Equal compares the persisted identity of two references: type,
// serializer type, storage key, storage block id and expiration.
func (r *PersistedResult) Equal(other ResultReference) bool {
	o, ok := other.(*PersistedResult)
	if !ok || o == nil {
		return false
	}
	if r.ReferenceType() != o.ReferenceType() ||
		r.SerializerType != o.SerializerType ||
		r.StorageKey != o.StorageKey {
		return false
	}
	switch {
	case r.StorageBlockID == nil && o.StorageBlockID == nil:
	case r.StorageBlockID == nil || o.StorageBlockID == nil:
		return false
	case *r.StorageBlockID != *o.StorageBlockID:
		return false
	}
	switch {
	case r.Expiration == nil && o.Expiration == nil:
		return true
	case r.Expiration == nil || o.Expiration == nil:
		return false
	default:
		return r.Expiration.Equal(*o.Expiration)
	}
}

// MarshalJSON writes the persisted fields, or null when SerializeToNone is set.
func (r *PersistedResult) MarshalJSON() ([]byte, error) {
	if r.SerializeToNone {
		return []byte("null"), nil
	}
	return json.Marshal(persistedResultWire{
		Type:            r.ReferenceType(),
		SerializerType:  r.SerializerType,
		StorageKey:      r.StorageKey,
		StorageBlockID:  r.StorageBlockID,
		Expiration:      r.Expiration,
		SerializeToNone: r.SerializeToNone,
	})
}

// UnmarshalJSON restores the persisted fields. The decoded reference holds
// no cached value and caches on Get.
func (r *PersistedResult) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		return nil
	}
	var w persistedResultWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if w.Type != "" && w.Type != ReferenceTypePersisted {
		return fmt.Errorf("%w: %q", ErrUnknownReferenceType, w.Type)
	}
	r.Type = ReferenceTypePersisted
	r.SerializerType = w.SerializerType
	r.StorageKey = w.StorageKey
	r.StorageBlockID = w.StorageBlockID
	r.Expiration = w.Expiration
	r.SerializeToNone = w.SerializeToNone
	return nil
}
