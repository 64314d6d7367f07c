// Package results persists task and flow results.
//
// A ResultStore decides where results are written (storage), how they are
// encoded (serializer), whether they are written at all, whether values
// stay cached in memory, how storage keys are minted and which lock
// manager guards concurrent writers. It turns values into PersistedResult
// references and reads ResultRecords back.
//
// Every blocking operation takes a context and has an ...Async variant
// returning a Future that runs the same code on its own goroutine.
//
// Example:
//
//	store := results.NewResultStore(
//		results.WithResultStorage(storage.NewMemoryStorage()),
//		results.WithLockManager(locking.NewMemoryLockManager()),
//		results.WithPersistResult(true),
//	)
//	if err := store.Write(ctx, "daily-report", report, nil, ""); err != nil {
//		return err
//	}
//	rec, err := store.Read(ctx, "daily-report", "")
package results

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"

	"resultdock/pkg/locking"
	"resultdock/pkg/serializers"
	"resultdock/pkg/storage"
)

// ResultStore coordinates result storage, serialization and locking.
// It is safe for concurrent use.
type ResultStore struct {
	metadataStorage storage.Storage
	lockManager     locking.LockManager
	persistResult   bool
	cacheInMemory   bool
	serializer      serializers.Serializer
	storageKeyFn    StorageKeyFunc
	defaults        *Defaults
	observer        Observer
	baseLogger      *slog.Logger // as configured, passed on to derived stores
	logger          *slog.Logger

	// mu guards the first-use resolution of resultStorage
	mu            sync.Mutex
	resultStorage storage.Storage
}

// NewResultStore creates a store. Unset options fall back to the store's
// Defaults (see WithDefaults), which read process settings.
func NewResultStore(opts ...StoreOption) *ResultStore {
	cfg := &storeConfig{}
	for _, opt := range opts {
		opt.apply(cfg)
	}
	return newStore(cfg)
}

func newStore(cfg *storeConfig) *ResultStore {
	s := &ResultStore{
		resultStorage:   cfg.resultStorage,
		metadataStorage: cfg.metadataStorage,
		lockManager:     cfg.lockManager,
		cacheInMemory:   true,
		serializer:      cfg.serializer,
		storageKeyFn:    cfg.storageKeyFn,
		defaults:        cfg.defaults,
		observer:        cfg.observer,
		baseLogger:      cfg.logger,
	}
	if s.baseLogger == nil {
		s.baseLogger = slog.Default()
	}
	s.logger = s.baseLogger.With("component", "result_store")
	if s.defaults == nil {
		s.defaults = EnvironmentDefaults()
	}
	if s.observer == nil {
		s.observer = NoOpObserver{}
	}
	if s.storageKeyFn == nil {
		s.storageKeyFn = DefaultStorageKeyFunc
	}

	s.persistResult = s.defaults.PersistResult()
	if cfg.persistResult != nil {
		s.persistResult = *cfg.persistResult
	}
	if cfg.cacheInMemory != nil {
		s.cacheInMemory = *cfg.cacheInMemory
	}

	if s.serializer == nil {
		ser, err := s.defaults.Serializer()
		if err != nil {
			s.logger.Warn("invalid default serializer, falling back to json",
				slog.String("error", err.Error()))
			ser = serializers.Default()
		}
		s.serializer = ser
	}
	return s
}

// config returns the store's configuration as options, for deriving stores.
func (s *ResultStore) config() *storeConfig {
	persist, cache := s.persistResult, s.cacheInMemory
	return &storeConfig{
		resultStorage:   s.ResultStorage(),
		metadataStorage: s.metadataStorage,
		lockManager:     s.lockManager,
		persistResult:   &persist,
		cacheInMemory:   &cache,
		serializer:      s.serializer,
		storageKeyFn:    s.storageKeyFn,
		defaults:        s.defaults,
		observer:        s.observer,
		logger:          s.baseLogger,
	}
}

// ResultStorage returns the configured result storage, or nil if the
// default has not been resolved yet.
func (s *ResultStore) ResultStorage() storage.Storage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resultStorage
}

// MetadataStorage returns the metadata storage, or nil for combined records.
func (s *ResultStore) MetadataStorage() storage.Storage { return s.metadataStorage }

// LockManager returns the lock manager, or nil.
func (s *ResultStore) LockManager() locking.LockManager { return s.lockManager }

// PersistResult reports whether created results are written to storage.
func (s *ResultStore) PersistResult() bool { return s.persistResult }

// CacheResultInMemory reports whether created results keep their value in memory.
func (s *ResultStore) CacheResultInMemory() bool { return s.cacheInMemory }

// Serializer returns the result serializer.
func (s *ResultStore) Serializer() serializers.Serializer { return s.serializer }

// Defaults returns the store's default resolver.
func (s *ResultStore) Defaults() *Defaults { return s.defaults }

// ResultStorageBlockID returns the block id of the result storage, or nil
// when the storage is anonymous or not yet resolved.
func (s *ResultStore) ResultStorageBlockID() *uuid.UUID {
	return storage.BlockIDOf(s.ResultStorage())
}

// resolveResultStorage returns the result storage, resolving the default on
// first use. Concurrent first uses share one resolution; a failed
// resolution is retried by the next call.
func (s *ResultStore) resolveResultStorage(ctx context.Context) (storage.Storage, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.resultStorage != nil {
		return s.resultStorage, nil
	}
	st, err := s.defaults.ResultStorage(ctx)
	if err != nil {
		return nil, err
	}
	s.logger.Debug("resolved default result storage", slog.String("storage", fmt.Sprintf("%T", st)))
	s.resultStorage = st
	return st, nil
}

// Exists reports whether a record is stored under key. With a metadata
// storage only the metadata is probed. Any failure counts as absent.
func (s *ResultStore) Exists(ctx context.Context, key string) bool {
	start := time.Now()
	exists := s.exists(ctx, key)
	s.observer.OnExists(ctx, &ExistsEvent{
		Key:     key,
		Exists:  exists,
		Latency: time.Since(start),
	})
	return exists
}

// ExistsAsync runs Exists on its own goroutine.
func (s *ResultStore) ExistsAsync(ctx context.Context, key string) *Future[bool] {
	return goAsync(func() (bool, error) {
		return s.Exists(ctx, key), nil
	})
}

func (s *ResultStore) exists(ctx context.Context, key string) bool {
	target := s.metadataStorage
	if target == nil {
		st, err := s.resolveResultStorage(ctx)
		if err != nil {
			return false
		}
		target = st
	}
	content, err := target.ReadPath(ctx, key)
	return err == nil && content != nil
}

// Read loads the record stored under key. With a lock manager, a caller
// that does not hold the key's lock first waits for it to be released, so
// reads never observe a write in progress. An empty holder uses the
// context's holder or DefaultHolder.
func (s *ResultStore) Read(ctx context.Context, key, holder string) (*ResultRecord, error) {
	return s.read(ctx, key, resolveHolder(ctx, holder))
}

// ReadAsync runs Read on its own goroutine.
func (s *ResultStore) ReadAsync(ctx context.Context, key, holder string) *Future[*ResultRecord] {
	holder = resolveHolder(ctx, holder)
	return goAsync(func() (*ResultRecord, error) {
		return s.read(ctx, key, holder)
	})
}

// ReadValue reads the record under key and decodes its value as T.
func ReadValue[T any](ctx context.Context, s *ResultStore, key, holder string) (T, error) {
	var out T
	rec, err := s.Read(ctx, key, holder)
	if err != nil {
		return out, err
	}
	if typed, ok := rec.Result.(T); ok {
		return typed, nil
	}
	err = rec.Decode(&out)
	return out, err
}

func (s *ResultStore) read(ctx context.Context, key, holder string) (rec *ResultRecord, err error) {
	if s.lockManager != nil {
		isHolder, err := s.lockManager.IsLockHolder(ctx, key, holder)
		if err != nil {
			return nil, err
		}
		if !isHolder {
			if _, err := s.waitForLock(ctx, key, 0); err != nil {
				return nil, err
			}
		}
	}

	start := time.Now()
	split := s.metadataStorage != nil
	defer func() {
		s.observer.OnRead(ctx, &ReadEvent{
			Key:      key,
			Split:    split,
			Duration: time.Since(start),
			Error:    err,
		})
	}()

	st, err := s.resolveResultStorage(ctx)
	if err != nil {
		return nil, err
	}

	if !split {
		content, err := st.ReadPath(ctx, key)
		if err != nil {
			return nil, err
		}
		return DeserializeRecord(content)
	}

	metaContent, err := s.metadataStorage.ReadPath(ctx, key)
	if err != nil {
		return nil, err
	}
	meta, err := LoadMetadata(metaContent)
	if err != nil {
		return nil, err
	}
	if meta.StorageKey == "" {
		return nil, fmt.Errorf("metadata for %q does not record a storage key", key)
	}
	payload, err := st.ReadPath(ctx, meta.StorageKey)
	if err != nil {
		return nil, err
	}
	return DeserializeRecordParts(payload, metaContent)
}

// CreateResultRecord builds a record for obj. An empty key is minted with
// the store's key function.
func (s *ResultStore) CreateResultRecord(key string, obj any, expiration *time.Time) (*ResultRecord, error) {
	if key == "" {
		minted, err := s.storageKeyFn()
		if err != nil {
			return nil, fmt.Errorf("failed to mint storage key: %w", err)
		}
		if minted == "" {
			return nil, &ArgumentError{Argument: "storage key", Message: "storage key function returned an empty key"}
		}
		key = minted
	}
	return NewResultRecord(obj, &ResultRecordMetadata{
		StorageKey:     key,
		Expiration:     expiration,
		Serializer:     s.serializer,
		SchemaVersion:  SchemaVersion,
		StorageBlockID: s.ResultStorageBlockID(),
	}), nil
}

// PersistResultRecord writes rec. It fails with a LockedError when the
// record's key is locked by a holder other than holder; it never takes
// the lock itself.
//
// With a metadata storage, the payload and the metadata are two separate
// writes. A failure between them leaves a payload without metadata, which
// Exists and Read treat as absent.
func (s *ResultStore) PersistResultRecord(ctx context.Context, rec *ResultRecord, holder string) error {
	return s.persist(ctx, rec, resolveHolder(ctx, holder))
}

func (s *ResultStore) persist(ctx context.Context, rec *ResultRecord, holder string) (err error) {
	key := rec.Metadata.StorageKey
	if key == "" {
		return &ArgumentError{Argument: "result record", Message: "storage key is required to persist a record"}
	}

	if s.lockManager != nil {
		locked, err := s.lockManager.IsLocked(ctx, key)
		if err != nil {
			return err
		}
		if locked {
			isHolder, err := s.lockManager.IsLockHolder(ctx, key, holder)
			if err != nil {
				return err
			}
			if !isHolder {
				return &LockedError{Key: key, Writer: holder}
			}
		}
	}

	st, err := s.resolveResultStorage(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	split := s.metadataStorage != nil
	written := 0
	defer func() {
		s.observer.OnWrite(ctx, &WriteEvent{
			Key:      key,
			Split:    split,
			Bytes:    written,
			Duration: time.Since(start),
			Error:    err,
		})
	}()

	if !split {
		blob, err := rec.Serialize()
		if err != nil {
			return err
		}
		if err := st.WritePath(ctx, key, blob); err != nil {
			return err
		}
		written = len(blob)
		return nil
	}

	payload, err := rec.SerializeResult()
	if err != nil {
		return err
	}
	meta, err := rec.SerializeMetadata()
	if err != nil {
		return err
	}
	if err := st.WritePath(ctx, key, payload); err != nil {
		return err
	}
	if err := s.metadataStorage.WritePath(ctx, key, meta); err != nil {
		s.logger.Error("result payload written without metadata",
			slog.String("key", key),
			slog.String("error", err.Error()))
		return err
	}
	written = len(payload) + len(meta)
	return nil
}

// Write creates a record for obj under key (minted if empty) and persists it.
func (s *ResultStore) Write(ctx context.Context, key string, obj any, expiration *time.Time, holder string) error {
	return s.write(ctx, key, obj, expiration, resolveHolder(ctx, holder))
}

// WriteAsync runs Write on its own goroutine.
func (s *ResultStore) WriteAsync(ctx context.Context, key string, obj any, expiration *time.Time, holder string) *Future[struct{}] {
	holder = resolveHolder(ctx, holder)
	return goAsync(func() (struct{}, error) {
		return struct{}{}, s.write(ctx, key, obj, expiration, holder)
	})
}

func (s *ResultStore) write(ctx context.Context, key string, obj any, expiration *time.Time, holder string) error {
	// Resolve first so the record carries the storage block id
	if _, err := s.resolveResultStorage(ctx); err != nil {
		return err
	}
	rec, err := s.CreateResultRecord(key, obj, expiration)
	if err != nil {
		return err
	}
	return s.persist(ctx, rec, holder)
}

// CreateResult wraps obj in a reference bound to this store's storage and
// serializer. The reference is not written; call Write on it.
//
// The value stays cached when the store caches in memory or obj is nil.
// When the store does not persist results the reference never touches
// storage and encodes as null.
func (s *ResultStore) CreateResult(ctx context.Context, obj any, key string, expiration *time.Time) (*PersistedResult, error) {
	st, err := s.resolveResultStorage(ctx)
	if err != nil {
		return nil, err
	}

	keyFn := s.storageKeyFn
	if key != "" {
		keyFn = StaticKey(key)
	}

	return CreatePersistedResult(obj, PersistedResultOptions{
		Storage:         st,
		StorageBlockID:  storage.BlockIDOf(st),
		StorageKeyFunc:  keyFn,
		Serializer:      s.serializer,
		CacheObject:     s.cacheInMemory || isNil(obj),
		Expiration:      expiration,
		SerializeToNone: !s.persistResult,
		Defaults:        s.defaults,
		Observer:        s.observer,
	})
}

// CreateResultAsync runs CreateResult on its own goroutine.
func (s *ResultStore) CreateResultAsync(ctx context.Context, obj any, key string, expiration *time.Time) *Future[*PersistedResult] {
	return goAsync(func() (*PersistedResult, error) {
		return s.CreateResult(ctx, obj, key, expiration)
	})
}

func parametersKey(id uuid.UUID) string {
	return "parameters/" + id.String()
}

// StoreParameters writes the parameters of a deferred run under
// "parameters/<id>".
func (s *ResultStore) StoreParameters(ctx context.Context, id uuid.UUID, params map[string]any) error {
	st, err := s.resolveResultStorage(ctx)
	if err != nil {
		return err
	}
	rec, err := s.CreateResultRecord(parametersKey(id), params, nil)
	if err != nil {
		return err
	}
	blob, err := rec.Serialize()
	if err != nil {
		return err
	}
	return st.WritePath(ctx, parametersKey(id), blob)
}

// ReadParameters reads parameters written by StoreParameters.
func (s *ResultStore) ReadParameters(ctx context.Context, id uuid.UUID) (map[string]any, error) {
	st, err := s.resolveResultStorage(ctx)
	if err != nil {
		return nil, err
	}
	content, err := st.ReadPath(ctx, parametersKey(id))
	if err != nil {
		return nil, err
	}
	rec, err := DeserializeRecord(content)
	if err != nil {
		return nil, err
	}
	var params map[string]any
	if err := rec.Decode(&params); err != nil {
		return nil, fmt.Errorf("failed to decode parameters %s: %w", id, err)
	}
	return params, nil
}

// isNil reports whether v is nil or a nil pointer, map, slice, channel,
// function or interface.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
