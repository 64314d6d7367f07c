package results

import (
	"log/slog"

	"resultdock/pkg/locking"
	"resultdock/pkg/serializers"
	"resultdock/pkg/storage"
)

// StoreOption is a functional option for configuring a ResultStore.
type StoreOption interface {
	apply(*storeConfig)
}

type optionFunc func(*storeConfig)

func (f optionFunc) apply(c *storeConfig) {
	f(c)
}

type storeConfig struct {
	resultStorage   storage.Storage
	metadataStorage storage.Storage
	lockManager     locking.LockManager
	persistResult   *bool
	cacheInMemory   *bool
	serializer      serializers.Serializer
	storageKeyFn    StorageKeyFunc
	defaults        *Defaults
	observer        Observer
	logger          *slog.Logger
}

// WithResultStorage sets where result payloads are written. Without it the
// default storage is resolved on first use.
func WithResultStorage(s storage.Storage) StoreOption {
	return optionFunc(func(c *storeConfig) {
		c.resultStorage = s
	})
}

// WithMetadataStorage stores record metadata separately from payloads.
// Metadata is written under the record key and points at the payload.
func WithMetadataStorage(s storage.Storage) StoreOption {
	return optionFunc(func(c *storeConfig) {
		c.metadataStorage = s
	})
}

// WithLockManager enables locking and SERIALIZABLE isolation.
func WithLockManager(m locking.LockManager) StoreOption {
	return optionFunc(func(c *storeConfig) {
		c.lockManager = m
	})
}

// WithPersistResult sets whether created results are written to storage.
// Defaults to the persist_by_default setting.
func WithPersistResult(persist bool) StoreOption {
	return optionFunc(func(c *storeConfig) {
		c.persistResult = &persist
	})
}

// WithCacheResultInMemory sets whether created results keep their value in
// memory after being written. Defaults to true.
func WithCacheResultInMemory(cache bool) StoreOption {
	return optionFunc(func(c *storeConfig) {
		c.cacheInMemory = &cache
	})
}

// WithSerializer sets the result serializer. Defaults to the
// default_serializer setting.
func WithSerializer(s serializers.Serializer) StoreOption {
	return optionFunc(func(c *storeConfig) {
		c.serializer = s
	})
}

// WithStorageKeyFunc sets how keys are minted for new results.
func WithStorageKeyFunc(fn StorageKeyFunc) StoreOption {
	return optionFunc(func(c *storeConfig) {
		c.storageKeyFn = fn
	})
}

// WithDefaults sets the resolver for default storage and settings.
func WithDefaults(d *Defaults) StoreOption {
	return optionFunc(func(c *storeConfig) {
		c.defaults = d
	})
}

// WithObserver sets an observer for store events.
func WithObserver(o Observer) StoreOption {
	return optionFunc(func(c *storeConfig) {
		c.observer = o
	})
}

// WithLogger sets the store logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) StoreOption {
	return optionFunc(func(c *storeConfig) {
		c.logger = l
	})
}
