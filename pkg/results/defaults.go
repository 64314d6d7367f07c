package results

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"resultdock/pkg/blocks"
	"resultdock/pkg/serializers"
	"resultdock/pkg/settings"
	"resultdock/pkg/storage"
)

// Defaults resolves the process-wide default storage and serializer from
// settings. It owns the cache of resolved default storages, so every store
// sharing a Defaults writes to the same backend instance.
type Defaults struct {
	settings *settings.Settings
	registry blocks.Registry

	mu       sync.Mutex
	storages map[defaultStorageKey]storage.Storage
}

// A default storage is identified by the settings that produced it.
type defaultStorageKey struct {
	block     string
	localPath string
}

var (
	environmentOnce     sync.Once
	environmentDefaults *Defaults
)

// EnvironmentDefaults returns the Defaults built from environment settings.
// Settings are loaded once per process.
func EnvironmentDefaults() *Defaults {
	environmentOnce.Do(func() {
		environmentDefaults = NewDefaults(nil, nil)
	})
	return environmentDefaults
}

// NewDefaults creates a resolver. A nil settings uses settings.Default().
// A nil registry is built from the settings' blocks.
func NewDefaults(s *settings.Settings, registry blocks.Registry) *Defaults {
	if s == nil {
		s = settings.Default()
	}
	if registry == nil {
		registry = registryFromSettings(s)
	}
	return &Defaults{
		settings: s,
		registry: registry,
		storages: make(map[defaultStorageKey]storage.Storage),
	}
}

func registryFromSettings(s *settings.Settings) blocks.Registry {
	reg := blocks.NewMemoryRegistry()
	for name, location := range s.Blocks {
		reg.SaveLocation(name, location)
	}
	return reg
}

// Settings returns the settings this resolver reads.
func (d *Defaults) Settings() *settings.Settings { return d.settings }

// Registry returns the backend registry.
func (d *Defaults) Registry() blocks.Registry { return d.registry }

// PersistResult reports whether results persist when nothing says otherwise.
func (d *Defaults) PersistResult() bool {
	return d.settings.Results.PersistByDefault
}

// Serializer builds the configured default serializer.
func (d *Defaults) Serializer() (serializers.Serializer, error) {
	return serializers.Resolve(d.settings.Results.DefaultSerializer)
}

// ResultStorage returns the default result storage: the configured default
// block if any, else a local filesystem at the configured path.
func (d *Defaults) ResultStorage(ctx context.Context) (storage.Storage, error) {
	return d.cached(ctx, defaultStorageKey{
		block:     d.settings.Results.DefaultStorageBlock,
		localPath: d.settings.Results.LocalStoragePath,
	})
}

// TaskSchedulingStorage returns the storage deferred task parameters and
// results go to: the configured scheduling block if any, else the default
// result storage.
func (d *Defaults) TaskSchedulingStorage(ctx context.Context) (storage.Storage, error) {
	if block := d.settings.Tasks.SchedulingDefaultStorageBlock; block != "" {
		return d.cached(ctx, defaultStorageKey{block: block})
	}
	return d.ResultStorage(ctx)
}

func (d *Defaults) cached(ctx context.Context, key defaultStorageKey) (storage.Storage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if s, ok := d.storages[key]; ok {
		return s, nil
	}

	var (
		s   storage.Storage
		err error
	)
	if key.block != "" {
		s, err = d.loadBlock(ctx, key.block)
	} else {
		s, err = storage.NewLocalFileSystem(key.localPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to resolve default result storage: %w", err)
	}
	d.storages[key] = s
	return s, nil
}

func (d *Defaults) loadBlock(ctx context.Context, name string) (storage.Storage, error) {
	if d.registry == nil {
		return nil, &ArgumentError{
			Argument: "result storage",
			Message:  fmt.Sprintf("storage block %q requested but no block registry is configured", name),
		}
	}
	return d.registry.Load(ctx, name)
}

// LoadStorageByID loads a registered backend by block id.
func (d *Defaults) LoadStorageByID(ctx context.Context, id uuid.UUID) (storage.Storage, error) {
	if d.registry == nil {
		return nil, &ArgumentError{
			Argument: "storage block id",
			Message:  fmt.Sprintf("cannot load block %s without a block registry", id),
		}
	}
	return d.registry.LoadByID(ctx, id)
}

// ResolveStorage turns a storage, a block name or a block id into a
// storage. Any other input is an ArgumentError.
func (d *Defaults) ResolveStorage(ctx context.Context, v any) (storage.Storage, error) {
	switch s := v.(type) {
	case storage.Storage:
		return s, nil
	case string:
		return d.loadBlock(ctx, s)
	case uuid.UUID:
		return d.LoadStorageByID(ctx, s)
	default:
		return nil, &ArgumentError{
			Argument: "result storage",
			Message:  fmt.Sprintf("expected a storage, block name or block id, got %T", v),
		}
	}
}

// ResolveSerializer turns a serializer or a serializer name into a serializer.
// Any other input is an ArgumentError.
func ResolveSerializer(v any) (serializers.Serializer, error) {
	switch s := v.(type) {
	case serializers.Serializer:
		return s, nil
	case string:
		resolved, err := serializers.Resolve(s)
		if err != nil {
			return nil, &ArgumentError{Argument: "result serializer", Message: err.Error()}
		}
		return resolved, nil
	default:
		return nil, &ArgumentError{
			Argument: "result serializer",
			Message:  fmt.Sprintf("expected a serializer or serializer name, got %T", v),
		}
	}
}
