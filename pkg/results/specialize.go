package results

import (
	"context"
)

// FlowSettings are a flow's result overrides. Nil fields keep the store's
// value.
type FlowSettings struct {
	// ResultStorage is a storage.Storage, a block name or a block id.
	ResultStorage any

	// ResultSerializer is a serializers.Serializer or a serializer name
	// such as "json" or "compressed/json".
	ResultSerializer any

	PersistResult       *bool
	CacheResultInMemory *bool
}

// TaskSettings are a task's result overrides. Nil fields keep the store's
// value.
type TaskSettings struct {
	ResultStorage       any
	ResultSerializer    any
	PersistResult       *bool
	CacheResultInMemory *bool

	// ResultStorageKey is a key template such as
	// "reports/{parameters[day]}.json", rendered with KeyVariables each
	// time a key is minted.
	ResultStorageKey string
	KeyVariables     KeyVariables
}

// UpdateForFlow returns a new store with the flow's overrides applied.
// When neither the store nor the flow names a result storage the default
// storage is resolved now.
func (s *ResultStore) UpdateForFlow(ctx context.Context, flow FlowSettings) (*ResultStore, error) {
	cfg := s.config()
	if err := s.applyOverrides(ctx, cfg, flow.ResultStorage, flow.ResultSerializer,
		flow.PersistResult, flow.CacheResultInMemory); err != nil {
		return nil, err
	}
	if err := s.ensureStorage(ctx, cfg); err != nil {
		return nil, err
	}
	return newStore(cfg), nil
}

// UpdateForTask returns a new store with the task's overrides applied.
// A ResultStorageKey replaces the store's key function.
func (s *ResultStore) UpdateForTask(ctx context.Context, task TaskSettings) (*ResultStore, error) {
	cfg := s.config()
	if err := s.applyOverrides(ctx, cfg, task.ResultStorage, task.ResultSerializer,
		task.PersistResult, task.CacheResultInMemory); err != nil {
		return nil, err
	}
	if task.ResultStorageKey != "" {
		cfg.storageKeyFn = TemplateKeyFunc(task.ResultStorageKey, task.KeyVariables)
	}
	if err := s.ensureStorage(ctx, cfg); err != nil {
		return nil, err
	}
	return newStore(cfg), nil
}

func (s *ResultStore) applyOverrides(ctx context.Context, cfg *storeConfig, st, ser any, persist, cache *bool) error {
	if st != nil {
		resolved, err := s.defaults.ResolveStorage(ctx, st)
		if err != nil {
			return err
		}
		cfg.resultStorage = resolved
	}
	if ser != nil {
		resolved, err := ResolveSerializer(ser)
		if err != nil {
			return err
		}
		cfg.serializer = resolved
	}
	if persist != nil {
		v := *persist
		cfg.persistResult = &v
	}
	if cache != nil {
		v := *cache
		cfg.cacheInMemory = &v
	}
	return nil
}

func (s *ResultStore) ensureStorage(ctx context.Context, cfg *storeConfig) error {
	if cfg.resultStorage != nil {
		return nil
	}
	st, err := s.defaults.ResultStorage(ctx)
	if err != nil {
		return err
	}
	cfg.resultStorage = st
	return nil
}
