package results

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resultdock/pkg/blocks"
	"resultdock/pkg/serializers"
	"resultdock/pkg/storage"
)

func TestPersistedResult_CreateWriteGet(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t)

	ref, err := store.CreateResult(ctx, report{Day: "wed", Count: 1}, "reports/wed", nil)
	require.NoError(t, err)
	assert.Equal(t, ReferenceTypePersisted, ref.ReferenceType())
	assert.Equal(t, "reports/wed", ref.StorageKey)
	assert.Equal(t, serializers.TypeJSON, ref.SerializerType)
	assert.True(t, ref.HasCachedObject())
	assert.False(t, ref.Persisted())
	assert.Empty(t, mem.Keys())

	require.NoError(t, ref.Write(ctx))
	assert.True(t, ref.Persisted())
	assert.Equal(t, []string{"reports/wed"}, mem.Keys())

	// Cached value is returned as-is
	value, err := ref.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, report{Day: "wed", Count: 1}, value)

	// IgnoreCache reads the stored generic form back
	value, err = ref.Get(ctx, IgnoreCache())
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"day": "wed", "count": float64(1)}, value)

	typed, err := GetValue[report](ctx, ref, IgnoreCache())
	require.NoError(t, err)
	assert.Equal(t, report{Day: "wed", Count: 1}, typed)
}

func TestPersistedResult_WriteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t)

	ref, err := store.CreateResult(ctx, "v", "k", nil)
	require.NoError(t, err)
	require.NoError(t, ref.Write(ctx))
	require.NoError(t, mem.Delete(ctx, "k"))

	require.NoError(t, ref.Write(ctx))
	require.NoError(t, ref.WriteValue(ctx, "other"))
	assert.Empty(t, mem.Keys())
}

func TestPersistedResult_WriteValue(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	ref, err := store.CreateResult(ctx, "original", "k", nil)
	require.NoError(t, err)
	require.NoError(t, ref.WriteValue(ctx, "replacement"))

	rec, err := store.Read(ctx, "k", "")
	require.NoError(t, err)
	assert.Equal(t, "replacement", rec.Result)
}

func TestPersistedResult_SerializeToNone(t *testing.T) {
	ctx := context.Background()
	store, mem := newTestStore(t, WithPersistResult(false))

	ref, err := store.CreateResult(ctx, "secret", "k", nil)
	require.NoError(t, err)
	assert.True(t, ref.SerializeToNone)

	require.NoError(t, ref.Write(ctx))
	assert.Empty(t, mem.Keys())
	assert.False(t, ref.Persisted())

	data, err := MarshalReference(ref)
	require.NoError(t, err)
	assert.Equal(t, "null", string(data))

	decoded, err := UnmarshalReference(data)
	require.NoError(t, err)
	assert.Nil(t, decoded)

	// The value is still available in memory
	value, err := ref.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "secret", value)
}

func TestPersistedResult_NoCacheInMemory(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, WithCacheResultInMemory(false))

	ref, err := store.CreateResult(ctx, "v", "k", nil)
	require.NoError(t, err)
	assert.True(t, ref.HasCachedObject())

	require.NoError(t, ref.Write(ctx))
	assert.False(t, ref.HasCachedObject())

	value, err := ref.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v", value)
	assert.False(t, ref.HasCachedObject())
}

func TestPersistedResult_NilAlwaysCached(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t, WithCacheResultInMemory(false))

	ref, err := store.CreateResult(ctx, nil, "k", nil)
	require.NoError(t, err)
	require.NoError(t, ref.Write(ctx))
	assert.True(t, ref.HasCachedObject())
}

func TestPersistedResult_DecodedReferenceResolvesByBlockID(t *testing.T) {
	ctx := context.Background()
	reg := blocks.NewMemoryRegistry()
	mem := storage.NewMemoryStorage()
	doc := reg.Save("results", mem)

	defaults := NewDefaults(testSettings(t), reg)
	registered, err := reg.Load(ctx, "results")
	require.NoError(t, err)

	store := NewResultStore(
		WithResultStorage(registered),
		WithDefaults(defaults),
		WithPersistResult(true),
	)
	exp := time.Now().Add(time.Hour).UTC().Truncate(time.Second)
	ref, err := store.CreateResult(ctx, []string{"a", "b"}, "", &exp)
	require.NoError(t, err)
	require.NotNil(t, ref.StorageBlockID)
	assert.Equal(t, doc.ID, *ref.StorageBlockID)
	require.NoError(t, ref.Write(ctx))

	data, err := MarshalReference(ref)
	require.NoError(t, err)

	decoded, err := UnmarshalReference(data)
	require.NoError(t, err)
	persisted, ok := decoded.(*PersistedResult)
	require.True(t, ok)
	assert.True(t, ref.Equal(persisted))
	assert.False(t, persisted.HasCachedObject())

	// Writing a decoded reference has nothing to write
	assert.ErrorIs(t, persisted.Write(ctx), ErrNoCachedObject)

	runCtx := WithRunContext(ctx, &RunContext{Defaults: defaults})
	value, err := persisted.Get(runCtx)
	require.NoError(t, err)
	assert.Equal(t, []any{"a", "b"}, value)
	assert.True(t, persisted.HasCachedObject())
	require.NotNil(t, persisted.Expiration)
	assert.True(t, exp.Equal(*persisted.Expiration))
}

func TestPersistedResult_LocalPathBecomesKey(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	local, err := storage.NewLocalFileSystem(dir)
	require.NoError(t, err)

	store := NewResultStore(
		WithResultStorage(local),
		WithDefaults(NewDefaults(testSettings(t), nil)),
		WithPersistResult(true),
	)
	ref, err := store.CreateResult(ctx, 5, "five", nil)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "five"), ref.StorageKey)
	assert.Nil(t, ref.StorageBlockID)
	require.NoError(t, ref.Write(ctx))

	// A decoded reference needs no storage configuration to read it back
	data, err := MarshalReference(ref)
	require.NoError(t, err)
	decoded, err := UnmarshalReference(data)
	require.NoError(t, err)

	value, err := decoded.Get(ctx)
	require.NoError(t, err)
	assert.Equal(t, float64(5), value)
}

func TestPersistedResult_RejectsEmptyKey(t *testing.T) {
	_, err := CreatePersistedResult("v", PersistedResultOptions{
		Storage:        storage.NewMemoryStorage(),
		StorageKeyFunc: StaticKey(""),
	})
	var argErr *ArgumentError
	require.True(t, errors.As(err, &argErr))

	_, err = CreatePersistedResult("v", PersistedResultOptions{})
	require.True(t, errors.As(err, &argErr))
}

func TestPersistedResult_Equal(t *testing.T) {
	a := &PersistedResult{Type: ReferenceTypePersisted, SerializerType: "json", StorageKey: "k"}
	b := &PersistedResult{SerializerType: "json", StorageKey: "k"}
	assert.True(t, a.Equal(b))

	b.StorageKey = "other"
	assert.False(t, a.Equal(b))
	assert.False(t, a.Equal(nil))

	exp := time.Now()
	c := &PersistedResult{SerializerType: "json", StorageKey: "k", Expiration: &exp}
	assert.False(t, a.Equal(c))
}

func TestUnmarshalReference_UnknownType(t *testing.T) {
	_, err := UnmarshalReference([]byte(`{"type":"mystery"}`))
	assert.ErrorIs(t, err, ErrUnknownReferenceType)
}

func TestPersistedResult_Async(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	ref, err := store.CreateResultAsync(ctx, "v", "k", nil).Wait()
	require.NoError(t, err)

	_, err = ref.WriteAsync(ctx).Wait()
	require.NoError(t, err)

	value, err := ref.GetAsync(ctx, IgnoreCache()).Await(ctx)
	require.NoError(t, err)
	assert.Equal(t, "v", value)
}
