package results

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"resultdock/pkg/blocks"
	"resultdock/pkg/locking"
	"resultdock/pkg/serializers"
	"resultdock/pkg/storage"
)

func boolPtr(b bool) *bool { return &b }

func TestRenderStorageKey(t *testing.T) {
	vars := KeyVariables{"flow_run.id": "f1", "parameters[day]": "mon"}

	tests := []struct {
		name     string
		template string
		want     string
		wantErr  bool
	}{
		{name: "plain", template: "static", want: "static"},
		{name: "variables", template: "{flow_run.id}/{parameters[day]}.json", want: "f1/mon.json"},
		{name: "padded", template: "{ flow_run.id }", want: "f1"},
		{name: "escaped braces", template: "{{literal}}-{flow_run.id}", want: "{literal}-f1"},
		{name: "unknown variable", template: "{task_run.id}", wantErr: true},
		{name: "unterminated", template: "{flow_run.id", wantErr: true},
		{name: "stray close", template: "a}b", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderStorageKey(tt.template, vars)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParameterVariables(t *testing.T) {
	vars := ParameterVariables(map[string]any{"name": "x", "n": 3, "tags": []string{"a"}})
	assert.Equal(t, "x", vars["parameters[name]"])
	assert.Equal(t, "3", vars["parameters[n]"])
	assert.Equal(t, `["a"]`, vars["parameters[tags]"])

	merged := vars.Merge(KeyVariables{"parameters[name]": "y", "task_run.id": "t"})
	assert.Equal(t, "y", merged["parameters[name]"])
	assert.Equal(t, "t", merged["task_run.id"])
	assert.Equal(t, "x", vars["parameters[name]"])
}

func TestDefaultStorageKeyFunc(t *testing.T) {
	a, err := DefaultStorageKeyFunc()
	require.NoError(t, err)
	b, err := DefaultStorageKeyFunc()
	require.NoError(t, err)
	assert.Len(t, a, 32)
	assert.NotContains(t, a, "-")
	assert.NotEqual(t, a, b)
}

func TestUpdateForFlow_Overrides(t *testing.T) {
	ctx := context.Background()
	base, _ := newTestStore(t)
	other := storage.NewMemoryStorage()

	flowStore, err := base.UpdateForFlow(ctx, FlowSettings{
		ResultStorage:       other,
		ResultSerializer:    "compressed/json",
		PersistResult:       boolPtr(false),
		CacheResultInMemory: boolPtr(false),
	})
	require.NoError(t, err)

	assert.Same(t, other, flowStore.ResultStorage())
	assert.Equal(t, serializers.TypeCompressed, flowStore.Serializer().Type())
	assert.False(t, flowStore.PersistResult())
	assert.False(t, flowStore.CacheResultInMemory())

	// The original store is unchanged
	assert.Equal(t, serializers.TypeJSON, base.Serializer().Type())
	assert.True(t, base.PersistResult())
	assert.True(t, base.CacheResultInMemory())
}

func TestUpdateForFlow_KeepsUnsetFields(t *testing.T) {
	ctx := context.Background()
	base, mem := newTestStore(t)

	flowStore, err := base.UpdateForFlow(ctx, FlowSettings{})
	require.NoError(t, err)
	assert.Same(t, mem, flowStore.ResultStorage())
	assert.Equal(t, base.Serializer(), flowStore.Serializer())
	assert.Equal(t, base.PersistResult(), flowStore.PersistResult())
}

func TestUpdateForFlow_ResolvesDefaultStorage(t *testing.T) {
	ctx := context.Background()
	base := NewResultStore(WithDefaults(NewDefaults(testSettings(t), nil)))
	require.Nil(t, base.ResultStorage())

	flowStore, err := base.UpdateForFlow(ctx, FlowSettings{})
	require.NoError(t, err)
	_, ok := flowStore.ResultStorage().(*storage.LocalFileSystem)
	assert.True(t, ok)
}

func TestUpdateForFlow_StorageByBlockName(t *testing.T) {
	ctx := context.Background()
	reg := blocks.NewMemoryRegistry()
	doc := reg.Save("shared", storage.NewMemoryStorage())
	base := NewResultStore(WithDefaults(NewDefaults(testSettings(t), reg)))

	byName, err := base.UpdateForFlow(ctx, FlowSettings{ResultStorage: "shared"})
	require.NoError(t, err)
	require.NotNil(t, byName.ResultStorageBlockID())
	assert.Equal(t, doc.ID, *byName.ResultStorageBlockID())

	byID, err := base.UpdateForFlow(ctx, FlowSettings{ResultStorage: doc.ID})
	require.NoError(t, err)
	assert.Equal(t, doc.ID, *byID.ResultStorageBlockID())

	_, err = base.UpdateForFlow(ctx, FlowSettings{ResultStorage: "missing"})
	assert.ErrorIs(t, err, blocks.ErrBlockNotFound)
}

func TestUpdateForFlow_InvalidInputs(t *testing.T) {
	ctx := context.Background()
	base, _ := newTestStore(t)
	var argErr *ArgumentError

	_, err := base.UpdateForFlow(ctx, FlowSettings{ResultStorage: 42})
	require.True(t, errors.As(err, &argErr))

	_, err = base.UpdateForFlow(ctx, FlowSettings{ResultSerializer: "yaml"})
	require.True(t, errors.As(err, &argErr))

	_, err = base.UpdateForFlow(ctx, FlowSettings{ResultSerializer: 1.5})
	require.True(t, errors.As(err, &argErr))
}

func TestUpdateForTask_StorageKeyTemplate(t *testing.T) {
	ctx := context.Background()
	base, mem := newTestStore(t)

	taskStore, err := base.UpdateForTask(ctx, TaskSettings{
		ResultStorageKey: "reports/{parameters[day]}-{task_run.id}",
		KeyVariables: ParameterVariables(map[string]any{"day": "fri"}).
			Merge(KeyVariables{"task_run.id": "t7"}),
	})
	require.NoError(t, err)

	ref, err := taskStore.CreateResult(ctx, "payload", "", nil)
	require.NoError(t, err)
	assert.Equal(t, "reports/fri-t7", ref.StorageKey)
	require.NoError(t, ref.Write(ctx))
	assert.Equal(t, []string{"reports/fri-t7"}, mem.Keys())

	// Same template, same key: reruns address the same record
	assert.True(t, taskStore.Exists(ctx, "reports/fri-t7"))
}

func TestUpdateForTask_BadTemplateFailsOnCreate(t *testing.T) {
	ctx := context.Background()
	base, _ := newTestStore(t)

	taskStore, err := base.UpdateForTask(ctx, TaskSettings{ResultStorageKey: "{nope}"})
	require.NoError(t, err)

	_, err = taskStore.CreateResult(ctx, "v", "", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "nope")
}

func TestCurrentStore(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	assert.Same(t, store, CurrentStore(WithRunContext(ctx, &RunContext{Store: store})))

	fresh := CurrentStore(ctx)
	require.NotNil(t, fresh)
	assert.NotSame(t, store, fresh)
}

func TestUpdateForFlow_LoggerScopedOnce(t *testing.T) {
	ctx := context.Background()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	base, _ := newTestStore(t, WithLogger(logger), WithLockManager(locking.NewMemoryLockManager()))

	flow, err := base.UpdateForFlow(ctx, FlowSettings{})
	require.NoError(t, err)
	task, err := flow.UpdateForTask(ctx, TaskSettings{})
	require.NoError(t, err)

	buf.Reset()
	_, err = task.AcquireLock(ctx, "k", "h", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(buf.String(), "component=result_store"), buf.String())
}
