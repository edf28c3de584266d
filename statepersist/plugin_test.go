package statepersist_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/persistent-state-go/statepersist"
	"github.com/AntonStoeckl/persistent-state-go/store"
	"github.com/AntonStoeckl/persistent-state-go/testutil/helper"
)

func Test_Plugin_AllKeys_RoundTrip(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	const increments = 7

	// arrange
	first := givenStore(t, givenPlugin(t, givenRegistry(t), statepersist.WithEngine(engine)), counterSlice(), namesSlice())
	for i := 0; i < increments; i++ {
		require.NoError(t, first.Dispatch(ctx, increment{}))
	}

	// act
	second := givenStore(t, givenPlugin(t, givenRegistry(t), statepersist.WithEngine(engine)), counterSlice(), namesSlice())

	// assert
	assert.Equal(t, `{"counter":{"count":7},"names":[]}`, storedValue(t, engine, statepersist.DefaultStateKey))
	assert.Equal(t, increments, toInt(selectSlice(t, second, "counter").(map[string]any)["count"]))
	assert.Equal(t, []any{}, selectSlice(t, second, "names"))
}

func Test_Plugin_AllKeys_MergeKeepsDefaultsOfMissingSlices(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	require.NoError(t, engine.SetItem(ctx, statepersist.DefaultStateKey, `{"counter":{"count":3}}`))

	// act
	s := givenStore(t, givenPlugin(t, givenRegistry(t), statepersist.WithEngine(engine)), counterSlice(), namesSlice())

	// assert
	assert.Equal(t, map[string]any{"count": 3.0}, selectSlice(t, s, "counter"))
	assert.Equal(t, []any{}, selectSlice(t, s, "names"))
}

func Test_Plugin_AppliesMigrationExactlyOnce(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	require.NoError(t, engine.SetItem(ctx, "counter", `{"count":100,"version":1}`))

	calls := 0
	migration := statepersist.MigrationDescriptor{
		Version: 1,
		Key:     "counter",
		Migrate: func(state any) (any, error) {
			calls++
			old := state.(map[string]any)

			return map[string]any{"counts": old["count"], "version": 2}, nil
		},
	}

	newStore := func() *store.Store {
		return givenStore(t,
			givenPlugin(t, givenRegistry(t, "counter"),
				statepersist.WithEngine(engine),
				statepersist.WithMigrations(migration),
			),
			counterSlice(),
		)
	}

	// act
	first := newStore()
	second := newStore()

	// assert
	assert.Equal(t, 1, calls)
	assert.Equal(t, map[string]any{"counts": 100.0, "version": 2}, selectSlice(t, first, "counter"))
	assert.Equal(t, map[string]any{"counts": 100.0, "version": 2.0}, selectSlice(t, second, "counter"))
	assert.JSONEq(t, `{"counts":100,"version":2}`, storedValue(t, engine, "counter").(string))
}

func Test_Plugin_Migration_FailurePropagates(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	require.NoError(t, engine.SetItem(ctx, "counter", `{"count":1}`))
	cause := errors.New("cannot migrate")

	plugin := givenPlugin(t, givenRegistry(t, "counter"),
		statepersist.WithEngine(engine),
		statepersist.WithMigrations(statepersist.MigrationDescriptor{
			Key:     "counter",
			Migrate: func(any) (any, error) { return nil, cause },
		}),
	)

	// act
	_, err := store.New(ctx, store.WithSlices(counterSlice()), store.WithPlugins(plugin))

	// assert
	assert.ErrorIs(t, err, statepersist.ErrMigrationFailed)
	assert.ErrorIs(t, err, cause)
}

func Test_Plugin_HydrateFailure_IsLogged(t *testing.T) {
	tests := []struct {
		name      string
		failRead  bool
		errorType string
	}{
		{name: "migration_failure", errorType: "migration_error"},
		{name: "read_failure", failRead: true, errorType: "read_error"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			ctx := context.Background()
			engine := helper.NewFailingEngine()
			logSpy := helper.NewLogHandlerSpy(false)
			require.NoError(t, engine.SetItem(ctx, "counter", `{"count":1}`))
			engine.FailGet = tc.failRead

			plugin := givenPlugin(t, givenRegistry(t, "counter"),
				statepersist.WithEngine(engine),
				statepersist.WithLogger(logSpy.Logger()),
				statepersist.WithMigrations(statepersist.MigrationDescriptor{
					Key:     "counter",
					Migrate: func(any) (any, error) { return nil, errors.New("cannot migrate") },
				}),
			)

			// act
			_, err := store.New(ctx, store.WithSlices(counterSlice()), store.WithPlugins(plugin))

			// assert
			require.Error(t, err)
			assert.True(t, logSpy.HasErrorLogWithMessage("statepersist: operation failed").
				WithAttr("operation", "hydrate").
				WithAttr("address", "counter").
				WithAttr("error_type", tc.errorType).Assert())
		})
	}
}

func Test_Plugin_NamespacesStorageAddresses(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	s := givenStore(t,
		givenPlugin(t, givenRegistry(t, "names"),
			statepersist.WithEngine(engine),
			statepersist.WithNamespace("my_cool_app"),
		),
		namesSlice(),
	)

	// act
	require.NoError(t, s.Dispatch(ctx, addName{Name: "Mark"}))

	// assert
	keys, err := engine.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"my_cool_app:names"}, keys)
	assert.Equal(t, `["Mark"]`, storedValue(t, engine, "my_cool_app:names"))
}

func Test_Plugin_AbsentValuesResolveToDefaults(t *testing.T) {
	tests := []struct {
		name   string
		stored any
		store  bool
	}{
		{name: "undefined", stored: "undefined", store: true},
		{name: "nil", stored: nil, store: true},
		{name: "empty_string", stored: "", store: true},
		{name: "json_null", stored: "null", store: true},
		{name: "missing", store: false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// setup
			ctx := context.Background()
			engine := statepersist.NewMemoryEngine()
			logSpy := helper.NewLogHandlerSpy(false)

			// arrange
			if tc.store {
				require.NoError(t, engine.SetItem(ctx, "counter", tc.stored))
			}

			// act
			s := givenStore(t,
				givenPlugin(t, givenRegistry(t, "counter"),
					statepersist.WithEngine(engine),
					statepersist.WithLogger(logSpy.Logger()),
				),
				counterSlice(),
			)

			// assert
			assert.Equal(t, map[string]any{"count": 0}, selectSlice(t, s, "counter"))
			assert.Zero(t, logSpy.CountLogsAtLevel(slog.LevelError))
		})
	}
}

func Test_Plugin_DeserializationFailure_IsLoggedAndFallsBackToDefaults(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	logSpy := helper.NewLogHandlerSpy(false)
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	require.NoError(t, engine.SetItem(ctx, "app:counter", "{broken"))

	// act
	s := givenStore(t,
		givenPlugin(t, givenRegistry(t, "counter"),
			statepersist.WithEngine(engine),
			statepersist.WithNamespace("app"),
			statepersist.WithLogger(logSpy.Logger()),
			statepersist.WithMetrics(metricsSpy),
		),
		counterSlice(),
	)

	// assert
	assert.Equal(t, map[string]any{"count": 0}, selectSlice(t, s, "counter"))
	assert.True(t, logSpy.HasErrorLogWithMessage("Error occurred while deserializing the app:counter store value").
		WithAttr("address", "app:counter").Assert())
	assert.True(t, metricsSpy.HasCounterRecordForMetric("statepersist_deserialize_failures_total").
		WithLabel("key", "app:counter").Assert())
}

func Test_Plugin_DeserializationFailure_UsesDefaultLoggerWithoutConfiguredLogger(t *testing.T) {
	// setup
	ctx := context.Background()
	logSpy := helper.NewLogHandlerSpy(false)
	previous := slog.Default()
	slog.SetDefault(logSpy.Logger())
	t.Cleanup(func() { slog.SetDefault(previous) })

	engine := statepersist.NewMemoryEngine()
	require.NoError(t, engine.SetItem(ctx, "counter", "{broken"))

	// act
	givenStore(t, givenPlugin(t, givenRegistry(t, "counter"), statepersist.WithEngine(engine)), counterSlice())

	// assert
	assert.True(t, logSpy.HasErrorLogWithMessage("Error occurred while deserializing the counter store value").Assert())
}

func Test_Plugin_FeatureKeyUnderAllKeys_HasNoEffect(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	logSpy := helper.NewLogHandlerSpy(false)
	registry, err := statepersist.NewRegistry(
		[]statepersist.StorageKey{statepersist.AllKeys},
		statepersist.WithDevelopmentMode(true),
		statepersist.WithRegistryLogger(logSpy.Logger()),
	)
	require.NoError(t, err)
	s := givenStore(t, givenPlugin(t, registry, statepersist.WithEngine(engine)), counterSlice())

	// act
	err = s.AddFeature(ctx, []store.Slice{todosSlice()}, statepersist.WithStorageFeature(registry, "todos"))

	// assert
	require.NoError(t, err)
	assert.True(t, registry.PersistsAllKeys())
	assert.Equal(t, []statepersist.StorageKey{statepersist.AllKeys}, registry.Keys())
	assert.Equal(t, []any{}, selectSlice(t, s, "todos"))
	assert.Equal(t, map[string]any{"count": 0}, selectSlice(t, s, "counter"))
	assert.Equal(t, 1, logSpy.CountLogsAtLevel(slog.LevelError))
}

func Test_Plugin_IdentitySerializer_ReachesCustomEngineUnchanged(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := helper.NewRecordingEngine(nil)
	newStore := func() *store.Store {
		return givenStore(t,
			givenPlugin(t, givenRegistry(t, "counter"),
				statepersist.WithEngine(engine),
				statepersist.WithSerializer(statepersist.IdentitySerializer()),
			),
			counterSlice(),
		)
	}
	first := newStore()

	// act
	require.NoError(t, first.Dispatch(ctx, increment{}))
	second := newStore()

	// assert
	sets := engine.CallsOf("set")
	require.Len(t, sets, 1)
	assert.Equal(t, "counter", sets[0].Key)
	assert.Equal(t, map[string]any{"count": 1}, sets[0].Value)
	assert.Equal(t, map[string]any{"count": 1}, selectSlice(t, second, "counter"))
}

func Test_Plugin_SkipsWritesWhenNothingChanged(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := helper.NewRecordingEngine(nil)
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	s := givenStore(t,
		givenPlugin(t, givenRegistry(t, "counter", "names"),
			statepersist.WithEngine(engine),
			statepersist.WithMetrics(metricsSpy),
		),
		counterSlice(), namesSlice(),
	)

	// act
	require.NoError(t, s.Dispatch(ctx, increment{}))
	require.NoError(t, s.Dispatch(ctx, noop{}))
	require.NoError(t, s.Dispatch(ctx, increment{}))

	// assert
	sets := engine.CallsOf("set")
	require.Len(t, sets, 3)
	assert.Equal(t, "counter", sets[0].Key)
	assert.Equal(t, "names", sets[1].Key)
	assert.Equal(t, "counter", sets[2].Key)
	assert.Equal(t, `{"count":2}`, sets[2].Value)
	assert.Equal(t, 3, metricsSpy.HasCounterRecordForMetric("statepersist_writes_skipped_total").Count())
}

func Test_Plugin_DoesNotWriteOnInitWithoutMigration(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := helper.NewRecordingEngine(nil)
	require.NoError(t, engine.SetItem(ctx, "counter", `{"count":5}`))
	engine.Reset()

	// act
	s := givenStore(t, givenPlugin(t, givenRegistry(t, "counter"), statepersist.WithEngine(engine)), counterSlice())

	// assert
	assert.Empty(t, engine.CallsOf("set"))
	assert.Equal(t, map[string]any{"count": 5.0}, selectSlice(t, s, "counter"))
}

func Test_Plugin_WriteFailurePropagates_And_KeepsState(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := helper.NewFailingEngine()
	s := givenStore(t, givenPlugin(t, givenRegistry(t, "counter"), statepersist.WithEngine(engine)), counterSlice())
	engine.FailSet = true

	// act
	err := s.Dispatch(ctx, increment{})

	// assert
	assert.ErrorIs(t, err, statepersist.ErrWritingStateFailed)
	assert.ErrorIs(t, err, helper.ErrEngineFailure)
	assert.Equal(t, map[string]any{"count": 0}, selectSlice(t, s, "counter"))
}

func Test_Plugin_ReadFailurePropagates(t *testing.T) {
	// setup
	engine := helper.NewFailingEngine()
	engine.FailGet = true
	plugin := givenPlugin(t, givenRegistry(t, "counter"), statepersist.WithEngine(engine))

	// act
	_, err := store.New(context.Background(), store.WithSlices(counterSlice()), store.WithPlugins(plugin))

	// assert
	assert.ErrorIs(t, err, statepersist.ErrReadingStateFailed)
}

func Test_Plugin_SerializeFailurePropagates(t *testing.T) {
	// setup
	ctx := context.Background()
	cause := errors.New("cannot serialize")
	s := givenStore(t,
		givenPlugin(t, givenRegistry(t, "counter"),
			statepersist.WithEngine(statepersist.NewMemoryEngine()),
			statepersist.WithSerializer(statepersist.SerializerFuncs{
				SerializeFunc: func(any) (any, error) { return nil, cause },
			}),
		),
		counterSlice(),
	)

	// act
	err := s.Dispatch(ctx, increment{})

	// assert
	assert.ErrorIs(t, err, statepersist.ErrSerializingStateFailed)
	assert.ErrorIs(t, err, cause)
}

func Test_Plugin_Hooks(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	var beforeKeys, afterKeys []statepersist.StorageKey

	options := []statepersist.Option{
		statepersist.WithEngine(engine),
		statepersist.WithBeforeSerialize(func(value any, key statepersist.StorageKey) (any, error) {
			beforeKeys = append(beforeKeys, key)
			copied := value.(map[string]any)
			copied["savedBy"] = "hook"

			return copied, nil
		}),
		statepersist.WithAfterDeserialize(func(value any, key statepersist.StorageKey) (any, error) {
			afterKeys = append(afterKeys, key)
			restored := value.(map[string]any)
			restored["restored"] = true

			return restored, nil
		}),
	}

	first := givenStore(t, givenPlugin(t, givenRegistry(t, "counter"), options...), counterSlice())

	// act
	require.NoError(t, first.Dispatch(ctx, increment{}))
	second := givenStore(t, givenPlugin(t, givenRegistry(t, "counter"), options...), counterSlice())

	// assert
	assert.Equal(t, map[string]any{"count": 1}, selectSlice(t, first, "counter"))
	assert.Equal(t, `{"count":1,"savedBy":"hook"}`, storedValue(t, engine, "counter"))
	assert.Equal(t, map[string]any{"count": 1.0, "savedBy": "hook", "restored": true}, selectSlice(t, second, "counter"))
	assert.Equal(t, []statepersist.StorageKey{"counter"}, beforeKeys)
	assert.Equal(t, []statepersist.StorageKey{"counter"}, afterKeys)
}

func Test_Plugin_HookFailurePropagates(t *testing.T) {
	// setup
	cause := errors.New("hook failed")
	s := givenStore(t,
		givenPlugin(t, givenRegistry(t, "counter"),
			statepersist.WithEngine(statepersist.NewMemoryEngine()),
			statepersist.WithBeforeSerialize(func(any, statepersist.StorageKey) (any, error) { return nil, cause }),
		),
		counterSlice(),
	)

	// act
	err := s.Dispatch(context.Background(), increment{})

	// assert
	assert.ErrorIs(t, err, statepersist.ErrHookFailed)
	assert.ErrorIs(t, err, cause)
}

func Test_Plugin_DotPathKeys(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	first := givenStore(t, givenPlugin(t, givenRegistry(t, "settings.theme"), statepersist.WithEngine(engine)), settingsSlice())

	// act
	require.NoError(t, first.Dispatch(ctx, setTheme{Theme: "dark"}))
	second := givenStore(t, givenPlugin(t, givenRegistry(t, "settings.theme"), statepersist.WithEngine(engine)), settingsSlice())

	// assert
	assert.Equal(t, `"dark"`, storedValue(t, engine, "settings.theme"))
	assert.Equal(t, map[string]any{"theme": "dark", "lang": "en"}, selectSlice(t, second, "settings"))
}

func Test_Plugin_LazyFeature_EnumeratedKeys(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	require.NoError(t, engine.SetItem(ctx, "todos", `["write tests"]`))
	registry := givenRegistry(t, "counter")
	s := givenStore(t, givenPlugin(t, registry, statepersist.WithEngine(engine)), counterSlice())
	require.NoError(t, engine.SetItem(ctx, "counter", `{"count":42}`))

	// act
	err := s.AddFeature(ctx, []store.Slice{todosSlice()}, statepersist.WithStorageFeatureStates(registry, todosSlice()))
	require.NoError(t, err)
	require.NoError(t, s.Dispatch(ctx, addTodo{Todo: "ship it"}))

	// assert
	assert.Equal(t, []statepersist.StorageKey{"counter", "todos"}, registry.Keys())
	assert.Equal(t, map[string]any{"count": 0}, selectSlice(t, s, "counter"))
	assert.Equal(t, []any{"write tests", "ship it"}, selectSlice(t, s, "todos"))
	assert.Equal(t, `["write tests","ship it"]`, storedValue(t, engine, "todos"))
}

func Test_Plugin_AllKeys_KeepsPersistedSlicesOfFeaturesNotYetAdded(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	require.NoError(t, engine.SetItem(ctx, statepersist.DefaultStateKey, `{"counter":{"count":5},"todos":["a"]}`))
	s := givenStore(t, givenPlugin(t, givenRegistry(t), statepersist.WithEngine(engine)), counterSlice())

	// act
	require.NoError(t, s.Dispatch(ctx, increment{}))
	err := s.AddFeature(ctx, []store.Slice{todosSlice()})

	// assert
	require.NoError(t, err)
	assert.JSONEq(t, `{"counter":{"count":6},"todos":["a"]}`, storedValue(t, engine, statepersist.DefaultStateKey).(string))
	assert.Equal(t, []any{"a"}, selectSlice(t, s, "todos"))
}

func Test_Plugin_LazyFeature_AllKeys_MergesOnlyAddedSlices(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	require.NoError(t, engine.SetItem(ctx, statepersist.DefaultStateKey, `{"counter":{"count":5}}`))
	s := givenStore(t, givenPlugin(t, givenRegistry(t), statepersist.WithEngine(engine)), counterSlice())
	require.NoError(t, engine.SetItem(ctx, statepersist.DefaultStateKey, `{"counter":{"count":99},"todos":["a"]}`))

	// act
	err := s.AddFeature(ctx, []store.Slice{todosSlice()})

	// assert
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"count": 5.0}, selectSlice(t, s, "counter"))
	assert.Equal(t, []any{"a"}, selectSlice(t, s, "todos"))
}

func Test_Plugin_FreezesRegistryAfterFirstPersistedTransition(t *testing.T) {
	// setup
	ctx := context.Background()
	registry := givenRegistry(t, "counter")
	s := givenStore(t, givenPlugin(t, registry, statepersist.WithEngine(statepersist.NewMemoryEngine())), counterSlice())
	require.False(t, registry.Frozen())

	// act
	require.NoError(t, s.Dispatch(ctx, increment{}))
	err := registry.AddKeys("todos")

	// assert
	assert.True(t, registry.Frozen())
	assert.ErrorIs(t, err, statepersist.ErrRegistryFrozen)
	assert.False(t, registry.Has("todos"))
}

func Test_Plugin_LazyFeature_When_AddedAfterFirstTransition_IsSeededAndPersisted(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	require.NoError(t, engine.SetItem(ctx, "todos", `["write tests"]`))
	registry := givenRegistry(t, "counter")
	s := givenStore(t, givenPlugin(t, registry, statepersist.WithEngine(engine)), counterSlice())

	// arrange
	require.NoError(t, s.Dispatch(ctx, increment{}))
	require.True(t, registry.Frozen())

	// act
	err := s.AddFeature(ctx, []store.Slice{todosSlice()}, statepersist.WithStorageFeature(registry, "todos"))
	require.NoError(t, err)
	require.NoError(t, s.Dispatch(ctx, addTodo{Todo: "ship it"}))

	// assert
	assert.True(t, registry.Has("todos"))
	assert.Equal(t, []any{"write tests", "ship it"}, selectSlice(t, s, "todos"))
	assert.Equal(t, `["write tests","ship it"]`, storedValue(t, engine, "todos"))
}

func Test_Plugin_LazyFeature_When_AddedAfterFirstTransitionWithoutStoredValue_KeepsDefaults(t *testing.T) {
	// setup
	ctx := context.Background()
	registry := givenRegistry(t, "counter")
	s := givenStore(t, givenPlugin(t, registry, statepersist.WithEngine(statepersist.NewMemoryEngine())), counterSlice())
	require.NoError(t, s.Dispatch(ctx, increment{}))

	// act
	err := s.AddFeature(ctx, []store.Slice{todosSlice()}, statepersist.WithStorageFeature(registry, "todos"))

	// assert
	require.NoError(t, err)
	assert.Empty(t, selectSlice(t, s, "todos"))
	assert.True(t, registry.Has("todos"))
}

func Test_Plugin_Purge_RemovesOnlyOwnAddresses(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	require.NoError(t, engine.SetItem(ctx, "other:counter", `{"count":1}`))
	plugin := givenPlugin(t, givenRegistry(t, "counter", "names"),
		statepersist.WithEngine(engine),
		statepersist.WithNamespace("app"),
	)
	s := givenStore(t, plugin, counterSlice(), namesSlice())
	require.NoError(t, s.Dispatch(ctx, increment{}))

	// act
	err := plugin.Purge(ctx)

	// assert
	require.NoError(t, err)
	keys, keysErr := engine.Keys(ctx)
	require.NoError(t, keysErr)
	assert.Equal(t, []string{"other:counter"}, keys)
}

func Test_Plugin_Purge_FailurePropagates(t *testing.T) {
	// setup
	engine := helper.NewFailingEngine()
	engine.FailRemove = true
	plugin := givenPlugin(t, givenRegistry(t, "counter"), statepersist.WithEngine(engine))

	// act
	err := plugin.Purge(context.Background())

	// assert
	assert.ErrorIs(t, err, statepersist.ErrRemovingStateFailed)
	assert.ErrorIs(t, err, helper.ErrEngineFailure)
}

func Test_Plugin_Observability(t *testing.T) {
	// setup
	ctx := context.Background()
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	tracingSpy := helper.NewTracingCollectorSpy(true)
	loggerSpy := helper.NewContextualLoggerSpy(true)
	s := givenStore(t,
		givenPlugin(t, givenRegistry(t, "counter"),
			statepersist.WithEngine(statepersist.NewMemoryEngine()),
			statepersist.WithNamespace("app"),
			statepersist.WithMetrics(metricsSpy),
			statepersist.WithTracing(tracingSpy),
			statepersist.WithContextualLogger(loggerSpy),
		),
		counterSlice(),
	)

	// act
	require.NoError(t, s.Dispatch(ctx, increment{}))

	// assert
	assert.True(t, metricsSpy.HasDurationRecordForMetric("statepersist_hydrate_duration_seconds").
		WithOperation("hydrate").WithStatus("success").WithContext().Assert())
	assert.True(t, metricsSpy.HasDurationRecordForMetric("statepersist_persist_duration_seconds").
		WithOperation("persist").WithStatus("success").Assert())
	assert.True(t, metricsSpy.HasCounterRecordForMetric("statepersist_writes_total").WithLabel("key", "app:counter").Assert())

	hydrateSpans := tracingSpy.GetSpansByName("statepersist.hydrate")
	require.Len(t, hydrateSpans, 1)
	assert.Equal(t, "app", hydrateSpans[0].StartAttributes["namespace"])

	persistSpans := tracingSpy.GetSpansByName("statepersist.persist")
	require.Len(t, persistSpans, 1)
	assert.True(t, persistSpans[0].Finished)
	assert.Equal(t, "success", persistSpans[0].Status)
	assert.Equal(t, "1", persistSpans[0].EndAttributes["writes"])
	assert.Equal(t, "success", persistSpans[0].SpanContext.GetStatus())

	assert.True(t, loggerSpy.HasMessage("info", "statepersist: state persisted"))
}

func Test_Plugin_Observability_OnWriteFailure(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := helper.NewFailingEngine()
	metricsSpy := helper.NewMetricsCollectorSpy(true)
	tracingSpy := helper.NewTracingCollectorSpy(true)
	logSpy := helper.NewLogHandlerSpy(false)
	s := givenStore(t,
		givenPlugin(t, givenRegistry(t, "counter"),
			statepersist.WithEngine(engine),
			statepersist.WithMetrics(metricsSpy),
			statepersist.WithTracing(tracingSpy),
			statepersist.WithLogger(logSpy.Logger()),
		),
		counterSlice(),
	)
	engine.FailSet = true

	// act
	err := s.Dispatch(ctx, increment{})

	// assert
	require.Error(t, err)
	assert.True(t, metricsSpy.HasDurationRecordForMetric("statepersist_persist_duration_seconds").
		WithStatus("error").Assert())
	persistSpans := tracingSpy.GetSpansByName("statepersist.persist")
	require.Len(t, persistSpans, 1)
	assert.Equal(t, "error", persistSpans[0].Status)
	assert.Equal(t, "write_error", persistSpans[0].EndAttributes["error_type"])
	assert.True(t, logSpy.HasErrorLogWithMessage("statepersist: operation failed").WithAttr("operation", "persist").Assert())
}

func Test_NewPlugin_Validation(t *testing.T) {
	tests := []struct {
		name        string
		registry    *statepersist.Registry
		options     []statepersist.Option
		expectedErr error
	}{
		{name: "nil_registry", registry: nil, expectedErr: statepersist.ErrNilRegistry},
		{name: "nil_engine", registry: givenRegistry(t), options: []statepersist.Option{statepersist.WithEngine(nil)}, expectedErr: statepersist.ErrNilStorageEngine},
		{name: "nil_serializer", registry: givenRegistry(t), options: []statepersist.Option{statepersist.WithSerializer(nil)}, expectedErr: statepersist.ErrNilSerializer},
		{name: "empty_default_key", registry: givenRegistry(t), options: []statepersist.Option{statepersist.WithDefaultKey(" ")}, expectedErr: statepersist.ErrEmptyStorageKey},
		{name: "invalid_migration", registry: givenRegistry(t), options: []statepersist.Option{statepersist.WithMigrations(statepersist.MigrationDescriptor{Version: 1})}, expectedErr: statepersist.ErrInvalidMigration},
		{name: "unknown_storage", registry: givenRegistry(t), options: []statepersist.Option{statepersist.WithStorage(statepersist.StorageOption(9), "")}, expectedErr: statepersist.ErrUnknownStorageOption},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			// act
			_, err := statepersist.NewPlugin(tc.registry, tc.options...)

			// assert
			assert.ErrorIs(t, err, tc.expectedErr)
		})
	}
}

func Test_NewPlugin_BuildsSelectedEngine(t *testing.T) {
	// act
	session := givenPlugin(t, givenRegistry(t), statepersist.WithStorage(statepersist.StorageOptionSession, ""))
	local := givenPlugin(t, givenRegistry(t), statepersist.WithStorage(statepersist.StorageOptionLocal, t.TempDir()))

	// assert
	assert.IsType(t, &statepersist.MemoryEngine{}, session.Engine())
	assert.IsType(t, &statepersist.FileEngine{}, local.Engine())
}

func Test_Plugin_CustomDefaultKey(t *testing.T) {
	// setup
	ctx := context.Background()
	engine := statepersist.NewMemoryEngine()
	s := givenStore(t,
		givenPlugin(t, givenRegistry(t), statepersist.WithEngine(engine), statepersist.WithDefaultKey("APP_STATE")),
		counterSlice(),
	)

	// act
	require.NoError(t, s.Dispatch(ctx, increment{}))

	// assert
	assert.Equal(t, `{"counter":{"count":1}}`, storedValue(t, engine, "APP_STATE"))
}
