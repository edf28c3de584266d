package statepersist_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/AntonStoeckl/persistent-state-go/statepersist"
	"github.com/AntonStoeckl/persistent-state-go/store"
)

type increment struct{}

func (increment) Type() string { return "increment" }

type addName struct{ Name string }

func (addName) Type() string { return "add_name" }

type noop struct{}

func (noop) Type() string { return "noop" }

type setTheme struct{ Theme string }

func (setTheme) Type() string { return "set_theme" }

type addTodo struct{ Todo string }

func (addTodo) Type() string { return "add_todo" }

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case float64:
		return int(n)
	default:
		return 0
	}
}

func counterSlice() store.Slice {
	return store.Slice{
		Name:     "counter",
		Defaults: map[string]any{"count": 0},
		Handlers: map[string]store.Reducer{
			"increment": func(state any, _ store.Action) (any, error) {
				current, _ := state.(map[string]any)
				next := make(map[string]any, len(current))
				for k, v := range current {
					next[k] = v
				}
				next["count"] = toInt(current["count"]) + 1

				return next, nil
			},
		},
	}
}

func namesSlice() store.Slice {
	return store.Slice{
		Name:     "names",
		Defaults: []any{},
		Handlers: map[string]store.Reducer{
			"add_name": func(state any, action store.Action) (any, error) {
				current, _ := state.([]any)
				next := append(append([]any{}, current...), action.(addName).Name)

				return next, nil
			},
		},
	}
}

func settingsSlice() store.Slice {
	return store.Slice{
		Name:     "settings",
		Defaults: map[string]any{"theme": "light", "lang": "en"},
		Handlers: map[string]store.Reducer{
			"set_theme": func(state any, action store.Action) (any, error) {
				current, _ := state.(map[string]any)
				next := map[string]any{"theme": action.(setTheme).Theme, "lang": current["lang"]}

				return next, nil
			},
		},
	}
}

func todosSlice() store.Slice {
	return store.Slice{
		Name:     "todos",
		Defaults: []any{},
		Handlers: map[string]store.Reducer{
			"add_todo": func(state any, action store.Action) (any, error) {
				current, _ := state.([]any)

				return append(append([]any{}, current...), action.(addTodo).Todo), nil
			},
		},
	}
}

func givenRegistry(t *testing.T, keys ...statepersist.StorageKey) *statepersist.Registry {
	t.Helper()

	registry, err := statepersist.NewRegistry(keys)
	require.NoError(t, err)

	return registry
}

func givenPlugin(t *testing.T, registry *statepersist.Registry, options ...statepersist.Option) *statepersist.Plugin {
	t.Helper()

	plugin, err := statepersist.NewPlugin(registry, options...)
	require.NoError(t, err)

	return plugin
}

func givenStore(t *testing.T, plugin store.Plugin, slices ...store.Slice) *store.Store {
	t.Helper()

	s, err := store.New(context.Background(), store.WithSlices(slices...), store.WithPlugins(plugin))
	require.NoError(t, err)

	return s
}

func selectSlice(t *testing.T, s *store.Store, name string) any {
	t.Helper()

	value, ok := s.Select(name)
	require.True(t, ok, "slice %q not found", name)

	return value
}

func storedValue(t *testing.T, engine statepersist.StorageEngine, key string) any {
	t.Helper()

	value, found, err := engine.GetItem(context.Background(), key)
	require.NoError(t, err)
	require.True(t, found, "key %q not stored", key)

	return value
}
