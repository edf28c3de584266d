package counter

import (
	"errors"
	"fmt"

	"github.com/AntonStoeckl/persistent-state-go/statepersist"
	"github.com/AntonStoeckl/persistent-state-go/store"
)

const (
	SliceCounter  = "counter"
	SliceNames    = "names"
	SliceSettings = "settings"

	IncrementType = "[Counter] Increment"
	ResetType     = "[Counter] Reset"
	AddNameType   = "[Names] Add"
	SetThemeType  = "[Settings] Set theme"

	CurrentVersion = 1
	defaultTheme   = "light"
)

// ErrInvalidSliceState is returned by reducers that receive state of an unexpected shape.
var ErrInvalidSliceState = errors.New("invalid slice state")

// Increment adds By (or 1 when zero) to the counter.
type Increment struct {
	By int
}

func (Increment) Type() string { return IncrementType }

// Reset sets the counter back to zero.
type Reset struct{}

func (Reset) Type() string { return ResetType }

// AddName appends a name to the names slice. Empty names are ignored.
type AddName struct {
	Name string
}

func (AddName) Type() string { return AddNameType }

// SetTheme changes the theme of the settings slice, addressed by the "settings.theme" dot key.
type SetTheme struct {
	Theme string
}

func (SetTheme) Type() string { return SetThemeType }

// Slices returns the slices of the example application.
func Slices() []store.Slice {
	return []store.Slice{CounterSlice(), NamesSlice(), SettingsSlice()}
}

// CounterSlice counts increments and remembers who incremented last.
func CounterSlice() store.Slice {
	return store.Slice{
		Name:     SliceCounter,
		Defaults: map[string]any{"version": CurrentVersion, "count": 0, "updatedBy": ""},
		Handlers: map[string]store.Reducer{
			IncrementType: func(state any, action store.Action) (any, error) {
				current, ok := state.(map[string]any)
				if !ok {
					return nil, fmt.Errorf("%w: %s is %T", ErrInvalidSliceState, SliceCounter, state)
				}

				by := 1
				if increment, isIncrement := action.(Increment); isIncrement && increment.By != 0 {
					by = increment.By
				}

				next := copyMap(current)
				next["count"] = toInt(current["count"]) + by
				next["updatedBy"] = IncrementType

				return next, nil
			},
			ResetType: func(state any, _ store.Action) (any, error) {
				current, _ := state.(map[string]any)
				next := copyMap(current)
				next["count"] = 0
				next["updatedBy"] = ResetType

				return next, nil
			},
		},
	}
}

// NamesSlice is a list of names.
func NamesSlice() store.Slice {
	return store.Slice{
		Name:     SliceNames,
		Defaults: []any{},
		Handlers: map[string]store.Reducer{
			AddNameType: func(state any, action store.Action) (any, error) {
				names, _ := state.([]any)

				add, ok := action.(AddName)
				if !ok || add.Name == "" {
					return names, nil
				}

				next := make([]any, 0, len(names)+1)
				next = append(next, names...)

				return append(next, add.Name), nil
			},
		},
	}
}

// SettingsSlice holds user settings. Only "settings.theme" is persisted, "settings.session" is not.
func SettingsSlice() store.Slice {
	return store.Slice{
		Name:     SliceSettings,
		Defaults: map[string]any{"theme": defaultTheme, "session": ""},
		Handlers: map[string]store.Reducer{
			SetThemeType: func(state any, action store.Action) (any, error) {
				current, _ := state.(map[string]any)

				set, ok := action.(SetTheme)
				if !ok || set.Theme == "" {
					return current, nil
				}

				next := copyMap(current)
				next["theme"] = set.Theme

				return next, nil
			},
		},
	}
}

// PersistedKeys are the storage keys the demo persists in enumerated mode.
func PersistedKeys() []statepersist.StorageKey {
	return []statepersist.StorageKey{SliceCounter, SliceNames, "settings.theme"}
}

// CounterMigrations upgrades counter blobs written before versioning was introduced.
func CounterMigrations() []statepersist.MigrationDescriptor {
	return []statepersist.MigrationDescriptor{
		{
			Version: 0,
			Key:     SliceCounter,
			Migrate: func(state any) (any, error) {
				old, ok := state.(map[string]any)
				if !ok {
					return map[string]any{"version": CurrentVersion, "count": toInt(state), "updatedBy": "migration"}, nil
				}

				next := copyMap(old)
				next["version"] = CurrentVersion
				next["count"] = toInt(old["count"])
				if _, found := next["updatedBy"]; !found {
					next["updatedBy"] = "migration"
				}

				return next, nil
			},
		},
	}
}

func copyMap(m map[string]any) map[string]any {
	next := make(map[string]any, len(m))
	for k, v := range m {
		next[k] = v
	}

	return next
}

func toInt(v any) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
