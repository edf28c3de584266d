package statepersist

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"strconv"
)

// MigrateFunc transforms a persisted blob from one schema version to the next.
// It is expected to bump the value at the descriptor's VersionKey itself.
type MigrateFunc func(state any) (any, error)

// MigrationDescriptor is one step of a migration chain.
//
// Version is the schema version the step upgrades from. Key scopes the step to one slice,
// an empty Key applies it to the global blob persisted under AllKeys. VersionKey is a dot path
// into the blob, DefaultVersionKey when empty.
type MigrationDescriptor struct {
	Version    int
	Key        StorageKey
	VersionKey string
	Migrate    MigrateFunc
}

// Validate ensures the descriptor can be applied.
func (m MigrationDescriptor) Validate() error {
	if m.Migrate == nil {
		return ErrInvalidMigration
	}

	return nil
}

func (m MigrationDescriptor) versionKey() string {
	if m.VersionKey == "" {
		return DefaultVersionKey
	}

	return m.VersionKey
}

// matchesScope reports whether the step belongs to the blob addressed by scope.
// An empty scope, AllKeys and DefaultStateKey all address the global blob.
func (m MigrationDescriptor) matchesScope(scope StorageKey) bool {
	if isGlobalScope(scope) {
		return m.Key == "" || isGlobalScope(m.Key)
	}

	return m.Key == scope
}

func isGlobalScope(scope StorageKey) bool {
	return scope == "" || scope == AllKeys || scope == DefaultStateKey
}

// ApplyMigrations runs the steps of chain that match scope against blob, in ascending version order.
//
// The current version of the blob is read once per step at the step's VersionKey, from the blob as it was
// passed in (missing means 0). Every step whose Version is at least that current version is applied and
// its result replaces the blob. A failing step aborts the chain with ErrMigrationFailed.
func ApplyMigrations(chain []MigrationDescriptor, blob any, scope StorageKey) (any, error) {
	migrated, _, err := applyMigrations(chain, blob, scope)

	return migrated, err
}

func applyMigrations(chain []MigrationDescriptor, blob any, scope StorageKey) (any, bool, error) {
	steps := make([]MigrationDescriptor, 0, len(chain))
	for _, step := range chain {
		if step.matchesScope(scope) {
			steps = append(steps, step)
		}
	}

	if len(steps) == 0 {
		return blob, false, nil
	}

	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Version < steps[j].Version
	})

	original := blob
	applied := false

	for _, step := range steps {
		if err := step.Validate(); err != nil {
			return nil, applied, err
		}

		current, err := currentVersion(original, step.versionKey())
		if err != nil {
			return nil, applied, errors.Join(ErrMigrationFailed, err)
		}

		if step.Version < current {
			continue
		}

		next, migrateErr := step.Migrate(blob)
		if migrateErr != nil {
			return nil, applied, errors.Join(
				ErrMigrationFailed,
				fmt.Errorf("version %d of %q: %w", step.Version, scopeName(scope), migrateErr),
			)
		}

		blob = next
		applied = true
	}

	return blob, applied, nil
}

// currentVersion reads the version at versionKey. Missing or null values count as version 0.
func currentVersion(blob any, versionKey string) (int, error) {
	raw, err := searchPath(blob, versionKey)
	if err != nil {
		return 0, fmt.Errorf("reading version at %q: %w", versionKey, err)
	}

	switch v := raw.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case float32:
		return int(math.Floor(float64(v))), nil
	case float64:
		return int(math.Floor(v)), nil
	case json.Number:
		f, parseErr := v.Float64()
		if parseErr != nil {
			return 0, fmt.Errorf("version at %q is not numeric: %w", versionKey, parseErr)
		}
		return int(math.Floor(f)), nil
	case string:
		n, parseErr := strconv.Atoi(v)
		if parseErr != nil {
			return 0, fmt.Errorf("version at %q is not numeric: %w", versionKey, parseErr)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("version at %q has unsupported type %T", versionKey, raw)
	}
}

func scopeName(scope StorageKey) string {
	if isGlobalScope(scope) {
		return DefaultStateKey
	}

	return string(scope)
}
