package statepersist

import (
	"log/slog"
	"strings"
	"sync"
)

const (
	logMsgAllKeysConflict = "the storage plugin is persisting all states because keys was set to \"*\" at the root level, " +
		"specify the root keys explicitly to allow adding keys at the feature level"
	logMsgRegistryFrozen = "keys were added after the first state transition was persisted"
	logAttrKeys          = "keys"
)

// Registry is the keys manager: it tracks which state keys are persisted.
//
// Lifecycle: created once at root configuration, mutated while features initialize,
// frozen once the plugin persisted its first transition. A frozen registry only accepts keys
// from feature initializers (WithStorageFeature), so features loaded late still persist.
// A root configuration of AllKeys owns the whole tree, so feature-level additions are rejected as a no-op.
type Registry struct {
	mu              sync.RWMutex
	keys            []StorageKey
	index           map[StorageKey]struct{}
	allKeys         bool
	frozen          bool
	developmentMode bool
	logger          Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithDevelopmentMode enables developer diagnostics, e.g. when feature keys conflict with AllKeys.
func WithDevelopmentMode(enabled bool) RegistryOption {
	return func(r *Registry) {
		r.developmentMode = enabled
	}
}

// WithRegistryLogger sets the logger for developer diagnostics. Defaults to slog.Default().
func WithRegistryLogger(logger Logger) RegistryOption {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewRegistry creates the keys registry from the root configuration.
// No root keys, or any AllKeys among them, puts the registry into all-keys mode.
func NewRegistry(rootKeys []StorageKey, options ...RegistryOption) (*Registry, error) {
	r := &Registry{
		keys:   make([]StorageKey, 0, len(rootKeys)),
		index:  make(map[StorageKey]struct{}, len(rootKeys)),
		logger: slog.Default(),
	}

	for _, option := range options {
		option(r)
	}

	if len(rootKeys) == 0 {
		r.allKeys = true
		return r, nil
	}

	for _, key := range rootKeys {
		if key.IsAll() {
			r.allKeys = true
			r.keys = r.keys[:0]
			r.index = make(map[StorageKey]struct{})

			return r, nil
		}

		if err := r.add(key); err != nil {
			return nil, err
		}
	}

	return r, nil
}

// AddKeys merges feature-level keys into the registry. Adding a present key is a no-op.
//
// Under all-keys mode the call is a no-op; in development mode it logs a diagnostic.
// After the registry was frozen it returns ErrRegistryFrozen; use WithStorageFeature for late features.
func (r *Registry) AddKeys(keys ...StorageKey) error {
	return r.addKeys(keys, false)
}

// addFeatureKeys is AddKeys for feature initializers, which may run after the registry was frozen.
func (r *Registry) addFeatureKeys(keys ...StorageKey) error {
	return r.addKeys(keys, true)
}

func (r *Registry) addKeys(keys []StorageKey, featureInit bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.allKeys {
		if r.developmentMode {
			r.logger.Error(logMsgAllKeysConflict, logAttrKeys, joinKeys(keys))
		}

		return nil
	}

	if r.frozen && !featureInit {
		if r.developmentMode {
			r.logger.Error(logMsgRegistryFrozen, logAttrKeys, joinKeys(keys))
		}

		return ErrRegistryFrozen
	}

	for _, key := range keys {
		if key.IsAll() {
			// AllKeys is a root-level decision only.
			if r.developmentMode {
				r.logger.Error(logMsgAllKeysConflict, logAttrKeys, joinKeys(keys))
			}

			continue
		}

		if err := r.add(key); err != nil {
			return err
		}
	}

	return nil
}

// PersistsAllKeys reports whether the root configuration persists the whole tree.
func (r *Registry) PersistsAllKeys() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.allKeys
}

// Keys returns the registered keys in first-seen order.
// In all-keys mode it returns a single AllKeys entry.
func (r *Registry) Keys() []StorageKey {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.allKeys {
		return []StorageKey{AllKeys}
	}

	keys := make([]StorageKey, len(r.keys))
	copy(keys, r.keys)

	return keys
}

// Has reports whether key is registered. In all-keys mode every key is covered.
func (r *Registry) Has(key StorageKey) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.allKeys {
		return true
	}

	_, ok := r.index[key]

	return ok
}

// Freeze makes the registry read-only. Calling it more than once is harmless.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.frozen = true
}

// Frozen reports whether the registry was frozen.
func (r *Registry) Frozen() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.frozen
}

// add must be called with the lock held or during construction.
func (r *Registry) add(key StorageKey) error {
	key = StorageKey(strings.TrimSpace(string(key)))
	if key == "" {
		return ErrEmptyStorageKey
	}

	if _, exists := r.index[key]; exists {
		return nil
	}

	r.index[key] = struct{}{}
	r.keys = append(r.keys, key)

	return nil
}

func joinKeys(keys []StorageKey) string {
	parts := make([]string, len(keys))
	for i, key := range keys {
		parts[i] = string(key)
	}

	return strings.Join(parts, ",")
}
