package statepersist

import (
	"context"

	"github.com/AntonStoeckl/persistent-state-go/store"
)

// WithStorageFeature registers the keys of a lazily loaded feature before its slices are added:
//
//	err := s.AddFeature(ctx, []store.Slice{todos}, statepersist.WithStorageFeature(registry, "todos"))
//
// Under AllKeys the keys are ignored, the whole tree is persisted anyway.
// Features may be added after the first transition was persisted; the frozen registry accepts their keys.
func WithStorageFeature(registry *Registry, keys ...StorageKey) store.FeatureInitializer {
	return func(_ context.Context) error {
		if registry == nil {
			return ErrNilRegistry
		}

		return registry.addFeatureKeys(keys...)
	}
}

// WithStorageFeatureStates is WithStorageFeature for state identifiers such as store.Slice.
func WithStorageFeatureStates(registry *Registry, identifiers ...StateIdentifier) store.FeatureInitializer {
	return func(ctx context.Context) error {
		keys, err := KeysOf(identifiers...)
		if err != nil {
			return err
		}

		return WithStorageFeature(registry, keys...)(ctx)
	}
}
