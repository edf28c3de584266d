// Package statepersist persists the state of a store across process restarts.
//
// The Plugin intercepts every transition of a store.Store. After each committed transition it
// writes a configurable subset of the state tree to a pluggable StorageEngine; when the store
// initializes, or a feature adds slices lazily, it reads the persisted values back, migrates
// them forward and merges them into the default state.
//
// Key features:
//   - Persist the whole tree as one blob (AllKeys) or an enumerated set of slices
//   - Feature-level key registration through a shared Registry
//   - Version-aware migration chains, scoped to one slice or the whole blob
//   - Pluggable serializers and BeforeSerialize / AfterDeserialize hooks
//   - Built-in session (MemoryEngine) and local (FileEngine) engines, plus postgresengine and consulengine
//   - Namespaced storage addresses ("<namespace>:<key>")
//
// Persisted layout:
//
//	AllKeys:     "<namespace>:@@STATE" -> {"counter": {...}, "names": [...]}
//	enumerated:  "<namespace>:counter" -> {...}, "<namespace>:names" -> [...]
//
// Usage example:
//
//	registry, _ := statepersist.NewRegistry([]statepersist.StorageKey{"counter"})
//	plugin, _ := statepersist.NewPlugin(
//		registry,
//		statepersist.WithStorage(statepersist.StorageOptionLocal, "/var/lib/app"),
//		statepersist.WithNamespace("my_app"),
//		statepersist.WithMigrations(statepersist.MigrationDescriptor{
//			Version: 1,
//			Key:     "counter",
//			Migrate: migrateCounterV1,
//		}),
//	)
//
//	s, _ := store.New(ctx, store.WithSlices(counter), store.WithPlugins(plugin))
//	_ = s.Dispatch(ctx, Increment{})
package statepersist
