// Package store is a minimal application-wide reducer store.
//
// State is a tree of named slices. Every dispatch runs through a chain of plugins before the slice
// reducers are applied, and dispatches are serialized, so plugins see exactly one transition at a time.
// Two lifecycle actions exist: InitState when the store is created and UpdateState when a feature adds
// slices lazily via AddFeature.
//
// The store exists to host plugins such as the statepersist persistence plugin.
package store
