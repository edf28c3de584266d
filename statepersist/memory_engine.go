package statepersist

import (
	"context"
	"sync"

	"github.com/google/btree"
)

const memoryEngineDegree = 8

// MemoryEngine is the session storage engine. State lives as long as the process does.
// Values are kept as they are handed in, so any Serializer output can be stored.
type MemoryEngine struct {
	mu     sync.RWMutex
	values map[string]any
	keys   *btree.BTreeG[string]
}

// NewMemoryEngine creates an empty MemoryEngine.
func NewMemoryEngine() *MemoryEngine {
	return &MemoryEngine{
		values: make(map[string]any),
		keys:   btree.NewOrderedG[string](memoryEngineDegree),
	}
}

// GetItem implements StorageEngine.
func (m *MemoryEngine) GetItem(_ context.Context, key string) (any, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	value, found := m.values[key]

	return value, found, nil
}

// SetItem implements StorageEngine.
func (m *MemoryEngine) SetItem(_ context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values[key] = value
	m.keys.ReplaceOrInsert(key)

	return nil
}

// RemoveItem implements StorageEngine. Removing a missing key is not an error.
func (m *MemoryEngine) RemoveItem(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.values, key)
	m.keys.Delete(key)

	return nil
}

// Clear implements StorageEngine.
func (m *MemoryEngine) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.values = make(map[string]any)
	m.keys.Clear(false)

	return nil
}

// Length implements StorageEngine.
func (m *MemoryEngine) Length(_ context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.keys.Len(), nil
}

// Keys returns all stored keys in ascending order.
func (m *MemoryEngine) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	keys := make([]string, 0, m.keys.Len())
	m.keys.Ascend(func(key string) bool {
		keys = append(keys, key)
		return true
	})

	return keys, nil
}
