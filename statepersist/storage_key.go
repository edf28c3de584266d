package statepersist

import (
	"strings"
)

// StorageKey names a top-level state slice, a nested slice as a dot path ("settings.theme"),
// or the AllKeys sentinel.
type StorageKey string

// StateIdentifier is implemented by anything that declares a state slice under a name,
// e.g. store.Slice. It is the typed alternative to spelling a key as a string.
type StateIdentifier interface {
	StateName() string
}

// KeyOf normalizes a state identifier into its StorageKey.
// Keys are always resolved at registration time, the registry only ever holds strings.
func KeyOf(identifier StateIdentifier) (StorageKey, error) {
	if identifier == nil {
		return "", ErrNilStateIdentifier
	}

	name := strings.TrimSpace(identifier.StateName())
	if name == "" {
		return "", ErrEmptyStorageKey
	}

	return StorageKey(name), nil
}

// KeysOf normalizes multiple state identifiers, stopping at the first invalid one.
func KeysOf(identifiers ...StateIdentifier) ([]StorageKey, error) {
	keys := make([]StorageKey, 0, len(identifiers))

	for _, identifier := range identifiers {
		key, err := KeyOf(identifier)
		if err != nil {
			return nil, err
		}

		keys = append(keys, key)
	}

	return keys, nil
}

// String implements fmt.Stringer.
func (k StorageKey) String() string {
	return string(k)
}

// IsAll reports whether k is the AllKeys sentinel.
func (k StorageKey) IsAll() bool {
	return k == AllKeys
}

// Path splits a dot path key into its segments.
func (k StorageKey) Path() []string {
	return strings.Split(string(k), ".")
}

// Address builds the storage address for a key: "<namespace>:<key>" or the bare key.
func Address(namespace string, key string) string {
	if namespace == "" {
		return key
	}

	return namespace + namespaceSeparator + key
}
