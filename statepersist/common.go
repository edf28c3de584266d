package statepersist

import (
	"errors"
)

const (
	// DefaultStateKey is the storage key the whole state tree is persisted under when all keys are persisted.
	DefaultStateKey = "@@STATE"

	// AllKeys is the sentinel meaning "persist the entire state tree as one blob".
	AllKeys StorageKey = "*"

	// DefaultVersionKey is the dot path a migration reads the current schema version from.
	DefaultVersionKey = "version"

	namespaceSeparator = ":"
)

var (
	// ErrEmptyStorageKey is returned when an empty key is supplied for registration or addressing.
	ErrEmptyStorageKey = errors.New("storage key must not be empty")

	// ErrNilStateIdentifier is returned when KeyOf is called with a nil identifier.
	ErrNilStateIdentifier = errors.New("state identifier must not be nil")

	// ErrRegistryFrozen is returned when keys are added after the first transition was persisted.
	ErrRegistryFrozen = errors.New("keys registry is frozen, keys must be added during initialization")

	// ErrNilRegistry is returned when a plugin is built without a keys registry.
	ErrNilRegistry = errors.New("keys registry must not be nil")

	// ErrNilStorageEngine is returned when a nil storage engine is supplied.
	ErrNilStorageEngine = errors.New("storage engine must not be nil")

	// ErrNilSerializer is returned when a nil serializer is supplied.
	ErrNilSerializer = errors.New("serializer must not be nil")

	// ErrUnknownStorageOption is returned for a storage option that no built-in engine serves.
	ErrUnknownStorageOption = errors.New("unknown storage option")

	// ErrUnsupportedValue is returned by engines that can only hold string or []byte values.
	ErrUnsupportedValue = errors.New("storage engine can only store string or []byte values")

	// ErrInvalidMigration is returned when a migration descriptor is missing its migrate function.
	ErrInvalidMigration = errors.New("migration must have a migrate function")

	// ErrMigrationFailed is returned when a migration step fails; it is joined with the step's error.
	ErrMigrationFailed = errors.New("migration failed")

	// ErrSerializingStateFailed is returned when a slice could not be serialized on the write path.
	ErrSerializingStateFailed = errors.New("serializing state failed")

	// ErrDeserializingStateFailed is returned by serializers when a stored value could not be parsed.
	ErrDeserializingStateFailed = errors.New("deserializing state failed")

	// ErrWritingStateFailed is returned when the storage engine rejected a write.
	ErrWritingStateFailed = errors.New("writing state to storage failed")

	// ErrReadingStateFailed is returned when the storage engine failed to read a value.
	ErrReadingStateFailed = errors.New("reading state from storage failed")

	// ErrRemovingStateFailed is returned when the storage engine failed to remove a value.
	ErrRemovingStateFailed = errors.New("removing state from storage failed")

	// ErrHookFailed is returned when a BeforeSerialize or AfterDeserialize hook fails.
	ErrHookFailed = errors.New("serialization hook failed")

	// ErrInvalidConfig is returned when a declarative configuration could not be decoded.
	ErrInvalidConfig = errors.New("invalid storage plugin configuration")
)
