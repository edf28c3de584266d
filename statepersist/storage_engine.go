package statepersist

import (
	"context"
	"fmt"
	"strings"
)

// StorageEngine is the synchronous key/value backend the plugin persists into.
// Any backend with this shape is pluggable: the built-in MemoryEngine and FileEngine,
// postgresengine, consulengine, or user-supplied engines.
//
// GetItem reports found=false for keys that were never written or were removed.
// Values are whatever the configured Serializer produces; the default JSON serializer produces strings.
type StorageEngine interface {
	GetItem(ctx context.Context, key string) (value any, found bool, err error)
	SetItem(ctx context.Context, key string, value any) error
	RemoveItem(ctx context.Context, key string) error
	Clear(ctx context.Context) error
	Length(ctx context.Context) (int, error)
}

// StorageOption selects one of the built-in engines.
type StorageOption int

const (
	// StorageOptionLocal persists across process restarts in files. It is the default.
	StorageOptionLocal StorageOption = iota

	// StorageOptionSession keeps state for the lifetime of the process only.
	StorageOptionSession
)

// String provides a string representation of StorageOption for logging and configuration.
func (o StorageOption) String() string {
	switch o {
	case StorageOptionLocal:
		return "local"
	case StorageOptionSession:
		return "session"
	default:
		return "unknown"
	}
}

// ParseStorageOption parses "local", "session" or "default" (case-insensitive).
func ParseStorageOption(s string) (StorageOption, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "default", "local":
		return StorageOptionLocal, nil
	case "session":
		return StorageOptionSession, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStorageOption, s)
	}
}

// NewStorageEngine builds the built-in engine selected by option.
// The local engine writes below dir, the session engine ignores it.
func NewStorageEngine(option StorageOption, dir string) (StorageEngine, error) {
	switch option {
	case StorageOptionLocal:
		return NewFileEngine(dir)
	case StorageOptionSession:
		return NewMemoryEngine(), nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownStorageOption, option)
	}
}

// stringOrBytes converts a stored value into bytes for engines that only hold text.
func stringOrBytes(value any) ([]byte, error) {
	switch v := value.(type) {
	case string:
		return []byte(v), nil
	case []byte:
		out := make([]byte, len(v))
		copy(out, v)
		return out, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrUnsupportedValue, value)
	}
}
