package statepersist

import (
	"errors"
	"fmt"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// undefinedValue is what gets stored when an undefined value is written as a string.
// It is treated as absent, like nil and the empty string.
const undefinedValue = "undefined"

// Serializer converts a state slice into the value handed to the storage engine and back.
type Serializer interface {
	Serialize(value any) (any, error)
	Deserialize(stored any) (any, error)
}

// BeforeSerializeFunc transforms a value right before it is serialized.
// In all-keys mode value is the full snapshot and key is AllKeys.
type BeforeSerializeFunc func(value any, key StorageKey) (any, error)

// AfterDeserializeFunc transforms a slice after it was parsed and migrated,
// e.g. to rebuild concrete types from plain maps. In all-keys mode key is AllKeys.
type AfterDeserializeFunc func(value any, key StorageKey) (any, error)

// JSONSerializer is the default Serializer. It encodes to a JSON string and decodes
// strings or byte slices into map[string]any, []any or scalars.
type JSONSerializer struct {
	api jsoniter.API
}

// NewJSONSerializer creates a JSONSerializer compatible with encoding/json.
func NewJSONSerializer() JSONSerializer {
	return JSONSerializer{api: jsoniter.ConfigCompatibleWithStandardLibrary}
}

// Serialize encodes value as a JSON string.
func (s JSONSerializer) Serialize(value any) (any, error) {
	encoded, err := s.jsonAPI().MarshalToString(value)
	if err != nil {
		return nil, err
	}

	return encoded, nil
}

// Deserialize decodes a JSON string or byte slice.
func (s JSONSerializer) Deserialize(stored any) (any, error) {
	var raw []byte

	switch v := stored.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return nil, fmt.Errorf("%w: json serializer cannot decode %T", ErrDeserializingStateFailed, stored)
	}

	var decoded any
	if err := s.jsonAPI().Unmarshal(raw, &decoded); err != nil {
		return nil, errors.Join(ErrDeserializingStateFailed, err)
	}

	return decoded, nil
}

func (s JSONSerializer) jsonAPI() jsoniter.API {
	if s.api == nil {
		return jsoniter.ConfigCompatibleWithStandardLibrary
	}

	return s.api
}

// SerializerFuncs adapts a pair of functions to the Serializer interface.
// A nil function passes values through unchanged.
type SerializerFuncs struct {
	SerializeFunc   func(value any) (any, error)
	DeserializeFunc func(stored any) (any, error)
}

// Serialize implements Serializer.
func (f SerializerFuncs) Serialize(value any) (any, error) {
	if f.SerializeFunc == nil {
		return value, nil
	}

	return f.SerializeFunc(value)
}

// Deserialize implements Serializer.
func (f SerializerFuncs) Deserialize(stored any) (any, error) {
	if f.DeserializeFunc == nil {
		return stored, nil
	}

	return f.DeserializeFunc(stored)
}

// IdentitySerializer hands values to the storage engine unchanged.
func IdentitySerializer() Serializer {
	return SerializerFuncs{}
}

// isAbsent reports whether a raw stored value means "nothing persisted".
func isAbsent(raw any) bool {
	switch v := raw.(type) {
	case nil:
		return true
	case string:
		trimmed := strings.TrimSpace(v)
		return trimmed == "" || trimmed == undefinedValue
	case []byte:
		trimmed := strings.TrimSpace(string(v))
		return trimmed == "" || trimmed == undefinedValue
	default:
		return false
	}
}
