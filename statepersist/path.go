package statepersist

import (
	"strings"

	"github.com/jmespath/go-jmespath"
	jsoniter "github.com/json-iterator/go"
)

// searchPath looks up a dot path with JMESPath. Every segment is quoted, so keys containing
// characters that are special to JMESPath are matched literally.
// A missing path yields nil, same as an explicit null.
func searchPath(root any, dotPath string) (any, error) {
	segments := strings.Split(dotPath, ".")
	quoted := make([]string, 0, len(segments))

	for _, segment := range segments {
		encoded, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(segment)
		if err != nil {
			return nil, err
		}

		quoted = append(quoted, encoded)
	}

	return jmespath.Search(strings.Join(quoted, "."), root)
}

// valueAtPath walks nested map[string]any values along path.
func valueAtPath(root map[string]any, path []string) (any, bool) {
	var current any = root

	for _, segment := range path {
		node, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}

		current, ok = node[segment]
		if !ok {
			return nil, false
		}
	}

	return current, true
}

// withValueAtPath returns a copy of root with value set at path.
// Maps along the path are copied shallowly, root itself is never mutated.
func withValueAtPath(root map[string]any, path []string, value any) map[string]any {
	out := make(map[string]any, len(root)+1)
	for k, v := range root {
		out[k] = v
	}

	if len(path) == 1 {
		out[path[0]] = value
		return out
	}

	child, _ := out[path[0]].(map[string]any)
	if child == nil {
		child = map[string]any{}
	}

	out[path[0]] = withValueAtPath(child, path[1:], value)

	return out
}
