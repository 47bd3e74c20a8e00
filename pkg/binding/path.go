package binding

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Path is a contentPath: an ordered list of object keys (strings) and array indices
// (integers).
type Path []any

// ErrInvalidPath is wrapped by every *PathError.
var ErrInvalidPath = errors.New("invalid path")

// PathError names the key at which a lookup stopped.
type PathError struct {
	Key any
}

func (e *PathError) Error() string {
	return fmt.Sprintf("invalid path at key: %v", e.Key)
}

func (e *PathError) Unwrap() error { return ErrInvalidPath }

// ToPath accepts a Path, any slice of keys, or the empty string (meaning the root).
func ToPath(v any) (Path, bool) {
	if s, ok := v.(string); ok {
		return nil, s == ""
	}
	items, ok := asSlice(v)
	if !ok {
		return nil, false
	}
	return Path(items), true
}

// Lookup walks obj along path. An empty path yields obj itself.
func Lookup(obj any, path Path) (any, error) {
	cur := obj
	for _, key := range path {
		next, ok := step(cur, key)
		if !ok {
			return nil, &PathError{Key: key}
		}
		cur = next
	}
	return cur, nil
}

// GetValueByPath is Lookup without the error detail.
func GetValueByPath(obj any, path Path) (any, bool) {
	v, err := Lookup(obj, path)
	return v, err == nil
}

func step(cur, key any) (any, bool) {
	switch c := cur.(type) {
	case map[string]any:
		k, ok := keyString(key)
		if !ok {
			return nil, false
		}
		v, ok := c[k]
		return v, ok
	case nil, string, bool:
		return nil, false
	}
	if items, ok := asSlice(cur); ok {
		i, ok := keyIndex(key)
		if !ok || i < 0 || i >= len(items) {
			return nil, false
		}
		return items[i], true
	}
	return nil, false
}

func keyString(key any) (string, bool) {
	if s, ok := key.(string); ok {
		return s, true
	}
	if n, ok := toNumber(key); ok {
		return strconv.FormatFloat(n, 'f', -1, 64), true
	}
	return "", false
}

func keyIndex(key any) (int, bool) {
	if s, ok := key.(string); ok {
		i, err := strconv.Atoi(s)
		return i, err == nil
	}
	n, ok := toNumber(key)
	if !ok || n != math.Trunc(n) {
		return 0, false
	}
	return int(n), true
}

// NameFromPath returns the last string key of path, a value_<indices> name when the
// path only holds indices, or "unknown" for an empty path.
func NameFromPath(path Path) string {
	if len(path) == 0 {
		return "unknown"
	}
	for i := len(path) - 1; i >= 0; i-- {
		if s, ok := path[i].(string); ok {
			return s
		}
	}
	parts := make([]string, len(path))
	for i, p := range path {
		parts[i] = fmt.Sprint(p)
	}
	return "value_" + strings.Join(parts, "_")
}
