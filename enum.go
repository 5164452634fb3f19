package arena

import (
	"fmt"
	"slices"
)

// enum is implemented by the small integer enums that are persisted as smallint.
type enum interface {
	~int
	fmt.Stringer
}

func enumFromInt[T enum](v int, names []string, typeName string) (T, error) {
	if v < 0 || v >= len(names) {
		return 0, fmt.Errorf("invalid %s value %d", typeName, v)
	}
	return T(v), nil
}

func enumFromText[T enum](text string, names []string, typeName string) (T, error) {
	idx := slices.Index(names, text)
	if idx < 0 {
		return 0, fmt.Errorf("invalid %s %q", typeName, text)
	}
	return T(idx), nil
}

func enumString(v int, names []string) string {
	if v < 0 || v >= len(names) {
		return fmt.Sprintf("invalid(%d)", v)
	}
	return names[v]
}
