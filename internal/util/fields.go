package util

import (
	"maps"
	"slices"
)

// SortedKeys returns the keys of m in ascending order, for log output that
// does not depend on map iteration order.
func SortedKeys[V any](m map[string]V) []string {
	return slices.Sorted(maps.Keys(m))
}
