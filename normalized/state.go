// Package normalized implements a keyed entity store: entities by key plus an
// ordered key index. Every operation is a pure transformation; the returned
// State never shares its map or slice with the input.
//
// Invariant after every operation: set(AllIDs) == keys(ByID), no duplicate keys.
package normalized

// State is a normalized entity cache.
type State[K comparable, E any] struct {
	ByID   map[K]E
	AllIDs []K
}

// Empty returns a store with no entities.
func Empty[K comparable, E any]() State[K, E] {
	return State[K, E]{ByID: map[K]E{}, AllIDs: []K{}}
}

func (s State[K, E]) Get(k K) (E, bool) {
	e, ok := s.ByID[k]
	return e, ok
}

func (s State[K, E]) Has(k K) bool {
	_, ok := s.ByID[k]
	return ok
}

func (s State[K, E]) Len() int { return len(s.AllIDs) }

// List returns the entities in AllIDs order.
func (s State[K, E]) List() []E {
	out := make([]E, 0, len(s.AllIDs))
	for _, k := range s.AllIDs {
		out = append(out, s.ByID[k])
	}
	return out
}

// Valid reports whether AllIDs and ByID hold exactly the same keys, once each.
func (s State[K, E]) Valid() bool {
	if len(s.AllIDs) != len(s.ByID) {
		return false
	}
	seen := make(map[K]struct{}, len(s.AllIDs))
	for _, k := range s.AllIDs {
		if _, dup := seen[k]; dup {
			return false
		}
		if _, ok := s.ByID[k]; !ok {
			return false
		}
		seen[k] = struct{}{}
	}
	return true
}

func (s State[K, E]) clone(extra int) State[K, E] {
	byID := make(map[K]E, len(s.ByID)+extra)
	for k, e := range s.ByID {
		byID[k] = e
	}
	ids := make([]K, len(s.AllIDs), len(s.AllIDs)+extra)
	copy(ids, s.AllIDs)
	return State[K, E]{ByID: byID, AllIDs: ids}
}
