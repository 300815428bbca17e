package normalized

// Ops holds the injected conversions from a wire payload P to a stored entity E
// and its key K. The same State shape can back entities whose stored form
// differs from the payload.
type Ops[P any, K comparable, E any] struct {
	toState func(P) E
	keyOf   func(P) K
}

// NewOps binds the payload conversions.
func NewOps[P any, K comparable, E any](toState func(P) E, keyOf func(P) K) Ops[P, K, E] {
	return Ops[P, K, E]{toState: toState, keyOf: keyOf}
}

// Identity is NewOps for stores that keep payloads as they are.
func Identity[K comparable, E any](keyOf func(E) K) Ops[E, K, E] {
	return NewOps(func(e E) E { return e }, keyOf)
}

// RetrieveAll replaces the store. A repeated key keeps its first position in
// AllIDs; its entity is the last one in payload order.
func (o Ops[P, K, E]) RetrieveAll(_ State[K, E], payload []P) State[K, E] {
	out := State[K, E]{ByID: make(map[K]E, len(payload)), AllIDs: make([]K, 0, len(payload))}
	for _, p := range payload {
		k := o.keyOf(p)
		if _, ok := out.ByID[k]; !ok {
			out.AllIDs = append(out.AllIDs, k)
		}
		out.ByID[k] = o.toState(p)
	}
	return out
}

// RetrieveMany upserts entities. Existing keys keep their position; new keys are
// appended in payload order.
func (o Ops[P, K, E]) RetrieveMany(s State[K, E], payload []P) State[K, E] {
	out := s.clone(len(payload))
	for _, p := range payload {
		k := o.keyOf(p)
		if _, ok := out.ByID[k]; !ok {
			out.AllIDs = append(out.AllIDs, k)
		}
		out.ByID[k] = o.toState(p)
	}
	return out
}

// RetrieveOne upserts a single entity.
func (o Ops[P, K, E]) RetrieveOne(s State[K, E], payload P) State[K, E] {
	return o.RetrieveMany(s, []P{payload})
}

// RemoveAll clears the store.
func (o Ops[P, K, E]) RemoveAll(State[K, E]) State[K, E] {
	return Empty[K, E]()
}

// RemoveMany drops the given keys. Unknown keys are ignored.
func (o Ops[P, K, E]) RemoveMany(s State[K, E], keys []K) State[K, E] {
	drop := make(map[K]struct{}, len(keys))
	for _, k := range keys {
		drop[k] = struct{}{}
	}
	out := State[K, E]{ByID: make(map[K]E, len(s.ByID)), AllIDs: make([]K, 0, len(s.AllIDs))}
	for k, e := range s.ByID {
		if _, gone := drop[k]; !gone {
			out.ByID[k] = e
		}
	}
	for _, k := range s.AllIDs {
		if _, gone := drop[k]; !gone {
			out.AllIDs = append(out.AllIDs, k)
		}
	}
	return out
}

// RemoveOne drops a single key.
func (o Ops[P, K, E]) RemoveOne(s State[K, E], key K) State[K, E] {
	return o.RemoveMany(s, []K{key})
}

// Key exposes the injected key function.
func (o Ops[P, K, E]) Key(p P) K { return o.keyOf(p) }
