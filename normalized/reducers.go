package normalized

import "github.com/unkn0wn-root/reqrs"

// Operation names of the ready-made reducers.
const (
	OpRetrieveAll  = "retrieveAll"
	OpRetrieveMany = "retrieveMany"
	OpRetrieveOne  = "retrieveOne"
	OpRemoveAll    = "removeAll"
	OpRemoveMany   = "removeMany"
	OpRemoveOne    = "removeOne"
)

// Set is a ready-made group of reducers to plug into query.Options.
//   - Reducers: removeAll (no payload), removeMany ([]K), removeOne (K).
//   - EffectReducers: retrieveAll ([]P), retrieveMany ([]P), retrieveOne (P),
//     meant to be paired with a request.
type Set[K comparable, E any] struct {
	Reducers       map[string]reqrs.Reducer[State[K, E]]
	EffectReducers map[string]reqrs.Reducer[State[K, E]]
}

// Reducers builds the reducer Set for o.
func (o Ops[P, K, E]) Reducers() Set[K, E] {
	return Set[K, E]{
		Reducers: map[string]reqrs.Reducer[State[K, E]]{
			OpRemoveAll:  reqrs.ReducerOf(o.RemoveAll),
			OpRemoveMany: reqrs.ReducerFor(o.RemoveMany),
			OpRemoveOne:  reqrs.ReducerFor(o.RemoveOne),
		},
		EffectReducers: map[string]reqrs.Reducer[State[K, E]]{
			OpRetrieveAll:  reqrs.ReducerFor(o.RetrieveAll),
			OpRetrieveMany: reqrs.ReducerFor(o.RetrieveMany),
			OpRetrieveOne:  reqrs.ReducerFor(o.RetrieveOne),
		},
	}
}

// Effects pairs every effect reducer with request. A request shared this way can
// tell the operations apart with reqrs.OperationFrom.
func (s Set[K, E]) Effects(request reqrs.RequestFunc) map[string]reqrs.EffectSpec[State[K, E]] {
	out := make(map[string]reqrs.EffectSpec[State[K, E]], len(s.EffectReducers))
	for name, r := range s.EffectReducers {
		out[name] = reqrs.EffectSpec[State[K, E]]{Request: request, Reducer: r}
	}
	return out
}

// EffectsFor pairs effect reducers with per-operation requests. Operations
// without a request are left out.
func (s Set[K, E]) EffectsFor(requests map[string]reqrs.RequestFunc) map[string]reqrs.EffectSpec[State[K, E]] {
	out := make(map[string]reqrs.EffectSpec[State[K, E]], len(requests))
	for name, req := range requests {
		if r, ok := s.EffectReducers[name]; ok {
			out[name] = reqrs.EffectSpec[State[K, E]]{Request: req, Reducer: r}
		}
	}
	return out
}
