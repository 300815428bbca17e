// Package reqrs is a client-side state-synchronization engine. It keeps a local
// cache of entities that mirrors the results of asynchronous remote operations,
// tracks the lifecycle (pending/success/error) of those operations and lets
// independent parts of an application react to state changes without importing
// each other.
//
// Components:
//   - normalized: keyed entity store (ByID + ordered AllIDs) with set/merge/evict reducers.
//   - query: named reducers plus effects (request + reducer) sharing one loading envelope.
//   - command: write operations with their own lifecycle and a success continuation.
//   - subscription: action-keyed bus running handlers before/after a dispatch.
//   - store: a small host runtime that reduces slices and chains middleware.
//   - cache: CAS-protected read-through cache for request results.
//
// Actions are named "<slice>/<operation>". Effects and commands produce Thunks,
// which run against a Dispatcher and suspend only at the external request:
//
//	users, _ := query.New(query.Options[normalized.State[string, User]]{
//	    Name:     "users",
//	    Initial:  normalized.Empty[string, User](),
//	    Reducers: set.Reducers,
//	    Effects:  set.Effects(fetchUsers),
//	})
//	st, _ := store.New(store.Options{Slices: []reqrs.Slice{users.Slice()}})
//	_ = st.Run(ctx, users.MustEffect("retrieveAll", nil))
package reqrs
