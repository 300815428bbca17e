package reqrs

import (
	"context"
	"strings"
)

// Action is the unit of change exchanged with the host dispatch runtime.
type Action struct {
	Type    string
	Payload any
}

// ActionType joins a slice name and an operation name: "<slice>/<op>".
func ActionType(slice, op string) string { return slice + "/" + op }

// SplitActionType is the inverse of ActionType. ok is false when t has no slice prefix.
func SplitActionType(t string) (slice, op string, ok bool) {
	i := strings.LastIndexByte(t, '/')
	if i <= 0 || i == len(t)-1 {
		return "", "", false
	}
	return t[:i], t[i+1:], true
}

// RootState is the combined state of all slices, keyed by slice name.
// Values published by a Dispatcher are never mutated afterwards.
type RootState map[string]any

// Select returns the state of a slice typed as T.
func Select[T any](st RootState, slice string) (T, bool) {
	v, ok := st[slice]
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Dispatcher is the boundary with the host runtime.
type Dispatcher interface {
	// Dispatch submits an action. Actions are applied in submission order.
	Dispatch(ctx context.Context, a Action) error
	// State returns the current root state snapshot.
	State() RootState
}

// DispatchFunc is one link of a dispatch chain.
type DispatchFunc func(ctx context.Context, a Action) error

// Middleware wraps the next link of the dispatch chain. api is the outermost
// Dispatcher, so actions dispatched through it pass the whole chain again.
type Middleware func(api Dispatcher, next DispatchFunc) DispatchFunc

// Thunk is a dispatchable asynchronous operation. Its only suspension point is
// the external request it performs.
type Thunk func(ctx context.Context, d Dispatcher) error

// Slice is a named unit of state that reduces actions.
type Slice interface {
	Name() string
	Initial() any
	// Reduce returns the next state. handled is false when the action does not
	// belong to the slice, in which case state is returned unchanged.
	Reduce(state any, a Action) (next any, handled bool, err error)
}
