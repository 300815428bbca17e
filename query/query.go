// Package query combines named state mutators with asynchronous effects on one
// slice. Every effect issues loadingStart, awaits its request and then applies
// its reducer to the result (or records the failure). All operations of a query
// share a single loading envelope.
package query

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/reqrs"
)

// Engine-owned operations present on every query.
const (
	OpLoadingStart  = "loadingStart"
	OpLoadingFailed = "loadingFailed"
	OpLoadingReset  = "loadingReset"
)

// State is the domain state of a query together with its loading envelope.
// IsLoading is true only between loadingStart and the settlement of a request.
type State[S any] struct {
	Data      S
	IsLoading bool
	Error     *reqrs.RequestError
}

// Options configure a query. Only Name is required.
type Options[S any] struct {
	Name    string
	Initial S

	// Synchronous mutators, dispatched as "<name>/<reducer>".
	Reducers map[string]reqrs.Reducer[S]
	// Effects, runnable with Query.Effect. Their results are dispatched as
	// "<name>/<effect>" and reduced with the effect's Reducer.
	Effects map[string]reqrs.EffectSpec[S]

	// ReturnErrors makes effect thunks return the *reqrs.RequestError after it
	// has been recorded in state. By default failures surface only through State.Error.
	ReturnErrors bool

	Logger reqrs.Logger // if nil, NopLogger is used
	Hooks  reqrs.Hooks  // if nil, NopHooks is used
}

type opKind uint8

const (
	kindReducer opKind = iota + 1
	kindEffect
	kindLoadingStart
	kindLoadingFailed
	kindLoadingReset
)

type operation[S any] struct {
	kind    opKind
	reduce  func(State[S], any) (State[S], error)
	request reqrs.RequestFunc
}

// Query is a slice with mutators and effects. Safe for concurrent use; the
// operation table is fixed at construction.
type Query[S any] struct {
	name         string
	initial      State[S]
	ops          map[string]operation[S]
	returnErrors bool
	log          reqrs.Logger
	hooks        reqrs.Hooks

	inFlight atomic.Int32
}

// New validates opts and resolves the operation table.
func New[S any](opts Options[S]) (*Query[S], error) {
	if opts.Name == "" {
		return nil, &reqrs.InvariantError{Code: reqrs.CodeBadConfig, Message: "query name is required"}
	}
	q := &Query[S]{
		name:         opts.Name,
		initial:      State[S]{Data: opts.Initial},
		ops:          make(map[string]operation[S], len(opts.Reducers)+len(opts.Effects)+3),
		returnErrors: opts.ReturnErrors,
		log:          reqrs.NopLogger{},
		hooks:        reqrs.NopHooks{},
	}
	if opts.Logger != nil {
		q.log = opts.Logger
	}
	if opts.Hooks != nil {
		q.hooks = opts.Hooks
	}

	q.ops[OpLoadingStart] = operation[S]{kind: kindLoadingStart, reduce: loadingStart[S]}
	q.ops[OpLoadingFailed] = operation[S]{kind: kindLoadingFailed, reduce: loadingFailed[S]}
	q.ops[OpLoadingReset] = operation[S]{kind: kindLoadingReset, reduce: loadingReset[S]}

	for name, r := range opts.Reducers {
		if r == nil {
			return nil, q.configError(name, "reducer is nil")
		}
		if err := q.register(name, operation[S]{kind: kindReducer, reduce: clearEnvelope(r)}); err != nil {
			return nil, err
		}
	}
	for name, e := range opts.Effects {
		if e.Request == nil || e.Reducer == nil {
			return nil, q.configError(name, "effect needs both Request and Reducer")
		}
		if err := q.register(name, operation[S]{kind: kindEffect, reduce: clearEnvelope(e.Reducer), request: e.Request}); err != nil {
			return nil, err
		}
	}
	return q, nil
}

func (q *Query[S]) register(name string, op operation[S]) error {
	switch {
	case name == "":
		return q.configError(name, "operation name is empty")
	case name == OpLoadingStart || name == OpLoadingFailed || name == OpLoadingReset:
		return &reqrs.InvariantError{Code: reqrs.CodeReservedName, Slice: q.name, Op: name, Message: "name is owned by the engine"}
	}
	if _, dup := q.ops[name]; dup {
		return &reqrs.InvariantError{Code: reqrs.CodeDuplicateName, Slice: q.name, Op: name, Message: "registered as both reducer and effect"}
	}
	q.ops[name] = op
	return nil
}

func (q *Query[S]) configError(op, msg string) error {
	return &reqrs.InvariantError{Code: reqrs.CodeBadConfig, Slice: q.name, Op: op, Message: msg}
}

// clearEnvelope decorates a domain reducer so that, once the domain change is
// applied, IsLoading and Error are cleared in the same transition.
func clearEnvelope[S any](r reqrs.Reducer[S]) func(State[S], any) (State[S], error) {
	return func(st State[S], payload any) (State[S], error) {
		data, err := r(st.Data, payload)
		if err != nil {
			return st, err
		}
		return State[S]{Data: data}, nil
	}
}

func loadingStart[S any](st State[S], _ any) (State[S], error) {
	st.IsLoading = true
	st.Error = nil
	return st, nil
}

func loadingFailed[S any](st State[S], payload any) (State[S], error) {
	st.IsLoading = false
	switch p := payload.(type) {
	case *reqrs.RequestError:
		if p == nil {
			p = reqrs.NewRequestError("unknown error")
		}
		st.Error = p
	case error:
		st.Error = reqrs.AsRequestError(p)
	case nil:
		st.Error = reqrs.NewRequestError("unknown error")
	default:
		return st, &reqrs.InvariantError{Code: reqrs.CodeBadPayload, Op: OpLoadingFailed, Message: "loadingFailed expects an error"}
	}
	return st, nil
}

func loadingReset[S any](st State[S], _ any) (State[S], error) {
	st.IsLoading = false
	st.Error = nil
	return st, nil
}

// Name is the slice name and action type prefix.
func (q *Query[S]) Name() string { return q.name }

// Initial is the state before any action: Initial data, not loading, no error.
func (q *Query[S]) Initial() State[S] { return q.initial }

// Has reports whether op is a registered operation.
func (q *Query[S]) Has(op string) bool {
	_, ok := q.ops[op]
	return ok
}

// Effects lists the names of the registered effects.
func (q *Query[S]) Effects() []string {
	var out []string
	for name, op := range q.ops {
		if op.kind == kindEffect {
			out = append(out, name)
		}
	}
	return out
}

// Reduce applies a to st. Actions of other slices, and unknown operations of
// this one, are not handled.
func (q *Query[S]) Reduce(st State[S], a reqrs.Action) (State[S], bool, error) {
	slice, name, ok := reqrs.SplitActionType(a.Type)
	if !ok || slice != q.name {
		return st, false, nil
	}
	op, ok := q.ops[name]
	if !ok {
		return st, false, nil
	}
	next, err := op.reduce(st, a.Payload)
	if err != nil {
		var ie *reqrs.InvariantError
		if errors.As(err, &ie) && ie.Slice == "" {
			ie.Slice, ie.Op = q.name, name
		}
		return st, true, err
	}
	return next, true, nil
}

// Select returns the query state held in st, or Initial when absent.
func (q *Query[S]) Select(st reqrs.RootState) State[S] {
	if v, ok := reqrs.Select[State[S]](st, q.name); ok {
		return v
	}
	return q.initial
}

// Action builds the action for a registered operation.
func (q *Query[S]) Action(op string, payload any) (reqrs.Action, error) {
	if !q.Has(op) {
		return reqrs.Action{}, reqrs.UnknownOperation(q.name, op)
	}
	return reqrs.Action{Type: reqrs.ActionType(q.name, op), Payload: payload}, nil
}

func (q *Query[S]) LoadingStart() reqrs.Action {
	return reqrs.Action{Type: reqrs.ActionType(q.name, OpLoadingStart)}
}

func (q *Query[S]) LoadingFailed(err *reqrs.RequestError) reqrs.Action {
	return reqrs.Action{Type: reqrs.ActionType(q.name, OpLoadingFailed), Payload: err}
}

// LoadingReset clears IsLoading and Error without touching domain state.
func (q *Query[S]) LoadingReset() reqrs.Action {
	return reqrs.Action{Type: reqrs.ActionType(q.name, OpLoadingReset)}
}

// Effect returns the thunk running effect op with payload.
//
// Protocol: dispatch loadingStart, await the request, then dispatch
// "<name>/<op>" with the result, or loadingFailed with the failure. A result
// the reducer rejects is recorded through loadingFailed and its error returned.
// There is no cancellation: a response is applied even if the slice moved on
// meanwhile.
func (q *Query[S]) Effect(op string, payload any) (reqrs.Thunk, error) {
	o, ok := q.ops[op]
	if !ok || o.kind != kindEffect {
		return nil, reqrs.UnknownOperation(q.name, op)
	}
	actionType := reqrs.ActionType(q.name, op)

	return func(ctx context.Context, d reqrs.Dispatcher) error {
		if n := q.inFlight.Add(1); n > 1 {
			q.hooks.OverlappingEffect(q.name, op, int(n))
			q.log.Warn("effect started while another is in flight; loading envelope is shared",
				reqrs.Fields{"op": actionType, "inFlight": n})
		}
		defer q.inFlight.Add(-1)

		if err := d.Dispatch(ctx, q.LoadingStart()); err != nil {
			return err
		}

		q.hooks.RequestStarted(actionType)
		start := time.Now()
		result, err := o.request(reqrs.WithOperation(ctx, actionType), payload)
		took := time.Since(start)
		q.hooks.RequestSettled(actionType, err, took)

		if err != nil {
			rerr := reqrs.AsRequestError(err)
			q.log.Debug("effect failed", reqrs.Fields{"op": actionType, "err": rerr, "took": took})
			if derr := d.Dispatch(ctx, q.LoadingFailed(rerr)); derr != nil {
				return derr
			}
			if q.returnErrors {
				return rerr
			}
			return nil
		}

		q.log.Debug("effect succeeded", reqrs.Fields{"op": actionType, "took": took})
		if derr := d.Dispatch(ctx, reqrs.Action{Type: actionType, Payload: result}); derr != nil {
			// the result never landed; settle the envelope before failing
			q.log.Error("effect result rejected", reqrs.Fields{"op": actionType, "err": derr})
			_ = d.Dispatch(ctx, q.LoadingFailed(reqrs.AsRequestError(derr)))
			return derr
		}
		return nil
	}, nil
}

// MustEffect is like Effect but panics when op is not a registered effect.
func (q *Query[S]) MustEffect(op string, payload any) reqrs.Thunk {
	t, err := q.Effect(op, payload)
	if err != nil {
		panic(err)
	}
	return t
}

// InFlight is the number of effects of this query currently awaiting a request.
func (q *Query[S]) InFlight() int { return int(q.inFlight.Load()) }

// Slice adapts the query to the host runtime.
func (q *Query[S]) Slice() reqrs.Slice { return slice[S]{q} }

type slice[S any] struct{ q *Query[S] }

func (s slice[S]) Name() string { return s.q.name }
func (s slice[S]) Initial() any { return s.q.initial }

func (s slice[S]) Reduce(state any, a reqrs.Action) (any, bool, error) {
	st, ok := state.(State[S])
	if !ok {
		if state != nil {
			return state, false, &reqrs.InvariantError{Code: reqrs.CodeBadConfig, Slice: s.q.name, Message: "slice state has an unexpected type"}
		}
		st = s.q.initial
	}
	return s.q.Reduce(st, a)
}
