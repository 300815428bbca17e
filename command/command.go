// Package command runs write requests with their own lifecycle state. A command
// never touches entity state itself; on success it hands the merged payload and
// response to a Connect continuation, which typically runs a query effect.
package command

import (
	"context"
	"fmt"
	"time"

	"github.com/unkn0wn-root/reqrs"
)

// Operations of every command.
const (
	OpLoadingStart   = "loadingStart"
	OpLoadingSuccess = "loadingSuccess"
	OpLoadingFailed  = "loadingFailed"
	OpLoadingReset   = "loadingReset"
)

// State is the lifecycle of the last Create.
type State struct {
	IsSuccess bool
	IsLoading bool
	Errors    []string // nil unless the last request failed
}

// ConnectFunc continues a successful command. merged is Merge(payload, response).
type ConnectFunc func(ctx context.Context, d reqrs.Dispatcher, merged any) error

// MergeFunc combines the command payload with the request response.
type MergeFunc func(payload, response any) any

// Options configure a command. Name and Request are required.
type Options struct {
	Name    string
	Request reqrs.RequestFunc
	Connect ConnectFunc // optional
	Merge   MergeFunc   // if nil, DefaultMerge is used

	Logger reqrs.Logger // if nil, NopLogger is used
	Hooks  reqrs.Hooks  // if nil, NopHooks is used
}

// Command is safe for concurrent use.
type Command struct {
	name    string
	request reqrs.RequestFunc
	connect ConnectFunc
	merge   MergeFunc
	log     reqrs.Logger
	hooks   reqrs.Hooks
}

// ConnectError reports a failed Connect continuation. The command itself
// succeeded and its state says so.
type ConnectError struct {
	Command string
	Err     error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("command %s: connect: %v", e.Command, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

func New(opts Options) (*Command, error) {
	if opts.Name == "" {
		return nil, &reqrs.InvariantError{Code: reqrs.CodeBadConfig, Message: "command name is required"}
	}
	if opts.Request == nil {
		return nil, &reqrs.InvariantError{Code: reqrs.CodeBadConfig, Slice: opts.Name, Message: "command request is required"}
	}
	c := &Command{
		name:    opts.Name,
		request: opts.Request,
		connect: opts.Connect,
		merge:   opts.Merge,
		log:     reqrs.NopLogger{},
		hooks:   reqrs.NopHooks{},
	}
	if c.merge == nil {
		c.merge = DefaultMerge
	}
	if opts.Logger != nil {
		c.log = opts.Logger
	}
	if opts.Hooks != nil {
		c.hooks = opts.Hooks
	}
	return c, nil
}

// DefaultMerge overlays response on payload when both are map[string]any,
// keys of the response winning. Otherwise the response is used, or the payload
// when the response is nil.
func DefaultMerge(payload, response any) any {
	pm, pok := payload.(map[string]any)
	rm, rok := response.(map[string]any)
	if pok && rok {
		out := make(map[string]any, len(pm)+len(rm))
		for k, v := range pm {
			out[k] = v
		}
		for k, v := range rm {
			out[k] = v
		}
		return out
	}
	if response == nil {
		return payload
	}
	return response
}

func (c *Command) Name() string { return c.name }

// Initial is the idle state.
func (c *Command) Initial() State { return State{} }

func (c *Command) action(op string, payload any) reqrs.Action {
	return reqrs.Action{Type: reqrs.ActionType(c.name, op), Payload: payload}
}

func (c *Command) LoadingStart() reqrs.Action   { return c.action(OpLoadingStart, nil) }
func (c *Command) LoadingSuccess() reqrs.Action { return c.action(OpLoadingSuccess, nil) }

func (c *Command) LoadingFailed(errs []string) reqrs.Action {
	return c.action(OpLoadingFailed, errs)
}

// Reset clears the lifecycle state without side effects.
func (c *Command) Reset() reqrs.Action { return c.action(OpLoadingReset, nil) }

// Create returns the thunk that runs the command with payload.
//
// A request failure is recorded with loadingFailed and returned to the caller
// as a *reqrs.RequestError. On success loadingSuccess is dispatched before
// Connect runs; a Connect failure comes back as *ConnectError.
func (c *Command) Create(payload any) reqrs.Thunk {
	op := reqrs.ActionType(c.name, "create")

	return func(ctx context.Context, d reqrs.Dispatcher) error {
		if err := d.Dispatch(ctx, c.LoadingStart()); err != nil {
			return err
		}

		c.hooks.RequestStarted(op)
		start := time.Now()
		resp, err := c.request(reqrs.WithOperation(ctx, op), payload)
		took := time.Since(start)
		c.hooks.RequestSettled(op, err, took)

		if err != nil {
			rerr := reqrs.AsRequestError(err)
			c.log.Warn("command failed", reqrs.Fields{"command": c.name, "err": rerr, "took": took})
			errs := rerr.Errors
			if errs == nil {
				errs = []string{}
			}
			if derr := d.Dispatch(ctx, c.LoadingFailed(errs)); derr != nil {
				return derr
			}
			return rerr
		}

		if err := d.Dispatch(ctx, c.LoadingSuccess()); err != nil {
			return err
		}
		c.log.Debug("command succeeded", reqrs.Fields{"command": c.name, "took": took})

		if c.connect == nil {
			return nil
		}
		if err := c.connect(ctx, d, c.merge(payload, resp)); err != nil {
			c.log.Error("command connect failed", reqrs.Fields{"command": c.name, "err": err})
			return &ConnectError{Command: c.name, Err: err}
		}
		return nil
	}
}

// Reduce applies a to st. Actions of other slices and unknown operations are
// not handled.
func (c *Command) Reduce(st State, a reqrs.Action) (State, bool, error) {
	slice, op, ok := reqrs.SplitActionType(a.Type)
	if !ok || slice != c.name {
		return st, false, nil
	}
	switch op {
	case OpLoadingStart:
		return State{IsLoading: true}, true, nil
	case OpLoadingSuccess:
		return State{IsSuccess: true}, true, nil
	case OpLoadingReset:
		return State{}, true, nil
	case OpLoadingFailed:
		switch p := a.Payload.(type) {
		case []string:
			return State{Errors: p}, true, nil
		case nil:
			return State{Errors: []string{}}, true, nil
		default:
			return st, true, &reqrs.InvariantError{
				Code: reqrs.CodeBadPayload, Slice: c.name, Op: op,
				Message: fmt.Sprintf("loadingFailed expects []string, got %T", a.Payload),
			}
		}
	}
	return st, false, nil
}

// Select returns the command state held in st, or the idle state when absent.
func (c *Command) Select(st reqrs.RootState) State {
	v, _ := reqrs.Select[State](st, c.name)
	return v
}

// Slice adapts the command to the host runtime.
func (c *Command) Slice() reqrs.Slice { return slice{c} }

type slice struct{ c *Command }

func (s slice) Name() string { return s.c.name }
func (s slice) Initial() any { return State{} }

func (s slice) Reduce(state any, a reqrs.Action) (any, bool, error) {
	st, ok := state.(State)
	if !ok && state != nil {
		return state, false, &reqrs.InvariantError{Code: reqrs.CodeBadConfig, Slice: s.c.name, Message: "slice state has an unexpected type"}
	}
	return s.c.Reduce(st, a)
}
