// Package subscription is an action-keyed observer registry. A Bus installed as
// middleware runs the handlers subscribed to an action before and/or after the
// action reaches the reducers, so slices can react to each other without
// importing each other.
package subscription

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/google/uuid"

	"github.com/unkn0wn-root/reqrs"
)

// ErrClosed is returned by Subscribe after Close.
var ErrClosed = errors.New("subscription: bus is closed")

// Stage selects when a handler runs relative to the reducers.
type Stage uint8

const (
	After  Stage = iota // default
	Before
)

func (s Stage) String() string {
	if s == Before {
		return "before"
	}
	return "after"
}

// Handler reacts to an action. st is the root state before the action for the
// Before stage and after it for the After stage. d dispatches through the whole
// middleware chain again.
type Handler func(ctx context.Context, d reqrs.Dispatcher, payload any, st reqrs.RootState) error

// Filter decides whether a handler sees a given payload.
type Filter func(payload any) bool

// Subscription describes one registration. Action and Handler are required.
type Subscription struct {
	Action  string
	Handler Handler
	Stage   Stage
	Filter  Filter // nil accepts every payload
	Name    string // shows up in errors and hooks; defaults to the handle token
}

// Handle identifies one registration.
type Handle struct {
	bus    *Bus
	action string
	token  uuid.UUID
}

// Token is the unique id of the registration.
func (h Handle) Token() string { return h.token.String() }

// Unsubscribe removes exactly this registration. It reports whether it was
// still registered.
func (h Handle) Unsubscribe() bool {
	if h.bus == nil {
		return false
	}
	return h.bus.Unsubscribe(h)
}

// HandlerError wraps the error of a failed handler.
type HandlerError struct {
	Action       string
	Stage        Stage
	Subscription string
	Err          error
}

func (e *HandlerError) Error() string {
	return fmt.Sprintf("subscription %s (%s %s): %v", e.Subscription, e.Stage, e.Action, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Options configure a Bus.
type Options struct {
	Logger reqrs.Logger // if nil, NopLogger is used
	Hooks  reqrs.Hooks  // if nil, NopHooks is used
}

type entry struct {
	token uuid.UUID
	sub   Subscription
}

// Bus is an explicitly constructed registry. Buses share nothing.
//
// Registration is serialized; dispatch reads an immutable snapshot of the
// entries for the action, so handlers may subscribe and unsubscribe re-entrantly.
// Changes take effect from the next dispatch.
type Bus struct {
	log   reqrs.Logger
	hooks reqrs.Hooks

	mu     sync.RWMutex
	subs   map[string][]entry // copy-on-write per action
	closed bool
}

func New(opts Options) *Bus {
	b := &Bus{
		log:   reqrs.NopLogger{},
		hooks: reqrs.NopHooks{},
		subs:  make(map[string][]entry),
	}
	if opts.Logger != nil {
		b.log = opts.Logger
	}
	if opts.Hooks != nil {
		b.hooks = opts.Hooks
	}
	return b
}

// Subscribe registers s. Registering the same handler twice yields two
// independent entries.
func (b *Bus) Subscribe(s Subscription) (Handle, error) {
	if s.Action == "" || s.Handler == nil {
		return Handle{}, &reqrs.InvariantError{Code: reqrs.CodeBadConfig, Message: "subscription needs an action and a handler"}
	}
	if s.Stage != After && s.Stage != Before {
		return Handle{}, &reqrs.InvariantError{Code: reqrs.CodeBadConfig, Op: s.Action, Message: fmt.Sprintf("unknown stage %d", s.Stage)}
	}
	tok := uuid.New()
	if s.Name == "" {
		s.Name = tok.String()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return Handle{}, ErrClosed
	}
	cur := b.subs[s.Action]
	next := make([]entry, len(cur), len(cur)+1)
	copy(next, cur)
	b.subs[s.Action] = append(next, entry{token: tok, sub: s})

	b.log.Debug("subscribed", reqrs.Fields{"action": s.Action, "stage": s.Stage.String(), "subscription": s.Name})
	return Handle{bus: b, action: s.Action, token: tok}, nil
}

// Unsubscribe removes the registration identified by h.
func (b *Bus) Unsubscribe(h Handle) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	cur := b.subs[h.action]
	i := slices.IndexFunc(cur, func(e entry) bool { return e.token == h.token })
	if i < 0 {
		return false
	}
	if len(cur) == 1 {
		delete(b.subs, h.action)
		return true
	}
	next := make([]entry, 0, len(cur)-1)
	next = append(next, cur[:i]...)
	next = append(next, cur[i+1:]...)
	b.subs[h.action] = next
	return true
}

// Len is the number of registrations for action.
func (b *Bus) Len(action string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[action])
}

// Close drops every registration. Later Subscribe calls fail with ErrClosed and
// the middleware passes actions through untouched.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.subs = make(map[string][]entry)
}

func (b *Bus) snapshot(action string) []entry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.subs[action]
}

// Middleware returns the dispatch interceptor. For an action with
// registrations it runs the accepting Before handlers in registration order,
// forwards the action, runs the accepting After handlers, and returns the
// forwarded result. A handler error aborts the rest of the chain. After
// handlers do not run when forwarding failed.
func (b *Bus) Middleware() reqrs.Middleware {
	return func(api reqrs.Dispatcher, next reqrs.DispatchFunc) reqrs.DispatchFunc {
		return func(ctx context.Context, a reqrs.Action) error {
			subs := b.snapshot(a.Type)
			if len(subs) == 0 {
				return next(ctx, a)
			}

			if err := b.run(ctx, api, subs, Before, a); err != nil {
				return err
			}
			if err := next(ctx, a); err != nil {
				return err
			}
			return b.run(ctx, api, subs, After, a)
		}
	}
}

func (b *Bus) run(ctx context.Context, api reqrs.Dispatcher, subs []entry, stage Stage, a reqrs.Action) error {
	for _, e := range subs {
		if e.sub.Stage != stage {
			continue
		}
		if e.sub.Filter != nil && !e.sub.Filter(a.Payload) {
			continue
		}
		if err := e.sub.Handler(ctx, api, a.Payload, api.State()); err != nil {
			b.hooks.HandlerFailed(a.Type, e.sub.Name, err)
			b.log.Error("subscription handler failed", reqrs.Fields{
				"action": a.Type, "stage": stage.String(), "subscription": e.sub.Name, "err": err,
			})
			return &HandlerError{Action: a.Type, Stage: stage, Subscription: e.sub.Name, Err: err}
		}
	}
	return nil
}
