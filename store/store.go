// Package store is a small host runtime for reqrs slices: it holds the root
// state, runs actions through a middleware chain and reduces them into every
// slice. Reduction is serialized, so actions are applied atomically in the order
// they reach the innermost link.
package store

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/reqrs"
)

// Options configure a Store.
type Options struct {
	Slices []reqrs.Slice
	// Middleware wraps dispatch; the first entry is the outermost link.
	Middleware []reqrs.Middleware
	Logger     reqrs.Logger // if nil, NopLogger is used
}

type listener struct {
	id uint64
	fn func(reqrs.RootState)
}

// Store implements reqrs.Dispatcher.
type Store struct {
	slices   []reqrs.Slice
	dispatch reqrs.DispatchFunc
	log      reqrs.Logger

	mu    sync.Mutex // serializes reduction
	nmu   sync.Mutex // serializes notification
	state atomic.Pointer[reqrs.RootState]

	lmu       sync.Mutex
	listeners []listener // copy-on-write
	nextID    uint64
}

var _ reqrs.Dispatcher = (*Store)(nil)

// New builds the initial root state from every slice and composes the middleware.
func New(opts Options) (*Store, error) {
	s := &Store{log: reqrs.NopLogger{}}
	if opts.Logger != nil {
		s.log = opts.Logger
	}

	initial := make(reqrs.RootState, len(opts.Slices))
	for _, sl := range opts.Slices {
		if sl == nil {
			return nil, &reqrs.InvariantError{Code: reqrs.CodeBadConfig, Message: "nil slice"}
		}
		name := sl.Name()
		if _, dup := initial[name]; dup {
			return nil, &reqrs.InvariantError{Code: reqrs.CodeDuplicateName, Slice: name, Message: "slice registered twice"}
		}
		initial[name] = sl.Initial()
		s.slices = append(s.slices, sl)
	}
	s.state.Store(&initial)

	d := reqrs.DispatchFunc(s.reduce)
	for i := len(opts.Middleware) - 1; i >= 0; i-- {
		d = opts.Middleware[i](s, d)
	}
	s.dispatch = d
	return s, nil
}

// Dispatch runs a through the middleware chain.
func (s *Store) Dispatch(ctx context.Context, a reqrs.Action) error {
	return s.dispatch(ctx, a)
}

// State returns the current root state. The map must not be modified.
func (s *Store) State() reqrs.RootState {
	return *s.state.Load()
}

// Run executes t on the calling goroutine.
func (s *Store) Run(ctx context.Context, t reqrs.Thunk) error {
	return t(ctx, s)
}

// Go starts t on its own goroutine.
func (s *Store) Go(ctx context.Context, t reqrs.Thunk) *reqrs.Task {
	return reqrs.Go(ctx, s, t)
}

// Listen registers fn to be called with the new root state after every action
// that changed it. Calls are serialized and arrive in reduction order; fn must
// not dispatch synchronously. The returned func removes the listener.
func (s *Store) Listen(fn func(reqrs.RootState)) (cancel func()) {
	s.lmu.Lock()
	s.nextID++
	id := s.nextID
	next := make([]listener, len(s.listeners), len(s.listeners)+1)
	copy(next, s.listeners)
	s.listeners = append(next, listener{id: id, fn: fn})
	s.lmu.Unlock()

	return func() {
		s.lmu.Lock()
		defer s.lmu.Unlock()
		next := make([]listener, 0, len(s.listeners))
		for _, l := range s.listeners {
			if l.id != id {
				next = append(next, l)
			}
		}
		s.listeners = next
	}
}

func (s *Store) reduce(_ context.Context, a reqrs.Action) error {
	if a.Type == "" {
		return &reqrs.InvariantError{Code: reqrs.CodeBadPayload, Message: "action type is empty"}
	}

	s.mu.Lock()
	cur := *s.state.Load()
	var next reqrs.RootState
	for _, sl := range s.slices {
		name := sl.Name()
		ns, handled, err := sl.Reduce(cur[name], a)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("store: reduce %s in slice %s: %w", a.Type, name, err)
		}
		if !handled {
			continue
		}
		if next == nil {
			next = make(reqrs.RootState, len(cur))
			for k, v := range cur {
				next[k] = v
			}
		}
		next[name] = ns
	}
	if next == nil {
		s.mu.Unlock()
		s.log.Debug("action not handled by any slice", reqrs.Fields{"type": a.Type})
		return nil
	}
	s.state.Store(&next)

	// hand over to nmu before releasing mu so listeners see states in reduction order
	s.nmu.Lock()
	s.mu.Unlock()
	defer s.nmu.Unlock()

	s.lmu.Lock()
	ls := s.listeners
	s.lmu.Unlock()
	for _, l := range ls {
		l.fn(next)
	}
	return nil
}
