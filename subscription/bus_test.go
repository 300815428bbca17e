package subscription

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/store"
)

// counter reduces "<name>/add" with an int payload.
type counter struct{ name string }

func (c counter) Name() string { return c.name }
func (c counter) Initial() any { return 0 }

func (c counter) Reduce(state any, a reqrs.Action) (any, bool, error) {
	switch a.Type {
	case c.name + "/add":
		return state.(int) + a.Payload.(int), true, nil
	case c.name + "/fail":
		return state, true, errors.New("reducer refused")
	}
	return state, false, nil
}

func add(n int) reqrs.Action { return reqrs.Action{Type: "n/add", Payload: n} }

func newStore(t *testing.T, b *Bus) *store.Store {
	t.Helper()
	st, err := store.New(store.Options{
		Slices:     []reqrs.Slice{counter{"n"}, counter{"refreshes"}},
		Middleware: []reqrs.Middleware{b.Middleware()},
	})
	require.NoError(t, err)
	return st
}

type recorder struct {
	mu  sync.Mutex
	log []string
}

func (r *recorder) handler(tag string) Handler {
	return func(_ context.Context, _ reqrs.Dispatcher, _ any, st reqrs.RootState) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.log = append(r.log, tag+":"+strconv.Itoa(st["n"].(int)))
		return nil
	}
}

func TestBeforeRunsPriorToAfter(t *testing.T) {
	b := New(Options{})
	rec := &recorder{}

	_, err := b.Subscribe(Subscription{Action: "n/add", Handler: rec.handler("after")})
	require.NoError(t, err)
	_, err = b.Subscribe(Subscription{Action: "n/add", Stage: Before, Handler: rec.handler("before")})
	require.NoError(t, err)

	st := newStore(t, b)
	require.NoError(t, st.Dispatch(context.Background(), add(3)))

	// before sees pre-action state, after sees post-action state
	assert.Equal(t, []string{"before:0", "after:3"}, rec.log)
}

func TestRegistrationOrderAndNoDedup(t *testing.T) {
	b := New(Options{})
	rec := &recorder{}
	h := rec.handler("h")

	_, err := b.Subscribe(Subscription{Action: "n/add", Handler: rec.handler("first")})
	require.NoError(t, err)
	h1, err := b.Subscribe(Subscription{Action: "n/add", Handler: h})
	require.NoError(t, err)
	_, err = b.Subscribe(Subscription{Action: "n/add", Handler: h})
	require.NoError(t, err)
	assert.Equal(t, 3, b.Len("n/add"))

	st := newStore(t, b)
	require.NoError(t, st.Dispatch(context.Background(), add(1)))
	assert.Equal(t, []string{"first:1", "h:1", "h:1"}, rec.log)

	// removing one handle leaves the other registration of the same handler
	assert.True(t, h1.Unsubscribe())
	assert.False(t, h1.Unsubscribe())
	rec.log = nil
	require.NoError(t, st.Dispatch(context.Background(), add(1)))
	assert.Equal(t, []string{"first:2", "h:2"}, rec.log)
}

func TestUnsubscribedNeverFires(t *testing.T) {
	b := New(Options{})
	calls := 0
	hd, err := b.Subscribe(Subscription{Action: "n/add", Handler: func(context.Context, reqrs.Dispatcher, any, reqrs.RootState) error {
		calls++
		return nil
	}})
	require.NoError(t, err)
	st := newStore(t, b)
	ctx := context.Background()

	require.NoError(t, st.Dispatch(ctx, add(1)))
	assert.True(t, b.Unsubscribe(hd))
	require.NoError(t, st.Dispatch(ctx, add(1)))
	require.NoError(t, st.Dispatch(ctx, add(1)))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 0, b.Len("n/add"))
}

func TestFilter(t *testing.T) {
	b := New(Options{})
	var seen []any
	_, err := b.Subscribe(Subscription{
		Action:  "n/add",
		Filter:  func(p any) bool { return p.(int) > 1 },
		Handler: func(_ context.Context, _ reqrs.Dispatcher, p any, _ reqrs.RootState) error { seen = append(seen, p); return nil },
	})
	require.NoError(t, err)
	st := newStore(t, b)
	ctx := context.Background()

	for _, n := range []int{1, 2, 0, 5} {
		require.NoError(t, st.Dispatch(ctx, add(n)))
	}
	assert.Equal(t, []any{2, 5}, seen)
}

func TestHandlerCanDispatch(t *testing.T) {
	b := New(Options{})
	_, err := b.Subscribe(Subscription{
		Action: "n/add",
		Handler: func(ctx context.Context, d reqrs.Dispatcher, _ any, _ reqrs.RootState) error {
			return d.Dispatch(ctx, reqrs.Action{Type: "refreshes/add", Payload: 1})
		},
	})
	require.NoError(t, err)
	st := newStore(t, b)

	require.NoError(t, st.Dispatch(context.Background(), add(2)))
	require.NoError(t, st.Dispatch(context.Background(), add(2)))
	assert.Equal(t, 2, st.State()["refreshes"])
	assert.Equal(t, 4, st.State()["n"])
}

type failureHooks struct {
	reqrs.NopHooks
	failed []string
}

func (h *failureHooks) HandlerFailed(action, sub string, _ error) {
	h.failed = append(h.failed, action+"@"+sub)
}

func TestHandlerErrorAbortsChain(t *testing.T) {
	hooks := &failureHooks{}
	b := New(Options{Hooks: hooks})
	boom := errors.New("boom")
	rec := &recorder{}

	_, err := b.Subscribe(Subscription{Action: "n/add", Stage: Before, Name: "guard",
		Handler: func(context.Context, reqrs.Dispatcher, any, reqrs.RootState) error { return boom }})
	require.NoError(t, err)
	_, err = b.Subscribe(Subscription{Action: "n/add", Stage: Before, Handler: rec.handler("before2")})
	require.NoError(t, err)
	_, err = b.Subscribe(Subscription{Action: "n/add", Handler: rec.handler("after")})
	require.NoError(t, err)

	st := newStore(t, b)
	err = st.Dispatch(context.Background(), add(1))

	var herr *HandlerError
	require.ErrorAs(t, err, &herr)
	assert.Equal(t, Before, herr.Stage)
	assert.Equal(t, "guard", herr.Subscription)
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, rec.log, "later handlers must not run")
	assert.Equal(t, 0, st.State()["n"], "action must not reach the reducers")
	assert.Equal(t, []string{"n/add@guard"}, hooks.failed)
}

func TestAfterHandlersSkippedWhenReduceFails(t *testing.T) {
	b := New(Options{})
	called := false
	_, err := b.Subscribe(Subscription{Action: "n/fail", Handler: func(context.Context, reqrs.Dispatcher, any, reqrs.RootState) error {
		called = true
		return nil
	}})
	require.NoError(t, err)
	st := newStore(t, b)

	require.Error(t, st.Dispatch(context.Background(), reqrs.Action{Type: "n/fail"}))
	assert.False(t, called)
}

func TestReentrantSubscribe(t *testing.T) {
	b := New(Options{})
	inner := 0
	_, err := b.Subscribe(Subscription{Action: "n/add", Handler: func(context.Context, reqrs.Dispatcher, any, reqrs.RootState) error {
		_, err := b.Subscribe(Subscription{Action: "n/add", Handler: func(context.Context, reqrs.Dispatcher, any, reqrs.RootState) error {
			inner++
			return nil
		}})
		return err
	}})
	require.NoError(t, err)
	st := newStore(t, b)

	require.NoError(t, st.Dispatch(context.Background(), add(1)))
	assert.Equal(t, 0, inner, "registrations apply from the next dispatch")
	require.NoError(t, st.Dispatch(context.Background(), add(1)))
	assert.Equal(t, 1, inner)
}

func TestBusesAreIndependent(t *testing.T) {
	a, c := New(Options{}), New(Options{})
	_, err := a.Subscribe(Subscription{Action: "n/add", Handler: func(context.Context, reqrs.Dispatcher, any, reqrs.RootState) error { return nil }})
	require.NoError(t, err)
	assert.Equal(t, 1, a.Len("n/add"))
	assert.Equal(t, 0, c.Len("n/add"))
}

func TestCloseAndValidation(t *testing.T) {
	b := New(Options{})
	h, err := b.Subscribe(Subscription{Action: "n/add", Handler: func(context.Context, reqrs.Dispatcher, any, reqrs.RootState) error { return nil }})
	require.NoError(t, err)
	assert.Len(t, h.Token(), 36)

	_, err = b.Subscribe(Subscription{Action: "n/add"})
	assert.True(t, reqrs.IsInvariant(err, reqrs.CodeBadConfig))
	_, err = b.Subscribe(Subscription{Action: "n/add", Stage: 9, Handler: func(context.Context, reqrs.Dispatcher, any, reqrs.RootState) error { return nil }})
	assert.True(t, reqrs.IsInvariant(err, reqrs.CodeBadConfig))

	b.Close()
	assert.Equal(t, 0, b.Len("n/add"))
	assert.False(t, h.Unsubscribe())
	_, err = b.Subscribe(Subscription{Action: "n/add", Handler: func(context.Context, reqrs.Dispatcher, any, reqrs.RootState) error { return nil }})
	assert.ErrorIs(t, err, ErrClosed)

	assert.False(t, Handle{}.Unsubscribe())
}
