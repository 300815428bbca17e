package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/normalized"
	"github.com/unkn0wn-root/reqrs/query"
	"github.com/unkn0wn-root/reqrs/store"
)

func newStore(t *testing.T, slices ...reqrs.Slice) *store.Store {
	t.Helper()
	st, err := store.New(store.Options{Slices: slices})
	require.NoError(t, err)
	return st
}

func TestCreateSuccessLifecycle(t *testing.T) {
	release := make(chan struct{})
	var merged any
	c, err := New(Options{
		Name: "createTodo",
		Request: func(context.Context, any) (any, error) {
			<-release
			return map[string]any{"id": "42"}, nil
		},
		Connect: func(_ context.Context, _ reqrs.Dispatcher, m any) error {
			merged = m
			return nil
		},
	})
	require.NoError(t, err)
	st := newStore(t, c.Slice())

	task := st.Go(context.Background(), c.Create(map[string]any{"title": "x", "id": ""}))
	require.Eventually(t, func() bool { return c.Select(st.State()).IsLoading }, time.Second, time.Millisecond)
	assert.Equal(t, State{IsLoading: true}, c.Select(st.State()))

	close(release)
	require.NoError(t, task.Wait())
	assert.Equal(t, State{IsSuccess: true}, c.Select(st.State()))
	assert.Equal(t, map[string]any{"title": "x", "id": "42"}, merged)
}

func TestCreateFailureIsReturned(t *testing.T) {
	connected := false
	c, err := New(Options{
		Name:    "createTodo",
		Request: func(context.Context, any) (any, error) { return nil, reqrs.NewRequestError("x", "y") },
		Connect: func(context.Context, reqrs.Dispatcher, any) error { connected = true; return nil },
	})
	require.NoError(t, err)
	st := newStore(t, c.Slice())

	err = st.Run(context.Background(), c.Create(nil))
	var rerr *reqrs.RequestError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, "x", rerr.Message)

	assert.Equal(t, State{Errors: []string{"y"}}, c.Select(st.State()))
	assert.False(t, connected, "connect runs only on success")
}

func TestCreateFailureWithoutErrorList(t *testing.T) {
	c, err := New(Options{
		Name:    "cmd",
		Request: func(context.Context, any) (any, error) { return nil, reqrs.NewRequestError("bare") },
	})
	require.NoError(t, err)
	st := newStore(t, c.Slice())

	require.Error(t, st.Run(context.Background(), c.Create(nil)))
	got := c.Select(st.State())
	assert.NotNil(t, got.Errors)
	assert.Empty(t, got.Errors)
	assert.False(t, got.IsLoading)
}

func TestConnectErrorKeepsSuccess(t *testing.T) {
	boom := errors.New("boom")
	c, err := New(Options{
		Name:    "cmd",
		Request: func(context.Context, any) (any, error) { return "ok", nil },
		Connect: func(context.Context, reqrs.Dispatcher, any) error { return boom },
	})
	require.NoError(t, err)
	st := newStore(t, c.Slice())

	err = st.Run(context.Background(), c.Create(nil))
	var cerr *ConnectError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, "cmd", cerr.Command)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, State{IsSuccess: true}, c.Select(st.State()))
}

func TestResetAndRestart(t *testing.T) {
	c, err := New(Options{
		Name:    "cmd",
		Request: func(context.Context, any) (any, error) { return nil, reqrs.NewRequestError("no", "nope") },
	})
	require.NoError(t, err)
	st := newStore(t, c.Slice())
	ctx := context.Background()

	require.Error(t, st.Run(ctx, c.Create(nil)))
	require.NoError(t, st.Dispatch(ctx, c.Reset()))
	assert.Equal(t, State{}, c.Select(st.State()))

	require.NoError(t, st.Dispatch(ctx, c.LoadingSuccess()))
	require.NoError(t, st.Dispatch(ctx, c.LoadingStart()))
	assert.Equal(t, State{IsLoading: true}, c.Select(st.State()), "loadingStart clears success")
}

func TestDefaultMerge(t *testing.T) {
	cases := []struct {
		name              string
		payload, response any
		want              any
	}{
		{"maps", map[string]any{"a": 1, "b": 1}, map[string]any{"b": 2}, map[string]any{"a": 1, "b": 2}},
		{"nil response", map[string]any{"a": 1}, nil, map[string]any{"a": 1}},
		{"scalar response", map[string]any{"a": 1}, "id-1", "id-1"},
		{"nil payload", nil, map[string]any{"b": 2}, map[string]any{"b": 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DefaultMerge(tc.payload, tc.response))
		})
	}

	p := map[string]any{"a": 1}
	_ = DefaultMerge(p, map[string]any{"a": 2})
	assert.Equal(t, 1, p["a"], "payload map must not be modified")
}

func TestNewValidation(t *testing.T) {
	_, err := New(Options{})
	assert.True(t, reqrs.IsInvariant(err, reqrs.CodeBadConfig))
	_, err = New(Options{Name: "cmd"})
	assert.True(t, reqrs.IsInvariant(err, reqrs.CodeBadConfig))
}

func TestReduceRejectsBadFailurePayload(t *testing.T) {
	c, err := New(Options{Name: "cmd", Request: func(context.Context, any) (any, error) { return nil, nil }})
	require.NoError(t, err)

	_, handled, err := c.Reduce(State{}, reqrs.Action{Type: "cmd/loadingFailed", Payload: 3})
	assert.True(t, handled)
	assert.True(t, reqrs.IsInvariant(err, reqrs.CodeBadPayload))

	_, handled, err = c.Reduce(State{}, reqrs.Action{Type: "other/loadingFailed"})
	assert.False(t, handled)
	assert.NoError(t, err)
}

type todo struct {
	ID    string
	Title string
}

// A command whose connect runs a query effect with the merged payload ends
// with the query holding the written entity.
func TestCommandConnectsToQuery(t *testing.T) {
	set := normalized.NewOps(
		func(m map[string]any) todo { return todo{ID: m["id"].(string), Title: m["title"].(string)} },
		func(m map[string]any) string { return m["id"].(string) },
	).Reducers()

	todos, err := query.New(query.Options[normalized.State[string, todo]]{
		Name:    "todos",
		Initial: normalized.Empty[string, todo](),
		Effects: set.EffectsFor(map[string]reqrs.RequestFunc{
			// the entity was already written; echo it back
			normalized.OpRetrieveOne: func(_ context.Context, p any) (any, error) { return p, nil },
		}),
	})
	require.NoError(t, err)

	create, err := New(Options{
		Name: "createTodo",
		Request: func(context.Context, any) (any, error) {
			return map[string]any{"id": "t-1"}, nil
		},
		Connect: func(ctx context.Context, d reqrs.Dispatcher, merged any) error {
			eff, err := todos.Effect(normalized.OpRetrieveOne, merged)
			if err != nil {
				return err
			}
			return eff(ctx, d)
		},
	})
	require.NoError(t, err)

	st := newStore(t, todos.Slice(), create.Slice())
	require.NoError(t, st.Run(context.Background(), create.Create(map[string]any{"title": "buy milk"})))

	assert.True(t, create.Select(st.State()).IsSuccess)
	got := todos.Select(st.State())
	assert.False(t, got.IsLoading)
	v, ok := got.Data.Get("t-1")
	require.True(t, ok)
	assert.Equal(t, todo{ID: "t-1", Title: "buy milk"}, v)
}
