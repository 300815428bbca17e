package store

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unkn0wn-root/reqrs"
)

// counter is a minimal Slice: "<name>/add" with an int payload.
type counter struct{ name string }

func (c counter) Name() string { return c.name }
func (c counter) Initial() any { return 0 }

func (c counter) Reduce(state any, a reqrs.Action) (any, bool, error) {
	if a.Type != reqrs.ActionType(c.name, "add") {
		return state, false, nil
	}
	n, ok := a.Payload.(int)
	if !ok {
		return state, true, &reqrs.InvariantError{Code: reqrs.CodeBadPayload, Slice: c.name, Message: "want int"}
	}
	return state.(int) + n, true, nil
}

func add(slice string, n any) reqrs.Action {
	return reqrs.Action{Type: reqrs.ActionType(slice, "add"), Payload: n}
}

func TestNewBuildsInitialState(t *testing.T) {
	s, err := New(Options{Slices: []reqrs.Slice{counter{"a"}, counter{"b"}}})
	require.NoError(t, err)
	assert.Equal(t, reqrs.RootState{"a": 0, "b": 0}, s.State())
}

func TestNewRejectsBadSlices(t *testing.T) {
	_, err := New(Options{Slices: []reqrs.Slice{counter{"a"}, counter{"a"}}})
	assert.True(t, reqrs.IsInvariant(err, reqrs.CodeDuplicateName))

	_, err = New(Options{Slices: []reqrs.Slice{nil}})
	assert.True(t, reqrs.IsInvariant(err, reqrs.CodeBadConfig))
}

func TestDispatchReducesOnlyOwningSlice(t *testing.T) {
	s, err := New(Options{Slices: []reqrs.Slice{counter{"a"}, counter{"b"}}})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Dispatch(ctx, add("a", 2)))
	require.NoError(t, s.Dispatch(ctx, add("a", 3)))
	require.NoError(t, s.Dispatch(ctx, add("b", 1)))
	require.NoError(t, s.Dispatch(ctx, add("nobody", 1)))

	assert.Equal(t, reqrs.RootState{"a": 5, "b": 1}, s.State())
}

func TestSnapshotsAreImmutable(t *testing.T) {
	s, err := New(Options{Slices: []reqrs.Slice{counter{"a"}}})
	require.NoError(t, err)

	before := s.State()
	require.NoError(t, s.Dispatch(context.Background(), add("a", 1)))
	assert.Equal(t, 0, before["a"])
	assert.Equal(t, 1, s.State()["a"])
}

func TestReduceErrorLeavesStateUnchanged(t *testing.T) {
	s, err := New(Options{Slices: []reqrs.Slice{counter{"a"}}})
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, s.Dispatch(ctx, add("a", 1)))
	err = s.Dispatch(ctx, add("a", "one"))
	require.Error(t, err)
	assert.True(t, reqrs.IsInvariant(err, reqrs.CodeBadPayload))
	assert.Equal(t, 1, s.State()["a"])

	err = s.Dispatch(ctx, reqrs.Action{})
	assert.True(t, reqrs.IsInvariant(err, reqrs.CodeBadPayload))
}

func TestMiddlewareOrder(t *testing.T) {
	var trace []string
	mw := func(tag string) reqrs.Middleware {
		return func(_ reqrs.Dispatcher, next reqrs.DispatchFunc) reqrs.DispatchFunc {
			return func(ctx context.Context, a reqrs.Action) error {
				trace = append(trace, tag+">")
				err := next(ctx, a)
				trace = append(trace, "<"+tag)
				return err
			}
		}
	}
	s, err := New(Options{
		Slices:     []reqrs.Slice{counter{"a"}},
		Middleware: []reqrs.Middleware{mw("outer"), mw("inner")},
	})
	require.NoError(t, err)

	require.NoError(t, s.Dispatch(context.Background(), add("a", 1)))
	assert.Equal(t, []string{"outer>", "inner>", "<inner", "<outer"}, trace)
}

func TestMiddlewareCanShortCircuit(t *testing.T) {
	blocked := errors.New("blocked")
	s, err := New(Options{
		Slices: []reqrs.Slice{counter{"a"}},
		Middleware: []reqrs.Middleware{func(_ reqrs.Dispatcher, next reqrs.DispatchFunc) reqrs.DispatchFunc {
			return func(ctx context.Context, a reqrs.Action) error {
				if a.Payload == 13 {
					return blocked
				}
				return next(ctx, a)
			}
		}},
	})
	require.NoError(t, err)

	assert.ErrorIs(t, s.Dispatch(context.Background(), add("a", 13)), blocked)
	assert.Equal(t, 0, s.State()["a"])
}

func TestListen(t *testing.T) {
	s, err := New(Options{Slices: []reqrs.Slice{counter{"a"}}})
	require.NoError(t, err)
	ctx := context.Background()

	var seen []int
	cancel := s.Listen(func(st reqrs.RootState) { seen = append(seen, st["a"].(int)) })

	require.NoError(t, s.Dispatch(ctx, add("a", 1)))
	require.NoError(t, s.Dispatch(ctx, add("other", 1)))
	require.NoError(t, s.Dispatch(ctx, add("a", 1)))
	cancel()
	require.NoError(t, s.Dispatch(ctx, add("a", 1)))

	assert.Equal(t, []int{1, 2}, seen)
}

func TestListenersSeeReductionOrder(t *testing.T) {
	s, err := New(Options{Slices: []reqrs.Slice{counter{"a"}}})
	require.NoError(t, err)
	ctx := context.Background()

	var seen []int
	s.Listen(func(st reqrs.RootState) { seen = append(seen, st["a"].(int)) })

	const n = 200
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, s.Dispatch(ctx, add("a", 1)))
		}()
	}
	wg.Wait()

	require.Len(t, seen, n)
	for i, v := range seen {
		assert.Equal(t, i+1, v)
	}
}

func TestRunAndGo(t *testing.T) {
	s, err := New(Options{Slices: []reqrs.Slice{counter{"a"}}})
	require.NoError(t, err)
	ctx := context.Background()

	thunk := func(ctx context.Context, d reqrs.Dispatcher) error {
		return d.Dispatch(ctx, add("a", 1))
	}
	require.NoError(t, s.Run(ctx, thunk))

	tasks := make([]*reqrs.Task, 50)
	for i := range tasks {
		tasks[i] = s.Go(ctx, thunk)
	}
	require.NoError(t, reqrs.WaitAll(tasks...))
	assert.Equal(t, 51, s.State()["a"])
}

func TestConcurrentDispatchIsSerialized(t *testing.T) {
	s, err := New(Options{Slices: []reqrs.Slice{counter{"a"}}})
	require.NoError(t, err)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = s.Dispatch(ctx, add("a", 1))
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, s.State()["a"])
}
