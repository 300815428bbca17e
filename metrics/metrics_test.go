package metrics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/query"
	"github.com/unkn0wn-root/reqrs/store"
)

func newHooks(t *testing.T) (*Hooks, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	h, err := New(reg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return h, reg
}

func TestRegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := New(reg); err != nil {
		t.Fatal(err)
	}
	if _, err := New(reg); err == nil {
		t.Fatal("second registration on the same registry should fail")
	}
}

func TestRequestMetrics(t *testing.T) {
	h, _ := newHooks(t)
	h.RequestStarted("todos/retrieveAll")
	h.RequestStarted("todos/retrieveAll")
	if got := testutil.ToFloat64(h.inFlight.WithLabelValues("todos/retrieveAll")); got != 2 {
		t.Fatalf("in flight = %v", got)
	}
	h.RequestSettled("todos/retrieveAll", nil, 10*time.Millisecond)
	h.RequestSettled("todos/retrieveAll", errors.New("500"), 20*time.Millisecond)

	if got := testutil.ToFloat64(h.inFlight.WithLabelValues("todos/retrieveAll")); got != 0 {
		t.Fatalf("in flight = %v", got)
	}
	if got := testutil.ToFloat64(h.requests.WithLabelValues("todos/retrieveAll", resultSuccess)); got != 1 {
		t.Fatalf("success = %v", got)
	}
	if got := testutil.ToFloat64(h.requests.WithLabelValues("todos/retrieveAll", resultFailed)); got != 1 {
		t.Fatalf("failed = %v", got)
	}
	if n := testutil.CollectAndCount(h.duration); n != 1 {
		t.Fatalf("duration series = %d", n)
	}
}

func TestCacheMetrics(t *testing.T) {
	h, _ := newHooks(t)
	h.SelfHealSingle("single:todos:1", "gen_mismatch")
	h.SelfHealSingle("single:todos:2", "gen_mismatch")
	h.BulkRejected("todos", 3, "expired")
	h.ProviderSetRejected("bulk:todos:ab", true)
	h.StaleWriteSkipped("single:todos:1")
	h.GenBumpError("single:todos:1", errors.New("x"))
	h.GenSnapshotError(2, errors.New("x"))
	h.InvalidateOutage("1", errors.New("a"), errors.New("b"))
	h.LocalGenWithSharedProvider("todos")

	checks := []struct {
		name string
		c    prometheus.Collector
		want float64
	}{
		{"self_heal", h.selfHeals.WithLabelValues("gen_mismatch"), 2},
		{"bulk", h.bulkRejects.WithLabelValues("todos", "expired"), 1},
		{"set", h.setRejects.WithLabelValues("bulk"), 1},
		{"stale", h.staleWrites, 1},
		{"bump", h.genErrors.WithLabelValues("bump"), 1},
		{"snapshot", h.genErrors.WithLabelValues("snapshot"), 1},
		{"outage", h.outages, 1},
		{"local_gen", h.localGenWarn.WithLabelValues("todos"), 1},
	}
	for _, c := range checks {
		if got := testutil.ToFloat64(c.c); got != c.want {
			t.Errorf("%s = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestQueryReportsToRegistry(t *testing.T) {
	h, reg := newHooks(t)
	q, err := query.New(query.Options[[]string]{
		Name:  "todos",
		Hooks: h,
		Effects: map[string]reqrs.EffectSpec[[]string]{
			"retrieveAll": {
				Request: func(context.Context, any) (any, error) { return []string{"a"}, nil },
				Reducer: reqrs.ReducerFor(func(_ []string, p []string) []string { return p }),
			},
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	st, err := store.New(store.Options{Slices: []reqrs.Slice{q.Slice()}})
	if err != nil {
		t.Fatal(err)
	}
	if err := st.Run(context.Background(), q.MustEffect("retrieveAll", nil)); err != nil {
		t.Fatal(err)
	}

	n, err := testutil.GatherAndCount(reg, "reqrs_requests_total")
	if err != nil || n != 1 {
		t.Fatalf("requests_total series = %d, %v", n, err)
	}
	if got := testutil.ToFloat64(h.requests.WithLabelValues("todos/retrieveAll", resultSuccess)); got != 1 {
		t.Fatalf("success = %v", got)
	}
}
