// Package asynchook moves hook calls off the hot path. Events go through a
// bounded queue drained by a fixed set of workers; when the queue is full the
// event is dropped and counted.
//
//	raw := sloghook.New(slog.Default(), sloghook.Options{SelfHealEvery: 10})
//	hooks := asynchook.New(raw, raw, 1, 1000)
//	defer hooks.Close()
//
//	todos, _ := query.New(query.Options[S]{Name: "todos", Hooks: hooks})
//	cc, _ := cache.New(cache.Options[Todo]{Namespace: "todos", Hooks: hooks, ...})
package asynchook

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/unkn0wn-root/reqrs"
	"github.com/unkn0wn-root/reqrs/cache"
)

type Hooks struct {
	engine reqrs.Hooks
	cache  cache.Hooks

	mu      sync.RWMutex // guards closed against sends on q
	closed  bool
	q       chan func()
	wg      sync.WaitGroup
	once    sync.Once
	dropped atomic.Uint64
}

var (
	_ reqrs.Hooks = (*Hooks)(nil)
	_ cache.Hooks = (*Hooks)(nil)
)

// New starts workers draining a queue of qlen events. A nil inner hook set
// is replaced by its no-op.
func New(engine reqrs.Hooks, ch cache.Hooks, workers, qlen int) *Hooks {
	if workers <= 0 {
		workers = 1
	}
	if qlen <= 0 {
		qlen = 1024
	}
	if engine == nil {
		engine = reqrs.NopHooks{}
	}
	if ch == nil {
		ch = cache.NopHooks{}
	}

	h := &Hooks{engine: engine, cache: ch, q: make(chan func(), qlen)}
	h.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer h.wg.Done()
			for f := range h.q {
				f()
			}
		}()
	}
	return h
}

// Close stops accepting events and waits for the queued ones to run.
func (h *Hooks) Close() {
	h.once.Do(func() {
		h.mu.Lock()
		h.closed = true
		close(h.q)
		h.mu.Unlock()
		h.wg.Wait()
	})
}

// Dropped is the number of events lost to a full queue or after Close.
func (h *Hooks) Dropped() uint64 { return h.dropped.Load() }

func (h *Hooks) try(f func()) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if h.closed {
		h.dropped.Add(1)
		return
	}
	select {
	case h.q <- f:
	default:
		h.dropped.Add(1)
	}
}

func (h *Hooks) RequestStarted(op string) { h.try(func() { h.engine.RequestStarted(op) }) }
func (h *Hooks) RequestSettled(op string, err error, took time.Duration) {
	h.try(func() { h.engine.RequestSettled(op, err, took) })
}
func (h *Hooks) OverlappingEffect(slice, op string, n int) {
	h.try(func() { h.engine.OverlappingEffect(slice, op, n) })
}
func (h *Hooks) HandlerFailed(action, sub string, err error) {
	h.try(func() { h.engine.HandlerFailed(action, sub, err) })
}

func (h *Hooks) SelfHealSingle(k, r string)       { h.try(func() { h.cache.SelfHealSingle(k, r) }) }
func (h *Hooks) GenBumpError(k string, err error) { h.try(func() { h.cache.GenBumpError(k, err) }) }
func (h *Hooks) StaleWriteSkipped(k string)       { h.try(func() { h.cache.StaleWriteSkipped(k) }) }
func (h *Hooks) BulkRejected(ns string, n int, r string) {
	h.try(func() { h.cache.BulkRejected(ns, n, r) })
}
func (h *Hooks) ProviderSetRejected(k string, b bool) {
	h.try(func() { h.cache.ProviderSetRejected(k, b) })
}
func (h *Hooks) GenSnapshotError(n int, err error) {
	h.try(func() { h.cache.GenSnapshotError(n, err) })
}
func (h *Hooks) InvalidateOutage(k string, be, de error) {
	h.try(func() { h.cache.InvalidateOutage(k, be, de) })
}
func (h *Hooks) LocalGenWithSharedProvider(ns string) {
	h.try(func() { h.cache.LocalGenWithSharedProvider(ns) })
}
