package provider

import (
	"context"
	"slices"
	"sync"
	"time"
)

type mapEntry struct {
	b       []byte
	expires time.Time // zero: never
}

// Map is an in-memory Provider on a plain map, for tests and small apps. Expired
// entries are dropped lazily on Get. MaxEntries > 0 rejects writes of new keys
// once full.
type Map struct {
	MaxEntries int

	mu  sync.Mutex
	m   map[string]mapEntry
	now func() time.Time
}

var _ Provider = (*Map)(nil)

func NewMap(maxEntries int) *Map {
	return &Map{MaxEntries: maxEntries, m: make(map[string]mapEntry), now: time.Now}
}

func (p *Map) Get(_ context.Context, key string) ([]byte, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.m[key]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !p.now().Before(e.expires) {
		delete(p.m, key)
		return nil, false, nil
	}
	return slices.Clone(e.b), true, nil
}

func (p *Map) Set(_ context.Context, key string, value []byte, _ int64, ttl time.Duration) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, exists := p.m[key]; !exists && p.MaxEntries > 0 && len(p.m) >= p.MaxEntries {
		return false, nil
	}
	e := mapEntry{b: slices.Clone(value)}
	if ttl > 0 {
		e.expires = p.now().Add(ttl)
	}
	p.m[key] = e
	return true, nil
}

func (p *Map) Del(_ context.Context, key string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.m, key)
	return nil
}

// Len counts stored entries, expired ones included.
func (p *Map) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.m)
}

func (p *Map) Close(context.Context) error { return nil }
