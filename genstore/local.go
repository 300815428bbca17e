package genstore

import (
	"context"
	"sync"
	"time"
)

type localEntry struct {
	gen     uint64
	touched time.Time
}

// Local keeps generations in process memory. It is the default store and is
// only correct when every reader of the cache provider lives in this process.
type Local struct {
	mu   sync.RWMutex
	gens map[string]localEntry
	now  func() time.Time

	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

var _ Store = (*Local)(nil)

// NewLocal returns a Local store. With a positive interval and retention a
// background sweep runs Cleanup(retention) every interval until Close.
func NewLocal(interval, retention time.Duration) *Local {
	s := &Local{gens: make(map[string]localEntry), now: time.Now}
	if interval <= 0 || retention <= 0 {
		return s
	}
	s.stop = make(chan struct{})
	s.done = make(chan struct{})
	go s.sweep(interval, retention)
	return s
}

func (s *Local) sweep(interval, retention time.Duration) {
	defer close(s.done)
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			s.Cleanup(retention)
		case <-s.stop:
			return
		}
	}
}

func (s *Local) Snapshot(_ context.Context, key string) (uint64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.gens[key].gen, nil
}

func (s *Local) SnapshotMany(_ context.Context, keys []string) (map[string]uint64, error) {
	out := make(map[string]uint64, len(keys))
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, k := range keys {
		out[k] = s.gens[k].gen
	}
	return out, nil
}

func (s *Local) Bump(_ context.Context, key string) (uint64, error) {
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	e := s.gens[key]
	e.gen++
	e.touched = now
	s.gens[key] = e
	return e.gen, nil
}

func (s *Local) Cleanup(retention time.Duration) {
	if retention <= 0 {
		return
	}
	cutoff := s.now().Add(-retention)
	s.mu.Lock()
	defer s.mu.Unlock()
	for k, e := range s.gens {
		if e.touched.Before(cutoff) {
			delete(s.gens, k)
		}
	}
}

// Len is the number of tracked keys.
func (s *Local) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.gens)
}

// Close stops the sweep. Safe to call more than once.
func (s *Local) Close(context.Context) error {
	if s.stop == nil {
		return nil
	}
	s.stopOnce.Do(func() { close(s.stop) })
	<-s.done
	return nil
}
